package validate

import "testing"

func TestDurationBoundaries(t *testing.T) {
	if err := Duration(9); err == nil {
		t.Fatalf("expected 9ms to be rejected")
	}
	if err := Duration(5001); err == nil {
		t.Fatalf("expected 5001ms to be rejected")
	}
	if err := Duration(10); err != nil {
		t.Fatalf("expected 10ms to be accepted, got %v", err)
	}
	if err := Duration(5000); err != nil {
		t.Fatalf("expected 5000ms to be accepted, got %v", err)
	}
}

func TestGainBoundaries(t *testing.T) {
	if err := Gain(-0.01); err == nil {
		t.Fatalf("expected -0.01 to be rejected")
	}
	if err := Gain(0.51); err == nil {
		t.Fatalf("expected 0.51 to be rejected")
	}
	if err := Gain(0.0); err != nil {
		t.Fatalf("expected 0.0 to be accepted, got %v", err)
	}
	if err := Gain(0.5); err != nil {
		t.Fatalf("expected 0.5 to be accepted, got %v", err)
	}
}

func TestFrequencyBoundaries(t *testing.T) {
	if err := Frequency(49); err == nil {
		t.Fatalf("expected 49Hz to be rejected")
	}
	if err := Frequency(4001); err == nil {
		t.Fatalf("expected 4001Hz to be rejected")
	}
	if err := Frequency(50); err != nil {
		t.Fatalf("expected 50Hz to be accepted, got %v", err)
	}
	if err := Frequency(4000); err != nil {
		t.Fatalf("expected 4000Hz to be accepted, got %v", err)
	}
}

func TestDeviceNameBoundaries(t *testing.T) {
	if err := DeviceName(""); err == nil {
		t.Fatalf("expected empty device name to be rejected")
	}
	if err := DeviceName("bad\x00name"); err == nil {
		t.Fatalf("expected control-char device name to be rejected")
	}
	if err := DeviceName("USB Microphone"); err != nil {
		t.Fatalf("expected plain device name to be accepted, got %v", err)
	}
}

func TestSensitivityAcceptsEnumOnly(t *testing.T) {
	for _, ok := range []string{"Low", "balanced", "HIGH"} {
		if err := Sensitivity(ok); err != nil {
			t.Fatalf("expected %q to be accepted, got %v", ok, err)
		}
	}
	if err := Sensitivity("extreme"); err == nil {
		t.Fatalf("expected invalid sensitivity name to be rejected")
	}
}

func TestSensitivityValueBoundaries(t *testing.T) {
	if err := SensitivityValue(-0.01); err == nil {
		t.Fatalf("expected -0.01 to be rejected")
	}
	if err := SensitivityValue(1.01); err == nil {
		t.Fatalf("expected 1.01 to be rejected")
	}
	if err := SensitivityValue(0.0); err != nil {
		t.Fatalf("expected 0.0 to be accepted, got %v", err)
	}
	if err := SensitivityValue(1.0); err != nil {
		t.Fatalf("expected 1.0 to be accepted, got %v", err)
	}
}

func TestUserIDValidation(t *testing.T) {
	if err := UserID("alice_01"); err != nil {
		t.Fatalf("expected valid user id to be accepted, got %v", err)
	}
	if err := UserID(""); err == nil {
		t.Fatalf("expected empty user id to be rejected")
	}
	if err := UserID("alice with spaces"); err == nil {
		t.Fatalf("expected user id with spaces to be rejected")
	}
}

func TestUtteranceDurationMs(t *testing.T) {
	samples := make([]float32, 16000*2) // 2000ms
	if _, err := UtteranceDurationMs(samples, 2000); err != nil {
		t.Fatalf("expected 2000ms utterance to satisfy 2000ms minimum, got %v", err)
	}
	short := make([]float32, 16000) // 1000ms
	if _, err := UtteranceDurationMs(short, 2000); err == nil {
		t.Fatalf("expected 1000ms utterance to be rejected against 2000ms minimum")
	}
}
