package control

import (
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"ember/internal/arbiter"
	"ember/internal/audio"
	"ember/internal/supervisor"
)

// newTestRouter builds a Router wired the same way cmd/emberd/main.go
// wires it: one Arbiter instance shared by both the Router and the
// Supervisor underneath it, backed by bare (no-portaudio) audio deps.
func newTestRouter(t *testing.T) *Router {
	t.Helper()
	arb := arbiter.New()
	sup := supervisor.New(audio.NewRegistry(), audio.NewMonitor(), arb, nil, nil, slog.Default(), supervisor.Events{})
	return &Router{arb: arb, sup: sup}
}

func TestKwsSetSensitivityAcceptsNumericScore(t *testing.T) {
	rt := newTestRouter(t)

	resp := rt.kwsSetSensitivity(json.RawMessage(`{"level":0.73}`))
	if !resp.OK {
		t.Fatalf("expected numeric sensitivity to be accepted, got %+v", resp)
	}

	var preset arbiter.Preset
	if err := json.Unmarshal(resp.Result, &preset); err != nil {
		t.Fatal(err)
	}
	if preset.ScoreThreshold != 0.73 {
		t.Fatalf("expected threshold 0.73, got %v", preset.ScoreThreshold)
	}
}

func TestKwsSetSensitivityRejectsOutOfRangeScore(t *testing.T) {
	rt := newTestRouter(t)

	resp := rt.kwsSetSensitivity(json.RawMessage(`{"level":1.5}`))
	if resp.OK {
		t.Fatalf("expected out-of-range sensitivity to be rejected, got %+v", resp)
	}
}

func TestKwsSetSensitivityAcceptsNamedPreset(t *testing.T) {
	rt := newTestRouter(t)

	resp := rt.kwsSetSensitivity(json.RawMessage(`{"level":"high"}`))
	if !resp.OK {
		t.Fatalf("expected named preset to be accepted, got %+v", resp)
	}

	var preset arbiter.Preset
	if err := json.Unmarshal(resp.Result, &preset); err != nil {
		t.Fatal(err)
	}
	if preset.ScoreThreshold != 0.50 {
		t.Fatalf("expected the high preset's threshold, got %v", preset.ScoreThreshold)
	}
}

func TestKwsSetSensitivityRejectsUnknownName(t *testing.T) {
	rt := newTestRouter(t)

	resp := rt.kwsSetSensitivity(json.RawMessage(`{"level":"extreme"}`))
	if resp.OK {
		t.Fatalf("expected unknown preset name to be rejected, got %+v", resp)
	}
}

func TestVadSetThresholdRejectsOutOfRange(t *testing.T) {
	rt := newTestRouter(t)

	resp := rt.vadSetThreshold(json.RawMessage(`{"threshold":1.5}`))
	if resp.OK {
		t.Fatalf("expected out-of-range threshold to be rejected, got %+v", resp)
	}
}

func TestPlayTestToneRejectsOutOfRangeFrequency(t *testing.T) {
	rt := &Router{}

	resp := rt.playTestTone(json.RawMessage(`{"freq_hz":10,"dur_ms":100,"volume":0.1}`))
	if resp.OK {
		t.Fatalf("expected out-of-range frequency to be rejected before touching the speaker, got %+v", resp)
	}
}

func TestSetInputDeviceRejectsOverlongName(t *testing.T) {
	rt := newTestRouter(t)

	raw, _ := json.Marshal(map[string]string{"device": strings.Repeat("x", 300)})
	resp := rt.setInputDevice(nil, raw)
	if resp.OK {
		t.Fatalf("expected an overlong device name to be rejected, got %+v", resp)
	}
}
