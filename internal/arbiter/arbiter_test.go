package arbiter

import (
	"testing"
	"time"
)

func newTestArbiter(clock *time.Time) *Arbiter {
	a := New()
	a.now = func() time.Time { return *clock }
	return a
}

func TestIngestBelowThresholdIsDropped(t *testing.T) {
	now := time.Unix(0, 0)
	a := newTestArbiter(&now)
	a.SetSensitivity("balanced") // threshold 0.60

	var got []DetectionEvent
	a.Ingest("hey ember", 0.5, SinkFunc(func(e DetectionEvent) { got = append(got, e) }))
	if len(got) != 0 {
		t.Fatalf("expected no detection below threshold, got %v", got)
	}
}

func TestIngestAboveThresholdForwards(t *testing.T) {
	now := time.Unix(0, 0)
	a := newTestArbiter(&now)

	var got []DetectionEvent
	a.Ingest("hey ember", 0.9, SinkFunc(func(e DetectionEvent) { got = append(got, e) }))
	if len(got) != 1 {
		t.Fatalf("expected 1 detection, got %d", len(got))
	}
}

func TestRefractorySuppressesRepeat(t *testing.T) {
	now := time.Unix(0, 0)
	a := newTestArbiter(&now)

	var count int
	sink := SinkFunc(func(e DetectionEvent) { count++ })

	a.Ingest("hey ember", 0.9, sink)
	now = now.Add(500 * time.Millisecond) // within default 1200ms refractory
	a.Ingest("hey ember", 0.9, sink)

	if count != 1 {
		t.Fatalf("expected refractory to suppress second detection, got count=%d", count)
	}

	now = now.Add(1200 * time.Millisecond) // now well past refractory
	a.Ingest("hey ember", 0.9, sink)
	if count != 2 {
		t.Fatalf("expected detection after refractory expiry, got count=%d", count)
	}
}

func TestArmTestWindowMarksNextDetectionOnly(t *testing.T) {
	now := time.Unix(0, 0)
	a := newTestArbiter(&now)
	a.ArmTestWindow(500)

	var events []DetectionEvent
	sink := SinkFunc(func(e DetectionEvent) { events = append(events, e) })

	a.Ingest("hey ember", 0.9, sink)
	now = now.Add(2 * time.Second)
	a.Ingest("hey ember", 0.9, sink)

	if len(events) != 2 {
		t.Fatalf("expected 2 detections, got %d", len(events))
	}
	if !events[0].TestPass {
		t.Fatal("expected first detection to carry TestPass")
	}
	if events[1].TestPass {
		t.Fatal("test window should be one-shot")
	}
}

func TestSensitivityPresetsMatchNormativeTable(t *testing.T) {
	a := New()

	a.SetSensitivity("Low")
	if p := a.CurrentPreset(); p.ScoreThreshold != 0.70 || p.EndpointMs != 350 {
		t.Fatalf("Low preset mismatch: %+v", p)
	}

	a.SetSensitivity("HIGH")
	if p := a.CurrentPreset(); p.ScoreThreshold != 0.50 || p.EndpointMs != 250 {
		t.Fatalf("High preset mismatch: %+v", p)
	}
}
