// Package arbiter implements the Detection Arbiter (spec.md §4.5): the
// refractory clock, one-shot test-window timer, and sensitivity
// thresholds that sit between the KWS Worker and the event sink. It is
// stateless with respect to KWS internals — it only ever sees
// (keyword, score) pairs.
package arbiter

import (
	"strings"
	"sync"
	"time"
)

// Preset is a named sensitivity level mapping to a score threshold and
// an endpoint duration (spec.md §4.5, normative table).
type Preset struct {
	ScoreThreshold float64
	EndpointMs     int
}

var presets = map[string]Preset{
	"low":      {ScoreThreshold: 0.70, EndpointMs: 350},
	"balanced": {ScoreThreshold: 0.60, EndpointMs: 300},
	"high":     {ScoreThreshold: 0.50, EndpointMs: 250},
}

// DetectionEvent is emitted at most once per utterance (spec.md §3).
type DetectionEvent struct {
	Keyword   string
	Score     float64
	Timestamp time.Time
	TestPass  bool
}

// Sink receives arbitrated detections.
type Sink interface {
	OnDetection(DetectionEvent)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(DetectionEvent)

func (f SinkFunc) OnDetection(e DetectionEvent) { f(e) }

// Arbiter owns the refractory clock and test-window timer. It is safe
// for concurrent use: KWS workers on their own goroutine call Ingest,
// while the command surface calls ArmTestWindow and SetSensitivity from
// the supervisor goroutine.
type Arbiter struct {
	mu sync.Mutex

	refractoryPeriod time.Duration
	lastDetection    time.Time

	preset Preset

	testWindowUntil time.Time
	testWindowArmed bool

	now func() time.Time
}

// New builds an Arbiter with the default 1200ms refractory period and
// the Balanced sensitivity preset.
func New() *Arbiter {
	return &Arbiter{
		refractoryPeriod: 1200 * time.Millisecond,
		preset:           presets["balanced"],
		now:              time.Now,
	}
}

// SetRefractoryPeriod overrides the default refractory duration.
func (a *Arbiter) SetRefractoryPeriod(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refractoryPeriod = d
}

// SetSensitivity switches the active preset by name (case-insensitive
// Low/Balanced/High), per kws_set_sensitivity (spec.md §6). A name that
// is not one of the presets leaves the active preset unchanged; raw
// score thresholds go through SetSensitivityThreshold.
func (a *Arbiter) SetSensitivity(level string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if p, ok := presets[strings.ToLower(level)]; ok {
		a.preset = p
	}
}

// SetSensitivityThreshold sets a raw score threshold outside the named
// presets, keeping the current endpoint_ms.
func (a *Arbiter) SetSensitivityThreshold(t float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.preset.ScoreThreshold = t
}

// CurrentPreset reports the active thresholds.
func (a *Arbiter) CurrentPreset() Preset {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.preset
}

// ArmTestWindow arms a one-shot window: the next detection within
// durMs additionally carries TestPass=true (spec.md §4.5, §6
// kws_arm_test_window).
func (a *Arbiter) ArmTestWindow(durMs int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.testWindowArmed = true
	a.testWindowUntil = a.now().Add(time.Duration(durMs) * time.Millisecond)
}

// Ingest is called by a KWS Worker's Sink for every raw detection. It
// applies the score threshold and refractory rule and, if the
// detection survives, forwards a DetectionEvent to sink.
func (a *Arbiter) Ingest(keyword string, score float64, sink Sink) {
	a.mu.Lock()

	if score < a.preset.ScoreThreshold {
		a.mu.Unlock()
		return
	}

	now := a.now()
	if !a.lastDetection.IsZero() && now.Sub(a.lastDetection) < a.refractoryPeriod {
		a.mu.Unlock()
		return
	}
	a.lastDetection = now

	testPass := false
	if a.testWindowArmed {
		testPass = !now.After(a.testWindowUntil)
		a.testWindowArmed = false
	}

	a.mu.Unlock()

	sink.OnDetection(DetectionEvent{
		Keyword:   keyword,
		Score:     score,
		Timestamp: now,
		TestPass:  testPass,
	})
}
