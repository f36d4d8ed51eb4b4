// Package vad implements the VAD Gate (spec.md §4.3): a thin, stateful
// speech/silence classifier placed in front of the KWS Worker to gate
// inference. Any implementation of the Gate interface is acceptable;
// EnergyGate is the default, grounded on the hysteretic RMS classifier
// pattern used elsewhere in the corpus for on-device VAD.
package vad

import "math"

// Gate maps a frame of mono i16 samples to a speech/silence decision
// with internal hysteresis.
type Gate interface {
	IsSpeech(samples []int16) bool
	Reset()
	SetThreshold(t float64)
}

// EnergyGate classifies frames by RMS energy with an enter/exit
// hysteresis band and a hang-over period so trailing phonemes are not
// clipped when energy dips briefly below the exit threshold.
type EnergyGate struct {
	enterThreshold float64
	exitThreshold  float64
	hangoverFrames int

	inSpeech     bool
	hangoverLeft int
}

// NewEnergyGate builds a gate with the given enter threshold (fraction
// of full scale, [0,1]) and a 300ms default hang-over at the given
// frame duration. Exit threshold defaults to 60% of enter.
func NewEnergyGate(enterThreshold float64, frameMs int) *EnergyGate {
	if frameMs <= 0 {
		frameMs = 20
	}
	hangoverMs := 300
	frames := hangoverMs / frameMs
	if frames < 1 {
		frames = 1
	}
	return &EnergyGate{
		enterThreshold: enterThreshold,
		exitThreshold:  enterThreshold * 0.6,
		hangoverFrames: frames,
	}
}

// SetThreshold updates the enter threshold (vad_set_threshold, spec.md
// §6) and rescales the exit threshold to keep the same hysteresis ratio.
func (g *EnergyGate) SetThreshold(t float64) {
	g.enterThreshold = t
	g.exitThreshold = t * 0.6
}

// IsSpeech reports the current speech/silence state after observing
// one frame.
func (g *EnergyGate) IsSpeech(samples []int16) bool {
	level := rmsNormalized(samples)

	if g.inSpeech {
		if level < g.exitThreshold {
			if g.hangoverLeft > 0 {
				g.hangoverLeft--
			} else {
				g.inSpeech = false
			}
		} else {
			g.hangoverLeft = g.hangoverFrames
		}
	} else {
		if level >= g.enterThreshold {
			g.inSpeech = true
			g.hangoverLeft = g.hangoverFrames
		}
	}

	return g.inSpeech
}

// Reset clears hysteresis state, returning to silence.
func (g *EnergyGate) Reset() {
	g.inSpeech = false
	g.hangoverLeft = 0
}

func rmsNormalized(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sumSq float64
	for _, s := range samples {
		v := float64(s) / 32768.0
		sumSq += v * v
	}
	return math.Sqrt(sumSq / float64(len(samples)))
}

// NoopGate always reports speech; used when the host wants the KWS
// worker to run unconditionally.
type NoopGate struct{}

func (NoopGate) IsSpeech([]int16) bool  { return true }
func (NoopGate) Reset()                 {}
func (NoopGate) SetThreshold(float64)   {}
