// Package kws implements the KWS Worker (spec.md §4.4): the Stub and
// Neural variants that consume canonical 16kHz mono frames and emit
// wake detections, plus wake-phrase normalization (spec.md §4.4.1) and
// the Engine capability boundary over the (out-of-scope) neural
// runtime.
package kws

// Sink receives raw detections from a Worker before arbitration
// (thresholding/refractory/test-window all happen downstream, in the
// Detection Arbiter).
type Sink interface {
	Detect(keyword string, score float64)
}

// Worker is the common capability set shared by the Stub and Neural
// variants (spec.md §4.4): start consuming frames, stop, and adjust the
// configured keyword or sensitivity at runtime.
type Worker interface {
	Start(frames <-chan []int16, sink Sink) error
	Stop()
	SetKeyword(phrase string)
	SetSensitivity(level string) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(keyword string, score float64)

func (f SinkFunc) Detect(keyword string, score float64) { f(keyword, score) }
