package kws

import "errors"

// Engine is the capability interface over the third-party streaming
// transducer runtime. The runtime itself is out of scope (spec.md §1
// treats it as an opaque native library) — this package only defines
// the boundary a real binding would satisfy, and ships a placeholder
// implementation that reports itself unavailable so the Neural variant
// always falls back to Stub until a real Engine is wired in by the
// host. Implementations must confine every native handle to the single
// goroutine that calls Construct.
type Engine interface {
	// Construct loads the encoder/decoder/joiner and tokens from
	// modelDir and prepares a fresh streaming session.
	Construct(modelDir string) error
	// PushFrame feeds one frame of mono f32 PCM in [-1,1].
	PushFrame(pcm []float32) error
	// Poll reports whether the streaming session has output ready to
	// decode.
	Poll() (ready bool, err error)
	// Decode consumes ready output and reports whether the configured
	// keyword was recognized.
	Decode() (keyword string, detected bool, err error)
	// Vocabulary returns the subword token table for CheckVocabulary.
	Vocabulary() (map[string]struct{}, error)
	// Destroy releases the native session. Safe to call once.
	Destroy() error
}

// ErrEngineUnavailable is returned by unavailableEngine to force the
// Neural variant's non-fatal fallback to Stub (spec.md §4.4.3).
var ErrEngineUnavailable = errors.New("kws: neural inference engine not wired")

// unavailableEngine is the default Engine: every call fails immediately.
// A host that links a real streaming-transducer binding replaces this
// with a concrete Engine at supervisor construction time.
type unavailableEngine struct{}

// NewUnavailableEngine returns the default Engine placeholder.
func NewUnavailableEngine() Engine { return unavailableEngine{} }

func (unavailableEngine) Construct(string) error                    { return ErrEngineUnavailable }
func (unavailableEngine) PushFrame([]float32) error                 { return ErrEngineUnavailable }
func (unavailableEngine) Poll() (bool, error)                       { return false, ErrEngineUnavailable }
func (unavailableEngine) Decode() (string, bool, error)              { return "", false, ErrEngineUnavailable }
func (unavailableEngine) Vocabulary() (map[string]struct{}, error)  { return nil, ErrEngineUnavailable }
func (unavailableEngine) Destroy() error                             { return nil }
