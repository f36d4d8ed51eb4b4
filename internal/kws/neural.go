package kws

import (
	"log/slog"
	"sync"
)

// Neural is the streaming-transducer KWS variant (spec.md §4.4.1). It
// owns the Engine session on a single dedicated goroutine: frames are
// converted to f32 PCM, pushed, polled, and decoded in strict sequence,
// exactly as the runtime requires (no concurrent access to a session).
type Neural struct {
	engine  Engine
	keyword string
	log     *slog.Logger

	mu     sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewNeural constructs and initializes a Neural worker against modelDir.
// A non-nil error here signals the caller (Runtime Supervisor) to fall
// back to Stub and emit `kws:degraded` — construction failure is
// non-fatal to the process (spec.md §4.4.3).
func NewNeural(engine Engine, modelDir, keyword string, log *slog.Logger) (*Neural, error) {
	norm := Normalize(keyword)
	if err := engine.Construct(modelDir); err != nil {
		return nil, err
	}
	if vocab, err := engine.Vocabulary(); err == nil {
		CheckVocabulary(vocab, log)
	}
	return &Neural{engine: engine, keyword: norm, log: log}, nil
}

// Start spins up the dedicated decode goroutine.
func (n *Neural) Start(frames <-chan []int16, sink Sink) error {
	n.stopCh = make(chan struct{})
	n.wg.Add(1)
	go n.run(frames, sink)
	return nil
}

func (n *Neural) run(frames <-chan []int16, sink Sink) {
	defer n.wg.Done()
	for {
		select {
		case <-n.stopCh:
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			pcm := i16ToF32(f)
			if err := n.engine.PushFrame(pcm); err != nil {
				if n.log != nil {
					n.log.Error("kws neural push frame failed", "err", err)
				}
				continue
			}
			ready, err := n.engine.Poll()
			if err != nil || !ready {
				continue
			}
			keyword, detected, err := n.engine.Decode()
			if err != nil {
				if n.log != nil {
					n.log.Error("kws neural decode failed", "err", err)
				}
				continue
			}
			if detected {
				n.mu.Lock()
				kw := n.keyword
				n.mu.Unlock()
				if keyword == "" {
					keyword = kw
				}
				sink.Detect(keyword, 1.0)
			}
		}
	}
}

// Stop halts decoding and destroys the underlying engine session.
func (n *Neural) Stop() {
	if n.stopCh != nil {
		close(n.stopCh)
		n.wg.Wait()
	}
	_ = n.engine.Destroy()
}

// SetKeyword updates the wake phrase reported on a detection whose
// decoded keyword is empty. Changing it does not recompile the keyword
// list inside the running session; callers that need that must rebuild
// the Neural worker.
func (n *Neural) SetKeyword(phrase string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.keyword = Normalize(phrase)
}

// SetSensitivity is a no-op: the transducer reports a boolean, so
// sensitivity is entirely the Detection Arbiter's concern.
func (n *Neural) SetSensitivity(string) error { return nil }

func i16ToF32(in []int16) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v) / 32768.0
	}
	return out
}
