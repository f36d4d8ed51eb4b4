package kws

import (
	"math"
	"sync"
)

// stubRMSThreshold is the RMS level (fraction of full scale) above
// which the Stub variant synthesizes a detection. It is independent of
// the Detection Arbiter's sensitivity presets: the arbiter still
// thresholds the emitted score downstream.
const stubRMSThreshold = 0.12

// Stub is the degraded KWS variant (spec.md §4.4.2): pure RMS
// thresholding, no inference runtime, no model files. Used for
// development and as the automatic fallback when Neural fails to
// initialize.
type Stub struct {
	mu      sync.Mutex
	keyword string

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewStub builds a Stub configured with the given (already normalized)
// wake phrase.
func NewStub(keyword string) *Stub {
	return &Stub{keyword: Normalize(keyword)}
}

// Start spins up the consumer goroutine.
func (s *Stub) Start(frames <-chan []int16, sink Sink) error {
	s.stopCh = make(chan struct{})
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-s.stopCh:
				return
			case f, ok := <-frames:
				if !ok {
					return
				}
				if rms(f) >= stubRMSThreshold {
					s.mu.Lock()
					kw := s.keyword
					s.mu.Unlock()
					sink.Detect(kw, 1.0)
				}
			}
		}
	}()
	return nil
}

// Stop halts the consumer goroutine and waits for it to exit.
func (s *Stub) Stop() {
	if s.stopCh == nil {
		return
	}
	close(s.stopCh)
	s.wg.Wait()
}

// SetKeyword updates the wake phrase reported on synthetic detections.
func (s *Stub) SetKeyword(phrase string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keyword = Normalize(phrase)
}

// SetSensitivity is a no-op for Stub: sensitivity thresholding happens
// in the Detection Arbiter, which compares the emitted score (always
// 1.0 here) against the active preset.
func (s *Stub) SetSensitivity(string) error { return nil }

func rms(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sumSq float64
	for _, v := range samples {
		f := float64(v) / 32768.0
		sumSq += f * f
	}
	return math.Sqrt(sumSq / float64(len(samples)))
}
