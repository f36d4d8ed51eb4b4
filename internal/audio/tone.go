package audio

import (
	"math"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"

	"ember/internal/coreerr"
)

const toneSampleRate = beep.SampleRate(44100)

var (
	speakerOnce sync.Once
	speakerErr  error
)

func ensureSpeaker() error {
	speakerOnce.Do(func() {
		speakerErr = speaker.Init(toneSampleRate, toneSampleRate.N(time.Second/10))
	})
	return speakerErr
}

// sineStreamer generates a pure sine tone at freqHz for the given
// duration, at the given linear volume in [0,1]. It mirrors the
// teacher's notify.Beep pipeline (decode -> speaker.Play -> block on a
// done channel) but synthesizes the waveform instead of decoding an
// mp3 file, since play_test_tone (spec.md §6) needs an arbitrary
// frequency/duration, not a fixed notification sound.
type sineStreamer struct {
	freqHz     float64
	remaining  int
	phase      float64
	volume     float64
}

func (s *sineStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	if s.remaining <= 0 {
		return 0, false
	}
	step := s.freqHz * 2 * math.Pi / float64(toneSampleRate)
	for i := range samples {
		if s.remaining <= 0 {
			return i, i > 0
		}
		v := math.Sin(s.phase) * s.volume
		samples[i][0] = v
		samples[i][1] = v
		s.phase += step
		s.remaining--
	}
	return len(samples), true
}

func (s *sineStreamer) Err() error { return nil }

// PlayTestTone synthesizes and plays a sine tone. freqHz and durMs must
// already have passed validate.Frequency/validate.Duration; volume is a
// linear [0,1] gain applied to the generated waveform (spec.md §6).
func PlayTestTone(freqHz float64, durMs int, volume float64) *coreerr.CoreError {
	if err := ensureSpeaker(); err != nil {
		return coreerr.New(coreerr.Unknown, err.Error())
	}

	n := int(toneSampleRate.N(time.Duration(durMs) * time.Millisecond))
	streamer := &sineStreamer{freqHz: freqHz, remaining: n, volume: clampVolume(volume)}

	done := make(chan struct{})
	speaker.Play(beep.Seq(streamer, beep.Callback(func() { close(done) })))
	<-done
	return nil
}

func clampVolume(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
