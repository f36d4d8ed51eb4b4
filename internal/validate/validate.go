// Package validate centralizes the pure validators used at every command
// surface boundary (spec.md §6, §8). Every validator is a pure function
// returning a *coreerr.CoreError on rejection so the caller gets both a
// stable code and the offending field/value.
package validate

import (
	"regexp"
	"strconv"
	"strings"

	"ember/internal/coreerr"
)

var userIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
var modelIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// DeviceName validates a device name per spec.md §6: 1-256 chars, no
// control characters (bytes < 0x20 or 0x7F).
func DeviceName(name string) *coreerr.CoreError {
	if len(name) < 1 || len(name) > 256 {
		return coreerr.WithField(coreerr.InvalidDeviceName, "device name must be 1-256 characters", "name", name)
	}
	for i := 0; i < len(name); i++ {
		b := name[i]
		if b < 0x20 || b == 0x7F {
			return coreerr.WithField(coreerr.InvalidDeviceName, "device name contains control characters", "name", name)
		}
	}
	return nil
}

// Frequency validates a test-tone frequency: 50-4000 Hz inclusive.
func Frequency(hz float64) *coreerr.CoreError {
	if hz < 50 || hz > 4000 {
		return coreerr.WithField(coreerr.InvalidFrequency, "frequency must be within [50,4000] Hz", "freq_hz", fmtFloat(hz))
	}
	return nil
}

// Duration validates a test-tone duration: 10-5000 ms inclusive.
func Duration(ms int) *coreerr.CoreError {
	if ms < 10 || ms > 5000 {
		return coreerr.WithField(coreerr.InvalidDuration, "duration must be within [10,5000] ms", "dur_ms", fmtInt(ms))
	}
	return nil
}

// SimpleModeTone additionally enforces the simple-mode caps on top of Duration.
func SimpleModeTone(ms int, vol float64) *coreerr.CoreError {
	if ms > 300 {
		return coreerr.WithField(coreerr.InvalidDuration, "simple mode caps duration at 300ms", "dur_ms", fmtInt(ms))
	}
	if vol > 0.25 {
		return coreerr.WithField(coreerr.InvalidGain, "simple mode caps volume at 0.25", "vol", fmtFloat(vol))
	}
	return nil
}

// Gain validates a mic-monitor gain: 0.0-0.5 inclusive.
func Gain(g float64) *coreerr.CoreError {
	if g < 0.0 || g > 0.5 {
		return coreerr.WithField(coreerr.InvalidGain, "gain must be within [0.0,0.5]", "gain", fmtFloat(g))
	}
	return nil
}

// Threshold validates a generic [0,1] threshold (VAD threshold, etc).
func Threshold(t float64) *coreerr.CoreError {
	if t < 0.0 || t > 1.0 {
		return coreerr.WithField(coreerr.InvalidThreshold, "threshold must be within [0.0,1.0]", "threshold", fmtFloat(t))
	}
	return nil
}

// Sensitivity validates a named KWS sensitivity preset: one of the enum
// names Low/Balanced/High (case-insensitive). Numeric [0,1] scores are
// validated by SensitivityValue instead.
func Sensitivity(s string) *coreerr.CoreError {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "balanced", "high":
		return nil
	}
	return coreerr.WithField(coreerr.InvalidSensitivity, "sensitivity must be a [0,1] float or Low/Balanced/High", "sensitivity", s)
}

// SensitivityValue validates a raw numeric sensitivity score: [0,1].
func SensitivityValue(t float64) *coreerr.CoreError {
	if t < 0.0 || t > 1.0 {
		return coreerr.WithField(coreerr.InvalidSensitivity, "sensitivity must be within [0.0,1.0]", "sensitivity", fmtFloat(t))
	}
	return nil
}

// TestWindowMs validates kws_arm_test_window's duration: 100-60000 ms.
func TestWindowMs(ms int) *coreerr.CoreError {
	if ms < 100 || ms > 60000 {
		return coreerr.WithField(coreerr.InvalidDuration, "test window duration must be within [100,60000] ms", "dur_ms", fmtInt(ms))
	}
	return nil
}

// UserID validates an enrollment/verification user identifier: 1-64
// chars from [A-Za-z0-9_-].
func UserID(user string) *coreerr.CoreError {
	if !userIDRe.MatchString(user) {
		return coreerr.WithField(coreerr.InvalidUser, "user id must be 1-64 chars of [A-Za-z0-9_-]", "user", user)
	}
	return nil
}

// ModelID validates a model registry identifier: alphanumerics plus -_,
// max 64 characters (spec.md §3).
func ModelID(id string) *coreerr.CoreError {
	if !modelIDRe.MatchString(id) {
		return coreerr.WithField(coreerr.ModelMissing, "model id must be 1-64 chars of [A-Za-z0-9_-]", "model_id", id)
	}
	return nil
}

// UtteranceDurationMs computes the duration in ms of a sample slice at
// 16 kHz and checks it against minMs.
func UtteranceDurationMs(samples []float32, minMs int) (int, *coreerr.CoreError) {
	durMs := len(samples) * 1000 / 16000
	if durMs < minMs {
		return durMs, coreerr.WithField(coreerr.UtteranceTooShort, "utterance shorter than the configured minimum", "duration_ms", fmtInt(durMs))
	}
	return durMs, nil
}

func fmtFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func fmtInt(i int) string {
	return strconv.Itoa(i)
}
