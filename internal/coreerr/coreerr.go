// Package coreerr defines the stable error taxonomy the core reports
// across its API boundary. No stack traces or raw Go errors cross that
// boundary — only a Code, a human message, and optional field context.
package coreerr

import "fmt"

// Code is one of the stable taxonomy entries from spec.md §7.
type Code string

const (
	DeviceBusy          Code = "device_busy"
	DeviceNotFound      Code = "device_not_found"
	PermissionDenied    Code = "permission_denied"
	Timeout             Code = "timeout"
	NoDevice            Code = "no_device"
	InvalidDeviceName   Code = "invalid_device_name"
	InvalidFrequency    Code = "invalid_frequency"
	InvalidDuration     Code = "invalid_duration"
	InvalidGain         Code = "invalid_gain"
	InvalidThreshold    Code = "invalid_threshold"
	InvalidSensitivity  Code = "invalid_sensitivity"
	InvalidUser         Code = "invalid_user"
	DownloadFailed      Code = "download_failed"
	VerifyFailed        Code = "verify_failed"
	ModelMissing        Code = "model_missing"
	VocabMismatch       Code = "vocab_mismatch"
	DecryptionFailed    Code = "decryption_failed"
	EnrollmentIncomplete Code = "enrollment_incomplete"
	UtteranceTooShort   Code = "utterance_too_short"
	InProgress          Code = "in_progress"
	FeedbackRisk        Code = "feedback_risk"
	Unknown             Code = "unknown"
)

// CoreError is the structured error returned to callers and mirrored on
// the event sink as audio:error (or the relevant taxonomy event).
type CoreError struct {
	Code    Code
	Message string
	Field   string
	Value   string
}

func (e *CoreError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field=%s value=%s)", e.Code, e.Message, e.Field, e.Value)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New builds a CoreError with no field context.
func New(code Code, message string) *CoreError {
	return &CoreError{Code: code, Message: message}
}

// WithField builds a CoreError carrying the offending field/value, used
// by the validators so the caller can pinpoint what was rejected.
func WithField(code Code, message, field, value string) *CoreError {
	return &CoreError{Code: code, Message: message, Field: field, Value: value}
}

// As reports whether err is a *CoreError and returns it.
func As(err error) (*CoreError, bool) {
	ce, ok := err.(*CoreError)
	return ce, ok
}
