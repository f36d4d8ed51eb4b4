// Package audio implements the Device Registry, Capture Worker, ring
// buffer, and test-tone/mic-monitor commands (spec.md §4.1, §4.2).
package audio

import (
	"fmt"
	"strings"
	"time"

	"github.com/gordonklaus/portaudio"

	"ember/internal/coreerr"
)

// DeviceId is the stable triple identifying a physical audio endpoint
// across enumerations (spec.md §3).
type DeviceId struct {
	HostAPI string
	Index   int
	Name    string
}

// Equal implements the equivalence rule from spec.md §3: all three
// fields must match.
func (d DeviceId) Equal(o DeviceId) bool {
	return d.HostAPI == o.HostAPI && d.Index == o.Index && d.Name == o.Name
}

func (d DeviceId) String() string {
	return fmt.Sprintf("%s#%d:%s", d.HostAPI, d.Index, d.Name)
}

// DeviceKind distinguishes input from output endpoints for event payloads.
type DeviceKind string

const (
	KindInput  DeviceKind = "input"
	KindOutput DeviceKind = "output"
)

// LossEvent is emitted by Registry.Watch when the configured device
// disappears from the enumeration.
type LossEvent struct {
	Kind     DeviceKind
	Previous DeviceId
}

// Registry enumerates audio endpoints and resolves/watches stable
// identities (spec.md §4.1). It owns no stream; it only queries
// portaudio's device table.
type Registry struct {
	pollInterval time.Duration
}

// NewRegistry builds a Registry with the default 2s polling interval.
func NewRegistry() *Registry {
	return &Registry{pollInterval: 2 * time.Second}
}

// SetPollInterval overrides the default loss-detection poll cadence.
func (r *Registry) SetPollInterval(d time.Duration) { r.pollInterval = d }

func hostAPIName(info *portaudio.DeviceInfo) string {
	if info.HostApi == nil {
		return "unknown"
	}
	return info.HostApi.Name
}

func deviceIdOf(info *portaudio.DeviceInfo) DeviceId {
	return DeviceId{
		HostAPI: hostAPIName(info),
		Index:   int(info.Index),
		Name:    info.Name,
	}
}

// ListInputs enumerates every device offering at least one input channel.
func (r *Registry) ListInputs() ([]DeviceId, *coreerr.CoreError) {
	return r.list(func(info *portaudio.DeviceInfo) bool { return info.MaxInputChannels > 0 })
}

// ListOutputs enumerates every device offering at least one output channel.
func (r *Registry) ListOutputs() ([]DeviceId, *coreerr.CoreError) {
	return r.list(func(info *portaudio.DeviceInfo) bool { return info.MaxOutputChannels > 0 })
}

func (r *Registry) list(keep func(*portaudio.DeviceInfo) bool) ([]DeviceId, *coreerr.CoreError) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, translatePortaudioErr(err)
	}
	var out []DeviceId
	for _, d := range devices {
		if d == nil || !keep(d) {
			continue
		}
		out = append(out, deviceIdOf(d))
	}
	return out, nil
}

// DefaultInput returns the host's default input device.
func (r *Registry) DefaultInput() (DeviceId, *coreerr.CoreError) {
	d, err := portaudio.DefaultInputDevice()
	if err != nil {
		return DeviceId{}, translatePortaudioErr(err)
	}
	if d == nil {
		return DeviceId{}, coreerr.New(coreerr.NoDevice, "no default input device")
	}
	return deviceIdOf(d), nil
}

// DefaultOutput returns the host's default output device.
func (r *Registry) DefaultOutput() (DeviceId, *coreerr.CoreError) {
	d, err := portaudio.DefaultOutputDevice()
	if err != nil {
		return DeviceId{}, translatePortaudioErr(err)
	}
	if d == nil {
		return DeviceId{}, coreerr.New(coreerr.NoDevice, "no default output device")
	}
	return deviceIdOf(d), nil
}

// Resolve implements the startup resolution rule from spec.md §4.1: if
// stableID is present, use it; else if preferredName matches, use it
// (refreshing stableID); else fall back to the default.
func (r *Registry) Resolve(preferredName string, stableID DeviceId, kind DeviceKind) (DeviceId, *coreerr.CoreError) {
	var candidates []DeviceId
	var cerr *coreerr.CoreError
	if kind == KindInput {
		candidates, cerr = r.ListInputs()
	} else {
		candidates, cerr = r.ListOutputs()
	}
	if cerr != nil {
		return DeviceId{}, cerr
	}

	if stableID != (DeviceId{}) {
		for _, c := range candidates {
			if c.Equal(stableID) {
				return c, nil
			}
		}
	}

	if preferredName != "" {
		for _, c := range candidates {
			if c.Name == preferredName {
				return c, nil
			}
		}
	}

	if kind == KindInput {
		return r.DefaultInput()
	}
	return r.DefaultOutput()
}

// Watch polls expectedID's continued presence at the registry's poll
// interval and sends a LossEvent on the returned channel the moment it
// disappears. The goroutine exits when stop is closed.
func (r *Registry) Watch(expectedID DeviceId, kind DeviceKind, stop <-chan struct{}) <-chan LossEvent {
	out := make(chan LossEvent, 1)
	go func() {
		ticker := time.NewTicker(r.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				var candidates []DeviceId
				if kind == KindInput {
					candidates, _ = r.ListInputs()
				} else {
					candidates, _ = r.ListOutputs()
				}
				present := false
				for _, c := range candidates {
					if c.Equal(expectedID) {
						present = true
						break
					}
				}
				if !present {
					select {
					case out <- LossEvent{Kind: kind, Previous: expectedID}:
					default:
					}
					return
				}
			}
		}
	}()
	return out
}

func translatePortaudioErr(err error) *coreerr.CoreError {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case isBusyMsg(msg):
		return coreerr.New(coreerr.DeviceBusy, msg)
	case isNotFoundMsg(msg):
		return coreerr.New(coreerr.DeviceNotFound, msg)
	case isPermissionMsg(msg):
		return coreerr.New(coreerr.PermissionDenied, msg)
	case isTimeoutMsg(msg):
		return coreerr.New(coreerr.Timeout, msg)
	default:
		return coreerr.New(coreerr.Unknown, msg)
	}
}

func isBusyMsg(msg string) bool       { return containsAny(msg, "busy", "in use", "unavailable") }
func isNotFoundMsg(msg string) bool   { return containsAny(msg, "no such device", "not found", "invalid device") }
func isPermissionMsg(msg string) bool { return containsAny(msg, "permission", "denied", "access") }
func isTimeoutMsg(msg string) bool    { return containsAny(msg, "timeout", "timed out") }

func containsAny(s string, subs ...string) bool {
	ls := strings.ToLower(s)
	for _, sub := range subs {
		if strings.Contains(ls, sub) {
			return true
		}
	}
	return false
}
