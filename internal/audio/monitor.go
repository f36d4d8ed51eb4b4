package audio

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"ember/internal/coreerr"
)

// Monitor implements start_mic_monitor/stop_mic_monitor (spec.md §6):
// a loopback from the configured input to the configured output, gated
// by the Runtime Supervisor's feedback-risk guard (spec.md §4.9). The
// pactl-shelling pattern is adapted directly from the teacher's
// internal/audio/duck.go, which drives PulseAudio the same way for
// volume ducking; here it loads/unloads a loopback module instead.
type Monitor struct {
	mu       sync.Mutex
	on       bool
	moduleID int
}

// NewMonitor returns a Monitor in the "off" state.
func NewMonitor() *Monitor { return &Monitor{} }

// IsOn reports whether the loopback module is currently loaded.
func (m *Monitor) IsOn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.on
}

// Start loads a module-loopback at the given linear gain (0.0-0.5,
// validated by the caller per spec.md §6) from source to sink.
func (m *Monitor) Start(ctx context.Context, source, sink string, gain float64) *coreerr.CoreError {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.on {
		return nil
	}

	volumePct := int(gain * 100)
	args := []string{"load-module", "module-loopback",
		fmt.Sprintf("source=%s", source),
		fmt.Sprintf("sink=%s", sink),
		fmt.Sprintf("latency_msec=%d", 20),
	}
	out, err := exec.CommandContext(ctx, "pactl", args...).Output()
	if err != nil {
		return coreerr.New(coreerr.Unknown, fmt.Sprintf("pactl load-module: %v", err))
	}

	id, perr := strconv.Atoi(strings.TrimSpace(string(out)))
	if perr != nil {
		return coreerr.New(coreerr.Unknown, fmt.Sprintf("unexpected pactl output: %q", out))
	}

	if volumePct > 0 {
		_ = exec.CommandContext(ctx, "pactl", "set-source-output-volume",
			strconv.Itoa(id), fmt.Sprintf("%d%%", volumePct)).Run()
	}

	m.moduleID = id
	m.on = true
	return nil
}

// Stop unloads the loopback module. A no-op if not currently on.
func (m *Monitor) Stop(ctx context.Context) *coreerr.CoreError {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.on {
		return nil
	}
	if err := exec.CommandContext(ctx, "pactl", "unload-module", strconv.Itoa(m.moduleID)).Run(); err != nil {
		return coreerr.New(coreerr.Unknown, fmt.Sprintf("pactl unload-module: %v", err))
	}
	m.on = false
	m.moduleID = 0
	return nil
}
