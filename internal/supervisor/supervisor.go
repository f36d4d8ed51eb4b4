// Package supervisor implements the Runtime Supervisor (spec.md §4.9):
// the only component allowed to mutate the "current pipeline" state. It
// owns the current CaptureSession and KwsWorker, rebuilds them on
// restart or mode switch, and enforces the re-entrancy guard and
// mic-monitor safety rule.
package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"ember/internal/arbiter"
	"ember/internal/audio"
	"ember/internal/coreerr"
	"ember/internal/kws"
	"ember/internal/model"
	"ember/internal/vad"
	"ember/internal/validate"
)

// defaultMonitorGain is the loopback gain the mic monitor is restarted
// at when a capture restart moves it to a new device pair without an
// explicit gain on record (original_source/src-tauri/src/main.rs).
const defaultMonitorGain = 0.15

// Events is the set of callbacks the supervisor drives; the host wires
// these to the event sink (spec.md §6). Nil callbacks are skipped.
type Events struct {
	DeviceLost           func(kind audio.DeviceKind, previous audio.DeviceId)
	DeviceFallbackOk     func(kind audio.DeviceKind, newDevice string)
	DeviceFallbackFailed func(kind audio.DeviceKind, reason string)
	MonitorGuarded       func(reason string)
	RestartOk            func(device string, elapsedMs int64)
	RestartBlocked       func()
	AudioError           func(*coreerr.CoreError)
	KwsEnabled           func(modelID string)
	KwsDisabled          func()
	KwsDegraded          func(reason string)
	Detection            func(arbiter.DetectionEvent)
}

// pipeline bundles everything torn down and rebuilt together.
type pipeline struct {
	capture  *audio.CaptureSession
	kwsMode  string // "stub" or "neural"
	kwsModel string
	worker   kws.Worker
	gate     vad.Gate
	frames   chan []int16
	stop     chan struct{}
	wg       sync.WaitGroup
}

// Supervisor owns the current pipeline exclusively.
type Supervisor struct {
	mu sync.Mutex

	registry *audio.Registry
	monitor  *audio.Monitor
	arb      *arbiter.Arbiter
	models   *model.Manager
	engineFn func() kws.Engine
	log      *slog.Logger
	events   Events

	inputDevice  audio.DeviceId
	outputDevice audio.DeviceId
	monitorWasOn bool
	monitorGain  float64

	restarting bool
	current    *pipeline
}

// New builds a Supervisor with no active pipeline. engineFn constructs
// a fresh Engine per enable_kws call (nil defaults to
// kws.NewUnavailableEngine, which always fails and forces the Stub
// fallback).
func New(registry *audio.Registry, monitor *audio.Monitor, arb *arbiter.Arbiter, models *model.Manager, engineFn func() kws.Engine, log *slog.Logger, events Events) *Supervisor {
	if engineFn == nil {
		engineFn = func() kws.Engine { return kws.NewUnavailableEngine() }
	}
	return &Supervisor{
		registry: registry,
		monitor:  monitor,
		arb:      arb,
		models:   models,
		engineFn: engineFn,
		log:      log,
		events:   events,
	}
}

// RestartCapture tears down the current CaptureSession and rebuilds the
// reblock/VAD/KWS chain against the requested (or resolved) device.
// Serialized: a concurrent call returns in_progress immediately.
func (s *Supervisor) RestartCapture(ctx context.Context, deviceName string) *coreerr.CoreError {
	s.mu.Lock()
	if s.restarting {
		s.mu.Unlock()
		if s.events.RestartBlocked != nil {
			s.events.RestartBlocked()
		}
		return coreerr.New(coreerr.InProgress, "restart already in progress")
	}
	s.restarting = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.restarting = false
		s.mu.Unlock()
	}()

	start := time.Now()

	resolved, cerr := s.registry.Resolve(deviceName, s.inputDevice, audio.KindInput)
	if cerr != nil {
		return cerr
	}

	s.mu.Lock()
	oldMode, oldModel := "stub", ""
	if s.current != nil {
		oldMode, oldModel = s.current.kwsMode, s.current.kwsModel
	}
	oldOutput := s.outputDevice
	monitorWasOn := s.monitorWasOn
	s.mu.Unlock()

	newPipe, cerr := s.buildPipeline(resolved, oldMode, oldModel)
	if cerr != nil {
		return cerr
	}

	s.mu.Lock()
	old := s.current
	s.current = newPipe
	s.inputDevice = resolved
	s.mu.Unlock()

	if old != nil {
		old.teardown()
	}

	if monitorWasOn {
		if resolved.Equal(oldOutput) {
			s.setMonitorOn(false)
			if s.events.MonitorGuarded != nil {
				s.events.MonitorGuarded("feedback_risk")
			}
		} else {
			gain := s.monitorGainOrDefault()
			if cerr := s.monitor.Start(ctx, resolved.Name, oldOutput.Name, gain); cerr != nil {
				s.setMonitorOn(false)
				if s.events.MonitorGuarded != nil {
					s.events.MonitorGuarded("restart_failed")
				}
			}
		}
	}

	if s.events.RestartOk != nil {
		s.events.RestartOk(resolved.String(), time.Since(start).Milliseconds())
	}
	return nil
}

// EnableKws ensures modelID is installed and verified, then hot-swaps
// the current pipeline's KWS worker to Neural. Non-fatal on failure:
// falls back to Stub and reports kws:degraded (spec.md §4.4.3).
func (s *Supervisor) EnableKws(ctx context.Context, modelID string) *coreerr.CoreError {
	if cerr := s.models.Enable(ctx, modelID); cerr != nil {
		return cerr
	}

	s.mu.Lock()
	cur := s.current
	s.mu.Unlock()
	if cur == nil {
		return coreerr.New(coreerr.NoDevice, "no active capture pipeline")
	}

	keyword := s.wakePhrase(modelID)
	engine := s.engineFn()
	neural, err := kws.NewNeural(engine, s.models.InstallDir(modelID), keyword, s.log)
	if err != nil {
		s.swapWorker(cur, kws.NewStub(keyword), "stub", "")
		if s.events.KwsDegraded != nil {
			s.events.KwsDegraded(err.Error())
		}
		return nil
	}

	s.swapWorker(cur, neural, "neural", modelID)
	if s.events.KwsEnabled != nil {
		s.events.KwsEnabled(modelID)
	}
	return nil
}

// wakePhrase resolves the wake phrase for a given model, falling back
// to the default when the model isn't in the registry (e.g. Stub mode,
// where modelID is empty).
func (s *Supervisor) wakePhrase(modelID string) string {
	if modelID == "" {
		return "hey ember"
	}
	if entry, ok := s.models.Registry().Get(modelID); ok && entry.WakePhrase != "" {
		return entry.WakePhrase
	}
	return "hey ember"
}

// DisableKws swaps the current pipeline's KWS worker to Stub.
func (s *Supervisor) DisableKws() {
	s.mu.Lock()
	cur := s.current
	s.mu.Unlock()
	if cur == nil {
		return
	}
	s.swapWorker(cur, kws.NewStub("hey ember"), "stub", "")
	if s.events.KwsDisabled != nil {
		s.events.KwsDisabled()
	}
}

// SetSensitivity updates the Detection Arbiter's active preset.
func (s *Supervisor) SetSensitivity(level string) {
	s.arb.SetSensitivity(level)
}

// SetVadThreshold updates the active pipeline's VAD gate enter
// threshold in place (vad_set_threshold, spec.md §6). No-op if no
// pipeline is currently running.
func (s *Supervisor) SetVadThreshold(t float64) {
	s.mu.Lock()
	cur := s.current
	s.mu.Unlock()
	if cur == nil {
		return
	}
	cur.gate.SetThreshold(t)
}

// CurrentInputDevice reports the resolved input device of the active
// pipeline, used to arm the Device Watcher.
func (s *Supervisor) CurrentInputDevice() audio.DeviceId {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inputDevice
}

func (s *Supervisor) monitorGainOrDefault() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.monitorGain <= 0 {
		return defaultMonitorGain
	}
	return s.monitorGain
}

// DeviceLost handles an input-device-loss notification from the Device
// Watcher: attempts fallback to the default input, rebuilding the
// chain on success.
func (s *Supervisor) DeviceLost(ctx context.Context, previous audio.DeviceId) {
	if s.events.DeviceLost != nil {
		s.events.DeviceLost(audio.KindInput, previous)
	}

	if cerr := s.RestartCapture(ctx, ""); cerr != nil {
		if s.events.DeviceFallbackFailed != nil {
			s.events.DeviceFallbackFailed(audio.KindInput, cerr.Message)
		}
		return
	}

	s.mu.Lock()
	newID := s.inputDevice
	s.mu.Unlock()
	if s.events.DeviceFallbackOk != nil {
		s.events.DeviceFallbackOk(audio.KindInput, newID.String())
	}
}

// SetMonitor toggles mic-monitor and remembers the desired state so a
// later restart can apply the mic-monitor safety rule.
func (s *Supervisor) SetMonitor(ctx context.Context, on bool, gain float64) *coreerr.CoreError {
	s.mu.Lock()
	input, output := s.inputDevice, s.outputDevice
	s.mu.Unlock()

	if on {
		if cerr := validate.Gain(gain); cerr != nil {
			return cerr
		}
		if input.Equal(output) {
			if s.events.MonitorGuarded != nil {
				s.events.MonitorGuarded("feedback_risk")
			}
			return coreerr.New(coreerr.FeedbackRisk, "input and output resolve to the same device")
		}
		if cerr := s.monitor.Start(ctx, input.Name, output.Name, gain); cerr != nil {
			return cerr
		}
		s.mu.Lock()
		s.monitorGain = gain
		s.mu.Unlock()
	} else {
		if cerr := s.monitor.Stop(ctx); cerr != nil {
			return cerr
		}
	}

	s.setMonitorOn(on)
	return nil
}

func (s *Supervisor) setMonitorOn(on bool) {
	s.mu.Lock()
	s.monitorWasOn = on
	s.mu.Unlock()
}

func (s *Supervisor) buildPipeline(device audio.DeviceId, mode, modelID string) (*pipeline, *coreerr.CoreError) {
	cs, cerr := audio.StartCapture(audio.CaptureOptions{
		Device:    device,
		DeviceIdx: device.Index,
		OnError:   s.events.AudioError,
	})
	if cerr != nil {
		return nil, cerr
	}

	gate := vad.NewEnergyGate(0.02, 10)

	var worker kws.Worker
	if mode == "neural" && modelID != "" {
		keyword := s.wakePhrase(modelID)
		engine := s.engineFn()
		if neural, err := kws.NewNeural(engine, s.models.InstallDir(modelID), keyword, s.log); err == nil {
			worker = neural
		}
	}
	if worker == nil {
		worker = kws.NewStub("hey ember")
		mode, modelID = "stub", ""
	}

	frames := make(chan []int16, 8)
	sink := kws.SinkFunc(func(keyword string, score float64) {
		s.arb.Ingest(keyword, score, arbiter.SinkFunc(func(e arbiter.DetectionEvent) {
			if s.events.Detection != nil {
				s.events.Detection(e)
			}
		}))
	})
	if err := worker.Start(frames, sink); err != nil {
		cs.Close()
		return nil, coreerr.New(coreerr.Unknown, err.Error())
	}

	p := &pipeline{
		capture:  cs,
		kwsMode:  mode,
		kwsModel: modelID,
		worker:   worker,
		gate:     gate,
		frames:   frames,
		stop:     make(chan struct{}),
	}
	p.wg.Add(1)
	go p.reblockLoop()

	return p, nil
}

func (s *Supervisor) swapWorker(cur *pipeline, worker kws.Worker, mode, modelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != cur {
		return
	}
	cur.worker.Stop()
	cur.worker = worker
	cur.kwsMode = mode
	cur.kwsModel = modelID
	sink := kws.SinkFunc(func(keyword string, score float64) {
		s.arb.Ingest(keyword, score, arbiter.SinkFunc(func(e arbiter.DetectionEvent) {
			if s.events.Detection != nil {
				s.events.Detection(e)
			}
		}))
	})
	worker.Start(cur.frames, sink)
}

// reblockLoop pulls 20ms canonical frames from the ring buffer and
// splits them into 10ms hops for VAD/KWS, per spec.md §3: "the
// pipeline internally reblocks to these sizes regardless of capture
// block size."
func (p *pipeline) reblockLoop() {
	defer p.wg.Done()
	const hopSamples = 160
	for {
		f, ok := p.capture.Ring().Pop()
		if !ok {
			return
		}
		for off := 0; off+hopSamples <= len(f.Samples); off += hopSamples {
			hop := f.Samples[off : off+hopSamples]
			if p.gate.IsSpeech(hop) {
				select {
				case p.frames <- hop:
				case <-p.stop:
					return
				default:
				}
			}
		}
		select {
		case <-p.stop:
			return
		default:
		}
	}
}

func (p *pipeline) teardown() {
	close(p.stop)
	p.capture.Close()
	p.worker.Stop()
	p.wg.Wait()
	close(p.frames)
}
