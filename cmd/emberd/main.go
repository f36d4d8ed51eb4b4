// Command emberd is the wake-word core daemon: it boots the audio,
// KWS, arbiter, model, and biometrics subsystems, then blocks serving
// the event sink (websocket) and command surface (unix socket) until
// killed. Structurally mirrors the teacher's cmd/vox-daemon: godotenv
// for local overrides, a tint-backed slog logger, pflag for flags.
package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	"ember/internal/arbiter"
	"ember/internal/audio"
	"ember/internal/biometrics"
	"ember/internal/config"
	"ember/internal/control"
	"ember/internal/coreerr"
	"ember/internal/eventbus"
	"ember/internal/kws"
	"ember/internal/model"
	"ember/internal/proxy"
	"ember/internal/supervisor"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	sockPath := cli.StringP("socket", "s", control.DefaultSocketPath, "Command surface unix socket path")
	busAddr := cli.StringP("bus-addr", "b", "127.0.0.1:8793", "Event sink websocket listen address")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	cli.Parse()

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevelMap[*logLevel],
	})))

	log.Info("booting ember core")
	godotenv.Load(*envFile)

	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	if cerr := audio.InitPortAudio(); cerr != nil {
		log.Error("failed to init portaudio", "err", cerr)
		os.Exit(1)
	}
	defer audio.TerminatePortAudio()

	registry := audio.NewRegistry()
	monitor := audio.NewMonitor()
	arb := arbiter.New()
	arb.SetRefractoryPeriod(cfg.Kws.RefractoryDuration())

	bus := eventbus.New(log.Default())

	modelRegistry := model.NewRegistry(cfg.DataDir + "/models.json")
	if cerr := modelRegistry.Load(); cerr != nil {
		log.Warn("model registry load failed, continuing empty", "err", cerr)
	}

	httpClient := http.DefaultClient
	if cfg.ProxyAddr != "" {
		if c, err := proxy.NewSocksClient(cfg.ProxyAddr); err == nil {
			httpClient = c
		} else {
			log.Warn("failed to build socks client, using direct", "err", err)
		}
	}

	models := model.NewManager(modelRegistry, cfg.ModelsDir, httpClient, model.Events{
		Progress:     func(p model.ProgressEvent) { bus.Publish(eventbus.EventKwsModelDownloadProgress, p) },
		Verified:     func(id string) { bus.Publish(eventbus.EventKwsModelVerified, map[string]string{"model_id": id}) },
		VerifyFailed: func(id string) { bus.Publish(eventbus.EventKwsModelVerifyFailed, map[string]string{"model_id": id}) },
	})

	store, err := biometrics.NewStore(cfg.ProfilesDir)
	if err != nil {
		log.Error("failed to open voiceprint store", "err", err)
		os.Exit(1)
	}
	extractor := biometrics.NewUnavailableExtractor()

	sup := supervisor.New(registry, monitor, arb, models, func() kws.Engine { return kws.NewUnavailableEngine() }, log.Default(), supervisor.Events{
		DeviceLost:           func(k audio.DeviceKind, prev audio.DeviceId) { bus.Publish(eventbus.EventAudioDeviceLost, map[string]any{"kind": k, "previous": prev}) },
		DeviceFallbackOk:     func(k audio.DeviceKind, dev string) { bus.Publish(eventbus.EventAudioDeviceFallbackOk, map[string]any{"kind": k, "device": dev}) },
		DeviceFallbackFailed: func(k audio.DeviceKind, reason string) { bus.Publish(eventbus.EventAudioDeviceFallbackFailed, map[string]any{"kind": k, "reason": reason}) },
		MonitorGuarded:       func(reason string) { bus.Publish(eventbus.EventAudioMonitorGuarded, map[string]string{"reason": reason}) },
		RestartOk:            func(dev string, ms int64) { bus.Publish(eventbus.EventAudioRestartOk, map[string]any{"device": dev, "elapsed_ms": ms}) },
		RestartBlocked:       func() { bus.Publish(eventbus.EventAudioRestartBlocked, nil) },
		AudioError:           func(cerr *coreerr.CoreError) { bus.Publish(eventbus.EventAudioError, cerr) },
		KwsEnabled:           func(id string) { bus.Publish(eventbus.EventKwsEnabled, map[string]string{"model_id": id}) },
		KwsDisabled:          func() { bus.Publish(eventbus.EventKwsDisabled, nil) },
		KwsDegraded:          func(reason string) { bus.Publish(eventbus.EventKwsDegraded, map[string]string{"reason": reason}) },
		Detection: func(e arbiter.DetectionEvent) {
			bus.Publish(eventbus.EventWakewordDetected, e)
			if e.TestPass {
				bus.Publish(eventbus.EventKwsWakeTestPass, e)
			}
		},
	})

	if cerr := sup.RestartCapture(context.Background(), ""); cerr != nil {
		log.Error("failed to start initial capture pipeline", "err", cerr)
		os.Exit(1)
	}

	stopWatch := make(chan struct{})
	defer close(stopWatch)
	go watchInputDevice(registry, sup, stopWatch)

	router := control.NewRouter(registry, sup, arb, models, store, extractor,
		cfg.Biometrics.UtteranceMinMs, cfg.Biometrics.EnrollUtterancesMin, cfg.Biometrics.VerifyThreshold, cfg.Biometrics.MaxVerifyMs)

	ctlSrv, err := control.Listen(*sockPath, router.Handle)
	if err != nil {
		log.Error("failed to start control surface", "err", err)
		os.Exit(1)
	}
	defer ctlSrv.Close()

	log.Info("boot up successful", "socket", *sockPath, "bus_addr", *busAddr)

	go func() {
		if err := http.ListenAndServe(*busAddr, bus); err != nil {
			log.Error("event sink terminated", "err", err)
		}
	}()

	select {}
}

// watchInputDevice re-arms the Device Registry's hot-unplug watch
// against whatever input device the supervisor currently has resolved,
// forwarding every loss straight to Supervisor.DeviceLost. Watch itself
// is single-shot (it exits its goroutine after one loss event), so this
// loop re-registers a fresh watch each time.
func watchInputDevice(registry *audio.Registry, sup *supervisor.Supervisor, stop <-chan struct{}) {
	for {
		dev := sup.CurrentInputDevice()
		loss := registry.Watch(dev, audio.KindInput, stop)
		select {
		case ev, ok := <-loss:
			if !ok {
				return
			}
			sup.DeviceLost(context.Background(), ev.Previous)
		case <-stop:
			return
		}
	}
}
