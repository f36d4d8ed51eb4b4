package control

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"ember/internal/arbiter"
	"ember/internal/audio"
	"ember/internal/biometrics"
	"ember/internal/coreerr"
	"ember/internal/model"
	"ember/internal/supervisor"
	"ember/internal/validate"
)

// Router wires every op in the command surface (spec.md §6) to the
// domain objects the daemon already constructed. Each method mirrors
// the teacher's handleTrigger switch-on-Cmd, generalized to a typed
// args payload per op instead of a single hardcoded "trigger".
type Router struct {
	registry        *audio.Registry
	sup             *supervisor.Supervisor
	arb             *arbiter.Arbiter
	models          *model.Manager
	store           *biometrics.Store
	extractor       biometrics.Extractor
	enroll          *biometrics.EnrollmentSession
	verifyThreshold float64
	maxVerifyMs     int
}

// NewRouter builds a Router over the daemon's already-constructed
// singletons. extractor is the embedding extractor used for both
// enrollment and verification. maxVerifyMs bounds how much of a
// verify_speaker sample is fed to the extractor (spec.md §5).
func NewRouter(registry *audio.Registry, sup *supervisor.Supervisor, arb *arbiter.Arbiter, models *model.Manager, store *biometrics.Store, extractor biometrics.Extractor, enrollUtteranceMinMs, enrollUtterancesMin int, verifyThreshold float64, maxVerifyMs int) *Router {
	return &Router{
		registry:        registry,
		sup:             sup,
		arb:             arb,
		models:          models,
		store:           store,
		extractor:       extractor,
		enroll:          biometrics.NewEnrollmentSession(extractor, enrollUtteranceMinMs, enrollUtterancesMin),
		verifyThreshold: verifyThreshold,
		maxVerifyMs:     maxVerifyMs,
	}
}

// Handle implements control.Handler, dispatching req.Op to the matching
// method. Unknown ops return coreerr.Unknown.
func (rt *Router) Handle(req Request) Response {
	ctx := context.Background()
	switch req.Op {
	case "list_input_devices":
		return rt.listInputDevices()
	case "list_output_devices":
		return rt.listOutputDevices()
	case "set_input_device":
		return rt.setInputDevice(ctx, req.Args)
	case "set_output_device":
		return rt.setOutputDevice(req.Args)
	case "restart_audio_capture":
		return rt.restartAudioCapture(ctx, req.Args)
	case "play_test_tone":
		return rt.playTestTone(req.Args)
	case "start_mic_monitor":
		return rt.startMicMonitor(ctx, req.Args)
	case "stop_mic_monitor":
		return rt.stopMicMonitor(ctx)
	case "vad_set_threshold":
		return rt.vadSetThreshold(req.Args)
	case "kws_set_sensitivity":
		return rt.kwsSetSensitivity(req.Args)
	case "kws_list_models":
		return rt.kwsListModels()
	case "kws_enable":
		return rt.kwsEnable(ctx, req.Args)
	case "kws_disable":
		rt.sup.DisableKws()
		return ok(map[string]bool{"disabled": true})
	case "kws_arm_test_window":
		return rt.kwsArmTestWindow(req.Args)
	case "enroll_start":
		return rt.enrollStart(req.Args)
	case "enroll_add_sample":
		return rt.enrollAddSample(req.Args)
	case "enroll_finalize":
		return rt.enrollFinalize()
	case "enroll_cancel":
		rt.enroll.Cancel()
		return ok(map[string]bool{"cancelled": true})
	case "verify_speaker":
		return rt.verifySpeaker(req.Args)
	case "profile_exists":
		return rt.profileExists(req.Args)
	case "delete_profile":
		return rt.deleteProfile(req.Args)
	case "list_profiles":
		return rt.listProfiles()
	default:
		return errResp(coreerr.WithField(coreerr.Unknown, "unknown op", "op", req.Op))
	}
}

func (rt *Router) listInputDevices() Response {
	devices, cerr := rt.registry.ListInputs()
	if cerr != nil {
		return errResp(cerr)
	}
	return ok(devices)
}

func (rt *Router) listOutputDevices() Response {
	devices, cerr := rt.registry.ListOutputs()
	if cerr != nil {
		return errResp(cerr)
	}
	return ok(devices)
}

type deviceArgs struct {
	Device string `json:"device"`
}

func (rt *Router) setInputDevice(ctx context.Context, raw json.RawMessage) Response {
	var a deviceArgs
	if err := json.Unmarshal(raw, &a); err != nil {
		return errResp(coreerr.New(coreerr.InvalidDeviceName, "malformed args"))
	}
	if a.Device != "" {
		if cerr := validate.DeviceName(a.Device); cerr != nil {
			return errResp(cerr)
		}
	}
	if cerr := rt.sup.RestartCapture(ctx, a.Device); cerr != nil {
		return errResp(cerr)
	}
	return ok(map[string]bool{"ok": true})
}

func (rt *Router) setOutputDevice(raw json.RawMessage) Response {
	var a deviceArgs
	if err := json.Unmarshal(raw, &a); err != nil {
		return errResp(coreerr.New(coreerr.InvalidDeviceName, "malformed args"))
	}
	if a.Device != "" {
		if cerr := validate.DeviceName(a.Device); cerr != nil {
			return errResp(cerr)
		}
	}
	resolved, cerr := rt.registry.Resolve(a.Device, audio.DeviceId{}, audio.KindOutput)
	if cerr != nil {
		return errResp(cerr)
	}
	return ok(resolved)
}

func (rt *Router) restartAudioCapture(ctx context.Context, raw json.RawMessage) Response {
	var a deviceArgs
	if err := json.Unmarshal(raw, &a); err != nil {
		return errResp(coreerr.New(coreerr.InvalidDeviceName, "malformed args"))
	}
	if a.Device != "" {
		if cerr := validate.DeviceName(a.Device); cerr != nil {
			return errResp(cerr)
		}
	}
	if cerr := rt.sup.RestartCapture(ctx, a.Device); cerr != nil {
		return errResp(cerr)
	}
	return ok(map[string]bool{"ok": true})
}

type toneArgs struct {
	FreqHz float64 `json:"freq_hz"`
	DurMs  int     `json:"dur_ms"`
	Volume float64 `json:"volume"`
}

func (rt *Router) playTestTone(raw json.RawMessage) Response {
	var a toneArgs
	if err := json.Unmarshal(raw, &a); err != nil {
		return errResp(coreerr.New(coreerr.InvalidFrequency, "malformed args"))
	}
	if cerr := validate.Frequency(a.FreqHz); cerr != nil {
		return errResp(cerr)
	}
	if cerr := validate.Duration(a.DurMs); cerr != nil {
		return errResp(cerr)
	}
	if cerr := validate.SimpleModeTone(a.DurMs, a.Volume); cerr != nil {
		return errResp(cerr)
	}
	if cerr := audio.PlayTestTone(a.FreqHz, a.DurMs, a.Volume); cerr != nil {
		return errResp(cerr)
	}
	return ok(map[string]bool{"played": true})
}

type monitorArgs struct {
	Gain float64 `json:"gain"`
}

func (rt *Router) startMicMonitor(ctx context.Context, raw json.RawMessage) Response {
	var a monitorArgs
	json.Unmarshal(raw, &a)
	if cerr := rt.sup.SetMonitor(ctx, true, a.Gain); cerr != nil {
		return errResp(cerr)
	}
	return ok(map[string]bool{"on": true})
}

func (rt *Router) stopMicMonitor(ctx context.Context) Response {
	if cerr := rt.sup.SetMonitor(ctx, false, 0); cerr != nil {
		return errResp(cerr)
	}
	return ok(map[string]bool{"on": false})
}

type thresholdArgs struct {
	Threshold float64 `json:"threshold"`
}

func (rt *Router) vadSetThreshold(raw json.RawMessage) Response {
	var a thresholdArgs
	if err := json.Unmarshal(raw, &a); err != nil {
		return errResp(coreerr.New(coreerr.InvalidThreshold, "malformed args"))
	}
	if cerr := validate.Threshold(a.Threshold); cerr != nil {
		return errResp(cerr)
	}
	rt.sup.SetVadThreshold(a.Threshold)
	return ok(map[string]float64{"threshold": a.Threshold})
}

type sensitivityArgs struct {
	Level json.RawMessage `json:"level"`
}

// kwsSetSensitivity accepts either a named preset ("low"/"balanced"/
// "high") or a raw [0,1] score (spec.md §6 command table); the shape of
// the "level" field decides which path runs.
func (rt *Router) kwsSetSensitivity(raw json.RawMessage) Response {
	var a sensitivityArgs
	if err := json.Unmarshal(raw, &a); err != nil || len(a.Level) == 0 {
		return errResp(coreerr.New(coreerr.InvalidSensitivity, "malformed args"))
	}

	var score float64
	if err := json.Unmarshal(a.Level, &score); err == nil {
		if cerr := validate.SensitivityValue(score); cerr != nil {
			return errResp(cerr)
		}
		rt.arb.SetSensitivityThreshold(score)
		return ok(rt.arb.CurrentPreset())
	}

	var name string
	if err := json.Unmarshal(a.Level, &name); err != nil {
		return errResp(coreerr.New(coreerr.InvalidSensitivity, "malformed args"))
	}
	if cerr := validate.Sensitivity(name); cerr != nil {
		return errResp(cerr)
	}
	rt.sup.SetSensitivity(name)
	return ok(rt.arb.CurrentPreset())
}

func (rt *Router) kwsListModels() Response {
	return ok(rt.models.Registry().List())
}

type modelArgs struct {
	ModelID string `json:"model_id"`
}

func (rt *Router) kwsEnable(ctx context.Context, raw json.RawMessage) Response {
	var a modelArgs
	if err := json.Unmarshal(raw, &a); err != nil {
		return errResp(coreerr.New(coreerr.ModelMissing, "malformed args"))
	}
	if cerr := rt.sup.EnableKws(ctx, a.ModelID); cerr != nil {
		return errResp(cerr)
	}
	return ok(map[string]bool{"enabled": true})
}

type testWindowArgs struct {
	DurationMs int `json:"duration_ms"`
}

// kwsArmTestWindow forwards directly to the Detection Arbiter rather
// than the active KWS Worker: the arbiter is the sole owner of the
// refractory/test-window timer, so the worker never needs to know
// about it.
func (rt *Router) kwsArmTestWindow(raw json.RawMessage) Response {
	var a testWindowArgs
	if err := json.Unmarshal(raw, &a); err != nil {
		return errResp(coreerr.New(coreerr.InvalidDuration, "malformed args"))
	}
	rt.arb.ArmTestWindow(a.DurationMs)
	return ok(map[string]bool{"armed": true})
}

type userArgs struct {
	User string `json:"user"`
}

func (rt *Router) enrollStart(raw json.RawMessage) Response {
	var a userArgs
	if err := json.Unmarshal(raw, &a); err != nil {
		return errResp(coreerr.New(coreerr.InvalidUser, "malformed args"))
	}
	if cerr := rt.enroll.Start(a.User); cerr != nil {
		return errResp(cerr)
	}
	playEnrollmentCue(cueSessionStart)
	return ok(map[string]bool{"started": true})
}

type sampleArgs struct {
	PCM16 string `json:"pcm16"` // base64-encoded little-endian int16 mono @16kHz
}

func (rt *Router) enrollAddSample(raw json.RawMessage) Response {
	var a sampleArgs
	if err := json.Unmarshal(raw, &a); err != nil {
		return errResp(coreerr.New(coreerr.UtteranceTooShort, "malformed args"))
	}
	samples, cerr := decodePCM16(a.PCM16)
	if cerr != nil {
		return errResp(cerr)
	}
	progress, cerr := rt.enroll.AddSample(samples)
	if cerr != nil {
		return errResp(cerr)
	}
	if progress.Completed {
		playEnrollmentCue(cueUtteranceComplete)
	} else {
		playEnrollmentCue(cueSampleAccepted)
	}
	return ok(progress)
}

// Enrollment audio cues give a human doing hands-free enrollment
// feedback without watching a screen: a low chirp when the session
// starts, a higher chirp per accepted utterance, and a higher one still
// once enough utterances are in. All three are single tones of the same
// short duration.
// Fire-and-forget since speaker.Play blocks for the tone's duration and
// the command response shouldn't wait on it.
const (
	cueSessionStart      = 440.0
	cueSampleAccepted    = 880.0
	cueUtteranceComplete = 1320.0
	cueDurationMs        = 120
	cueVolume            = 0.2
)

func playEnrollmentCue(freqHz float64) {
	go audio.PlayTestTone(freqHz, cueDurationMs, cueVolume)
}

func (rt *Router) enrollFinalize() Response {
	result, cerr := rt.enroll.Finalize()
	if cerr != nil {
		return errResp(cerr)
	}
	if err := rt.store.Save(result.User, result.Embedding, result.UtteranceCount); err != nil {
		return errResp(coreerr.New(coreerr.Unknown, err.Error()))
	}
	return ok(map[string]any{"user": result.User, "utterance_count": result.UtteranceCount})
}

type verifyArgs struct {
	User  string `json:"user"`
	PCM16 string `json:"pcm16"`
}

func (rt *Router) verifySpeaker(raw json.RawMessage) Response {
	var a verifyArgs
	if err := json.Unmarshal(raw, &a); err != nil {
		return errResp(coreerr.New(coreerr.InvalidUser, "malformed args"))
	}
	samples, cerr := decodePCM16(a.PCM16)
	if cerr != nil {
		return errResp(cerr)
	}
	stored, cerr := rt.store.Load(a.User)
	if cerr != nil {
		return errResp(cerr)
	}
	result, cerr := biometrics.Verify(rt.extractor, a.User, samples, stored, rt.verifyThreshold, rt.maxVerifyMs)
	if cerr != nil {
		return errResp(cerr)
	}
	return ok(result)
}

func (rt *Router) profileExists(raw json.RawMessage) Response {
	var a userArgs
	json.Unmarshal(raw, &a)
	return ok(map[string]bool{"exists": rt.store.Exists(a.User)})
}

func (rt *Router) deleteProfile(raw json.RawMessage) Response {
	var a userArgs
	json.Unmarshal(raw, &a)
	if err := rt.store.Delete(a.User); err != nil {
		return errResp(coreerr.New(coreerr.Unknown, err.Error()))
	}
	return ok(map[string]bool{"deleted": true})
}

func (rt *Router) listProfiles() Response {
	users, err := rt.store.List()
	if err != nil {
		return errResp(coreerr.New(coreerr.Unknown, err.Error()))
	}
	return ok(users)
}

func decodePCM16(b64 string) ([]float32, *coreerr.CoreError) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, coreerr.New(coreerr.UtteranceTooShort, "invalid base64 pcm16 payload")
	}
	n := len(raw) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(uint16(raw[2*i]) | uint16(raw[2*i+1])<<8)
		out[i] = float32(v) / 32768.0
	}
	return out, nil
}
