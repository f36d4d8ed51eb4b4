// Package config holds the core's runtime configuration. The on-disk
// config.toml reader is an external collaborator (spec.md §1) — the
// core only ever sees the already-parsed struct below.
package config

import "time"

// Config mirrors the configuration keys enumerated in spec.md §6.
type Config struct {
	Audio       Audio
	Kws         Kws
	Vad         Vad
	Biometrics  Biometrics
	UI          UI
	DataDir     string
	ProfilesDir string
	ModelsDir   string
	ProxyAddr   string // optional SOCKS5 proxy for model downloads
}

type Audio struct {
	SampleRateHz int // fixed 16000 internally; capture may differ
	FrameMs      int
	HopMs        int
}

type Kws struct {
	Keyword        string
	ScoreThreshold float64
	RefractoryMs   int
	EndpointMs     int
	MaxActivePaths int
	Enabled        bool
	Mode           string // "stub" | "real"
	ModelID        string
}

type Vad struct {
	Enable bool
	Mode   string
}

type Biometrics struct {
	EnrollUtterancesMin int
	UtteranceMinMs      int
	VerifyThreshold     float64
	MaxVerifyMs         int
}

type UI struct {
	PersistMonitorState bool
	MonitorWasOn        bool
}

// Default returns the normative defaults named throughout spec.md.
func Default() Config {
	return Config{
		Audio: Audio{
			SampleRateHz: 16000,
			FrameMs:      20,
			HopMs:        10,
		},
		Kws: Kws{
			Keyword:        "hey ember",
			ScoreThreshold: 0.60,
			RefractoryMs:   1200,
			EndpointMs:     300,
			MaxActivePaths: 4,
			Enabled:        false,
			Mode:           "stub",
		},
		Vad: Vad{
			Enable: true,
			Mode:   "energy",
		},
		Biometrics: Biometrics{
			EnrollUtterancesMin: 3,
			UtteranceMinMs:      2000,
			VerifyThreshold:     0.82,
			MaxVerifyMs:         4000,
		},
		DataDir:     "data",
		ProfilesDir: "data/profiles",
		ModelsDir:   "data/models",
	}
}

// Validate checks the invariants the rest of the core assumes hold.
func (c Config) Validate() error {
	if c.Audio.SampleRateHz != 16000 {
		return errInvalid("audio.sample_rate_hz must be 16000")
	}
	if c.Audio.FrameMs <= 0 || c.Audio.HopMs <= 0 {
		return errInvalid("audio.frame_ms and audio.hop_ms must be positive")
	}
	if c.Biometrics.EnrollUtterancesMin < 1 {
		return errInvalid("biometrics.enroll_utterances_min must be >= 1")
	}
	if c.Biometrics.UtteranceMinMs < 1 {
		return errInvalid("biometrics.utterance_min_ms must be >= 1")
	}
	if c.Kws.ScoreThreshold < 0 || c.Kws.ScoreThreshold > 1 {
		return errInvalid("kws.score_threshold must be within [0,1]")
	}
	return nil
}

// FrameSamples returns the number of samples in one canonical frame.
func (c Config) FrameSamples() int {
	return c.Audio.SampleRateHz * c.Audio.FrameMs / 1000
}

// HopSamples returns the number of samples in one canonical hop.
func (c Config) HopSamples() int {
	return c.Audio.SampleRateHz * c.Audio.HopMs / 1000
}

// RefractoryDuration is a convenience accessor for time.Duration math.
func (k Kws) RefractoryDuration() time.Duration {
	return time.Duration(k.RefractoryMs) * time.Millisecond
}

type configError string

func (e configError) Error() string { return string(e) }

func errInvalid(msg string) error { return configError(msg) }
