package biometrics

import (
	"strconv"
	"sync"

	"ember/internal/coreerr"
	"ember/internal/validate"
)

type enrollmentState int

const (
	stateIdle enrollmentState = iota
	stateCollecting
)

// EnrollmentSession is the state machine from spec.md §4.7:
//
//	Idle --start(user)--> Collecting(user, [])
//	Collecting --add(samples)--> Collecting(user, [...,e])  [duration >= utterance_min_ms]
//	                          \-> Error("utterance too short") [else]
//	Collecting --finalize()--> Finalized  [|utterances| >= N_min]
//	                        \-> Error("need more utterances") [else]
//	Collecting --cancel()--> Idle
//
// At most one session is active at a time; a session is bound to
// exactly one user for its whole lifetime.
type EnrollmentSession struct {
	mu sync.Mutex

	extractor           Extractor
	utteranceMinMs      int
	enrollUtterancesMin int

	state      enrollmentState
	user       string
	embeddings []Embedding
}

// NewEnrollmentSession builds a session in the Idle state.
func NewEnrollmentSession(extractor Extractor, utteranceMinMs, enrollUtterancesMin int) *EnrollmentSession {
	return &EnrollmentSession{
		extractor:           extractor,
		utteranceMinMs:      utteranceMinMs,
		enrollUtterancesMin: enrollUtterancesMin,
		state:               stateIdle,
	}
}

// Start transitions Idle -> Collecting(user, []). Starting a new
// session while one is already active is an error unless the prior
// session was cancelled or finalized.
func (s *EnrollmentSession) Start(user string) *coreerr.CoreError {
	if cerr := validate.UserID(user); cerr != nil {
		return cerr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateIdle {
		return coreerr.New(coreerr.InProgress, "enrollment already in progress")
	}
	s.state = stateCollecting
	s.user = user
	s.embeddings = nil
	return nil
}

// Progress reports enrollment progress for the active session.
type Progress struct {
	User                string
	UtterancesCollected int
	UtterancesRequired  int
	Completed           bool
}

// AddSample extracts an embedding from samples and appends it to the
// active session, rejecting utterances shorter than utterance_min_ms.
func (s *EnrollmentSession) AddSample(samples []float32) (Progress, *coreerr.CoreError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateCollecting {
		return Progress{}, coreerr.New(coreerr.EnrollmentIncomplete, "no enrollment in progress")
	}

	if _, cerr := validate.UtteranceDurationMs(samples, s.utteranceMinMs); cerr != nil {
		return Progress{}, cerr
	}

	emb, err := s.extractor.Extract(samples)
	if err != nil {
		return Progress{}, coreerr.New(coreerr.Unknown, err.Error())
	}
	emb.Normalize()
	s.embeddings = append(s.embeddings, emb)

	return Progress{
		User:                s.user,
		UtterancesCollected: len(s.embeddings),
		UtterancesRequired:  s.enrollUtterancesMin,
		Completed:           len(s.embeddings) >= s.enrollUtterancesMin,
	}, nil
}

// Result is the finalized enrollment ready for the Voiceprint Store.
type Result struct {
	User           string
	Embedding      Embedding
	UtteranceCount int
}

// Finalize averages and re-normalizes the collected embeddings,
// returning to Idle. Requires at least enrollUtterancesMin utterances;
// with fewer it returns an error and the session stays in Collecting
// with the utterances gathered so far.
func (s *EnrollmentSession) Finalize() (Result, *coreerr.CoreError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateCollecting {
		return Result{}, coreerr.New(coreerr.EnrollmentIncomplete, "no enrollment in progress")
	}
	if len(s.embeddings) < s.enrollUtterancesMin {
		return Result{}, coreerr.WithField(coreerr.EnrollmentIncomplete, "need more utterances", "count", strconv.Itoa(len(s.embeddings)))
	}

	avg := AverageEmbeddings(s.embeddings)
	avg.Normalize()

	result := Result{User: s.user, Embedding: avg, UtteranceCount: len(s.embeddings)}
	s.reset()
	return result, nil
}

// Cancel discards the active session and returns to Idle.
func (s *EnrollmentSession) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

func (s *EnrollmentSession) reset() {
	s.state = stateIdle
	s.user = ""
	s.embeddings = nil
}

// VerificationResult is returned by Verify (spec.md §4.7).
type VerificationResult struct {
	User      string
	Verified  bool
	Score     float64
	Threshold float64
}

// Verify computes cosine similarity between stored and a fresh
// embedding of samples, comparing against threshold. samples longer
// than maxMs (spec.md §5 "Cancellation & timeouts") are truncated
// before extraction rather than rejected outright, so a caller can
// stream a long recording without needing to pre-trim it.
func Verify(extractor Extractor, user string, samples []float32, stored Embedding, threshold float64, maxMs int) (VerificationResult, *coreerr.CoreError) {
	if cerr := validate.UserID(user); cerr != nil {
		return VerificationResult{}, cerr
	}

	if maxMs > 0 {
		maxSamples := maxMs * 16000 / 1000
		if len(samples) > maxSamples {
			samples = samples[:maxSamples]
		}
	}

	emb, err := extractor.Extract(samples)
	if err != nil {
		return VerificationResult{}, coreerr.New(coreerr.Unknown, err.Error())
	}
	emb.Normalize()

	score := CosineSimilarity(stored, emb)
	return VerificationResult{
		User:      user,
		Verified:  score >= threshold,
		Score:     score,
		Threshold: threshold,
	}, nil
}
