package biometrics

import "testing"

// fakeExtractor derives a deterministic embedding from the mean sample
// value, enough to exercise the state machine without a real model.
type fakeExtractor struct{}

func (fakeExtractor) Extract(samples []float32) (Embedding, error) {
	var sum float32
	for _, s := range samples {
		sum += s
	}
	mean := sum / float32(len(samples))
	return Embedding{mean, 1 - mean, 0.5}, nil
}

func samplesOfDurationMs(ms int) []float32 {
	n := ms * 16000 / 1000
	s := make([]float32, n)
	for i := range s {
		s[i] = 0.1
	}
	return s
}

func TestEnrollmentHappyPath(t *testing.T) {
	sess := NewEnrollmentSession(fakeExtractor{}, 2000, 3)

	if cerr := sess.Start("alice"); cerr != nil {
		t.Fatal(cerr)
	}

	for i := 0; i < 3; i++ {
		p, cerr := sess.AddSample(samplesOfDurationMs(2000))
		if cerr != nil {
			t.Fatal(cerr)
		}
		if p.UtterancesCollected != i+1 {
			t.Fatalf("expected %d collected, got %d", i+1, p.UtterancesCollected)
		}
	}

	result, cerr := sess.Finalize()
	if cerr != nil {
		t.Fatal(cerr)
	}
	if result.User != "alice" || result.UtteranceCount != 3 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestEnrollmentRejectsShortUtterance(t *testing.T) {
	sess := NewEnrollmentSession(fakeExtractor{}, 2000, 3)
	sess.Start("bob")

	_, cerr := sess.AddSample(samplesOfDurationMs(500))
	if cerr == nil {
		t.Fatal("expected utterance-too-short error")
	}
}

func TestEnrollmentFinalizeFailsWithoutEnoughUtterances(t *testing.T) {
	sess := NewEnrollmentSession(fakeExtractor{}, 2000, 3)
	sess.Start("carol")
	sess.AddSample(samplesOfDurationMs(2000))

	_, cerr := sess.Finalize()
	if cerr == nil {
		t.Fatal("expected need-more-utterances error")
	}
}

func TestEnrollmentSecondStartWhileActiveIsError(t *testing.T) {
	sess := NewEnrollmentSession(fakeExtractor{}, 2000, 3)
	sess.Start("dave")

	if cerr := sess.Start("erin"); cerr == nil {
		t.Fatal("expected in-progress error on concurrent start")
	}
}

func TestEnrollmentCancelReturnsToIdle(t *testing.T) {
	sess := NewEnrollmentSession(fakeExtractor{}, 2000, 3)
	sess.Start("frank")
	sess.Cancel()

	if cerr := sess.Start("frank"); cerr != nil {
		t.Fatalf("expected restart after cancel to succeed, got %v", cerr)
	}
}

func TestVerifyAboveThresholdPasses(t *testing.T) {
	stored := Embedding{1, 0, 0}
	res, cerr := Verify(fakeExtractorFixed{Embedding{1, 0, 0}}, "gail", samplesOfDurationMs(2000), stored, 0.82, 4000)
	if cerr != nil {
		t.Fatal(cerr)
	}
	if !res.Verified {
		t.Fatalf("expected verified, got %+v", res)
	}
}

func TestVerifyBelowThresholdFails(t *testing.T) {
	stored := Embedding{1, 0, 0}
	res, cerr := Verify(fakeExtractorFixed{Embedding{0, 1, 0}}, "gail", samplesOfDurationMs(2000), stored, 0.82, 4000)
	if cerr != nil {
		t.Fatal(cerr)
	}
	if res.Verified {
		t.Fatalf("expected verification to fail, got %+v", res)
	}
}

// truncatingExtractor records the length of the slice it was actually
// handed, so the test can assert on what Verify passed through.
type truncatingExtractor struct {
	emb      Embedding
	gotLenCh chan int
}

func (e truncatingExtractor) Extract(samples []float32) (Embedding, error) {
	e.gotLenCh <- len(samples)
	return e.emb, nil
}

func TestVerifyTruncatesToMaxMs(t *testing.T) {
	stored := Embedding{1, 0, 0}
	ch := make(chan int, 1)
	extractor := truncatingExtractor{emb: Embedding{1, 0, 0}, gotLenCh: ch}

	_, cerr := Verify(extractor, "gail", samplesOfDurationMs(10000), stored, 0.82, 2000)
	if cerr != nil {
		t.Fatal(cerr)
	}

	gotLen := <-ch
	wantLen := 2000 * 16000 / 1000
	if gotLen != wantLen {
		t.Fatalf("expected samples truncated to %d, got %d", wantLen, gotLen)
	}
}

func TestVerifyZeroMaxMsSkipsTruncation(t *testing.T) {
	stored := Embedding{1, 0, 0}
	ch := make(chan int, 1)
	extractor := truncatingExtractor{emb: Embedding{1, 0, 0}, gotLenCh: ch}

	full := samplesOfDurationMs(10000)
	_, cerr := Verify(extractor, "gail", full, stored, 0.82, 0)
	if cerr != nil {
		t.Fatal(cerr)
	}

	gotLen := <-ch
	if gotLen != len(full) {
		t.Fatalf("expected untruncated length %d, got %d", len(full), gotLen)
	}
}

type fakeExtractorFixed struct{ emb Embedding }

func (f fakeExtractorFixed) Extract([]float32) (Embedding, error) { return f.emb, nil }
