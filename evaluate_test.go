package filler

import (
	"errors"
	"math/rand"
	"sync"
	"testing"
)

// randomBatch builds n pairs of random length over k classes.
func randomBatch(seed int64, n, k int) []Pair {
	rng := rand.New(rand.NewSource(seed))
	speakers := []string{"A01", "A02", "S05"}
	pairs := make([]Pair, n)
	for i := range pairs {
		length := rng.Intn(12)
		predicted := make([]int, length)
		target := make([]int, length)
		for j := 0; j < length; j++ {
			predicted[j] = rng.Intn(k)
			target[j] = rng.Intn(k)
		}
		pairs[i] = pair("u", k, predicted, target)
		pairs[i].Speaker = speakers[rng.Intn(len(speakers))]
	}
	return pairs
}

func TestNew_Errors(t *testing.T) {
	_, err := New(nil, Rates{})
	if !errors.Is(err, ErrNoFillers) {
		t.Errorf("New(nil) error = %v, want ErrNoFillers", err)
	}

	_, err = New([]string{"eto", "ano"}, Rates{"eto": 0, "ano": 0})
	if !errors.Is(err, ErrZeroRateSum) {
		t.Errorf("New(zero rates) error = %v, want ErrZeroRateSum", err)
	}

	_, err = New([]string{"eto", "ano"}, Rates{"eto": 1})
	if !errors.Is(err, ErrMissingRate) {
		t.Errorf("New(missing rate) error = %v, want ErrMissingRate", err)
	}
}

func TestEvaluator_Evaluate(t *testing.T) {
	ev, err := New([]string{"eto", "ano"}, Rates{"eto": 1, "ano": 1})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	report, err := ev.Evaluate(e2eBatch())
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	if report.RunID == "" {
		t.Error("expected non-empty RunID")
	}
	if report.Sequences != 2 || report.PositionsTotal != 6 {
		t.Errorf("sequences = %d, positions = %d, want 2, 6", report.Sequences, report.PositionsTotal)
	}
	approx(t, "position f_score", report.Position.FScore, 0.8)
	approx(t, "position recall", report.Position.Recall, 2.0/3.0)

	if len(report.Classes) != 2 {
		t.Fatalf("got %d classes, want 2", len(report.Classes))
	}
	approx(t, "word f_score", report.Word.FScore, 0.5)
	approx(t, "word precision", report.Word.Precision, 0.5)
	approx(t, "word recall", report.Word.Recall, 0.5)
	approx(t, "word specificity", report.Word.Specificity, 1.0)

	if len(report.Speakers) != 0 {
		t.Errorf("got %d speakers with grouping disabled", len(report.Speakers))
	}
}

func TestEvaluator_InvalidBatch(t *testing.T) {
	ev, err := New([]string{"eto"}, Rates{"eto": 1})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = ev.Evaluate([]Pair{pair("a", 2, []int{0, 1}, []int{0})})
	if !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("Evaluate() error = %v, want ErrLengthMismatch", err)
	}
}

func TestEvaluator_ClassCountMismatch(t *testing.T) {
	tests := []struct {
		name    string
		fillers []string
		rates   Rates
	}{
		{name: "more fillers than classes", fillers: []string{"eto", "ano", "ma"}, rates: Rates{"eto": 1, "ano": 1, "ma": 1}},
		{name: "fewer fillers than classes", fillers: []string{"eto"}, rates: Rates{"eto": 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := New(tt.fillers, tt.rates)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}

			// e2eBatch has three classes: "no filler" plus two fillers.
			report, err := ev.Evaluate(e2eBatch())
			if !errors.Is(err, ErrClassCount) {
				t.Errorf("Evaluate() error = %v, want ErrClassCount", err)
			}
			if report != nil {
				t.Errorf("Evaluate() report = %+v, want nil", report)
			}
		})
	}
}

func TestEvaluator_EmptyBatch(t *testing.T) {
	ev, err := New([]string{"eto"}, Rates{"eto": 1}, WithSpeakers(true))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	report, err := ev.Evaluate(nil)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	undefined(t, "position precision", report.Position.Precision)
	undefined(t, "position f_score", report.Position.FScore)
	undefined(t, "class f_score", report.Classes[0].Scores.FScore)
	approx(t, "word f_score", report.Word.FScore, 0)
	if len(report.Speakers) != 0 {
		t.Errorf("got %d speakers, want 0", len(report.Speakers))
	}
}

func TestEvaluator_ParallelTallyMatchesSequential(t *testing.T) {
	pairs := randomBatch(7, 1000, 4)

	want, err := Tally(pairs)
	if err != nil {
		t.Fatalf("Tally() error = %v", err)
	}

	for _, workers := range []int{1, 3, 8, 32} {
		ev, err := New([]string{"a", "b", "c"}, Rates{"a": 1, "b": 1, "c": 1}, WithWorkers(workers))
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		got, err := ev.Tally(pairs)
		if err != nil {
			t.Fatalf("workers=%d: Tally() error = %v", workers, err)
		}
		if got.Total() != want.Total() {
			t.Errorf("workers=%d: Total() = %d, want %d", workers, got.Total(), want.Total())
		}
		for target := 0; target < 4; target++ {
			for predicted := 0; predicted < 4; predicted++ {
				if got.At(target, predicted) != want.At(target, predicted) {
					t.Errorf("workers=%d: At(%d, %d) = %d, want %d", workers, target, predicted,
						got.At(target, predicted), want.At(target, predicted))
				}
			}
		}
	}
}

func TestEvaluator_Speakers(t *testing.T) {
	pairs := randomBatch(11, 300, 3)

	ev, err := New([]string{"eto", "ano"}, Rates{"eto": 0.6, "ano": 0.4}, WithSpeakers(true), WithWorkers(4))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	report, err := ev.Evaluate(pairs)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	groups := GroupBySpeaker(pairs)
	if len(report.Speakers) != len(groups) {
		t.Fatalf("got %d speakers, want %d", len(report.Speakers), len(groups))
	}

	var sum Counts
	sequences := 0
	for i, s := range report.Speakers {
		if i > 0 && report.Speakers[i-1].Speaker >= s.Speaker {
			t.Errorf("speakers not sorted: %q before %q", report.Speakers[i-1].Speaker, s.Speaker)
		}

		want, err := ScorePositions(groups[s.Speaker])
		if err != nil {
			t.Fatalf("ScorePositions() error = %v", err)
		}
		if s.Position != want {
			t.Errorf("speaker %s: position = %+v, want %+v", s.Speaker, s.Position, want)
		}
		sum = sum.Add(s.PositionCounts)
		sequences += s.Sequences
	}

	if sum != report.PositionCounts {
		t.Errorf("speaker counts sum to %+v, want %+v", sum, report.PositionCounts)
	}
	if sequences != len(pairs) {
		t.Errorf("speaker sequences sum to %d, want %d", sequences, len(pairs))
	}

	pos, word := report.SpeakerVariance()
	if !pos.IsDefined() || !word.IsDefined() {
		t.Errorf("SpeakerVariance() = %v, %v, want defined", pos, word)
	}
}

func TestEvaluator_ConcurrentUse(t *testing.T) {
	ev, err := New([]string{"eto", "ano"}, Rates{"eto": 1, "ano": 2}, WithSpeakers(true))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	pairs := randomBatch(3, 200, 3)

	want, err := ev.Evaluate(pairs)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := ev.Evaluate(pairs)
			if err != nil {
				errs <- err
				return
			}
			if got.Word != want.Word || got.Position != want.Position {
				errs <- errors.New("concurrent Evaluate produced different scores")
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestReport_SpeakerVariance(t *testing.T) {
	r := &Report{Speakers: []SpeakerResult{
		{Speaker: "a", Result: Result{Position: Scores{FScore: Defined(0.2)}, Word: Scores{FScore: Defined(0.5)}}},
		{Speaker: "b", Result: Result{Position: Scores{FScore: Defined(0.6)}, Word: Scores{FScore: Defined(0.5)}}},
		{Speaker: "c", Result: Result{Position: Scores{FScore: Undefined}, Word: Scores{FScore: Defined(0.5)}}},
	}}

	pos, word := r.SpeakerVariance()
	approx(t, "position variance", pos, 0.04)
	approx(t, "word variance", word, 0)

	pos, word = (&Report{}).SpeakerVariance()
	undefined(t, "empty position variance", pos)
	undefined(t, "empty word variance", word)
}
