package filler

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"
)

// minChunk is the smallest number of pairs handed to one tally goroutine.
const minChunk = 64

// Evaluator scores batches against a fixed filler list and rate table.
// It is safe for concurrent use.
type Evaluator struct {
	fillers  []string
	rates    Rates
	workers  int
	speakers bool
	logger   *slog.Logger
}

// New creates an Evaluator. fillers[i] is scored as class i+1; every filler
// needs an entry in rates.
func New(fillers []string, rates Rates, opts ...Option) (*Evaluator, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := rates.Check(fillers); err != nil {
		return nil, err
	}

	r := make(Rates, len(fillers))
	for _, name := range fillers {
		r[name] = rates[name]
	}

	return &Evaluator{
		fillers:  append([]string(nil), fillers...),
		rates:    r,
		workers:  cfg.workers,
		speakers: cfg.speakers,
		logger:   cfg.logger,
	}, nil
}

// Fillers returns the filler names in class order.
func (e *Evaluator) Fillers() []string {
	return append([]string(nil), e.fillers...)
}

// Result holds the scores of one batch or one speaker partition.
type Result struct {
	PositionCounts Counts        `yaml:"position_counts"`
	Position       Scores        `yaml:"position"`
	Word           Scores        `yaml:"word"`
	Classes        []ClassScores `yaml:"classes"`
	Sequences      int           `yaml:"sequences"`
	PositionsTotal int           `yaml:"positions"`
}

// SpeakerResult is the Result of a single speaker's utterances.
type SpeakerResult struct {
	Speaker string `yaml:"speaker"`
	Result  `yaml:",inline"`
}

// Report is the outcome of Evaluate.
type Report struct {
	RunID    string `yaml:"run_id"`
	Result   `yaml:",inline"`
	Speakers []SpeakerResult `yaml:"speakers,omitempty"`
}

// Evaluate scores a batch: position scores, per-class scores and the
// rate-blended word scores, plus the same per speaker when enabled.
func (e *Evaluator) Evaluate(pairs []Pair) (*Report, error) {
	k := classCount(pairs)
	if err := validate(pairs, k); err != nil {
		return nil, err
	}
	// Class 0 is "no filler"; fillers[i] is class i+1.
	if k > 0 && k != len(e.fillers)+1 {
		return nil, fmt.Errorf("%w: batch has %d classes, %d fillers need %d",
			ErrClassCount, k, len(e.fillers), len(e.fillers)+1)
	}

	e.logger.Debug("evaluating batch",
		"sequences", len(pairs),
		"classes", k,
		"fillers", len(e.fillers),
		"workers", e.workers)

	res, err := e.result(pairs, k)
	if err != nil {
		return nil, err
	}

	report := &Report{
		RunID:  uuid.NewString(),
		Result: res,
	}

	if !e.speakers {
		return report, nil
	}

	groups := GroupBySpeaker(pairs)
	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		res, err := e.result(groups[id], k)
		if err != nil {
			return nil, fmt.Errorf("speaker %s: %w", id, err)
		}
		e.logger.Debug("scored speaker", "speaker", id, "sequences", len(groups[id]))
		report.Speakers = append(report.Speakers, SpeakerResult{Speaker: id, Result: res})
	}

	return report, nil
}

// result scores pairs that have already been validated against k.
func (e *Evaluator) result(pairs []Pair, k int) (Result, error) {
	m, err := e.tally(pairs, k)
	if err != nil {
		return Result{}, err
	}

	classes := ScoreClasses(m, e.fillers, e.rates)
	word, err := Blend(classes)
	if err != nil {
		return Result{}, err
	}

	positions := m.Positions()
	return Result{
		PositionCounts: positions,
		Position:       positions.Scores(),
		Word:           word,
		Classes:        classes,
		Sequences:      len(pairs),
		PositionsTotal: m.Total(),
	}, nil
}

// Tally validates a batch and counts it using the Evaluator's workers.
func (e *Evaluator) Tally(pairs []Pair) (*Confusion, error) {
	k := classCount(pairs)
	if err := validate(pairs, k); err != nil {
		return nil, err
	}
	return e.tally(pairs, k)
}

// tally splits pairs into contiguous chunks, counts each chunk into its own
// matrix and merges the matrices once every goroutine is done.
func (e *Evaluator) tally(pairs []Pair, k int) (*Confusion, error) {
	chunk := (len(pairs) + e.workers - 1) / e.workers
	if chunk < minChunk {
		chunk = minChunk
	}
	if len(pairs) <= chunk {
		return tally(pairs, k), nil
	}

	parts := make([]*Confusion, (len(pairs)+chunk-1)/chunk)
	var g errgroup.Group
	g.SetLimit(e.workers)
	for i := range parts {
		start := i * chunk
		end := min(start+chunk, len(pairs))
		g.Go(func() error {
			parts[i] = tally(pairs[start:end], k)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := NewConfusion(k)
	for _, part := range parts {
		if err := total.Merge(part); err != nil {
			return nil, err
		}
	}
	return total, nil
}

// GroupBySpeaker partitions pairs by Pair.Speaker, keeping input order within
// each partition.
func GroupBySpeaker(pairs []Pair) map[string][]Pair {
	groups := make(map[string][]Pair)
	for _, p := range pairs {
		groups[p.Speaker] = append(groups[p.Speaker], p)
	}
	return groups
}

// SpeakerVariance returns the population variance of the position and word
// F-scores across speakers. Speakers with an undefined F-score are left out;
// with no defined score the variance is Undefined.
func (r *Report) SpeakerVariance() (position, word Value) {
	var pos, wrd []float64
	for _, s := range r.Speakers {
		if v, ok := s.Position.FScore.Get(); ok {
			pos = append(pos, v)
		}
		if v, ok := s.Word.FScore.Get(); ok {
			wrd = append(wrd, v)
		}
	}
	return variance(pos), variance(wrd)
}

func variance(xs []float64) Value {
	if len(xs) == 0 {
		return Undefined
	}
	v, err := stats.PopulationVariance(xs)
	if err != nil {
		return Undefined
	}
	return Defined(v)
}
