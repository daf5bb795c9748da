package filler

import (
	"fmt"
	"math"
)

// Rates maps a filler name to its occurrence rate.
type Rates map[string]float64

// Check verifies that every filler has a finite, non-negative rate and that
// the rates of fillers sum to a positive value.
func (r Rates) Check(fillers []string) error {
	if len(fillers) == 0 {
		return ErrNoFillers
	}
	var sum float64
	for _, name := range fillers {
		rate, ok := r[name]
		if !ok {
			return fmt.Errorf("%w: %q", ErrMissingRate, name)
		}
		if rate < 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
			return fmt.Errorf("%w: %q = %v", ErrInvalidRate, name, rate)
		}
		sum += rate
	}
	if sum == 0 {
		return ErrZeroRateSum
	}
	return nil
}

// ClassScores holds the one-vs-rest result for a single filler class.
type ClassScores struct {
	Name   string  `yaml:"name"`
	Index  int     `yaml:"index"`
	Rate   float64 `yaml:"rate"`
	Counts Counts  `yaml:"counts"`
	Scores Scores  `yaml:"scores"`
}

// ScoreClasses scores every filler of fillers one-vs-rest, using class i+1 for
// fillers[i].
func ScoreClasses(m *Confusion, fillers []string, rates Rates) []ClassScores {
	out := make([]ClassScores, len(fillers))
	for i, name := range fillers {
		counts := m.Class(i + 1)
		out[i] = ClassScores{
			Name:   name,
			Index:  i + 1,
			Rate:   rates[name],
			Counts: counts,
			Scores: counts.Scores(),
		}
	}
	return out
}

// Blend averages class scores weighted by their rate.
//
// An undefined class metric adds nothing to its weighted sum, but the class
// rate still counts toward the divisor. Sparse classes therefore pull the
// blended value down; reported word scores depend on this. When every class
// leaves a metric undefined, the blended metric is a defined 0, not Undefined.
func Blend(classes []ClassScores) (Scores, error) {
	var rateSum, precision, recall, fScore, specificity float64
	for _, c := range classes {
		if c.Rate < 0 || math.IsNaN(c.Rate) || math.IsInf(c.Rate, 0) {
			return Scores{}, fmt.Errorf("%w: %q = %v", ErrInvalidRate, c.Name, c.Rate)
		}
		rateSum += c.Rate
		if v, ok := c.Scores.Precision.Get(); ok {
			precision += v * c.Rate
		}
		if v, ok := c.Scores.Recall.Get(); ok {
			recall += v * c.Rate
		}
		if v, ok := c.Scores.FScore.Get(); ok {
			fScore += v * c.Rate
		}
		if v, ok := c.Scores.Specificity.Get(); ok {
			specificity += v * c.Rate
		}
	}
	if rateSum == 0 {
		return Scores{}, ErrZeroRateSum
	}
	return Scores{
		Precision:   Defined(precision / rateSum),
		Recall:      Defined(recall / rateSum),
		FScore:      Defined(fScore / rateSum),
		Specificity: Defined(specificity / rateSum),
	}, nil
}
