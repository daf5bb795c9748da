package filler

import "fmt"

// Pair is one utterance: a predicted probability vector per position and the
// target class of each position.
type Pair struct {
	ID        string
	Speaker   string
	Predicted [][]float32
	Target    []int
}

// Argmax returns the index of the largest element, or -1 for an empty vector.
// Ties resolve to the lowest index.
func Argmax(probs []float32) int {
	if len(probs) == 0 {
		return -1
	}
	best := 0
	for i := 1; i < len(probs); i++ {
		if probs[i] > probs[best] {
			best = i
		}
	}
	return best
}

// Classes returns the argmax class of every predicted position.
func (p Pair) Classes() []int {
	out := make([]int, len(p.Predicted))
	for i, probs := range p.Predicted {
		out[i] = Argmax(probs)
	}
	return out
}

// Counts holds the confusion counts of one scoring call: predicted positives
// (tp+fp), actual positives (tp+fn), actual negatives (tn+fp), true positives
// and true negatives.
type Counts struct {
	PredictedPositive int `yaml:"predicted_positive"`
	ActualPositive    int `yaml:"actual_positive"`
	ActualNegative    int `yaml:"actual_negative"`
	TruePositive      int `yaml:"true_positive"`
	TrueNegative      int `yaml:"true_negative"`
}

// Add returns the element-wise sum of c and o.
func (c Counts) Add(o Counts) Counts {
	return Counts{
		PredictedPositive: c.PredictedPositive + o.PredictedPositive,
		ActualPositive:    c.ActualPositive + o.ActualPositive,
		ActualNegative:    c.ActualNegative + o.ActualNegative,
		TruePositive:      c.TruePositive + o.TruePositive,
		TrueNegative:      c.TrueNegative + o.TrueNegative,
	}
}

// Scores holds the metrics derived from Counts.
type Scores struct {
	Precision   Value `yaml:"precision"`
	Recall      Value `yaml:"recall"`
	FScore      Value `yaml:"f_score"`
	Specificity Value `yaml:"specificity"`
}

// Scores derives precision, recall, F-score and specificity.
// A metric with a zero denominator is Undefined, and so is the F-score unless
// both precision and recall are defined and not both zero.
func (c Counts) Scores() Scores {
	s := Scores{
		Precision:   ratio(c.TruePositive, c.PredictedPositive),
		Recall:      ratio(c.TruePositive, c.ActualPositive),
		Specificity: ratio(c.TrueNegative, c.ActualNegative),
	}
	p, pok := s.Precision.Get()
	r, rok := s.Recall.Get()
	if pok && rok && p+r > 0 {
		s.FScore = Defined(2 * p * r / (p + r))
	}
	return s
}

// Confusion is a K×K matrix of position counts, indexed [target][predicted].
// Both the position and the per-class counts derive from it.
type Confusion struct {
	k     int
	cells []int
	total int
}

// NewConfusion returns an empty matrix for k classes.
func NewConfusion(k int) *Confusion {
	if k < 0 {
		k = 0
	}
	return &Confusion{k: k, cells: make([]int, k*k)}
}

// Classes returns K.
func (m *Confusion) Classes() int { return m.k }

// Total returns the number of positions tallied.
func (m *Confusion) Total() int { return m.total }

// At returns how many positions had the given target and predicted class.
func (m *Confusion) At(target, predicted int) int {
	if target < 0 || target >= m.k || predicted < 0 || predicted >= m.k {
		return 0
	}
	return m.cells[target*m.k+predicted]
}

func (m *Confusion) add(target, predicted int) {
	m.cells[target*m.k+predicted]++
	m.total++
}

// Merge adds o into m. An empty matrix adopts the class count of o.
func (m *Confusion) Merge(o *Confusion) error {
	if o == nil || o.k == 0 {
		return nil
	}
	if m.k == 0 {
		m.k = o.k
		m.cells = make([]int, o.k*o.k)
	}
	if m.k != o.k {
		return fmt.Errorf("%w: merging %d classes into %d", ErrClassCount, o.k, m.k)
	}
	for i, n := range o.cells {
		m.cells[i] += n
	}
	m.total += o.total
	return nil
}

func (m *Confusion) row(target int) int {
	n := 0
	for p := 0; p < m.k; p++ {
		n += m.cells[target*m.k+p]
	}
	return n
}

func (m *Confusion) col(predicted int) int {
	n := 0
	for t := 0; t < m.k; t++ {
		n += m.cells[t*m.k+predicted]
	}
	return n
}

// Positions returns the counts of the binary "filler present" decision,
// where class 0 is negative and every other class positive.
func (m *Confusion) Positions() Counts {
	if m.k == 0 {
		return Counts{}
	}
	noneTarget := m.row(0)
	nonePredicted := m.col(0)
	bothNone := m.cells[0]
	return Counts{
		PredictedPositive: m.total - nonePredicted,
		ActualPositive:    m.total - noneTarget,
		ActualNegative:    noneTarget,
		TruePositive:      m.total - noneTarget - nonePredicted + bothNone,
		TrueNegative:      bothNone,
	}
}

// Class returns one-vs-rest counts for class c. A class outside [0, K-1]
// matches no position, so every position counts as a true negative.
func (m *Confusion) Class(c int) Counts {
	if c < 0 || c >= m.k {
		return Counts{ActualNegative: m.total, TrueNegative: m.total}
	}
	target := m.row(c)
	predicted := m.col(c)
	hit := m.cells[c*m.k+c]
	return Counts{
		PredictedPositive: predicted,
		ActualPositive:    target,
		ActualNegative:    m.total - target,
		TruePositive:      hit,
		TrueNegative:      m.total - target - predicted + hit,
	}
}

// classCount returns K for a batch: the width of its first predicted vector.
func classCount(pairs []Pair) int {
	for _, p := range pairs {
		if len(p.Predicted) > 0 {
			return len(p.Predicted[0])
		}
	}
	return 0
}

// validate checks every pair against k before any counting starts.
func validate(pairs []Pair, k int) error {
	for i, p := range pairs {
		if len(p.Predicted) != len(p.Target) {
			return fmt.Errorf("%w: pair %d (%s): %d predicted, %d target",
				ErrLengthMismatch, i, p.ID, len(p.Predicted), len(p.Target))
		}
		for j, probs := range p.Predicted {
			if len(probs) == 0 || len(probs) != k {
				return fmt.Errorf("%w: pair %d (%s) position %d: %d classes, want %d",
					ErrClassCount, i, p.ID, j, len(probs), k)
			}
		}
		for j, t := range p.Target {
			if t < 0 || t >= k {
				return fmt.Errorf("%w: pair %d (%s) position %d: label %d, want [0,%d)",
					ErrLabelRange, i, p.ID, j, t, k)
			}
		}
	}
	return nil
}

// tally counts pairs that have already been validated against k.
func tally(pairs []Pair, k int) *Confusion {
	m := NewConfusion(k)
	for _, p := range pairs {
		for j, probs := range p.Predicted {
			m.add(p.Target[j], Argmax(probs))
		}
	}
	return m
}

// Tally validates a batch and counts every position into a Confusion matrix.
// An empty batch yields an empty matrix.
func Tally(pairs []Pair) (*Confusion, error) {
	k := classCount(pairs)
	if err := validate(pairs, k); err != nil {
		return nil, err
	}
	return tally(pairs, k), nil
}

// ScorePositions scores the binary "filler present" decision over a batch.
func ScorePositions(pairs []Pair) (Scores, error) {
	m, err := Tally(pairs)
	if err != nil {
		return Scores{}, err
	}
	return m.Positions().Scores(), nil
}

// ScoreClass scores filler class c one-vs-rest over a batch.
func ScoreClass(pairs []Pair, c int) (Scores, error) {
	m, err := Tally(pairs)
	if err != nil {
		return Scores{}, err
	}
	return m.Class(c).Scores(), nil
}
