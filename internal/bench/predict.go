package bench

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	filler "github.com/jamesainslie/go-filler"
)

// Predictor turns one utterance's feature rows into a class probability
// vector per position. *inference.Pool implements it.
type Predictor interface {
	Predict(ctx context.Context, feats [][]float32) ([][]float32, error)
}

// Prediction is a scored pair plus the text it was predicted for.
type Prediction struct {
	filler.Pair
	Text string
}

// Predict runs p over every utterance with at most workers concurrent calls
// and returns the predictions in corpus order.
func Predict(ctx context.Context, p Predictor, utts []*Utterance, workers int, logger *slog.Logger) ([]Prediction, error) {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	out := make([]Prediction, len(utts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, u := range utts {
		g.Go(func() error {
			probs, err := p.Predict(ctx, u.Features)
			if err != nil {
				return fmt.Errorf("predicting %s: %w", u.ID, err)
			}
			if len(probs) != len(u.Target) {
				return fmt.Errorf("predicting %s: %w: %d predicted, %d target",
					u.ID, filler.ErrLengthMismatch, len(probs), len(u.Target))
			}
			out[i] = Prediction{
				Pair: filler.Pair{
					ID:        u.ID,
					Speaker:   u.Speaker,
					Predicted: probs,
					Target:    u.Target,
				},
				Text: u.Text,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	logger.Debug("predicted corpus", "utterances", len(utts), "workers", workers)
	return out, nil
}

// Pairs strips the text from predictions.
func Pairs(preds []Prediction) []filler.Pair {
	pairs := make([]filler.Pair, len(preds))
	for i, p := range preds {
		pairs[i] = p.Pair
	}
	return pairs
}
