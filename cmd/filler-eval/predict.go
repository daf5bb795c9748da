package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	filler "github.com/jamesainslie/go-filler"
	"github.com/jamesainslie/go-filler/inference"
	"github.com/jamesainslie/go-filler/internal/bench"
	"github.com/jamesainslie/go-filler/internal/report"
)

const (
	dumpFile       = "predictions.pb"
	predictionFile = "filler_prediction.txt"
)

func newPredictCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Run the tagger over a corpus and store its predictions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := a.predict(cmd.Context())
			return err
		},
	}
	dataFlags(cmd.Flags())
	predictionFlags(cmd.Flags())
	commonFlags(cmd.Flags())
	return cmd
}

func (a *app) predict(ctx context.Context) ([]bench.Prediction, error) {
	cfg := a.cfg
	if err := cfg.ValidatePrediction(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Eval.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	corpus, err := bench.LoadCorpus(cfg.Data.UttList, cfg.Data.InFeatDir, cfg.Data.OutFeatDir)
	if err != nil {
		return nil, err
	}
	a.log.WithFields(logrus.Fields{
		"utterances": len(corpus),
		"list":       cfg.Data.UttList,
	}).Info("loaded corpus")

	if cfg.Eval.ORTLibrary != "" {
		inference.SetLibraryPath(cfg.Eval.ORTLibrary)
	}
	pool, err := inference.NewPool(cfg.Eval.Model, cfg.Eval.PoolSize, inference.IONames{
		Input:  cfg.Eval.InputName,
		Output: cfg.Eval.OutputName,
	})
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	defer func() {
		if err := pool.Close(); err != nil {
			a.log.WithError(err).Warn("closing inference pool")
		}
	}()

	start := time.Now()
	preds, err := bench.Predict(ctx, pool, corpus, a.workers(), a.slog)
	if err != nil {
		return nil, err
	}
	a.log.WithFields(logrus.Fields{
		"utterances": len(preds),
		"sessions":   pool.Size(),
		"elapsed":    time.Since(start).Round(time.Millisecond),
	}).Info("predicted corpus")

	dump := filepath.Join(cfg.Eval.OutDir, dumpFile)
	if err := writeFile(dump, func(w io.Writer) error { return bench.WriteDump(w, preds) }); err != nil {
		return nil, err
	}

	listing := make([]report.Prediction, len(preds))
	for i, p := range preds {
		listing[i] = report.Prediction{Text: p.Text, Classes: p.Pair.Classes()}
	}
	path := filepath.Join(cfg.Eval.OutDir, predictionFile)
	if err := writeFile(path, func(w io.Writer) error { return report.WritePredictions(w, listing) }); err != nil {
		return nil, err
	}

	a.log.WithField("dir", cfg.Eval.OutDir).Info("wrote predictions")
	return preds, nil
}

// readDump loads predictions written by predict.
func readDump(path string) ([]filler.Pair, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open predictions: %w", err)
	}
	defer func() { _ = f.Close() }()

	preds, err := bench.ReadDump(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return bench.Pairs(preds), nil
}
