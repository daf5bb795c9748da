package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	filler "github.com/jamesainslie/go-filler"
	"github.com/jamesainslie/go-filler/internal/bench"
	"github.com/jamesainslie/go-filler/internal/metrics"
	"github.com/jamesainslie/go-filler/internal/report"
)

const (
	scoresFile  = "scores.txt"
	yamlFile    = "scores.yaml"
	classesFile = "classes.csv"
	configFile  = "config.yaml"
)

func newScoreCmd(a *app) *cobra.Command {
	var predictions string
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score stored predictions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if predictions == "" {
				predictions = filepath.Join(a.cfg.Eval.OutDir, dumpFile)
			}
			pairs, err := readDump(predictions)
			if err != nil {
				return err
			}
			a.log.WithFields(logrus.Fields{
				"path":       predictions,
				"utterances": len(pairs),
			}).Info("loaded predictions")
			return a.score(cmd.Context(), pairs)
		},
	}
	cmd.Flags().StringVar(&predictions, "predictions", "", "Prediction dump (default <out-dir>/"+dumpFile+")")
	scoringFlags(cmd.Flags())
	commonFlags(cmd.Flags())
	return cmd
}

func newRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Predict and score in one pass",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.cfg.ValidateScoring(); err != nil {
				return err
			}
			preds, err := a.predict(cmd.Context())
			if err != nil {
				return err
			}
			return a.score(cmd.Context(), bench.Pairs(preds))
		},
	}
	dataFlags(cmd.Flags())
	predictionFlags(cmd.Flags())
	scoringFlags(cmd.Flags())
	commonFlags(cmd.Flags())
	return cmd
}

func (a *app) score(ctx context.Context, pairs []filler.Pair) error {
	cfg := a.cfg
	if err := cfg.ValidateScoring(); err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.Eval.OutDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	fillers, err := bench.LoadFillers(cfg.Data.FillerList)
	if err != nil {
		return fmt.Errorf("load fillers: %w", err)
	}
	rates, err := bench.LoadRates(cfg.Data.Eval.FillerRateList)
	if err != nil {
		return fmt.Errorf("load filler rates: %w", err)
	}
	a.log.WithField("fillers", fillers).Debug("loaded filler list")

	ev, err := filler.New(fillers, rates,
		filler.WithSpeakers(cfg.Eval.EachSpeaker),
		filler.WithWorkers(a.workers()),
		filler.WithLogger(a.slog),
	)
	if err != nil {
		return err
	}

	r, err := ev.Evaluate(pairs)
	if err != nil {
		return err
	}

	outputs := []struct {
		name  string
		write func(io.Writer) error
	}{
		{scoresFile, func(w io.Writer) error { return report.WriteScores(w, r) }},
		{yamlFile, func(w io.Writer) error { return report.WriteYAML(w, r) }},
		{classesFile, func(w io.Writer) error { return report.WriteClassCSV(w, r) }},
	}
	for _, o := range outputs {
		if err := writeFile(filepath.Join(cfg.Eval.OutDir, o.name), o.write); err != nil {
			return err
		}
	}
	if err := cfg.Save(filepath.Join(cfg.Eval.OutDir, configFile)); err != nil {
		return err
	}

	a.log.WithFields(logrus.Fields{
		"run":       r.RunID,
		"sequences": r.Sequences,
		"positions": r.PositionsTotal,
		"speakers":  len(r.Speakers),
		"dir":       cfg.Eval.OutDir,
	}).Info("wrote scores")

	header(a.out)
	printScores(a.out, "position", r.Position.Precision, r.Position.Recall, r.Position.FScore, r.Position.Specificity)
	printScores(a.out, "word", r.Word.Precision, r.Word.Recall, r.Word.FScore, r.Word.Specificity)
	for _, c := range r.Classes {
		printScores(a.out, c.Name, c.Scores.Precision, c.Scores.Recall, c.Scores.FScore, c.Scores.Specificity)
	}

	if cfg.Eval.Pushgateway != "" {
		exp := metrics.NewExporter(r, a.slog)
		if err := exp.Push(ctx, cfg.Eval.Pushgateway, cfg.Eval.Job); err != nil {
			return err
		}
	}
	return nil
}
