// Command filler-eval runs a filler tagger over a corpus and scores its
// predictions.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jamesainslie/go-filler/internal/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// flagKeys maps command-line flags to their config keys.
var flagKeys = map[string]string{
	"utt-list":     "data.utt_list",
	"in-feat-dir":  "data.in_feat_dir",
	"out-feat-dir": "data.out_feat_dir",
	"filler-list":  "data.filler_list",
	"rate-list":    "data.eval.filler_rate_list",
	"each-speaker": "eval.each_speaker",
	"out-dir":      "eval.out_dir",
	"model":        "eval.model",
	"ort-library":  "eval.ort_library",
	"pool-size":    "eval.pool_size",
	"workers":      "eval.workers",
	"pushgateway":  "eval.pushgateway",
	"job":          "eval.job",
}

// app carries the state shared by all subcommands.
type app struct {
	configPath string
	logLevel   string

	v    *viper.Viper
	cfg  *config.Config
	log  *logrus.Logger
	slog *slog.Logger
	out  io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{out: stdout, log: logrus.New()}
	a.log.SetOutput(stderr)
	a.log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	root := &cobra.Command{
		Use:           "filler-eval",
		Short:         "Predict and score filler positions",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Flags())
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "YAML config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	root.AddCommand(newPredictCmd(a), newScoreCmd(a), newRunCmd(a))
	return root
}

// dataFlags registers the corpus flags.
func dataFlags(fs *pflag.FlagSet) {
	fs.String("utt-list", "", "Utterance list, one speaker:lecture:ipu:text per line")
	fs.String("in-feat-dir", "", "Directory of <id>-feats.npy feature arrays")
	fs.String("out-feat-dir", "", "Directory of <id>-feats.npy label arrays")
}

// scoringFlags registers the scoring flags.
func scoringFlags(fs *pflag.FlagSet) {
	fs.String("filler-list", "", "Filler list, one name per line; line i is class i")
	fs.String("rate-list", "", "Filler rate list, one name:rate per line")
	fs.Bool("each-speaker", false, "Also score each speaker")
	fs.String("pushgateway", "", "Prometheus Pushgateway URL")
	fs.String("job", "filler_eval", "Pushgateway job name")
}

// predictionFlags registers the inference flags.
func predictionFlags(fs *pflag.FlagSet) {
	fs.String("model", "", "ONNX filler tagger")
	fs.String("ort-library", "", "Path to the ONNX Runtime shared library")
	fs.Int("pool-size", 1, "Number of inference sessions")
}

func commonFlags(fs *pflag.FlagSet) {
	fs.String("out-dir", "out", "Output directory")
	fs.Int("workers", 0, "Concurrent workers (0 = number of CPUs)")
}

func (a *app) setup(fs *pflag.FlagSet) error {
	level, err := logrus.ParseLevel(a.logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", a.logLevel, err)
	}
	a.log.SetLevel(level)

	v, err := config.New(a.configPath)
	if err != nil {
		return err
	}
	for name, key := range flagKeys {
		if f := fs.Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	a.v, a.cfg = v, cfg

	// Library packages log through slog; route their records into logrus.
	a.slog = slog.New(newLogrusHandler(a.log))

	if path := a.v.ConfigFileUsed(); path != "" {
		a.log.WithField("path", path).Debug("loaded config")
	}
	return nil
}

// workers resolves eval.workers, where zero means one per CPU.
func (a *app) workers() int {
	if a.cfg.Eval.Workers > 0 {
		return a.cfg.Eval.Workers
	}
	return runtime.NumCPU()
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func printScores(w io.Writer, title string, precision, recall, fScore, specificity fmt.Stringer) {
	fmt.Fprintf(w, "%-16s %-20s %-20s %-20s %-20s\n", title,
		precision, recall, fScore, specificity)
}

func header(w io.Writer) {
	fmt.Fprintf(w, "%-16s %-20s %-20s %-20s %-20s\n", "Scope", "Precision", "Recall", "F-score", "Specificity")
	fmt.Fprintln(w, strings.Repeat("-", 96))
}
