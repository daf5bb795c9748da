// Package metrics exports evaluation reports as Prometheus gauges and pushes
// them to a Pushgateway.
package metrics

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	dto "github.com/prometheus/client_model/go"

	filler "github.com/jamesainslie/go-filler"
)

const scoreName = "filler_eval_score"

// Label values of the scope label.
const (
	ScopePosition = "position"
	ScopeWord     = "word"
	ScopeClass    = "class"
)

// Exporter holds the gauges of one report on a private registry.
type Exporter struct {
	reg    *prometheus.Registry
	scores *prometheus.GaugeVec
	counts *prometheus.GaugeVec
	runID  string
	logger *slog.Logger
}

// NewExporter registers the scores and counts of r. Undefined scores are not
// exported.
func NewExporter(r *filler.Report, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}

	e := &Exporter{
		reg: prometheus.NewRegistry(),
		scores: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: scoreName,
				Help: "Filler prediction score by scope, class, speaker and metric",
			},
			[]string{"scope", "class", "speaker", "metric"},
		),
		counts: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "filler_eval_count",
				Help: "Confusion counts behind the filler prediction scores",
			},
			[]string{"scope", "class", "speaker", "count"},
		),
		runID:  r.RunID,
		logger: logger,
	}
	e.reg.MustRegister(e.scores, e.counts)

	e.observe("", r.Result)
	for _, s := range r.Speakers {
		e.observe(s.Speaker, s.Result)
	}
	return e
}

func (e *Exporter) observe(speaker string, r filler.Result) {
	e.setScores(ScopePosition, "", speaker, r.Position)
	e.setCounts(ScopePosition, "", speaker, r.PositionCounts)
	e.setScores(ScopeWord, "", speaker, r.Word)
	for _, c := range r.Classes {
		e.setScores(ScopeClass, c.Name, speaker, c.Scores)
		e.setCounts(ScopeClass, c.Name, speaker, c.Counts)
	}
}

func (e *Exporter) setScores(scope, class, speaker string, s filler.Scores) {
	for _, m := range []struct {
		name string
		v    filler.Value
	}{
		{"precision", s.Precision},
		{"recall", s.Recall},
		{"f_score", s.FScore},
		{"specificity", s.Specificity},
	} {
		if v, ok := m.v.Get(); ok {
			e.scores.WithLabelValues(scope, class, speaker, m.name).Set(v)
		}
	}
}

func (e *Exporter) setCounts(scope, class, speaker string, c filler.Counts) {
	g := func(name string, v int) {
		e.counts.WithLabelValues(scope, class, speaker, name).Set(float64(v))
	}
	g("predicted_positive", c.PredictedPositive)
	g("actual_positive", c.ActualPositive)
	g("actual_negative", c.ActualNegative)
	g("true_positive", c.TruePositive)
	g("true_negative", c.TrueNegative)
}

// Registry returns the registry holding the report gauges.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.reg
}

// Score returns the exported value of one score, and false when the report
// left it undefined. It reads the registry and never creates a series.
func (e *Exporter) Score(scope, class, speaker, metric string) (float64, bool) {
	want := map[string]string{"scope": scope, "class": class, "speaker": speaker, "metric": metric}

	families, err := e.reg.Gather()
	if err != nil {
		e.logger.Warn("gather metrics", "err", err)
		return 0, false
	}
	for _, mf := range families {
		if mf.GetName() != scoreName {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m.GetLabel(), want) {
				return m.GetGauge().GetValue(), true
			}
		}
	}
	return 0, false
}

func labelsMatch(pairs []*dto.LabelPair, want map[string]string) bool {
	if len(pairs) != len(want) {
		return false
	}
	for _, lp := range pairs {
		if v, ok := want[lp.GetName()]; !ok || v != lp.GetValue() {
			return false
		}
	}
	return true
}

// Push replaces the metrics of job on the Pushgateway at url, grouped by the
// report's run id.
func (e *Exporter) Push(ctx context.Context, url, job string) error {
	err := push.New(url, job).
		Gatherer(e.reg).
		Grouping("run", e.runID).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	e.logger.Info("pushed metrics", "url", url, "job", job, "run", e.runID)
	return nil
}
