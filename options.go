package filler

import (
	"log/slog"
	"runtime"
)

// Option configures an Evaluator.
type Option func(*config)

type config struct {
	workers  int
	speakers bool
	logger   *slog.Logger
}

func defaultConfig() config {
	return config{
		workers: runtime.NumCPU(),
		logger:  slog.Default(),
	}
}

// WithWorkers sets how many goroutines tally a batch (default: runtime.NumCPU()).
func WithWorkers(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithSpeakers enables the per-speaker breakdown (default: false).
func WithSpeakers(enabled bool) Option {
	return func(c *config) {
		c.speakers = enabled
	}
}

// WithLogger sets the logger (default: slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}
