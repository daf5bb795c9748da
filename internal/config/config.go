// Package config holds the evaluation settings read through viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. FILLER_EVAL_OUT_DIR.
const EnvPrefix = "FILLER"

// EvalData holds the evaluation-only data files.
type EvalData struct {
	FillerRateList string `mapstructure:"filler_rate_list" yaml:"filler_rate_list"`
}

// Data locates the corpus: utterance list, feature and label arrays, and
// the filler list.
type Data struct {
	UttList    string   `mapstructure:"utt_list" yaml:"utt_list"`
	InFeatDir  string   `mapstructure:"in_feat_dir" yaml:"in_feat_dir"`
	OutFeatDir string   `mapstructure:"out_feat_dir" yaml:"out_feat_dir"`
	FillerList string   `mapstructure:"filler_list" yaml:"filler_list"`
	Eval       EvalData `mapstructure:"eval" yaml:"eval"`
}

// Eval controls inference, scoring, outputs and the metrics push.
type Eval struct {
	EachSpeaker bool   `mapstructure:"each_speaker" yaml:"each_speaker"`
	OutDir      string `mapstructure:"out_dir" yaml:"out_dir"`
	Model       string `mapstructure:"model" yaml:"model"`
	ORTLibrary  string `mapstructure:"ort_library" yaml:"ort_library,omitempty"`
	InputName   string `mapstructure:"input_name" yaml:"input_name"`
	OutputName  string `mapstructure:"output_name" yaml:"output_name"`
	PoolSize    int    `mapstructure:"pool_size" yaml:"pool_size"`
	Workers     int    `mapstructure:"workers" yaml:"workers"`
	Pushgateway string `mapstructure:"pushgateway" yaml:"pushgateway,omitempty"`
	Job         string `mapstructure:"job" yaml:"job"`
}

// Config is the full evaluation configuration.
type Config struct {
	Data Data `mapstructure:"data" yaml:"data"`
	Eval Eval `mapstructure:"eval" yaml:"eval"`
}

// SetDefaults registers the default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("eval.each_speaker", false)
	v.SetDefault("eval.out_dir", "out")
	v.SetDefault("eval.input_name", "feats")
	v.SetDefault("eval.output_name", "logits")
	v.SetDefault("eval.pool_size", 1)
	v.SetDefault("eval.workers", 0)
	v.SetDefault("eval.job", "filler_eval")
}

// New returns a viper instance with defaults, FILLER_ environment overrides
// and, when path is set, the YAML file at path.
func New(path string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return v, nil
}

// Load decodes v into a Config.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// ValidateData checks the settings needed to load a corpus.
func (c *Config) ValidateData() error {
	var errs []error
	for _, f := range []struct{ key, value string }{
		{"data.utt_list", c.Data.UttList},
		{"data.in_feat_dir", c.Data.InFeatDir},
		{"data.out_feat_dir", c.Data.OutFeatDir},
	} {
		if f.value == "" {
			errs = append(errs, fmt.Errorf("%s is required", f.key))
		}
	}
	return errors.Join(errs...)
}

// ValidateScoring checks the settings needed to score predictions.
func (c *Config) ValidateScoring() error {
	var errs []error
	if c.Data.FillerList == "" {
		errs = append(errs, errors.New("data.filler_list is required"))
	}
	if c.Data.Eval.FillerRateList == "" {
		errs = append(errs, errors.New("data.eval.filler_rate_list is required"))
	}
	if c.Eval.OutDir == "" {
		errs = append(errs, errors.New("eval.out_dir is required"))
	}
	return errors.Join(errs...)
}

// ValidatePrediction checks the settings needed to run the tagger.
func (c *Config) ValidatePrediction() error {
	var errs []error
	if err := c.ValidateData(); err != nil {
		errs = append(errs, err)
	}
	if c.Eval.Model == "" {
		errs = append(errs, errors.New("eval.model is required"))
	}
	if c.Eval.OutDir == "" {
		errs = append(errs, errors.New("eval.out_dir is required"))
	}
	if c.Eval.PoolSize < 1 {
		errs = append(errs, fmt.Errorf("eval.pool_size must be positive, got %d", c.Eval.PoolSize))
	}
	if c.Eval.Workers < 0 {
		errs = append(errs, fmt.Errorf("eval.workers must not be negative, got %d", c.Eval.Workers))
	}
	return errors.Join(errs...)
}

// Save writes c as YAML to path.
func (c *Config) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return f.Close()
}
