package config

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config captures the runtime knobs for a training run.
type Config struct {
	TrainRootA    string  `mapstructure:"train_root_a"`
	TrainRootB    string  `mapstructure:"train_root_b"`
	EvalRoot      string  `mapstructure:"eval_root"`
	Epochs        int     `mapstructure:"epochs"`
	StepsPerEpoch int     `mapstructure:"steps_per_epoch"`
	BatchSize     int     `mapstructure:"batch_size"`
	NumWorkers    int     `mapstructure:"num_workers"`
	NumClasses    int     `mapstructure:"num_classes"`
	TopK          []int   `mapstructure:"topk"`
	LearningRate  float64 `mapstructure:"learning_rate"`
	Momentum      float64 `mapstructure:"momentum"`
	WeightDecay   float64 `mapstructure:"weight_decay"`
	Dropout       float64 `mapstructure:"dropout"`
	Seed          int64   `mapstructure:"seed"`
	LogEvery      int     `mapstructure:"log_every"`
	LogFile       string  `mapstructure:"log_file"`
}

// Keys lists every configuration key in file order.
var Keys = []string{
	"train_root_a", "train_root_b", "eval_root",
	"epochs", "steps_per_epoch", "batch_size", "num_workers",
	"num_classes", "topk",
	"learning_rate", "momentum", "weight_decay", "dropout",
	"seed", "log_every", "log_file",
}

// SetDefaults registers the fallback value of every optional key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("epochs", 1)
	v.SetDefault("steps_per_epoch", 100)
	v.SetDefault("batch_size", 64)
	v.SetDefault("num_workers", 2)
	v.SetDefault("num_classes", 1000)
	v.SetDefault("topk", []int{1, 5})
	v.SetDefault("learning_rate", 0.05)
	v.SetDefault("momentum", 0.9)
	v.SetDefault("weight_decay", 0.0)
	v.SetDefault("dropout", 0.0)
	v.SetDefault("seed", 42)
	v.SetDefault("log_every", 50)
	v.SetDefault("log_file", "")
}

// Load reads the YAML file at path on top of the defaults and validates
// the result. An empty path loads defaults only.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, "read config")
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates the merged state of v.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg, err := Decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode unmarshals the merged state of v without validating it.
func Decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	return cfg, nil
}

// Validate verifies the config is runnable and normalizes TopK into
// ascending order without duplicates.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.TrainRootA == "" && c.TrainRootB == "" {
		return errors.New("at least one training root must be set")
	}
	if c.TrainRootA == "" || c.TrainRootB == "" {
		return errors.New("both training roots must be provided for multi-region training")
	}
	if c.EvalRoot == "" {
		return errors.New("eval_root must be set")
	}
	for _, f := range []struct {
		name string
		val  int
	}{
		{"epochs", c.Epochs},
		{"steps_per_epoch", c.StepsPerEpoch},
		{"batch_size", c.BatchSize},
		{"num_workers", c.NumWorkers},
		{"num_classes", c.NumClasses},
	} {
		if f.val <= 0 {
			return errors.Errorf("%s must be > 0 (got %d)", f.name, f.val)
		}
	}
	if len(c.TopK) == 0 {
		return errors.New("topk must list at least one k")
	}
	seen := make(map[int]bool, len(c.TopK))
	ks := make([]int, 0, len(c.TopK))
	for _, k := range c.TopK {
		if k <= 0 || k > c.NumClasses {
			return errors.Errorf("topk entries must be in [1, %d] (got %d)", c.NumClasses, k)
		}
		if !seen[k] {
			seen[k] = true
			ks = append(ks, k)
		}
	}
	sort.Ints(ks)
	c.TopK = ks
	if c.LearningRate <= 0 {
		return errors.Errorf("learning_rate must be > 0 (got %g)", c.LearningRate)
	}
	if c.Momentum < 0 || c.Momentum >= 1 {
		return errors.Errorf("momentum must be in [0, 1) (got %g)", c.Momentum)
	}
	if c.WeightDecay < 0 {
		return errors.Errorf("weight_decay must be >= 0 (got %g)", c.WeightDecay)
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return errors.Errorf("dropout must be in [0, 1) (got %g)", c.Dropout)
	}
	if c.LogEvery <= 0 {
		c.LogEvery = 50
	}
	return nil
}

// Pairs returns every key with its value formatted for display, in Keys order.
func (c *Config) Pairs() [][2]string {
	vals := map[string]interface{}{
		"train_root_a":    c.TrainRootA,
		"train_root_b":    c.TrainRootB,
		"eval_root":       c.EvalRoot,
		"epochs":          c.Epochs,
		"steps_per_epoch": c.StepsPerEpoch,
		"batch_size":      c.BatchSize,
		"num_workers":     c.NumWorkers,
		"num_classes":     c.NumClasses,
		"topk":            c.TopK,
		"learning_rate":   c.LearningRate,
		"momentum":        c.Momentum,
		"weight_decay":    c.WeightDecay,
		"dropout":         c.Dropout,
		"seed":            c.Seed,
		"log_every":       c.LogEvery,
		"log_file":        c.LogFile,
	}
	out := make([][2]string, 0, len(Keys))
	for _, k := range Keys {
		out = append(out, [2]string{k, fmt.Sprint(vals[k])})
	}
	return out
}
