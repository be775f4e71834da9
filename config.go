package autostack

import (
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/autostack-ml/autostack/pkg/errors"
)

// Config carries the engine policy knobs. Defaults suit most fits; every
// knob can be overridden through the environment for deployments that
// cannot touch code.
type Config struct {
	// Folds is the cross-validation fold count shared by all candidates
	// in a layer.
	Folds int `env:"AUTOSTACK_FOLDS" envDefault:"5"`

	// Repeats repeats the fold assignment with fresh shuffles and
	// averages the out-of-fold predictions.
	Repeats int `env:"AUTOSTACK_REPEATS" envDefault:"1"`

	// MaxLayers bounds the stack depth.
	MaxLayers int `env:"AUTOSTACK_MAX_LAYERS" envDefault:"2"`

	// SelectionRounds bounds greedy forward selection; Tolerance is the
	// minimum improvement that keeps selection going. Both are policy
	// choices exposed as configuration.
	SelectionRounds    int     `env:"AUTOSTACK_SELECTION_ROUNDS" envDefault:"50"`
	SelectionTolerance float64 `env:"AUTOSTACK_SELECTION_TOLERANCE" envDefault:"0"`

	// GracePeriod is how long an in-flight candidate may run past budget
	// exhaustion before it is cancelled.
	GracePeriod time.Duration `env:"AUTOSTACK_GRACE_PERIOD" envDefault:"30s"`

	// MinCandidateTime stops candidate admission once the remaining
	// budget drops below it.
	MinCandidateTime time.Duration `env:"AUTOSTACK_MIN_CANDIDATE_TIME" envDefault:"1s"`

	// RefitFull refits each candidate on the full training set for
	// inference instead of averaging the fold models.
	RefitFull bool `env:"AUTOSTACK_REFIT_FULL" envDefault:"false"`

	// Seed drives fold shuffling; fixed seeds give reproducible fits.
	Seed int64 `env:"AUTOSTACK_SEED" envDefault:"42"`

	// QuantileLevels are the predicted quantiles for quantile problems.
	QuantileLevels []float64 `env:"AUTOSTACK_QUANTILE_LEVELS" envDefault:"0.1,0.5,0.9"`
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		Folds:              5,
		Repeats:            1,
		MaxLayers:          2,
		SelectionRounds:    50,
		SelectionTolerance: 0,
		GracePeriod:        30 * time.Second,
		MinCandidateTime:   time.Second,
		Seed:               42,
		QuantileLevels:     []float64{0.1, 0.5, 0.9},
	}
}

// ConfigFromEnv returns the defaults with environment overrides applied.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "autostack: parsing config from environment")
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Folds < 2 {
		return errors.NewValidationError("folds", "must be at least 2", c.Folds)
	}
	if c.Repeats < 1 {
		return errors.NewValidationError("repeats", "must be at least 1", c.Repeats)
	}
	if c.MaxLayers < 1 {
		return errors.NewValidationError("max_layers", "must be at least 1", c.MaxLayers)
	}
	if c.SelectionRounds < 1 {
		return errors.NewValidationError("selection_rounds", "must be at least 1", c.SelectionRounds)
	}
	if c.SelectionTolerance < 0 {
		return errors.NewValidationError("selection_tolerance", "must be non-negative", c.SelectionTolerance)
	}
	for _, q := range c.QuantileLevels {
		if q <= 0 || q >= 1 {
			return errors.NewValidationError("quantile_levels", "must be strictly between 0 and 1", q)
		}
	}
	return nil
}
