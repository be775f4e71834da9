package portfolio

import "time"

// Hyperparams is an immutable hyperparameter map for one candidate.
// Values are read through the typed accessors; families define their own
// keys.
type Hyperparams map[string]interface{}

// Float reads a float64 hyperparameter, falling back to def.
func (h Hyperparams) Float(key string, def float64) float64 {
	if v, ok := h[key]; ok {
		switch x := v.(type) {
		case float64:
			return x
		case int:
			return float64(x)
		}
	}
	return def
}

// Int reads an int hyperparameter, falling back to def.
func (h Hyperparams) Int(key string, def int) int {
	if v, ok := h[key]; ok {
		switch x := v.(type) {
		case int:
			return x
		case float64:
			return int(x)
		}
	}
	return def
}

// String reads a string hyperparameter, falling back to def.
func (h Hyperparams) String(key, def string) string {
	if v, ok := h[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// ResourceEstimate is a family's predicted cost for fitting one
// candidate.
type ResourceEstimate struct {
	Time     time.Duration
	MemoryMB int
}

// Candidate is one portfolio entry: a family, a hyperparameter
// configuration and its estimated cost, ranked by expected marginal
// contribution to ensemble quality. Immutable once drawn from the
// portfolio.
type Candidate struct {
	// Name uniquely identifies the candidate within one fit.
	Name string

	// Family is the model-family identifier in the registry.
	Family string

	// Params is the hyperparameter configuration.
	Params Hyperparams

	// Estimate is the predicted fit cost for the current dataset shape.
	Estimate ResourceEstimate

	// Priority orders candidates, lower first.
	Priority int

	// RequiresGPU mirrors the family's GPUOnly capability.
	RequiresGPU bool

	// RequiresPretrainedWeights marks foundation-model candidates;
	// WeightsID names the artifact to fetch.
	RequiresPretrainedWeights bool
	WeightsID                 string
}
