// Package families provides the built-in model families the engine
// trains: a constant baseline, regularized linear models, k-nearest
// neighbours, plus GPU-flagged and foundation-model-flagged variants that
// exercise the portfolio's hardware and dependency gating. Each family is
// an opaque {fit, predict, resource-estimate} implementer; the engine
// never reaches into family internals.
package families

import (
	"encoding/gob"

	"github.com/autostack-ml/autostack/portfolio"
)

func init() {
	// Model artifacts cross the persistence boundary as gob values.
	gob.Register(&baselineModel{})
	gob.Register(&linearModel{})
	gob.Register(&knnModel{})
	gob.Register([]portfolio.Model(nil))
}

// NewRegistry builds a registry with every built-in family. The weights
// provider may be nil; the foundation family is then registered but every
// one of its candidates fails fast at admission.
func NewRegistry(weights portfolio.WeightsProvider) *portfolio.Registry {
	reg := portfolio.NewRegistry()
	// Registration of fresh families into a fresh registry cannot collide.
	_ = reg.Register(&baselineFamily{})
	_ = reg.Register(&linearFamily{name: "linear"})
	_ = reg.Register(&knnFamily{})
	_ = reg.Register(&gpuLinearFamily{linearFamily{name: "gpu_linear"}})
	_ = reg.Register(&foundationFamily{weights: weights})
	return reg
}
