// Package portfolio holds the candidate portfolio: the ranked,
// precomputed list of model configurations the engine trains, and the
// registry of opaque model families that implement them. Families are a
// capability set of {fit, predict, resource-estimate}; the engine never
// inspects family-internal state.
package portfolio

import (
	"context"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/autostack-ml/autostack/core/dataset"
	"github.com/autostack-ml/autostack/pkg/errors"
)

// Model is a fitted artifact. Predict returns one row per input row; the
// column count depends on the problem type (see dataset.OutputWidth).
type Model interface {
	Predict(X mat.Matrix) (*mat.Dense, error)
}

// TrainData is the training input handed to a family's Fit. Weights may
// be nil. TimeLimit is advisory: families that can stop early should.
type TrainData struct {
	X              *mat.Dense
	Y              *mat.VecDense
	Weights        []float64
	Problem        dataset.ProblemType
	Classes        int
	QuantileLevels []float64
	Workers        int
	TimeLimit      time.Duration
}

// Capabilities declares what a family can do and what it needs.
type Capabilities struct {
	// Problems lists the problem types the family supports.
	Problems []dataset.ProblemType

	// GPUOnly families are excluded from the portfolio entirely when no
	// GPU is detected.
	GPUOnly bool

	// NeedsPretrainedWeights marks foundation-model-backed families. The
	// builder fails fast for the specific candidate when the weight
	// artifact is unavailable.
	NeedsPretrainedWeights bool
}

// Supports reports whether the family handles the given problem type.
func (c Capabilities) Supports(p dataset.ProblemType) bool {
	for _, q := range c.Problems {
		if q == p {
			return true
		}
	}
	return false
}

// ModelFamily is one opaque candidate family.
type ModelFamily interface {
	Name() string
	Capabilities() Capabilities

	// Estimate predicts the resource cost of fitting one candidate of
	// this family on a dataset of the given shape.
	Estimate(rows, features int, params Hyperparams) ResourceEstimate

	// Fit trains on data and returns a fitted artifact.
	Fit(ctx context.Context, data *TrainData, params Hyperparams) (Model, error)
}

// WeightsProvider resolves pretrained weight artifacts for
// foundation-model families. It is an external collaborator; an error
// means the artifact is unavailable (no network, cold cache) and the
// candidate is skipped.
type WeightsProvider interface {
	Fetch(modelID string) (string, error)
}

// Registry maps family names to implementations. Registries are
// instance-scoped so fits stay independent; most callers use
// families.NewRegistry for the built-in set.
type Registry struct {
	mu       sync.RWMutex
	families map[string]ModelFamily
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{families: make(map[string]ModelFamily)}
}

// Register adds a family. Registering the same name twice is an error.
func (r *Registry) Register(f ModelFamily) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.families[f.Name()]; ok {
		return errors.Newf("portfolio: family %q already registered", f.Name())
	}
	r.families[f.Name()] = f
	return nil
}

// Get returns the named family.
func (r *Registry) Get(name string) (ModelFamily, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.families[name]
	if !ok {
		return nil, errors.Newf("portfolio: unknown family %q", name)
	}
	return f, nil
}

// Names returns the registered family names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.families))
	for n := range r.families {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
