package stack

import (
	"context"
	"log/slog"

	"gonum.org/v1/gonum/mat"

	applog "github.com/autostack-ml/autostack/pkg/log"
	"github.com/autostack-ml/autostack/portfolio"
)

// Stacker drives the layer loop: layer 0 trains on the original
// features, each later layer trains on the original features concatenated
// with the previous layer's out-of-fold prediction columns.
type Stacker struct {
	builder   *Builder
	maxLayers int
	logger    *slog.Logger
}

// NewStacker bounds the layer loop at maxLayers, the guard against
// runaway recursive stacking.
func NewStacker(builder *Builder, maxLayers int, logger *slog.Logger) *Stacker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stacker{builder: builder, maxLayers: maxLayers, logger: logger}
}

// Result summarizes the built stack.
type Result struct {
	// FinalLayer is the index of the last accepted layer, the one the
	// ensemble selector draws from. -1 when no layer produced a model.
	FinalLayer int

	// Failures collects every candidate failure across all layers.
	Failures []error
}

// Build runs the stacked training loop with the same candidate portfolio
// at every layer. A layer with zero surviving candidates is skipped along
// with all subsequent layers; a layer whose best single model does not
// show non-negative improvement over the previous layer's best halts
// stacking early, and the engine falls back to the last accepted layer.
func (s *Stacker) Build(ctx context.Context, in Input, cands []portfolio.Candidate, folds Assignment) (*Result, error) {
	res := &Result{FinalLayer: -1}
	board := s.builder.board
	metric := s.builder.metric

	baseX := in.X
	layerIn := in
	prevBest := metric.Worst()

	for layer := 0; layer < s.maxLayers; layer++ {
		if s.builder.tracker.Exhausted() {
			break
		}

		out, err := s.builder.BuildLayer(ctx, layer, layerIn, cands, folds)
		if err != nil {
			return nil, err
		}
		res.Failures = append(res.Failures, out.Failures...)

		if len(out.Models) == 0 {
			// Layer-local failure: fall back to the last layer that
			// produced models and stop stacking.
			s.logger.Warn("layer produced no models; stacking stopped",
				applog.LayerKey, layer,
			)
			break
		}

		best, _ := board.BestScore(layer)
		if layer > 0 && metric.Improvement(best, prevBest) < 0 {
			// The extra layer degraded validation quality; keep the
			// previous layer as the final one.
			s.logger.Info("layer showed no improvement; stacking halted",
				applog.LayerKey, layer,
				applog.ScoreKey, best,
			)
			break
		}

		res.FinalLayer = layer
		prevBest = best
		layerIn = Input{
			X:       hstack(baseX, out.Features),
			Y:       in.Y,
			Weights: in.Weights,
			Problem: in.Problem,
			Classes: in.Classes,
		}
	}
	return res, nil
}

// hstack concatenates two matrices column-wise.
func hstack(a, b *mat.Dense) *mat.Dense {
	ra, ca := a.Dims()
	rb, cb := b.Dims()
	if ra != rb {
		panic("stack: hstack row mismatch")
	}
	out := mat.NewDense(ra, ca+cb, nil)
	for i := 0; i < ra; i++ {
		for j := 0; j < ca; j++ {
			out.Set(i, j, a.At(i, j))
		}
		for j := 0; j < cb; j++ {
			out.Set(i, ca+j, b.At(i, j))
		}
	}
	return out
}
