package stack

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/autostack-ml/autostack/core/dataset"
	"github.com/autostack-ml/autostack/core/resource"
	"github.com/autostack-ml/autostack/leaderboard"
	"github.com/autostack-ml/autostack/metrics"
	"github.com/autostack-ml/autostack/pkg/errors"
	applog "github.com/autostack-ml/autostack/pkg/log"
	"github.com/autostack-ml/autostack/portfolio"
)

// Config carries the builder policy knobs. The fold assignment itself is
// passed to BuildLayer so every candidate in a layer shares it.
type Config struct {
	// RefitFull refits each candidate once on the full training set for
	// inference. When false, inference averages the fold models
	// (bagging without refit).
	RefitFull bool

	// MinCandidateTime stops candidate admission once the remaining
	// budget drops below it.
	MinCandidateTime time.Duration

	// QuantileLevels configures the prediction columns for quantile
	// problems.
	QuantileLevels []float64
}

// Input is the training input for one layer: the (possibly augmented)
// feature matrix and the fixed label vector.
type Input struct {
	X       *mat.Dense
	Y       *mat.VecDense
	Weights []float64
	Problem dataset.ProblemType
	Classes int
}

// LayerResult is the output of building one layer.
type LayerResult struct {
	// Models are the successfully fitted candidates in admission order.
	Models []*leaderboard.FittedModel

	// Features holds the concatenated out-of-fold prediction columns of
	// all models, in model order: the engineered features for the next
	// layer. Nil when no model survived.
	Features *mat.Dense

	// Failures collects every candidate-local failure, for the
	// aggregated report on total failure.
	Failures []error
}

// Builder trains the candidates of one layer in parallel and is the sole
// writer to the leaderboard for that layer: workers hand completed
// results to a single accumulation loop, so leaderboard and layer-output
// writes never race.
type Builder struct {
	cfg      Config
	tracker  *resource.Tracker
	registry *portfolio.Registry
	board    *leaderboard.Board
	metric   metrics.Metric
	weights  portfolio.WeightsProvider
	logger   *slog.Logger
}

// NewBuilder wires a builder for one fit call.
func NewBuilder(cfg Config, tracker *resource.Tracker, registry *portfolio.Registry, board *leaderboard.Board, weights portfolio.WeightsProvider, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		cfg:      cfg,
		tracker:  tracker,
		registry: registry,
		board:    board,
		metric:   board.Metric(),
		weights:  weights,
		logger:   logger,
	}
}

// candidateResult is what a worker hands back to the accumulation loop.
type candidateResult struct {
	model *leaderboard.FittedModel
	entry leaderboard.Entry
	err   error
	// skipped marks budget-truncated candidates: not failures, and never
	// admitted to the leaderboard.
	skipped bool
}

// BuildLayer trains every admitted candidate of one layer. Candidate
// failures are absorbed: they are logged, collected into the result, and
// never abort sibling candidates. The only error returned is a fold
// assignment problem, which is a configuration error.
func (b *Builder) BuildLayer(ctx context.Context, layer int, in Input, cands []portfolio.Candidate, folds Assignment) (*LayerResult, error) {
	if rows, _ := in.X.Dims(); rows != folds.Rows {
		return nil, errors.NewDimensionError("stack.BuildLayer", folds.Rows, rows, 0)
	}

	admitted, failures := b.admit(layer, cands)

	par := b.tracker.Parallelism()
	workers := par.CPUCores
	if workers < 1 {
		workers = 1
	}
	b.logger.Debug("building stack layer",
		applog.LayerKey, layer,
		applog.WorkersKey, workers,
		applog.SamplesKey, folds.Rows,
		applog.BudgetRemainingKey, b.tracker.Remaining().Seconds(),
	)

	// No two concurrent trainers share one GPU device.
	var gpuSem chan struct{}
	if n := par.NumGPUs(); n > 0 {
		gpuSem = make(chan struct{}, n)
	}

	trainCtx, cancel := b.tracker.Context(ctx)
	defer cancel()

	results := make([]candidateResult, len(admitted))
	g, gctx := errgroup.WithContext(trainCtx)
	g.SetLimit(workers)
	for i, cand := range admitted {
		g.Go(func() error {
			if b.tracker.Exhausted() {
				// Budget ran out while this candidate was queued. A
				// normal truncation, not a failure.
				results[i] = candidateResult{skipped: true}
				return nil
			}
			if cand.RequiresGPU && gpuSem != nil {
				gpuSem <- struct{}{}
				defer func() { <-gpuSem }()
			}
			fm, entry, err := b.trainCandidate(gctx, layer, in, cand, folds)
			results[i] = candidateResult{model: fm, entry: entry, err: err}
			return nil
		})
	}
	// Workers never return errors; recoverable failures travel in results.
	_ = g.Wait()

	// Single-writer accumulation: leaderboard appends and layer-output
	// assembly happen here only, in admission order, so the final state
	// is deterministic regardless of completion order.
	res := &LayerResult{Failures: failures}
	for i, r := range results {
		switch {
		case r.skipped:
			continue
		case r.err != nil:
			wrapped := errors.NewCandidateError(admitted[i].Name, layer, r.err)
			b.logger.Warn("candidate failed",
				applog.CandidateKey, admitted[i].Name,
				applog.LayerKey, layer,
				applog.ErrAttr(wrapped),
			)
			res.Failures = append(res.Failures, wrapped)
		default:
			b.board.Append(r.model, r.entry)
			res.Models = append(res.Models, r.model)
			b.logger.Info("candidate fitted",
				applog.CandidateKey, admitted[i].Name,
				applog.LayerKey, layer,
				applog.ScoreKey, r.entry.Score,
				applog.MetricKey, b.metric.Name,
				applog.DurationSecondsKey, r.entry.FitTime.Seconds(),
			)
		}
	}

	if len(res.Models) > 0 {
		res.Features = concatOOF(res.Models)
	}
	return res, nil
}

// admit applies the resource feasibility policy: candidates whose
// estimate exceeds the remaining budget are skipped individually, and
// admission stops entirely once the remaining budget drops below the
// configured minimum model cost. Foundation-model candidates fail fast
// here when their weight artifact cannot be resolved.
func (b *Builder) admit(layer int, cands []portfolio.Candidate) ([]portfolio.Candidate, []error) {
	var admitted []portfolio.Candidate
	var failures []error
	for _, cand := range cands {
		remaining := b.tracker.Remaining()
		if remaining < b.cfg.MinCandidateTime {
			b.logger.Info("budget below minimum model cost; admission stopped",
				applog.LayerKey, layer,
				applog.BudgetRemainingKey, remaining.Seconds(),
			)
			break
		}
		if cand.Estimate.Time > remaining {
			b.logger.Debug("candidate estimate exceeds remaining budget",
				applog.CandidateKey, cand.Name,
				applog.BudgetRemainingKey, remaining.Seconds(),
			)
			continue
		}
		if cand.RequiresPretrainedWeights {
			if err := b.resolveWeights(cand); err != nil {
				failures = append(failures, errors.NewCandidateError(cand.Name, layer, err))
				continue
			}
		}
		admitted = append(admitted, cand)
	}
	return admitted, failures
}

func (b *Builder) resolveWeights(cand portfolio.Candidate) error {
	if b.weights == nil {
		return errors.NewMissingWeightsError(cand.Family, cand.WeightsID, "no weights provider configured")
	}
	if _, err := b.weights.Fetch(cand.WeightsID); err != nil {
		return errors.Wrap(err, "fetching pretrained weights")
	}
	return nil
}

// trainCandidate runs the full K-fold (or repeated K-fold) training of
// one candidate: fit on each fold complement, predict the held-out fold,
// and assemble one out-of-fold matrix covering every training row exactly
// once per repeat. No row is ever scored by a model that saw it during
// training.
func (b *Builder) trainCandidate(ctx context.Context, layer int, in Input, cand portfolio.Candidate, folds Assignment) (fm *leaderboard.FittedModel, entry leaderboard.Entry, err error) {
	defer errors.Recover(&err, "stack.trainCandidate")

	family, err := b.registry.Get(cand.Family)
	if err != nil {
		return nil, entry, err
	}

	rows, _ := in.X.Dims()
	width := dataset.OutputWidth(in.Problem, in.Classes, len(b.cfg.QuantileLevels))
	oof := mat.NewDense(rows, width, nil)

	fitStart := time.Now()
	var predictTime time.Duration
	var foldModels []portfolio.Model

	for _, fold := range folds.Folds() {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, entry, errors.Wrap(ctxErr, "candidate cancelled")
		}

		trainX, trainY, trainW := subset(in.X, in.Y, in.Weights, fold.TrainIdx)
		model, fitErr := family.Fit(ctx, &portfolio.TrainData{
			X:              trainX,
			Y:              trainY,
			Weights:        trainW,
			Problem:        in.Problem,
			Classes:        in.Classes,
			QuantileLevels: b.cfg.QuantileLevels,
			Workers:        b.tracker.Parallelism().CPUCores,
			TimeLimit:      b.tracker.Remaining() + b.tracker.Grace(),
		}, cand.Params)
		if fitErr != nil {
			return nil, entry, fitErr
		}
		foldModels = append(foldModels, model)

		valX, _, _ := subset(in.X, in.Y, nil, fold.ValIdx)
		predStart := time.Now()
		pred, predErr := model.Predict(valX)
		if predErr != nil {
			return nil, entry, predErr
		}
		predictTime += time.Since(predStart)

		pr, pc := pred.Dims()
		if pr != len(fold.ValIdx) || pc != width {
			return nil, entry, errors.NewDimensionError(cand.Name+".Predict", len(fold.ValIdx)*width, pr*pc, 0)
		}
		for i, rowIdx := range fold.ValIdx {
			for j := 0; j < width; j++ {
				oof.Set(rowIdx, j, oof.At(rowIdx, j)+pred.At(i, j))
			}
		}
	}

	// Each row is held out exactly once per repeat; average the repeats.
	if folds.Repeats > 1 {
		oof.Scale(1/float64(folds.Repeats), oof)
	}
	if bad := findNonFinite(oof); bad != nil {
		return nil, entry, errors.NewNumericalInstabilityError(cand.Name+".OOF", bad)
	}

	var artifact portfolio.Model
	if b.cfg.RefitFull {
		artifact, err = family.Fit(ctx, &portfolio.TrainData{
			X:              in.X,
			Y:              in.Y,
			Weights:        in.Weights,
			Problem:        in.Problem,
			Classes:        in.Classes,
			QuantileLevels: b.cfg.QuantileLevels,
			Workers:        b.tracker.Parallelism().CPUCores,
			TimeLimit:      b.tracker.Remaining() + b.tracker.Grace(),
		}, cand.Params)
		if err != nil {
			return nil, entry, errors.Wrap(err, "full-data refit")
		}
	}

	score, err := b.metric.Score(in.Y, oof)
	if err != nil {
		return nil, entry, err
	}

	fm = &leaderboard.FittedModel{
		ID:         uuid.NewString(),
		Candidate:  cand,
		Layer:      layer,
		OOF:        oof,
		FoldModels: foldModels,
		Artifact:   artifact,
		Refit:      b.cfg.RefitFull,
	}
	entry = leaderboard.Entry{
		Name:        cand.Name,
		Family:      cand.Family,
		Layer:       layer,
		Score:       score,
		FitTime:     time.Since(fitStart),
		PredictTime: predictTime,
		MemoryMB:    cand.Estimate.MemoryMB,
	}
	return fm, entry, nil
}

// subset extracts the rows at the given indices.
func subset(X *mat.Dense, y *mat.VecDense, w []float64, indices []int) (*mat.Dense, *mat.VecDense, []float64) {
	_, cols := X.Dims()
	xs := mat.NewDense(len(indices), cols, nil)
	ys := mat.NewVecDense(len(indices), nil)
	var ws []float64
	if w != nil {
		ws = make([]float64, len(indices))
	}
	for i, idx := range indices {
		for j := 0; j < cols; j++ {
			xs.Set(i, j, X.At(idx, j))
		}
		ys.SetVec(i, y.AtVec(idx))
		if w != nil {
			ws[i] = w[idx]
		}
	}
	return xs, ys, ws
}

// concatOOF stacks the models' out-of-fold columns side by side in model
// order. The same layout is reproduced at inference time.
func concatOOF(models []*leaderboard.FittedModel) *mat.Dense {
	rows, _ := models[0].OOF.Dims()
	total := 0
	for _, m := range models {
		_, c := m.OOF.Dims()
		total += c
	}
	out := mat.NewDense(rows, total, nil)
	col := 0
	for _, m := range models {
		_, c := m.OOF.Dims()
		for j := 0; j < c; j++ {
			for i := 0; i < rows; i++ {
				out.Set(i, col, m.OOF.At(i, j))
			}
			col++
		}
	}
	return out
}

func findNonFinite(m *mat.Dense) []float64 {
	r, c := m.Dims()
	var bad []float64
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				bad = append(bad, v)
				if len(bad) >= 5 {
					return bad
				}
			}
		}
	}
	return bad
}
