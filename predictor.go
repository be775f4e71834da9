// Package autostack is a budget-constrained multi-layer stacked-ensemble
// engine for tabular supervised learning. Given a dataset, a label column
// and a time budget, it trains a portfolio of candidate models under
// k-fold cross-validation, stacks their out-of-fold predictions into
// additional layers, and combines the final layer with greedy forward
// selection into a single weighted predictor.
package autostack

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/autostack-ml/autostack/core/dataset"
	"github.com/autostack-ml/autostack/core/resource"
	"github.com/autostack-ml/autostack/ensemble"
	"github.com/autostack-ml/autostack/families"
	"github.com/autostack-ml/autostack/leaderboard"
	"github.com/autostack-ml/autostack/metrics"
	"github.com/autostack-ml/autostack/pkg/errors"
	applog "github.com/autostack-ml/autostack/pkg/log"
	"github.com/autostack-ml/autostack/portfolio"
	"github.com/autostack-ml/autostack/stack"
	"github.com/autostack-ml/autostack/storage"
)

// FitOptions parameterizes one fit call.
type FitOptions struct {
	// Label names the target column in the dataset. Required.
	Label string

	// Problem is the problem-type hint; dataset.Auto detects it from the
	// labels.
	Problem dataset.ProblemType

	// Budget is the wall-clock training budget. Required and positive.
	Budget time.Duration

	// Preset names the quality/speed tradeoff; empty means good quality.
	Preset string

	// Weights resolves pretrained artifacts for foundation-model
	// candidates. Optional; without it those candidates are skipped.
	Weights portfolio.WeightsProvider

	// Registry overrides the built-in model families. Optional.
	Registry *portfolio.Registry

	// Parallelism overrides hardware detection. Used by tests and by
	// callers that probe capacity themselves.
	Parallelism *resource.Parallelism
}

// TabularPredictor is the training entry point and the resulting
// predictor handle. Zero value is not usable; construct with
// NewTabularPredictor.
type TabularPredictor struct {
	cfg    Config
	logger *slog.Logger

	fitted     bool
	runID      string
	label      string
	problem    dataset.ProblemType
	classes    int
	features   int
	metric     metrics.Metric
	board      *leaderboard.Board
	selection  ensemble.Selection
	finalLayer int
	notes      []string
}

// NewTabularPredictor creates a predictor with the given engine config.
// A nil-safe default logger is used unless SetLogger is called.
func NewTabularPredictor(cfg Config) *TabularPredictor {
	return &TabularPredictor{cfg: cfg, logger: slog.Default()}
}

// SetLogger replaces the engine logger.
func (p *TabularPredictor) SetLogger(l *slog.Logger) {
	if l != nil {
		p.logger = l
	}
}

// Fit trains the stacked ensemble. Fatal configuration errors (nil or
// empty dataset, missing label, non-positive budget, invalid problem
// type) are returned immediately, before any resource is allocated.
// Candidate and layer failures are absorbed; only total failure (zero
// models fit across all layers) surfaces, as an aggregated report.
func (p *TabularPredictor) Fit(ctx context.Context, ds *dataset.Dataset, opts FitOptions) error {
	if err := p.cfg.validate(); err != nil {
		return err
	}
	if ds == nil || ds.NumRows() == 0 {
		return errors.NewValidationError("dataset", "must not be nil or empty", ds)
	}
	if opts.Label == "" {
		return errors.NewValidationError("label", "must not be empty", opts.Label)
	}
	if opts.Budget <= 0 {
		return errors.NewValidationError("budget", "must be positive", opts.Budget)
	}
	if !opts.Problem.Valid() {
		return errors.NewValidationError("problem", "unknown problem type", opts.Problem)
	}
	preset, err := portfolio.ParsePreset(opts.Preset)
	if err != nil {
		return err
	}

	X, y, err := ds.SplitLabel(opts.Label)
	if err != nil {
		return err
	}
	problem := opts.Problem
	if problem == dataset.Auto {
		problem = dataset.DetectProblemType(y)
	}
	classes := 0
	if problem.IsClassification() {
		classes = dataset.NumClasses(y)
		if problem == dataset.Binary && classes > 2 {
			return errors.NewValidationError("problem", "more than two classes for a binary problem", classes)
		}
	}
	if problem == dataset.Quantile && len(p.cfg.QuantileLevels) == 0 {
		return errors.NewValidationError("quantile_levels", "quantile problems need at least one level", p.cfg.QuantileLevels)
	}
	metric := defaultMetric(problem, p.cfg.QuantileLevels)

	runID := uuid.NewString()
	logger := p.logger.With(
		applog.RunIDKey, runID,
		applog.PresetKey, string(preset),
	)
	rows, features := X.Dims()
	logger.Info("fit started",
		applog.OperationKey, "fit",
		applog.SamplesKey, rows,
		applog.FeaturesKey, features,
		applog.MetricKey, metric.Name,
	)

	// Capacity is probed once here and cached for the whole fit.
	var tracker *resource.Tracker
	if opts.Parallelism != nil {
		tracker = resource.NewTrackerWithParallelism(opts.Budget, p.cfg.GracePeriod, *opts.Parallelism)
	} else {
		tracker = resource.NewTracker(opts.Budget, p.cfg.GracePeriod)
	}

	registry := opts.Registry
	if registry == nil {
		registry = families.NewRegistry(opts.Weights)
	}
	cands, notes := portfolio.Build(registry, portfolio.Spec{
		Problem:  problem,
		Rows:     rows,
		Features: features,
		Classes:  classes,
		Preset:   preset,
		GPUs:     tracker.Parallelism().NumGPUs(),
	})
	for _, note := range notes {
		logger.Info(note)
	}
	if len(cands) == 0 {
		return errors.NewFitFailedError([]error{errors.New("portfolio produced no eligible candidates")})
	}

	folds, err := p.buildFolds(y, rows, problem)
	if err != nil {
		return err
	}

	board := leaderboard.NewBoard(metric)
	builder := stack.NewBuilder(stack.Config{
		RefitFull:        p.cfg.RefitFull,
		MinCandidateTime: p.cfg.MinCandidateTime,
		QuantileLevels:   p.cfg.QuantileLevels,
	}, tracker, registry, board, opts.Weights, logger)
	stacker := stack.NewStacker(builder, p.cfg.MaxLayers, logger)

	in := stack.Input{X: X, Y: y, Weights: ds.Weights(), Problem: problem, Classes: classes}
	result, err := stacker.Build(ctx, in, cands, folds)
	if err != nil {
		return err
	}
	if result.FinalLayer < 0 || board.Len() == 0 {
		return errors.NewFitFailedError(result.Failures)
	}

	members, err := layerMembers(board, result.FinalLayer)
	if err != nil {
		return err
	}
	sel, err := ensemble.Select(members, y, metric, ensemble.Config{
		Rounds:    p.cfg.SelectionRounds,
		Tolerance: p.cfg.SelectionTolerance,
	})
	if err != nil {
		return err
	}

	p.fitted = true
	p.runID = runID
	p.label = opts.Label
	p.problem = problem
	p.classes = classes
	p.features = features
	p.metric = metric
	p.board = board
	p.selection = sel
	p.finalLayer = result.FinalLayer
	p.notes = notes

	logger.Info("fit finished",
		applog.OperationKey, "fit",
		applog.LayerKey, result.FinalLayer,
		applog.ScoreKey, sel.Score,
		applog.BudgetRemainingKey, tracker.Remaining().Seconds(),
	)
	return nil
}

// buildFolds derives the shared fold assignment: stratified for
// classification, plain shuffled k-fold otherwise. The fold count is
// clamped so tiny datasets still fit.
func (p *TabularPredictor) buildFolds(y *mat.VecDense, rows int, problem dataset.ProblemType) (stack.Assignment, error) {
	k := p.cfg.Folds
	if k > rows {
		k = rows
	}
	if problem.IsClassification() {
		return stack.NewStratifiedKFold(y, k, p.cfg.Repeats, p.cfg.Seed)
	}
	return stack.NewKFold(rows, k, p.cfg.Repeats, p.cfg.Seed)
}

func layerMembers(board *leaderboard.Board, layer int) ([]ensemble.Member, error) {
	ids := board.LayerModels(layer)
	members := make([]ensemble.Member, 0, len(ids))
	for _, id := range ids {
		fm, err := board.Model(id)
		if err != nil {
			return nil, err
		}
		entry, err := board.EntryFor(id)
		if err != nil {
			return nil, err
		}
		members = append(members, ensemble.Member{
			ID:      id,
			OOF:     fm.OOF,
			FitTime: entry.FitTime,
			Seq:     entry.Seq,
		})
	}
	return members, nil
}

func defaultMetric(problem dataset.ProblemType, quantiles []float64) metrics.Metric {
	switch problem {
	case dataset.Binary, dataset.Multiclass:
		return metrics.LogLossMetric()
	case dataset.Quantile:
		return metrics.PinballMetric(quantiles)
	default:
		return metrics.RMSEMetric()
	}
}

// combine runs the stacked inference pipeline and returns the ensemble's
// raw prediction matrix. Layers below the final one run every model they
// hold, because their out-of-fold columns are input features for the next
// layer; the final layer runs only the ensemble's support set.
func (p *TabularPredictor) combine(ds *dataset.Dataset) (*mat.Dense, error) {
	if !p.fitted {
		return nil, errors.NewNotFittedError("TabularPredictor", "Predict")
	}
	X, err := p.inferenceFeatures(ds)
	if err != nil {
		return nil, err
	}

	input := X
	for layer := 0; layer < p.finalLayer; layer++ {
		var cols *mat.Dense
		for _, id := range p.board.LayerModels(layer) {
			fm, err := p.board.Model(id)
			if err != nil {
				return nil, err
			}
			pred, err := fm.PredictAvg(input)
			if err != nil {
				return nil, err
			}
			if cols == nil {
				cols = pred
			} else {
				cols = hstackDense(cols, pred)
			}
		}
		input = hstackDense(X, cols)
	}

	var combined *mat.Dense
	for _, id := range p.board.LayerModels(p.finalLayer) {
		w := p.selection.Weights[id]
		if w == 0 {
			continue
		}
		fm, err := p.board.Model(id)
		if err != nil {
			return nil, err
		}
		pred, err := fm.PredictAvg(input)
		if err != nil {
			return nil, err
		}
		pred.Scale(w, pred)
		if combined == nil {
			combined = pred
		} else {
			combined.Add(combined, pred)
		}
	}
	if combined == nil {
		return nil, errors.New("autostack: empty ensemble support set")
	}
	return combined, nil
}

func (p *TabularPredictor) inferenceFeatures(ds *dataset.Dataset) (*mat.Dense, error) {
	if ds == nil || ds.NumRows() == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "autostack.Predict")
	}
	var X *mat.Dense
	if ds.HasColumn(p.label) {
		var err error
		X, _, err = ds.SplitLabel(p.label)
		if err != nil {
			return nil, err
		}
	} else {
		X = ds.Features()
	}
	if _, c := X.Dims(); c != p.features {
		return nil, errors.NewDimensionError("autostack.Predict", p.features, c, 1)
	}
	return X, nil
}

// Predict returns point predictions: the regression value, the predicted
// class label, or the median-level quantile forecast.
func (p *TabularPredictor) Predict(ds *dataset.Dataset) (*mat.VecDense, error) {
	combined, err := p.combine(ds)
	if err != nil {
		return nil, err
	}
	rows, cols := combined.Dims()
	out := mat.NewVecDense(rows, nil)
	switch p.problem {
	case dataset.Binary:
		for i := 0; i < rows; i++ {
			if combined.At(i, 0) > 0.5 {
				out.SetVec(i, 1)
			}
		}
	case dataset.Multiclass:
		for i := 0; i < rows; i++ {
			best, arg := combined.At(i, 0), 0
			for j := 1; j < cols; j++ {
				if combined.At(i, j) > best {
					best, arg = combined.At(i, j), j
				}
			}
			out.SetVec(i, float64(arg))
		}
	case dataset.Quantile:
		j := medianLevelIndex(p.cfg.QuantileLevels)
		for i := 0; i < rows; i++ {
			out.SetVec(i, combined.At(i, j))
		}
	default:
		for i := 0; i < rows; i++ {
			out.SetVec(i, combined.At(i, 0))
		}
	}
	return out, nil
}

// PredictProba returns class probabilities for classification problems.
// Binary predictions expand into two columns, [P(0), P(1)].
func (p *TabularPredictor) PredictProba(ds *dataset.Dataset) (*mat.Dense, error) {
	if p.fitted && !p.problem.IsClassification() {
		return nil, errors.NewValueError("PredictProba", "only defined for classification problems")
	}
	combined, err := p.combine(ds)
	if err != nil {
		return nil, err
	}
	rows, cols := combined.Dims()
	if cols == 1 {
		out := mat.NewDense(rows, 2, nil)
		for i := 0; i < rows; i++ {
			pPos := clamp01(combined.At(i, 0))
			out.Set(i, 0, 1-pPos)
			out.Set(i, 1, pPos)
		}
		return out, nil
	}
	return combined, nil
}

// PredictQuantiles returns the full quantile forecast matrix, one column
// per configured level.
func (p *TabularPredictor) PredictQuantiles(ds *dataset.Dataset) (*mat.Dense, error) {
	if p.fitted && p.problem != dataset.Quantile {
		return nil, errors.NewValueError("PredictQuantiles", "only defined for quantile problems")
	}
	return p.combine(ds)
}

// Leaderboard exposes the append-only model registry for this fit.
func (p *TabularPredictor) Leaderboard() *leaderboard.Board {
	return p.board
}

// EnsembleWeights returns a copy of the final ensemble weights. Weights
// are non-negative and sum to 1.
func (p *TabularPredictor) EnsembleWeights() map[string]float64 {
	out := make(map[string]float64, len(p.selection.Weights))
	for id, w := range p.selection.Weights {
		out[id] = w
	}
	return out
}

// Score returns the ensemble's validation score under the fit metric.
func (p *TabularPredictor) Score() float64 {
	return p.selection.Score
}

// FinalLayer returns the stack layer the ensemble selects from.
func (p *TabularPredictor) FinalLayer() int {
	return p.finalLayer
}

// Notes returns the whole-group portfolio exclusions recorded during fit
// (GPU gating, preset fallback).
func (p *TabularPredictor) Notes() []string {
	return append([]string(nil), p.notes...)
}

// SupportModels resolves the minimal model set needed to reproduce the
// ensemble at inference time, including ancestor layers.
func (p *TabularPredictor) SupportModels() ([]string, error) {
	if !p.fitted {
		return nil, errors.NewNotFittedError("TabularPredictor", "SupportModels")
	}
	var support []string
	for _, id := range p.board.LayerModels(p.finalLayer) {
		if p.selection.Weights[id] > 0 {
			support = append(support, id)
		}
	}
	return p.board.ResolveSupport(support)
}

// PersistArtifacts hands every model in the ensemble's support closure to
// the artifact store and records the returned references on the fitted
// models. The engine never defines the on-disk format.
func (p *TabularPredictor) PersistArtifacts(store storage.ArtifactStore) error {
	ids, err := p.SupportModels()
	if err != nil {
		return err
	}
	for _, id := range ids {
		fm, err := p.board.Model(id)
		if err != nil {
			return err
		}
		var artifact interface{}
		if fm.Refit && fm.Artifact != nil {
			artifact = fm.Artifact
		} else {
			artifact = fm.FoldModels
		}
		ref, err := store.Put(id, artifact)
		if err != nil {
			return errors.Wrapf(err, "persisting model %s", id)
		}
		fm.StoreRef = ref
	}
	return nil
}

// SaveSnapshot persists the leaderboard snapshot (entries, layer arena,
// artifact references) to a file.
func (p *TabularPredictor) SaveSnapshot(path string) error {
	if !p.fitted {
		return errors.NewNotFittedError("TabularPredictor", "SaveSnapshot")
	}
	return leaderboard.SaveSnapshot(path, p.board.Snapshot())
}

func hstackDense(a, b *mat.Dense) *mat.Dense {
	ra, ca := a.Dims()
	_, cb := b.Dims()
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

func medianLevelIndex(levels []float64) int {
	best, arg := math.Inf(1), 0
	for i, q := range levels {
		if d := math.Abs(q - 0.5); d < best {
			best, arg = d, i
		}
	}
	return arg
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
