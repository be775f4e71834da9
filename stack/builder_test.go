package stack

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/autostack-ml/autostack/core/dataset"
	"github.com/autostack-ml/autostack/core/resource"
	"github.com/autostack-ml/autostack/leaderboard"
	"github.com/autostack-ml/autostack/metrics"
	"github.com/autostack-ml/autostack/pkg/errors"
	"github.com/autostack-ml/autostack/portfolio"
)

// meanModel predicts the training-set mean for every row.
type meanModel struct {
	value float64
}

func (m meanModel) Predict(X mat.Matrix) (*mat.Dense, error) {
	r, _ := X.Dims()
	out := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		out.Set(i, 0, m.value)
	}
	return out, nil
}

// meanFamily fits meanModel. fitErr, when set, makes every fit fail.
type meanFamily struct {
	name   string
	fitErr error
	fits   int
}

func (f *meanFamily) Name() string { return f.name }

func (f *meanFamily) Capabilities() portfolio.Capabilities {
	return portfolio.Capabilities{Problems: []dataset.ProblemType{dataset.Regression}}
}

func (f *meanFamily) Estimate(rows, features int, params portfolio.Hyperparams) portfolio.ResourceEstimate {
	return portfolio.ResourceEstimate{Time: time.Millisecond, MemoryMB: 1}
}

func (f *meanFamily) Fit(ctx context.Context, data *portfolio.TrainData, params portfolio.Hyperparams) (portfolio.Model, error) {
	f.fits++
	if f.fitErr != nil {
		return nil, f.fitErr
	}
	sum := 0.0
	for i := 0; i < data.Y.Len(); i++ {
		sum += data.Y.AtVec(i)
	}
	return meanModel{value: sum / float64(data.Y.Len())}, nil
}

func testInput(t *testing.T, rows int) Input {
	t.Helper()
	xs := make([]float64, rows)
	ys := make([]float64, rows)
	for i := range xs {
		xs[i] = float64(i)
		ys[i] = float64(i) * 2
	}
	return Input{
		X:       mat.NewDense(rows, 1, xs),
		Y:       mat.NewVecDense(rows, ys),
		Problem: dataset.Regression,
	}
}

func testBuilder(t *testing.T, reg *portfolio.Registry, budget time.Duration, weights portfolio.WeightsProvider) (*Builder, *leaderboard.Board) {
	t.Helper()
	board := leaderboard.NewBoard(metrics.RMSEMetric())
	tracker := resource.NewTrackerWithParallelism(budget, time.Second, resource.Parallelism{CPUCores: 2})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := NewBuilder(Config{MinCandidateTime: time.Millisecond}, tracker, reg, board, weights, logger)
	return b, board
}

func TestBuildLayerProducesOOF(t *testing.T) {
	reg := portfolio.NewRegistry()
	fam := &meanFamily{name: "mean"}
	if err := reg.Register(fam); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	b, board := testBuilder(t, reg, time.Minute, nil)

	in := testInput(t, 10)
	folds, err := NewKFold(10, 5, 1, 42)
	if err != nil {
		t.Fatalf("NewKFold() error = %v", err)
	}
	cands := []portfolio.Candidate{{
		Name:     "mean_default",
		Family:   "mean",
		Estimate: portfolio.ResourceEstimate{Time: time.Millisecond},
	}}

	res, err := b.BuildLayer(context.Background(), 0, in, cands, folds)
	if err != nil {
		t.Fatalf("BuildLayer() error = %v", err)
	}
	if len(res.Models) != 1 {
		t.Fatalf("fitted models = %d, want 1", len(res.Models))
	}
	if fam.fits != 5 {
		t.Errorf("fit calls = %d, want one per fold", fam.fits)
	}
	if board.Len() != 1 {
		t.Errorf("leaderboard entries = %d, want 1", board.Len())
	}

	// Every out-of-fold value must come from a model that never saw the
	// row: the holdout mean of y=2i differs from the global mean.
	oof := res.Models[0].OOF
	r, c := oof.Dims()
	if r != 10 || c != 1 {
		t.Fatalf("OOF dims = %dx%d, want 10x1", r, c)
	}
	if fr, fc := res.Features.Dims(); fr != 10 || fc != 1 {
		t.Errorf("Features dims = %dx%d, want 10x1", fr, fc)
	}
}

func TestBuildLayerAbsorbsCandidateFailure(t *testing.T) {
	reg := portfolio.NewRegistry()
	if err := reg.Register(&meanFamily{name: "mean"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := reg.Register(&meanFamily{name: "broken", fitErr: errors.New("singular matrix")}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	b, board := testBuilder(t, reg, time.Minute, nil)

	in := testInput(t, 8)
	folds, err := NewKFold(8, 4, 1, 1)
	if err != nil {
		t.Fatalf("NewKFold() error = %v", err)
	}
	cands := []portfolio.Candidate{
		{Name: "broken_default", Family: "broken", Estimate: portfolio.ResourceEstimate{Time: time.Millisecond}},
		{Name: "mean_default", Family: "mean", Estimate: portfolio.ResourceEstimate{Time: time.Millisecond}},
	}

	res, err := b.BuildLayer(context.Background(), 0, in, cands, folds)
	if err != nil {
		t.Fatalf("BuildLayer() error = %v", err)
	}
	if len(res.Models) != 1 {
		t.Fatalf("fitted models = %d, want the healthy sibling to survive", len(res.Models))
	}
	if len(res.Failures) != 1 {
		t.Fatalf("failures = %d, want 1", len(res.Failures))
	}
	var cErr *errors.CandidateError
	if !errors.As(res.Failures[0], &cErr) {
		t.Fatalf("failure type = %T, want *CandidateError", res.Failures[0])
	}
	if cErr.Family != "broken_default" && cErr.Family != "broken" {
		t.Errorf("failure names %q, want the broken candidate", cErr.Family)
	}
	if board.Len() != 1 {
		t.Errorf("leaderboard entries = %d, want only the success", board.Len())
	}
}

func TestBuildLayerBudgetExhausted(t *testing.T) {
	reg := portfolio.NewRegistry()
	fam := &meanFamily{name: "mean"}
	if err := reg.Register(fam); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	b, board := testBuilder(t, reg, 0, nil)

	in := testInput(t, 8)
	folds, err := NewKFold(8, 4, 1, 1)
	if err != nil {
		t.Fatalf("NewKFold() error = %v", err)
	}
	cands := []portfolio.Candidate{{
		Name:     "mean_default",
		Family:   "mean",
		Estimate: portfolio.ResourceEstimate{Time: time.Millisecond},
	}}

	res, err := b.BuildLayer(context.Background(), 0, in, cands, folds)
	if err != nil {
		t.Fatalf("BuildLayer() error = %v", err)
	}
	// Truncation, not failure: nothing fitted, nothing reported broken.
	if len(res.Models) != 0 || len(res.Failures) != 0 {
		t.Errorf("models = %d failures = %d, want 0/0 on an exhausted budget",
			len(res.Models), len(res.Failures))
	}
	if fam.fits != 0 {
		t.Errorf("fit calls = %d, want 0", fam.fits)
	}
	if board.Len() != 0 {
		t.Errorf("leaderboard entries = %d, want 0", board.Len())
	}
}

func TestBuildLayerSkipsInfeasibleEstimate(t *testing.T) {
	reg := portfolio.NewRegistry()
	fam := &meanFamily{name: "mean"}
	if err := reg.Register(fam); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	b, _ := testBuilder(t, reg, 100*time.Millisecond, nil)

	in := testInput(t, 8)
	folds, err := NewKFold(8, 4, 1, 1)
	if err != nil {
		t.Fatalf("NewKFold() error = %v", err)
	}
	cands := []portfolio.Candidate{
		{Name: "too_big", Family: "mean", Estimate: portfolio.ResourceEstimate{Time: time.Hour}},
		{Name: "fits", Family: "mean", Estimate: portfolio.ResourceEstimate{Time: time.Millisecond}},
	}

	res, err := b.BuildLayer(context.Background(), 0, in, cands, folds)
	if err != nil {
		t.Fatalf("BuildLayer() error = %v", err)
	}
	if len(res.Models) != 1 {
		t.Fatalf("fitted models = %d, want the feasible candidate only", len(res.Models))
	}
	if res.Models[0].Candidate.Name != "fits" {
		t.Errorf("fitted %q, want the feasible candidate", res.Models[0].Candidate.Name)
	}
	if len(res.Failures) != 0 {
		t.Errorf("failures = %d, want 0: an infeasible estimate is a skip", len(res.Failures))
	}
}

type failingWeights struct{}

func (failingWeights) Fetch(modelID string) (string, error) {
	return "", errors.Newf("artifact %q not cached", modelID)
}

func TestBuildLayerMissingWeightsFailFast(t *testing.T) {
	reg := portfolio.NewRegistry()
	if err := reg.Register(&meanFamily{name: "fm"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	b, _ := testBuilder(t, reg, time.Minute, failingWeights{})

	in := testInput(t, 8)
	folds, err := NewKFold(8, 4, 1, 1)
	if err != nil {
		t.Fatalf("NewKFold() error = %v", err)
	}
	cands := []portfolio.Candidate{{
		Name:                      "fm_base",
		Family:                    "fm",
		Estimate:                  portfolio.ResourceEstimate{Time: time.Millisecond},
		RequiresPretrainedWeights: true,
		WeightsID:                 "fm-v1",
	}}

	res, err := b.BuildLayer(context.Background(), 0, in, cands, folds)
	if err != nil {
		t.Fatalf("BuildLayer() error = %v", err)
	}
	if len(res.Models) != 0 {
		t.Fatalf("fitted models = %d, want 0", len(res.Models))
	}
	if len(res.Failures) != 1 {
		t.Fatalf("failures = %d, want the weight-resolution failure", len(res.Failures))
	}
}

func TestBuildLayerRepeatedFolds(t *testing.T) {
	reg := portfolio.NewRegistry()
	fam := &meanFamily{name: "mean"}
	if err := reg.Register(fam); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	b, _ := testBuilder(t, reg, time.Minute, nil)

	in := testInput(t, 12)
	folds, err := NewKFold(12, 3, 2, 42)
	if err != nil {
		t.Fatalf("NewKFold() error = %v", err)
	}
	cands := []portfolio.Candidate{{
		Name:     "mean_default",
		Family:   "mean",
		Estimate: portfolio.ResourceEstimate{Time: time.Millisecond},
	}}

	res, err := b.BuildLayer(context.Background(), 0, in, cands, folds)
	if err != nil {
		t.Fatalf("BuildLayer() error = %v", err)
	}
	if len(res.Models) != 1 {
		t.Fatalf("fitted models = %d, want 1", len(res.Models))
	}
	if fam.fits != 6 {
		t.Errorf("fit calls = %d, want one per fold per repeat", fam.fits)
	}
}
