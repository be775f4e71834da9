package stack

import (
	"context"
	"testing"
	"time"

	"github.com/autostack-ml/autostack/pkg/errors"
	"github.com/autostack-ml/autostack/portfolio"
)

func TestStackerBuildsMultipleLayers(t *testing.T) {
	reg := portfolio.NewRegistry()
	fam := &meanFamily{name: "mean"}
	if err := reg.Register(fam); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	b, board := testBuilder(t, reg, time.Minute, nil)
	s := NewStacker(b, 2, nil)

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

	res, err := s.Build(context.Background(), in, cands, folds)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if res.FinalLayer < 0 {
		t.Fatal("no layer accepted")
	}
	if res.FinalLayer >= 2 {
		t.Fatalf("FinalLayer = %d, want below the max of 2", res.FinalLayer)
	}
	if board.NumLayers() < 1 {
		t.Errorf("NumLayers() = %d", board.NumLayers())
	}
	// A later layer must never rank worse than the accepted stack: the
	// halt rule falls back before that happens.
	for layer := 1; layer <= res.FinalLayer; layer++ {
		curr, ok := board.BestScore(layer)
		if !ok {
			t.Fatalf("no entries for accepted layer %d", layer)
		}
		prev, _ := board.BestScore(layer - 1)
		if board.Metric().Improvement(curr, prev) < 0 {
			t.Errorf("layer %d best %v is worse than layer %d best %v", layer, curr, layer-1, prev)
		}
	}
}

func TestStackerTotalFailure(t *testing.T) {
	reg := portfolio.NewRegistry()
	if err := reg.Register(&meanFamily{name: "broken", fitErr: errors.New("always fails")}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	b, _ := testBuilder(t, reg, time.Minute, nil)
	s := NewStacker(b, 2, nil)

	in := testInput(t, 10)
	folds, err := NewKFold(10, 5, 1, 42)
	if err != nil {
		t.Fatalf("NewKFold() error = %v", err)
	}
	cands := []portfolio.Candidate{{
		Name:     "broken_default",
		Family:   "broken",
		Estimate: portfolio.ResourceEstimate{Time: time.Millisecond},
	}}

	res, err := s.Build(context.Background(), in, cands, folds)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if res.FinalLayer != -1 {
		t.Errorf("FinalLayer = %d, want -1 when every candidate failed", res.FinalLayer)
	}
	if len(res.Failures) == 0 {
		t.Error("Failures empty; every candidate failure must be reported")
	}
}

func TestStackerExhaustedBudget(t *testing.T) {
	reg := portfolio.NewRegistry()
	if err := reg.Register(&meanFamily{name: "mean"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	b, _ := testBuilder(t, reg, 0, nil)
	s := NewStacker(b, 2, nil)

	in := testInput(t, 10)
	folds, err := NewKFold(10, 5, 1, 42)
	if err != nil {
		t.Fatalf("NewKFold() error = %v", err)
	}

	res, err := s.Build(context.Background(), in, []portfolio.Candidate{{
		Name:     "mean_default",
		Family:   "mean",
		Estimate: portfolio.ResourceEstimate{Time: time.Millisecond},
	}}, folds)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if res.FinalLayer != -1 || len(res.Failures) != 0 {
		t.Errorf("FinalLayer = %d failures = %d, want -1/0 on an exhausted budget",
			res.FinalLayer, len(res.Failures))
	}
}
