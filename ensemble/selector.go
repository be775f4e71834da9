// Package ensemble implements greedy forward selection with replacement
// over out-of-fold predictions. Selection is fully deterministic given
// the same members and loss function: candidates are scored in
// leaderboard order and ties break on cheaper fit time, then earlier
// insertion.
package ensemble

import (
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/autostack-ml/autostack/metrics"
	"github.com/autostack-ml/autostack/pkg/errors"
)

// Member is one selectable model: its out-of-fold predictions and the
// tie-breaking attributes from its leaderboard entry.
type Member struct {
	ID      string
	OOF     *mat.Dense
	FitTime time.Duration
	Seq     int
}

// Config controls the selection loop. Both knobs are policy choices, so
// they are configuration rather than constants: Rounds bounds the number
// of additions, Tolerance is the minimum improvement that keeps the loop
// going.
type Config struct {
	Rounds    int
	Tolerance float64
}

// Selection is the finished ensemble: per-model weights that are
// non-negative and sum to 1, the selection counts they were normalized
// from, and the achieved validation score. A single dominant model is a
// valid (degenerate) ensemble.
type Selection struct {
	Weights map[string]float64
	Counts  map[string]int
	Score   float64
	Rounds  int
}

// Support returns the ids with non-zero weight, in member order.
func (s Selection) Support(members []Member) []string {
	var ids []string
	for _, m := range members {
		if s.Weights[m.ID] > 0 {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

// Select runs greedy forward selection with replacement. Each round every
// member (including already-selected ones) is tried as an addition to the
// current multiset; the addition with the best resulting score wins.
// Selection stops after cfg.Rounds rounds or as soon as no addition
// improves the score by more than cfg.Tolerance.
func Select(members []Member, yTrue *mat.VecDense, metric metrics.Metric, cfg Config) (Selection, error) {
	if len(members) == 0 {
		return Selection{}, errors.NewValueError("ensemble.Select", "no members to select from")
	}
	if cfg.Rounds < 1 {
		return Selection{}, errors.NewValidationError("rounds", "must be at least 1", cfg.Rounds)
	}
	rows, cols := members[0].OOF.Dims()
	if yTrue.Len() != rows {
		return Selection{}, errors.NewDimensionError("ensemble.Select", yTrue.Len(), rows, 0)
	}
	for _, m := range members[1:] {
		r, c := m.OOF.Dims()
		if r != rows || c != cols {
			return Selection{}, errors.NewDimensionError("ensemble.Select", rows*cols, r*c, 0)
		}
	}

	counts := make(map[string]int, len(members))
	sum := mat.NewDense(rows, cols, nil)
	avg := mat.NewDense(rows, cols, nil)
	selected := 0
	currentScore := metric.Worst()

	for round := 0; round < cfg.Rounds; round++ {
		bestIdx := -1
		bestScore := metric.Worst()

		for i, m := range members {
			avg.Add(sum, m.OOF)
			avg.Scale(1/float64(selected+1), avg)
			score, err := metric.Score(yTrue, avg)
			if err != nil {
				return Selection{}, errors.Wrapf(err, "scoring member %s", m.ID)
			}
			if bestIdx < 0 || metric.Better(score, bestScore) || (score == bestScore && cheaper(m, members[bestIdx])) {
				bestIdx = i
				bestScore = score
			}
		}

		if selected > 0 && metric.Improvement(bestScore, currentScore) <= cfg.Tolerance {
			break
		}

		m := members[bestIdx]
		counts[m.ID]++
		sum.Add(sum, m.OOF)
		selected++
		currentScore = bestScore
	}

	weights := make(map[string]float64, len(counts))
	for id, c := range counts {
		weights[id] = float64(c) / float64(selected)
	}
	return Selection{
		Weights: weights,
		Counts:  counts,
		Score:   currentScore,
		Rounds:  selected,
	}, nil
}

// cheaper is the deterministic tie-break: lower fit time first, then
// earlier leaderboard insertion.
func cheaper(a, b Member) bool {
	if a.FitTime != b.FitTime {
		return a.FitTime < b.FitTime
	}
	return a.Seq < b.Seq
}
