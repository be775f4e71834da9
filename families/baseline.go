package families

import (
	"context"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/autostack-ml/autostack/core/dataset"
	"github.com/autostack-ml/autostack/pkg/errors"
	"github.com/autostack-ml/autostack/portfolio"
)

// baselineFamily predicts label statistics with no use of the features:
// the weighted mean for regression, class priors for classification and
// empirical quantiles for quantile problems. It anchors the leaderboard
// and gives the ensemble selector a cheap fallback member.
type baselineFamily struct{}

func (f *baselineFamily) Name() string { return "baseline" }

func (f *baselineFamily) Capabilities() portfolio.Capabilities {
	return portfolio.Capabilities{
		Problems: []dataset.ProblemType{dataset.Binary, dataset.Multiclass, dataset.Regression, dataset.Quantile},
	}
}

func (f *baselineFamily) Estimate(rows, features int, _ portfolio.Hyperparams) portfolio.ResourceEstimate {
	return portfolio.ResourceEstimate{
		Time:     time.Millisecond * time.Duration(1+rows/100000),
		MemoryMB: 1,
	}
}

func (f *baselineFamily) Fit(_ context.Context, data *portfolio.TrainData, _ portfolio.Hyperparams) (portfolio.Model, error) {
	n := data.Y.Len()
	if n == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "baseline.Fit")
	}

	switch data.Problem {
	case dataset.Regression:
		return &baselineModel{Values: []float64{weightedMean(data.Y, data.Weights)}}, nil

	case dataset.Binary, dataset.Multiclass:
		width := dataset.OutputWidth(data.Problem, data.Classes, 0)
		priors := make([]float64, maxInt(width, data.Classes))
		total := 0.0
		for i := 0; i < n; i++ {
			w := 1.0
			if data.Weights != nil {
				w = data.Weights[i]
			}
			priors[int(data.Y.AtVec(i))] += w
			total += w
		}
		for i := range priors {
			priors[i] /= total
		}
		if width == 1 {
			// Binary: single positive-class probability column.
			return &baselineModel{Values: priors[1:2]}, nil
		}
		return &baselineModel{Values: priors[:width]}, nil

	case dataset.Quantile:
		values := make([]float64, len(data.QuantileLevels))
		sorted := make([]float64, n)
		for i := 0; i < n; i++ {
			sorted[i] = data.Y.AtVec(i)
		}
		sort.Float64s(sorted)
		for j, q := range data.QuantileLevels {
			values[j] = empiricalQuantile(sorted, q)
		}
		return &baselineModel{Values: values}, nil

	default:
		return nil, errors.NewValidationError("problem", "unsupported problem type", data.Problem)
	}
}

// baselineModel emits the same row of constants for every input row.
type baselineModel struct {
	Values []float64
}

func (m *baselineModel) Predict(X mat.Matrix) (*mat.Dense, error) {
	rows, _ := X.Dims()
	out := mat.NewDense(rows, len(m.Values), nil)
	for i := 0; i < rows; i++ {
		for j, v := range m.Values {
			out.Set(i, j, v)
		}
	}
	return out, nil
}

func weightedMean(y *mat.VecDense, w []float64) float64 {
	var sum, total float64
	for i := 0; i < y.Len(); i++ {
		wi := 1.0
		if w != nil {
			wi = w[i]
		}
		sum += wi * y.AtVec(i)
		total += wi
	}
	if total == 0 {
		return 0
	}
	return sum / total
}

// empiricalQuantile interpolates linearly between order statistics.
func empiricalQuantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	pos := q * float64(n-1)
	lo := int(pos)
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[lo+1]*frac
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
