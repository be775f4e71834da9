package families

import (
	"context"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/autostack-ml/autostack/core/dataset"
	"github.com/autostack-ml/autostack/core/parallel"
	"github.com/autostack-ml/autostack/pkg/errors"
	"github.com/autostack-ml/autostack/portfolio"
)

// knnFamily is brute-force k-nearest-neighbours with Euclidean distance.
// The "k" hyperparameter sets the neighbourhood size.
type knnFamily struct{}

func (f *knnFamily) Name() string { return "knn" }

func (f *knnFamily) Capabilities() portfolio.Capabilities {
	return portfolio.Capabilities{
		Problems: []dataset.ProblemType{dataset.Binary, dataset.Multiclass, dataset.Regression},
	}
}

func (f *knnFamily) Estimate(rows, features int, _ portfolio.Hyperparams) portfolio.ResourceEstimate {
	// Fit is a copy; predict is the quadratic part, scored per OOF fold.
	cells := float64(rows) * float64(rows) * float64(features)
	return portfolio.ResourceEstimate{
		Time:     time.Duration(cells/2e8*float64(time.Second)) + 10*time.Millisecond,
		MemoryMB: 1 + rows*features*8/(1<<20),
	}
}

func (f *knnFamily) Fit(ctx context.Context, data *portfolio.TrainData, params portfolio.Hyperparams) (portfolio.Model, error) {
	rows, cols := data.X.Dims()
	if rows == 0 || cols == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "knn.Fit")
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "knn: cancelled")
	}
	k := params.Int("k", 5)
	if k < 1 {
		return nil, errors.NewValidationError("k", "must be at least 1", k)
	}
	if k > rows {
		k = rows
	}

	m := &knnModel{
		K:       k,
		Train:   make([]float64, rows*cols),
		Labels:  make([]float64, rows),
		Rows:    rows,
		Cols:    cols,
		Problem: int(data.Problem),
		Classes: data.Classes,
		Workers: data.Workers,
	}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			m.Train[i*cols+j] = data.X.At(i, j)
		}
		m.Labels[i] = data.Y.AtVec(i)
	}
	return m, nil
}

// knnModel keeps a flat copy of the training rows. Fields are exported
// for gob persistence.
type knnModel struct {
	K       int
	Train   []float64
	Labels  []float64
	Rows    int
	Cols    int
	Problem int
	Classes int
	Workers int
}

func (m *knnModel) Predict(X mat.Matrix) (*mat.Dense, error) {
	rows, cols := X.Dims()
	if cols != m.Cols {
		return nil, errors.NewDimensionError("knn.Predict", m.Cols, cols, 1)
	}
	problem := dataset.ProblemType(m.Problem)
	width := dataset.OutputWidth(problem, m.Classes, 0)
	out := mat.NewDense(rows, width, nil)

	workers := m.Workers
	if workers < 1 {
		workers = 1
	}
	parallel.ParallelizeWithWorkers(rows, workers, func(start, end int) {
		dists := make([]neighbour, m.Rows)
		for i := start; i < end; i++ {
			for t := 0; t < m.Rows; t++ {
				var d float64
				base := t * m.Cols
				for j := 0; j < cols; j++ {
					diff := X.At(i, j) - m.Train[base+j]
					d += diff * diff
				}
				dists[t] = neighbour{dist: d, label: m.Labels[t]}
			}
			sort.Slice(dists, func(a, b int) bool { return dists[a].dist < dists[b].dist })

			switch problem {
			case dataset.Regression:
				var sum float64
				for _, nb := range dists[:m.K] {
					sum += nb.label
				}
				out.Set(i, 0, sum/float64(m.K))
			default:
				votes := make([]float64, maxInt(m.Classes, 2))
				for _, nb := range dists[:m.K] {
					votes[int(nb.label)]++
				}
				if width == 1 {
					out.Set(i, 0, votes[1]/float64(m.K))
				} else {
					for c := 0; c < width; c++ {
						out.Set(i, c, votes[c]/float64(m.K))
					}
				}
			}
		}
	})
	return out, nil
}

type neighbour struct {
	dist  float64
	label float64
}
