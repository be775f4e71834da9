// Package metrics implements the validation metrics the engine scores
// out-of-fold predictions with. Every metric declares its own direction;
// nothing downstream infers "higher is better" from the metric name.
package metrics

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Metric is a named scoring function with a declared direction. The
// prediction argument is a matrix because classification and quantile
// models emit more than one column per row.
type Metric struct {
	Name            string
	GreaterIsBetter bool
	fn              func(yTrue *mat.VecDense, pred mat.Matrix) (float64, error)
}

// Score evaluates the metric.
func (m Metric) Score(yTrue *mat.VecDense, pred mat.Matrix) (float64, error) {
	return m.fn(yTrue, pred)
}

// Better reports whether score a beats score b under this metric's
// direction.
func (m Metric) Better(a, b float64) bool {
	if m.GreaterIsBetter {
		return a > b
	}
	return a < b
}

// Worst returns the sentinel no real score can beat.
func (m Metric) Worst() float64 {
	if m.GreaterIsBetter {
		return math.Inf(-1)
	}
	return math.Inf(1)
}

// Improvement returns how much a improves over b, positive when a is
// better, regardless of direction.
func (m Metric) Improvement(a, b float64) float64 {
	if m.GreaterIsBetter {
		return a - b
	}
	return b - a
}

func column(pred mat.Matrix, j int) *mat.VecDense {
	r, _ := pred.Dims()
	v := mat.NewVecDense(r, nil)
	for i := 0; i < r; i++ {
		v.SetVec(i, pred.At(i, j))
	}
	return v
}

// RMSEMetric is the default regression metric (lower is better).
func RMSEMetric() Metric {
	return Metric{
		Name:            "rmse",
		GreaterIsBetter: false,
		fn: func(yTrue *mat.VecDense, pred mat.Matrix) (float64, error) {
			return RMSE(yTrue, column(pred, 0))
		},
	}
}

// MAEMetric scores mean absolute error (lower is better).
func MAEMetric() Metric {
	return Metric{
		Name:            "mae",
		GreaterIsBetter: false,
		fn: func(yTrue *mat.VecDense, pred mat.Matrix) (float64, error) {
			return MAE(yTrue, column(pred, 0))
		},
	}
}

// R2Metric scores the coefficient of determination (higher is better).
func R2Metric() Metric {
	return Metric{
		Name:            "r2",
		GreaterIsBetter: true,
		fn: func(yTrue *mat.VecDense, pred mat.Matrix) (float64, error) {
			return R2(yTrue, column(pred, 0))
		},
	}
}

// LogLossMetric scores classification probabilities with the logarithmic
// proper scoring rule (lower is better). A single prediction column is
// read as the positive-class probability; multiple columns as per-class
// probabilities.
func LogLossMetric() Metric {
	return Metric{
		Name:            "log_loss",
		GreaterIsBetter: false,
		fn:              LogLoss,
	}
}

// AccuracyMetric scores classification accuracy (higher is better).
func AccuracyMetric() Metric {
	return Metric{
		Name:            "accuracy",
		GreaterIsBetter: true,
		fn:              Accuracy,
	}
}

// PinballMetric scores quantile predictions with pinball loss aggregated
// across the given levels (lower is better). Prediction column j holds
// the forecast for levels[j].
func PinballMetric(levels []float64) Metric {
	lv := append([]float64(nil), levels...)
	return Metric{
		Name:            "pinball",
		GreaterIsBetter: false,
		fn: func(yTrue *mat.VecDense, pred mat.Matrix) (float64, error) {
			return Pinball(yTrue, pred, lv)
		},
	}
}
