package metrics

import (
	"gonum.org/v1/gonum/mat"

	"github.com/autostack-ml/autostack/pkg/errors"
)

// Pinball computes pinball loss averaged over rows and aggregated across
// quantile levels. Prediction column j holds the forecast for levels[j].
//
// For level q and error e = yTrue - yPred:
//
//	loss = q*e        if e >= 0
//	loss = (q-1)*e    otherwise
func Pinball(yTrue *mat.VecDense, pred mat.Matrix, levels []float64) (float64, error) {
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError("Pinball", "empty vector")
	}
	r, c := pred.Dims()
	if r != n {
		return 0, errors.NewDimensionError("Pinball", n, r, 0)
	}
	if c != len(levels) {
		return 0, errors.NewDimensionError("Pinball", len(levels), c, 1)
	}
	for _, q := range levels {
		if q <= 0 || q >= 1 {
			return 0, errors.NewValidationError("levels", "quantile levels must be in (0, 1)", q)
		}
	}

	var sum float64
	for i := 0; i < n; i++ {
		for j, q := range levels {
			e := yTrue.AtVec(i) - pred.At(i, j)
			if e >= 0 {
				sum += q * e
			} else {
				sum += (q - 1) * e
			}
		}
	}
	return sum / float64(n*len(levels)), nil
}
