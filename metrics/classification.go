package metrics

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/autostack-ml/autostack/pkg/errors"
)

// probEpsilon clips probabilities away from 0 and 1 so the log in
// LogLoss stays finite.
const probEpsilon = 1e-15

// LogLoss computes the logarithmic loss of predicted probabilities
// against integer class labels. With a single prediction column the
// column is the positive-class probability of a binary problem; with C
// columns, column j is the probability of class j.
func LogLoss(yTrue *mat.VecDense, proba mat.Matrix) (float64, error) {
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError("LogLoss", "empty vector")
	}
	r, c := proba.Dims()
	if r != n {
		return 0, errors.NewDimensionError("LogLoss", n, r, 0)
	}

	var sum float64
	for i := 0; i < n; i++ {
		label := int(yTrue.AtVec(i))
		var p float64
		if c == 1 {
			p = proba.At(i, 0)
			if label == 0 {
				p = 1 - p
			}
		} else {
			if label < 0 || label >= c {
				return 0, errors.NewValueError("LogLoss", "label outside probability columns")
			}
			p = proba.At(i, label)
		}
		p = clipProb(p)
		sum -= math.Log(p)
	}
	return sum / float64(n), nil
}

// Accuracy computes the fraction of rows whose predicted class matches
// the label. With a single column, predictions above 0.5 are class 1.
func Accuracy(yTrue *mat.VecDense, proba mat.Matrix) (float64, error) {
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError("Accuracy", "empty vector")
	}
	r, c := proba.Dims()
	if r != n {
		return 0, errors.NewDimensionError("Accuracy", n, r, 0)
	}

	correct := 0
	for i := 0; i < n; i++ {
		pred := 0
		if c == 1 {
			if proba.At(i, 0) > 0.5 {
				pred = 1
			}
		} else {
			best := proba.At(i, 0)
			for j := 1; j < c; j++ {
				if proba.At(i, j) > best {
					best = proba.At(i, j)
					pred = j
				}
			}
		}
		if pred == int(yTrue.AtVec(i)) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

func clipProb(p float64) float64 {
	if p < probEpsilon {
		return probEpsilon
	}
	if p > 1-probEpsilon {
		return 1 - probEpsilon
	}
	return p
}
