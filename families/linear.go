package families

import (
	"context"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/autostack-ml/autostack/core/dataset"
	"github.com/autostack-ml/autostack/pkg/errors"
	"github.com/autostack-ml/autostack/portfolio"
)

// linearFamily fits L2-regularized linear models: ridge regression in
// closed form via the normal equations, and a softmax-regularized
// logistic model by gradient descent for classification. The "alpha"
// hyperparameter is the regularization strength.
type linearFamily struct {
	name string
}

func (f *linearFamily) Name() string { return f.name }

func (f *linearFamily) Capabilities() portfolio.Capabilities {
	return portfolio.Capabilities{
		Problems: []dataset.ProblemType{dataset.Binary, dataset.Multiclass, dataset.Regression},
	}
}

func (f *linearFamily) Estimate(rows, features int, _ portfolio.Hyperparams) portfolio.ResourceEstimate {
	// Normal equations cost rows*features^2; the gradient path is
	// rows*features per iteration. Both are coarse upper bounds.
	cells := float64(rows) * float64(features+1) * float64(features+1)
	return portfolio.ResourceEstimate{
		Time:     time.Duration(cells/5e7*float64(time.Second)) + 10*time.Millisecond,
		MemoryMB: 1 + rows*(features+1)*8/(1<<20),
	}
}

func (f *linearFamily) Fit(ctx context.Context, data *portfolio.TrainData, params portfolio.Hyperparams) (portfolio.Model, error) {
	rows, cols := data.X.Dims()
	if rows == 0 || cols == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, f.name+".Fit")
	}
	if data.Y.Len() != rows {
		return nil, errors.NewDimensionError(f.name+".Fit", rows, data.Y.Len(), 0)
	}
	alpha := params.Float("alpha", 1.0)

	switch data.Problem {
	case dataset.Regression:
		return fitRidge(data, alpha)
	case dataset.Binary, dataset.Multiclass:
		return fitLogistic(ctx, data, alpha, params)
	default:
		return nil, errors.NewValidationError("problem", "unsupported problem type", data.Problem)
	}
}

// fitRidge solves (X'X + alpha*I) w = X'y on the intercept-augmented
// design matrix. The intercept column is not regularized.
func fitRidge(data *portfolio.TrainData, alpha float64) (portfolio.Model, error) {
	X := withIntercept(data.X)
	rows, cols := X.Dims()

	// Apply sample weights by scaling rows of X and y.
	y := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		y.SetVec(i, data.Y.AtVec(i))
	}
	if data.Weights != nil {
		for i := 0; i < rows; i++ {
			s := math.Sqrt(data.Weights[i])
			y.SetVec(i, y.AtVec(i)*s)
			for j := 0; j < cols; j++ {
				X.Set(i, j, X.At(i, j)*s)
			}
		}
	}

	var xtx mat.Dense
	xtx.Mul(X.T(), X)
	for j := 1; j < cols; j++ {
		xtx.Set(j, j, xtx.At(j, j)+alpha)
	}
	var xty mat.VecDense
	xty.MulVec(X.T(), y)

	var w mat.VecDense
	if err := w.SolveVec(&xtx, &xty); err != nil {
		return nil, errors.Wrap(err, "ridge: singular normal equations")
	}

	weights := make([]float64, cols)
	for j := 0; j < cols; j++ {
		weights[j] = w.AtVec(j)
	}
	return &linearModel{Weights: [][]float64{weights}, Kind: linearRegressionKind}, nil
}

const (
	linearRegressionKind = "regression"
	linearLogisticKind   = "logistic"
)

// fitLogistic runs batch gradient descent on the softmax cross-entropy
// with L2 penalty. Binary problems use a single weight row and a sigmoid
// output column.
func fitLogistic(ctx context.Context, data *portfolio.TrainData, alpha float64, params portfolio.Hyperparams) (portfolio.Model, error) {
	X := withIntercept(data.X)
	rows, cols := X.Dims()
	classes := data.Classes
	if classes < 2 {
		classes = 2
	}
	outputs := classes
	if data.Problem == dataset.Binary {
		outputs = 1
	}

	maxIter := params.Int("max_iter", 200)
	lr := params.Float("learning_rate", 0.1)
	weights := make([][]float64, outputs)
	for k := range weights {
		weights[k] = make([]float64, cols)
	}
	model := &linearModel{Weights: weights, Kind: linearLogisticKind}

	start := time.Now()
	grad := make([][]float64, outputs)
	for k := range grad {
		grad[k] = make([]float64, cols)
	}

	for iter := 0; iter < maxIter; iter++ {
		if iter%20 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, errors.Wrap(err, "logistic: cancelled")
			}
			if data.TimeLimit > 0 && time.Since(start) > data.TimeLimit {
				break
			}
		}
		for k := range grad {
			for j := range grad[k] {
				grad[k][j] = 0
			}
		}
		for i := 0; i < rows; i++ {
			wi := 1.0
			if data.Weights != nil {
				wi = data.Weights[i]
			}
			probs := model.rowProbs(X, i, classes)
			label := int(data.Y.AtVec(i))
			for k := range grad {
				target := 0.0
				cls := k
				if outputs == 1 {
					cls = 1
				}
				if label == cls {
					target = 1
				}
				diff := wi * (probs[cls] - target)
				for j := 0; j < cols; j++ {
					grad[k][j] += diff * X.At(i, j)
				}
			}
		}
		scale := lr / float64(rows)
		for k := range weights {
			for j := 0; j < cols; j++ {
				g := grad[k][j]
				if j > 0 {
					g += alpha * weights[k][j]
				}
				weights[k][j] -= scale * g
			}
		}
	}
	return model, nil
}

// linearModel predicts with a weight matrix over the intercept-augmented
// features. Fields are exported for gob persistence.
type linearModel struct {
	Weights [][]float64
	Kind    string
}

func (m *linearModel) Predict(X mat.Matrix) (*mat.Dense, error) {
	rows, cols := X.Dims()
	if len(m.Weights) == 0 {
		return nil, errors.NewNotFittedError("linearModel", "Predict")
	}
	if cols+1 != len(m.Weights[0]) {
		return nil, errors.NewDimensionError("linearModel.Predict", len(m.Weights[0])-1, cols, 1)
	}
	outputs := len(m.Weights)
	out := mat.NewDense(rows, outputs, nil)
	for i := 0; i < rows; i++ {
		if m.Kind == linearRegressionKind {
			out.Set(i, 0, m.rawLogit(X, i, 0))
			continue
		}
		if outputs == 1 {
			out.Set(i, 0, sigmoid(m.rawLogit(X, i, 0)))
			continue
		}
		logits := make([]float64, outputs)
		for k := 0; k < outputs; k++ {
			logits[k] = m.rawLogit(X, i, k)
		}
		probs := softmax(logits)
		for k, p := range probs {
			out.Set(i, k, p)
		}
	}
	return out, nil
}

// rawLogit evaluates weight row k on input row i. X carries no intercept
// column; weight index 0 is the intercept.
func (m *linearModel) rawLogit(X mat.Matrix, i, k int) float64 {
	_, cols := X.Dims()
	v := m.Weights[k][0]
	for j := 0; j < cols; j++ {
		v += m.Weights[k][j+1] * X.At(i, j)
	}
	return v
}

// rowProbs returns per-class probabilities for training row i of the
// intercept-augmented matrix X.
func (m *linearModel) rowProbs(X *mat.Dense, i, classes int) []float64 {
	_, cols := X.Dims()
	logit := func(k int) float64 {
		v := 0.0
		for j := 0; j < cols; j++ {
			v += m.Weights[k][j] * X.At(i, j)
		}
		return v
	}
	if len(m.Weights) == 1 {
		p := sigmoid(logit(0))
		probs := make([]float64, classes)
		probs[1] = p
		probs[0] = 1 - p
		return probs
	}
	logits := make([]float64, len(m.Weights))
	for k := range m.Weights {
		logits[k] = logit(k)
	}
	return softmax(logits)
}

func withIntercept(X *mat.Dense) *mat.Dense {
	rows, cols := X.Dims()
	out := mat.NewDense(rows, cols+1, nil)
	for i := 0; i < rows; i++ {
		out.Set(i, 0, 1)
		for j := 0; j < cols; j++ {
			out.Set(i, j+1, X.At(i, j))
		}
	}
	return out
}

func sigmoid(v float64) float64 {
	return 1 / (1 + math.Exp(-v))
}

func softmax(logits []float64) []float64 {
	maxL := logits[0]
	for _, v := range logits[1:] {
		if v > maxL {
			maxL = v
		}
	}
	var sum float64
	out := make([]float64, len(logits))
	for i, v := range logits {
		out[i] = math.Exp(v - maxL)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
