// Package dataset defines the immutable tabular dataset the engine trains
// on, together with problem-type detection. Row count and feature schema
// are fixed for the duration of one fit; the label column determines the
// problem type.
package dataset

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/autostack-ml/autostack/pkg/errors"
)

// ProblemType identifies the supervised-learning task derived from the
// label column.
type ProblemType int

const (
	// Auto lets the engine detect the problem type from the labels.
	Auto ProblemType = iota
	// Binary is two-class classification.
	Binary
	// Multiclass is classification with three or more classes.
	Multiclass
	// Regression predicts a continuous target.
	Regression
	// Quantile predicts a set of conditional quantiles of a continuous
	// target.
	Quantile
)

// String returns the problem type name.
func (p ProblemType) String() string {
	switch p {
	case Auto:
		return "auto"
	case Binary:
		return "binary"
	case Multiclass:
		return "multiclass"
	case Regression:
		return "regression"
	case Quantile:
		return "quantile"
	default:
		return "unknown"
	}
}

// IsClassification reports whether the problem has discrete classes.
func (p ProblemType) IsClassification() bool {
	return p == Binary || p == Multiclass
}

// Valid reports whether p is a known problem type.
func (p ProblemType) Valid() bool {
	return p >= Auto && p <= Quantile
}

// Dataset is an immutable table of rows. Columns are named; one column is
// designated as the label at fit time. Optional per-row sample weights
// may be attached.
type Dataset struct {
	columns []string
	data    *mat.Dense
	weights []float64
}

// New creates a Dataset from column names and row-major values. The
// number of values must equal rows*len(columns).
func New(columns []string, rows int, values []float64) (*Dataset, error) {
	if len(columns) == 0 || rows == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "dataset.New")
	}
	if len(values) != rows*len(columns) {
		return nil, errors.NewDimensionError("dataset.New", rows*len(columns), len(values), 0)
	}
	return &Dataset{
		columns: append([]string(nil), columns...),
		data:    mat.NewDense(rows, len(columns), values),
	}, nil
}

// FromMatrix creates a Dataset that shares the given matrix. The caller
// must not mutate m afterwards.
func FromMatrix(columns []string, m *mat.Dense) (*Dataset, error) {
	r, c := m.Dims()
	if r == 0 || c == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "dataset.FromMatrix")
	}
	if c != len(columns) {
		return nil, errors.NewDimensionError("dataset.FromMatrix", len(columns), c, 1)
	}
	return &Dataset{columns: append([]string(nil), columns...), data: m}, nil
}

// WithWeights returns a copy of the dataset carrying per-row sample
// weights. Weights must be non-negative and match the row count.
func (d *Dataset) WithWeights(w []float64) (*Dataset, error) {
	r, _ := d.data.Dims()
	if len(w) != r {
		return nil, errors.NewDimensionError("dataset.WithWeights", r, len(w), 0)
	}
	for i, v := range w {
		if v < 0 || math.IsNaN(v) {
			return nil, errors.NewValidationError("weights", "must be non-negative", w[i])
		}
	}
	return &Dataset{
		columns: d.columns,
		data:    d.data,
		weights: append([]float64(nil), w...),
	}, nil
}

// NumRows returns the number of rows.
func (d *Dataset) NumRows() int {
	r, _ := d.data.Dims()
	return r
}

// NumColumns returns the number of columns including the label.
func (d *Dataset) NumColumns() int {
	_, c := d.data.Dims()
	return c
}

// Columns returns the column names.
func (d *Dataset) Columns() []string {
	return append([]string(nil), d.columns...)
}

// Weights returns the sample weights, or nil if none were attached.
func (d *Dataset) Weights() []float64 {
	return d.weights
}

// HasColumn reports whether the named column exists.
func (d *Dataset) HasColumn(name string) bool {
	return d.columnIndex(name) >= 0
}

func (d *Dataset) columnIndex(name string) int {
	for i, c := range d.columns {
		if c == name {
			return i
		}
	}
	return -1
}

// SplitLabel separates the named label column from the feature columns.
// A missing label column is a fatal configuration error.
func (d *Dataset) SplitLabel(label string) (*mat.Dense, *mat.VecDense, error) {
	li := d.columnIndex(label)
	if li < 0 {
		return nil, nil, errors.NewValidationError("label", "column not found in dataset", label)
	}
	r, c := d.data.Dims()
	if c < 2 {
		return nil, nil, errors.NewValidationError("dataset", "no feature columns besides the label", c)
	}
	X := mat.NewDense(r, c-1, nil)
	y := mat.NewVecDense(r, nil)
	for i := 0; i < r; i++ {
		y.SetVec(i, d.data.At(i, li))
		k := 0
		for j := 0; j < c; j++ {
			if j == li {
				continue
			}
			X.Set(i, k, d.data.At(i, j))
			k++
		}
	}
	return X, y, nil
}

// Features returns the feature matrix for a dataset that carries no label
// column (the inference-time shape).
func (d *Dataset) Features() *mat.Dense {
	return d.data
}

// maxClassesForDetection bounds how many distinct integer labels are
// still treated as classes rather than a continuous target.
const maxClassesForDetection = 50

// DetectProblemType inspects the label vector and infers the problem
// type: two distinct values is binary, a small set of integer values is
// multiclass, anything else is regression. Quantile is never inferred; it
// must be requested explicitly.
func DetectProblemType(y *mat.VecDense) ProblemType {
	seen := make(map[float64]struct{})
	allInt := true
	for i := 0; i < y.Len(); i++ {
		v := y.AtVec(i)
		seen[v] = struct{}{}
		if v != math.Trunc(v) {
			allInt = false
		}
	}
	switch {
	case len(seen) <= 2:
		return Binary
	case allInt && len(seen) <= maxClassesForDetection:
		return Multiclass
	default:
		return Regression
	}
}

// NumClasses returns the number of distinct classes in y. Labels are
// expected to be encoded as 0..C-1.
func NumClasses(y *mat.VecDense) int {
	maxLabel := 0.0
	for i := 0; i < y.Len(); i++ {
		if v := y.AtVec(i); v > maxLabel {
			maxLabel = v
		}
	}
	return int(maxLabel) + 1
}

// OutputWidth returns the number of prediction columns a model emits for
// the given problem: 1 for regression and binary (positive-class
// probability), the class count for multiclass and the quantile-level
// count for quantile problems.
func OutputWidth(p ProblemType, classes, quantiles int) int {
	switch p {
	case Multiclass:
		return classes
	case Quantile:
		return quantiles
	default:
		return 1
	}
}
