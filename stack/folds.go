// Package stack builds one stacking layer at a time: it trains each
// admitted candidate under k-fold cross-validation, produces leak-free
// out-of-fold predictions for every training row, and feeds those
// predictions to the next layer as engineered features.
package stack

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/autostack-ml/autostack/pkg/errors"
)

// Fold is one train/validation split of row indices.
type Fold struct {
	TrainIdx []int
	ValIdx   []int
}

// Assignment partitions the training rows into K disjoint validation
// folds, optionally repeated with different shuffles. It is computed once
// per fit and shared by every candidate in a layer so out-of-fold
// predictions stay comparable.
type Assignment struct {
	K       int
	Repeats int
	Rows    int

	// folds holds K*Repeats folds grouped by repeat.
	folds []Fold
}

// Folds returns all folds across repeats.
func (a Assignment) Folds() []Fold {
	return a.folds
}

// Repeat returns the K folds of one repeat.
func (a Assignment) Repeat(r int) []Fold {
	return a.folds[r*a.K : (r+1)*a.K]
}

// NewKFold builds a shuffled k-fold assignment. Fold sizes differ by at
// most one row.
func NewKFold(rows, k, repeats int, seed int64) (Assignment, error) {
	if err := checkFoldArgs(rows, k, repeats); err != nil {
		return Assignment{}, err
	}

	a := Assignment{K: k, Repeats: repeats, Rows: rows}
	for rep := 0; rep < repeats; rep++ {
		indices := shuffledIndices(rows, seed, rep)

		foldSize := rows / k
		remainder := rows % k
		current := 0
		for i := 0; i < k; i++ {
			valSize := foldSize
			if i < remainder {
				valSize++
			}
			a.folds = append(a.folds, splitAt(indices, current, current+valSize))
			current += valSize
		}
	}
	return a, a.Validate()
}

// NewStratifiedKFold builds a k-fold assignment that preserves class
// proportions in every fold. Used for classification problems.
func NewStratifiedKFold(y *mat.VecDense, k, repeats int, seed int64) (Assignment, error) {
	rows := y.Len()
	if err := checkFoldArgs(rows, k, repeats); err != nil {
		return Assignment{}, err
	}

	a := Assignment{K: k, Repeats: repeats, Rows: rows}
	for rep := 0; rep < repeats; rep++ {
		// Group row indices by class label.
		classIndices := make(map[float64][]int)
		var classOrder []float64
		for i := 0; i < rows; i++ {
			label := y.AtVec(i)
			if _, ok := classIndices[label]; !ok {
				classOrder = append(classOrder, label)
			}
			classIndices[label] = append(classIndices[label], i)
		}

		r := rand.New(rand.NewPCG(uint64(seed), uint64(rep)))
		for _, label := range classOrder {
			idx := classIndices[label]
			r.Shuffle(len(idx), func(i, j int) {
				idx[i], idx[j] = idx[j], idx[i]
			})
		}

		// Distribute each class across folds round-robin by size. The
		// fold receiving a class's leftover rows rotates from class to
		// class so every fold ends up with at least one validation row,
		// even when every class has fewer rows than k.
		valSets := make([][]int, k)
		offset := 0
		for _, label := range classOrder {
			idx := classIndices[label]
			n := len(idx)
			foldSize := n / k
			remainder := n % k
			current := 0
			for i := 0; i < k; i++ {
				take := foldSize
				if (i-offset+k)%k < remainder {
					take++
				}
				valSets[i] = append(valSets[i], idx[current:current+take]...)
				current += take
			}
			offset = (offset + remainder) % k
		}

		for i := 0; i < k; i++ {
			inVal := make(map[int]struct{}, len(valSets[i]))
			for _, v := range valSets[i] {
				inVal[v] = struct{}{}
			}
			train := make([]int, 0, rows-len(valSets[i]))
			for j := 0; j < rows; j++ {
				if _, ok := inVal[j]; !ok {
					train = append(train, j)
				}
			}
			a.folds = append(a.folds, Fold{TrainIdx: train, ValIdx: valSets[i]})
		}
	}
	return a, a.Validate()
}

// Validate checks the coverage and disjointness invariant: within each
// repeat, every row index appears in exactly one validation fold.
func (a Assignment) Validate() error {
	for rep := 0; rep < a.Repeats; rep++ {
		seen := make(map[int]int, a.Rows)
		for i, f := range a.Repeat(rep) {
			if len(f.ValIdx) == 0 {
				return errors.Newf("stack: fold %d of repeat %d has no validation rows", i, rep)
			}
			for _, idx := range f.ValIdx {
				if idx < 0 || idx >= a.Rows {
					return errors.NewValueError("stack.Assignment", "validation index out of range")
				}
				seen[idx]++
			}
		}
		if len(seen) != a.Rows {
			return errors.Newf("stack: fold assignment covers %d of %d rows", len(seen), a.Rows)
		}
		for idx, n := range seen {
			if n != 1 {
				return errors.Newf("stack: row %d appears in %d validation folds", idx, n)
			}
		}
	}
	return nil
}

func checkFoldArgs(rows, k, repeats int) error {
	if k < 2 {
		return errors.NewValidationError("folds", "must be at least 2", k)
	}
	if repeats < 1 {
		return errors.NewValidationError("repeats", "must be at least 1", repeats)
	}
	if rows < k {
		return errors.NewValidationError("rows", "fewer rows than folds", rows)
	}
	return nil
}

func shuffledIndices(rows int, seed int64, rep int) []int {
	indices := make([]int, rows)
	for i := range indices {
		indices[i] = i
	}
	r := rand.New(rand.NewPCG(uint64(seed), uint64(rep)))
	r.Shuffle(len(indices), func(i, j int) {
		indices[i], indices[j] = indices[j], indices[i]
	})
	return indices
}

func splitAt(indices []int, lo, hi int) Fold {
	val := append([]int(nil), indices[lo:hi]...)
	train := make([]int, 0, len(indices)-(hi-lo))
	train = append(train, indices[:lo]...)
	train = append(train, indices[hi:]...)
	return Fold{TrainIdx: train, ValIdx: val}
}
