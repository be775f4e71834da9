// Package log defines standard attribute keys for ensemble-engine
// operations. Using these keys keeps fit runs analyzable: every candidate
// training event, layer transition and selection round logs the same
// field names.

package log

// Fit run and candidate context.
const (
	// RunIDKey identifies one fit call end to end.
	RunIDKey = "fit.run_id"

	// FamilyKey identifies the candidate model family.
	// Examples: "linear", "knn", "baseline"
	FamilyKey = "candidate.family"

	// CandidateKey is the candidate's unique name within the portfolio.
	CandidateKey = "candidate.name"

	// LayerKey is the stack layer index, starting at 0.
	LayerKey = "stack.layer"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "predict", "select", "score"
	OperationKey = "ml.operation"

	// PresetKey names the quality/speed preset in effect.
	PresetKey = "fit.preset"
)

// Data shape.
const (
	// SamplesKey is the number of training rows.
	SamplesKey = "data.samples"

	// FeaturesKey is the number of input feature columns, including any
	// out-of-fold prediction columns appended by earlier layers.
	FeaturesKey = "data.features"

	// ClassesKey is the number of target classes for classification.
	ClassesKey = "data.classes"

	// FoldsKey is the number of cross-validation folds.
	FoldsKey = "cv.folds"
)

// Budget and performance.
const (
	// BudgetRemainingKey is the remaining time budget in seconds.
	BudgetRemainingKey = "budget.remaining_seconds"

	// DurationSecondsKey records an operation's wall-clock time.
	DurationSecondsKey = "perf.duration_seconds"

	// WorkersKey is the trainer worker-pool size.
	WorkersKey = "perf.workers"

	// ScoreKey is a validation score or loss value.
	ScoreKey = "eval.score"

	// MetricKey names the metric that produced ScoreKey.
	MetricKey = "eval.metric"

	// RoundKey is the ensemble-selection round index.
	RoundKey = "ensemble.round"
)
