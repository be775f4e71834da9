// Package errors provides the structured error types used across the
// ensemble engine. It layers typed, inspectable errors over
// cockroachdb/errors so every failure carries a stack trace and can be
// matched with Is/As at the layer boundary where recoverable failures
// are absorbed.
package errors

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// NotFittedError is returned when Predict or PredictProba is called on a
// predictor or model that has not been fitted.
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("autostack: %s: not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
}

// MarshalZerologObject adds structured error information to a zerolog event.
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

// NewNotFittedError creates a NotFittedError with a stack trace attached.
func NewNotFittedError(modelName, method string) error {
	err := &NotFittedError{ModelName: modelName, Method: method}
	return errors.WithStack(err)
}

// DimensionError is returned when input data dimensions differ from what
// a component expects.
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows, 1 for columns/features
}

func (e *DimensionError) Error() string {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	return fmt.Sprintf("autostack: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, axisName, e.Expected, e.Got)
}

// MarshalZerologObject adds structured error information to a zerolog event.
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("axis_name", axisName).
		Str("type", "DimensionError")
}

// NewDimensionError creates a DimensionError with a stack trace attached.
func NewDimensionError(op string, expected, got, axis int) error {
	err := &DimensionError{Op: op, Expected: expected, Got: got, Axis: axis}
	return errors.WithStack(err)
}

// ValidationError reports a fatal configuration problem detected at fit
// entry: invalid problem type, empty dataset, missing label column, or a
// non-positive time budget. These surface to the caller before any
// resource is allocated.
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("autostack: validation failed for parameter '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
}

// MarshalZerologObject adds structured error information to a zerolog event.
func (e *ValidationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ValidationError")
}

// NewValidationError creates a ValidationError with a stack trace attached.
func NewValidationError(param, reason string, value interface{}) error {
	err := &ValidationError{ParamName: param, Reason: reason, Value: value}
	return errors.WithStack(err)
}

// ValueError is returned when an argument value is inappropriate for the
// operation, without a more specific error type applying.
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("autostack: %s: %s", e.Op, e.Message)
}

// NewValueError creates a ValueError with a stack trace attached.
func NewValueError(op, message string) error {
	err := &ValueError{Op: op, Message: message}
	return errors.WithStack(err)
}

// CandidateError wraps a failure local to a single candidate model: a
// numerical error, an out-of-memory condition, or a missing optional
// dependency. Candidate errors are absorbed at the layer boundary; they
// never abort sibling candidates or the overall fit.
type CandidateError struct {
	Family string
	Layer  int
	Err    error
}

func (e *CandidateError) Error() string {
	return fmt.Sprintf("autostack: candidate %s (layer %d) failed: %v", e.Family, e.Layer, e.Err)
}

func (e *CandidateError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject adds structured error information to a zerolog event.
func (e *CandidateError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("family", e.Family).
		Int("layer", e.Layer).
		AnErr("cause", e.Err).
		Str("type", "CandidateError")
}

// NewCandidateError wraps err as a candidate-local failure.
func NewCandidateError(family string, layer int, err error) error {
	candErr := &CandidateError{Family: family, Layer: layer, Err: err}
	return errors.WithStack(candErr)
}

// MissingWeightsError is returned when a foundation-model candidate
// cannot obtain its pretrained weight artifact (no network, cold cache).
// It is candidate-local: the specific candidate is skipped and the fit
// continues with the remaining candidates.
type MissingWeightsError struct {
	Family   string
	ModelID  string
	Location string
}

func (e *MissingWeightsError) Error() string {
	return fmt.Sprintf("autostack: %s: pretrained weights %q unavailable at %s", e.Family, e.ModelID, e.Location)
}

// NewMissingWeightsError creates a MissingWeightsError with a stack trace
// attached.
func NewMissingWeightsError(family, modelID, location string) error {
	err := &MissingWeightsError{Family: family, ModelID: modelID, Location: location}
	return errors.WithStack(err)
}

// NumericalInstabilityError reports NaN, Inf, overflow or underflow
// detected in model output during training or scoring.
type NumericalInstabilityError struct {
	Operation string
	Values    []float64
}

func (e *NumericalInstabilityError) Error() string {
	valStr := ""
	for i, v := range e.Values {
		if i > 0 {
			valStr += ", "
		}
		if i >= 5 {
			valStr += "..."
			break
		}
		valStr += fmt.Sprintf("%.6g", v)
	}
	return fmt.Sprintf("autostack: numerical instability detected in %s. Values: [%s]", e.Operation, valStr)
}

// NewNumericalInstabilityError creates a NumericalInstabilityError with a
// stack trace attached.
func NewNumericalInstabilityError(operation string, values []float64) error {
	err := &NumericalInstabilityError{Operation: operation, Values: values}
	return errors.WithStack(err)
}

// FitFailedError is the total-failure report surfaced to the caller when
// zero models were fit across all stack layers. It enumerates every
// candidate's individual failure reason.
type FitFailedError struct {
	Failures []error
}

func (e *FitFailedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "autostack: no model could be fit (%d candidate failures)", len(e.Failures))
	for _, f := range e.Failures {
		b.WriteString("\n  - ")
		b.WriteString(f.Error())
	}
	return b.String()
}

// MarshalZerologObject adds structured error information to a zerolog event.
func (e *FitFailedError) MarshalZerologObject(event *zerolog.Event) {
	event.Int("failure_count", len(e.Failures)).
		Errs("failures", e.Failures).
		Str("type", "FitFailedError")
}

// NewFitFailedError aggregates all candidate failures into a single
// total-failure report and attaches a stack trace.
func NewFitFailedError(failures []error) error {
	err := &FitFailedError{Failures: failures}
	return errors.WithStack(err)
}

// Is reports whether err matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain matching target's type.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an existing error with a message.
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf wraps an existing error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New creates a new error.
func New(message string) error {
	return errors.New(message)
}

// Newf creates a new formatted error.
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack annotates err with a stack trace.
func WithStack(err error) error {
	return errors.WithStack(err)
}

var (
	// ErrEmptyData is returned when an empty dataset is passed in.
	ErrEmptyData = New("empty data")

	// ErrBudgetExhausted marks budget exhaustion during candidate
	// admission. It is a normal termination signal, not a failure; it
	// never escapes the stack builder.
	ErrBudgetExhausted = New("time budget exhausted")

	// ErrNoGPU is returned by GPU-only families when no device is present.
	ErrNoGPU = New("no GPU detected")
)
