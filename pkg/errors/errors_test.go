package errors

import (
	"strings"
	"testing"
)

func TestNotFittedError(t *testing.T) {
	err := NewNotFittedError("TabularPredictor", "Predict")

	var nfErr *NotFittedError
	if !As(err, &nfErr) {
		t.Fatalf("As() failed for %T", err)
	}
	if nfErr.ModelName != "TabularPredictor" || nfErr.Method != "Predict" {
		t.Errorf("fields = %+v", nfErr)
	}
	if !strings.Contains(err.Error(), "not fitted yet") {
		t.Errorf("message = %q", err.Error())
	}
}

func TestDimensionErrorAxisNames(t *testing.T) {
	rowErr := NewDimensionError("test", 10, 5, 0)
	if !strings.Contains(rowErr.Error(), "rows") {
		t.Errorf("axis 0 message = %q, want a rows mention", rowErr.Error())
	}
	colErr := NewDimensionError("test", 10, 5, 1)
	if !strings.Contains(colErr.Error(), "features") {
		t.Errorf("axis 1 message = %q, want a features mention", colErr.Error())
	}
}

func TestCandidateErrorUnwrap(t *testing.T) {
	cause := NewMissingWeightsError("tab_foundation", "tabfm-base-v1", "cache")
	err := NewCandidateError("tab_foundation_base", 1, cause)

	var cErr *CandidateError
	if !As(err, &cErr) {
		t.Fatalf("As(CandidateError) failed for %T", err)
	}
	if cErr.Layer != 1 {
		t.Errorf("Layer = %d, want 1", cErr.Layer)
	}

	// The wrapped cause stays reachable through the chain.
	var wErr *MissingWeightsError
	if !As(err, &wErr) {
		t.Fatal("As(MissingWeightsError) failed through the candidate wrapper")
	}
	if wErr.ModelID != "tabfm-base-v1" {
		t.Errorf("ModelID = %q", wErr.ModelID)
	}
}

func TestFitFailedErrorEnumeratesReasons(t *testing.T) {
	err := NewFitFailedError([]error{
		New("candidate a: singular matrix"),
		New("candidate b: out of memory"),
	})
	msg := err.Error()
	if !strings.Contains(msg, "2 candidate failures") {
		t.Errorf("message = %q, want the failure count", msg)
	}
	if !strings.Contains(msg, "singular matrix") || !strings.Contains(msg, "out of memory") {
		t.Errorf("message = %q, want every individual reason", msg)
	}
}

func TestNumericalInstabilityErrorTruncatesValues(t *testing.T) {
	err := NewNumericalInstabilityError("OOF", []float64{1, 2, 3, 4, 5, 6, 7})
	if !strings.Contains(err.Error(), "...") {
		t.Errorf("message = %q, want truncation past five values", err.Error())
	}
}

func TestSentinelErrors(t *testing.T) {
	wrapped := Wrap(ErrBudgetExhausted, "admission stopped")
	if !Is(wrapped, ErrBudgetExhausted) {
		t.Error("Is() lost the sentinel through Wrap")
	}
	if Is(wrapped, ErrEmptyData) {
		t.Error("Is() matched the wrong sentinel")
	}
}

func TestRecoverConvertsPanic(t *testing.T) {
	fn := func() (err error) {
		defer Recover(&err, "trainCandidate")
		panic("index out of range")
	}
	err := fn()
	if err == nil {
		t.Fatal("Recover() did not produce an error")
	}
	var pErr *PanicError
	if !As(err, &pErr) {
		t.Fatalf("error type = %T, want *PanicError", err)
	}
	if pErr.Operation != "trainCandidate" {
		t.Errorf("Operation = %q", pErr.Operation)
	}
	if pErr.StackTrace == "" {
		t.Error("StackTrace is empty")
	}
}

func TestSafeExecute(t *testing.T) {
	if err := SafeExecute("ok", func() error { return nil }); err != nil {
		t.Errorf("SafeExecute() error = %v", err)
	}

	want := New("fit failed")
	if err := SafeExecute("fails", func() error { return want }); !Is(err, want) {
		t.Errorf("SafeExecute() error = %v, want the returned error", err)
	}

	err := SafeExecute("panics", func() error { panic("boom") })
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("SafeExecute() error = %v, want the panic value", err)
	}
}
