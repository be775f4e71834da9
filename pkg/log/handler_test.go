package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/autostack-ml/autostack/pkg/errors"
)

func TestToLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		if got := ToLogLevel(tt.in); got != tt.want {
			t.Errorf("ToLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestToLogLevelPanicsOnUnknown(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("ToLogLevel accepted an unknown level")
		}
	}()
	ToLogLevel("verbose")
}

func TestErrFmtHandlerAddsStacktrace(t *testing.T) {
	var buf bytes.Buffer
	handler := WrapByErrFmtHandler(slog.NewJSONHandler(&buf, nil))
	logger := slog.New(handler)

	err := errors.NewValidationError("budget", "must be positive", 0)
	logger.Error("fit rejected", ErrAttr(err))

	var record map[string]interface{}
	if jsonErr := json.Unmarshal(buf.Bytes(), &record); jsonErr != nil {
		t.Fatalf("log output is not JSON: %v", jsonErr)
	}
	if _, ok := record[ErrAttrKey]; !ok {
		t.Errorf("record missing %q attribute: %v", ErrAttrKey, record)
	}
	if st, ok := record[StacktraceAttrKey].(string); !ok || st == "" {
		t.Errorf("record missing %q attribute: %v", StacktraceAttrKey, record)
	}
}

func TestErrFmtHandlerPlainRecord(t *testing.T) {
	var buf bytes.Buffer
	handler := WrapByErrFmtHandler(slog.NewJSONHandler(&buf, nil))
	logger := slog.New(handler)

	logger.Info("fit started", SamplesKey, 100)

	var record map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	if _, ok := record[StacktraceAttrKey]; ok {
		t.Error("stacktrace attribute added to a record without an error")
	}
	if got, ok := record[SamplesKey].(float64); !ok || got != 100 {
		t.Errorf("samples attribute = %v", record[SamplesKey])
	}
}
