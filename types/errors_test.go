package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorCode_Retryable(t *testing.T) {
	for _, code := range []ErrorCode{CodeTimeout, CodeChannelClosed, CodeElementNotFound, CodeExecutionError} {
		if !code.Retryable() {
			t.Errorf("%s.Retryable() = false, want true", code)
		}
	}
	if CodeConfigError.Retryable() {
		t.Error("CONFIG_ERROR must never be retryable")
	}
}

func TestCodeOf_Unwraps(t *testing.T) {
	inner := NewTaskError(CodeTimeout, "no result within deadline")
	wrapped := fmt.Errorf("run failed: %w", inner)

	if got := CodeOf(wrapped); got != CodeTimeout {
		t.Errorf("CodeOf(wrapped) = %s, want TIMEOUT", got)
	}
	if got := CodeOf(errors.New("plain")); got != CodeExecutionError {
		t.Errorf("CodeOf(plain) = %s, want EXECUTION_ERROR", got)
	}
}

func TestClassifyMessage(t *testing.T) {
	tests := []struct {
		message string
		want    ErrorCode
	}{
		{"Timeout waiting for results: .list", CodeTimeout},
		{"element not found: .next", CodeElementNotFound},
		{"no element matches selector", CodeElementNotFound},
		{"script threw", CodeExecutionError},
	}
	for _, tt := range tests {
		if got := ClassifyMessage(tt.message); got != tt.want {
			t.Errorf("ClassifyMessage(%q) = %s, want %s", tt.message, got, tt.want)
		}
	}
}

func TestResult_Err(t *testing.T) {
	success := &Result{ID: 1, Status: StatusSuccess}
	if err := success.Err(); err != nil {
		t.Errorf("success result Err() = %v, want nil", err)
	}

	failure := &Result{ID: 2, Status: StatusError, Message: "selector not found"}
	err := failure.Err()
	if err == nil {
		t.Fatal("error result Err() = nil, want error")
	}
	if got := CodeOf(err); got != CodeElementNotFound {
		t.Errorf("classified code = %s, want ELEMENT_NOT_FOUND", got)
	}

	// An explicit code wins over message classification.
	coded := &Result{ID: 3, Status: StatusError, Code: CodeTimeout, Message: "not found"}
	if got := CodeOf(coded.Err()); got != CodeTimeout {
		t.Errorf("explicit code = %s, want TIMEOUT", got)
	}
}
