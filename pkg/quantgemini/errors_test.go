package quantgemini

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorFormattingAndUnwrap(t *testing.T) {
	t.Parallel()

	base := errors.New("connection reset")
	err := WrapError(ErrCodeTransport, "grounded inference call failed", base)
	if got := err.Error(); got != "TRANSPORT_FAILURE: grounded inference call failed: connection reset" {
		t.Fatalf("unexpected message: %q", got)
	}
	if !errors.Is(err, base) {
		t.Fatal("expected wrapped error to unwrap to base")
	}
	if got := NewError(ErrCodeInvalidInput, "ticker is required").Error(); got != "INVALID_INPUT: ticker is required" {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestIsErrorCodeFollowsWrapChain(t *testing.T) {
	t.Parallel()

	inner := NewError(ErrCodeFormat, "bad json")
	wrapped := fmt.Errorf("analyze NVDA: %w", inner)

	if !IsErrorCode(wrapped, ErrCodeFormat) {
		t.Fatal("expected FORMAT_FAILURE through fmt wrap")
	}
	if IsErrorCode(wrapped, ErrCodeTransport) {
		t.Fatal("unexpected TRANSPORT_FAILURE match")
	}
	if IsErrorCode(errors.New("plain"), ErrCodeFormat) {
		t.Fatal("plain error must not match")
	}
	if IsErrorCode(nil, ErrCodeFormat) {
		t.Fatal("nil must not match")
	}
	if !IsAnalysisFailure(wrapped) {
		t.Fatal("format failure is an analysis failure")
	}
	if IsAnalysisFailure(NewError(ErrCodeDatabase, "db")) {
		t.Fatal("database error is not an analysis failure")
	}
}

func TestAnalysisOutcome(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{nil, OutcomeSuccess},
		{NewError(ErrCodeTransport, "x"), OutcomeTransportFailure},
		{NewError(ErrCodeFormat, "x"), OutcomeFormatFailure},
		{NewError(ErrCodeInvalidInput, "x"), OutcomeInvalidInput},
		{errors.New("boom"), OutcomeError},
	}
	for _, tt := range tests {
		if got := AnalysisOutcome(tt.err); got != tt.want {
			t.Fatalf("AnalysisOutcome(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
