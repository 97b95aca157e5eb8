package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOf(t *testing.T) {
	base := New(CodeStaleTurn, "client turn %d, server turn %d", 5, 4)
	wrapped := fmt.Errorf("handle: %w", base)

	if got := CodeOf(wrapped); got != CodeStaleTurn {
		t.Fatalf("CodeOf() = %s, want %s", got, CodeStaleTurn)
	}
	if !errors.Is(wrapped, &Error{Code: CodeStaleTurn}) {
		t.Fatalf("errors.Is should match by code")
	}
	if errors.Is(wrapped, &Error{Code: CodeUnknownCommand}) {
		t.Fatalf("errors.Is matched a different code")
	}
	if got := CodeOf(errors.New("plain")); got != CodeUnknown {
		t.Fatalf("CodeOf(plain) = %s, want %s", got, CodeUnknown)
	}
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(CodeTransportFailure, "write response", cause)

	if !errors.Is(err, cause) {
		t.Fatalf("wrapped cause not reachable")
	}
	if !IsCode(err, CodeTransportFailure) {
		t.Fatalf("IsCode() = false")
	}
}

func TestResync(t *testing.T) {
	tests := []struct {
		code Code
		want bool
	}{
		{CodeStaleTurn, true},
		{CodeUnauthorizedSlot, true},
		{CodeNotReady, true},
		{CodeUnknownCommand, false},
		{CodeAgentsNotConnected, false},
	}
	for _, tt := range tests {
		if got := tt.code.Resync(); got != tt.want {
			t.Errorf("%s.Resync() = %v, want %v", tt.code, got, tt.want)
		}
	}
}
