package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsMatchesByCode(t *testing.T) {
	err := New(CodeNotFound, "faction %q not found", "f1")
	if !errors.Is(err, NotFound) {
		t.Fatal("expected NotFound match")
	}
	if errors.Is(err, InvalidState) {
		t.Fatal("unexpected InvalidState match")
	}
	if err.Error() != `faction "f1" not found` {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestCodeOfWrapped(t *testing.T) {
	inner := New(CodeInvalidState, "insufficient divine power")
	outer := fmt.Errorf("cast: %w", inner)
	if got := CodeOf(outer); got != CodeInvalidState {
		t.Fatalf("CodeOf = %q, want %q", got, CodeInvalidState)
	}
	if got := CodeOf(errors.New("plain")); got != "" {
		t.Fatalf("CodeOf(plain) = %q, want empty", got)
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("strconv failure")
	err := Wrap(CodeInvalidInput, cause, "parse hex id %q", "a,b")
	if !errors.Is(err, cause) {
		t.Fatal("expected cause in chain")
	}
	if !errors.Is(err, InvalidInput) {
		t.Fatal("expected InvalidInput match")
	}
}
