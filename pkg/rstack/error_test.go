package rstack

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOfUnwrapsWrappedError(t *testing.T) {
	base := wrapErr(KindPtrace, fmt.Errorf("boom"))
	wrapped := fmt.Errorf("attach thread 5: %w", base)

	kind, ok := KindOf(wrapped)
	if !ok {
		t.Fatalf("KindOf(wrapped) ok = false, want true")
	}
	if kind != KindPtrace {
		t.Errorf("KindOf(wrapped) = %v, want %v", kind, KindPtrace)
	}
}

func TestKindOfNoMatch(t *testing.T) {
	_, ok := KindOf(errors.New("not an rstack error"))
	if ok {
		t.Errorf("KindOf(plain error) ok = true, want false")
	}
}

func TestErrorString(t *testing.T) {
	err := wrapErr(KindSymbol, fmt.Errorf("no such symbol"))
	want := "rstack: symbol: no such symbol"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
