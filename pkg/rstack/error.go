package rstack

import (
	"errors"
	"fmt"
)

// Kind classifies the cause of an Error, per spec §4.7. Callers should
// switch on Kind, never on the error's string form.
type Kind int

const (
	// KindIo covers filesystem/procfs reads, pipe I/O, and waitpid.
	KindIo Kind = iota
	// KindPtrace covers SEIZE/ATTACH/INTERRUPT/CONT/DETACH syscalls.
	KindPtrace
	// KindUnwind covers an Unwinder backend's inability to step, read
	// registers, or read memory.
	KindUnwind
	// KindProtocol covers self-trace serialization/framing errors.
	KindProtocol
	// KindSymbol covers object-file parse or debug-info query failures.
	// Symbol errors are always non-fatal to the overall trace.
	KindSymbol
)

func (k Kind) String() string {
	switch k {
	case KindIo:
		return "io"
	case KindPtrace:
		return "ptrace"
	case KindUnwind:
		return "unwind"
	case KindProtocol:
		return "protocol"
	case KindSymbol:
		return "symbol"
	default:
		return "unknown"
	}
}

// Error is the module's single opaque error wrapper. It carries a Kind and
// a source-cause chain; use errors.As/errors.Is/KindOf to classify it, not
// string matching.
type Error struct {
	kind  Kind
	cause error
}

func wrapErr(kind Kind, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{kind: kind, cause: cause}
}

func (e *Error) Error() string {
	return fmt.Sprintf("rstack: %s: %v", e.kind, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

// Kind returns the error's classification.
func (e *Error) Kind() Kind { return e.kind }

// KindOf returns the Kind of err if it (or something it wraps) is an
// *Error, and ok=false otherwise.
func KindOf(err error) (kind Kind, ok bool) {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.kind, true
	}
	return 0, false
}
