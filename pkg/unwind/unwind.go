// Package unwind defines the narrow Unwinder contract the core tracer
// depends on (spec §6). The stack-walking engine itself is an external
// collaborator: this package only fixes the interface two interchangeable
// backends must satisfy.
//
//   - pkg/unwind/dwarfstep implements a pure-Go frame-pointer-chain
//     stepper (it does not evaluate DWARF CFI).
//   - pkg/unwind/libunwind implements a cgo wrapper around
//     libunwind-ptrace, built only with the "libunwind" build tag.
//
// Neither backend imports pkg/rstack; pkg/rstack imports this package and
// adapts Cursor results into its own Frame/Tristate vocabulary, keeping the
// dependency direction the same as the source's trait/cfg-module split
// (§9's "pluggable unwinder" design note).
package unwind

import "fmt"

// StepResult is the outcome of advancing a Cursor one frame.
type StepResult int

const (
	// MoreFrames indicates the cursor moved to a new frame; the caller
	// should record it and call Step again.
	MoreFrames StepResult = iota
	// EndOfStack indicates there are no more frames; the current frame
	// (already recorded by the caller before this call) was the last.
	EndOfStack
)

// Cursor is a single thread's stack-walking position. A Cursor borrows
// both the AddressSpace it was opened from and the thread state it
// describes; callers must not use a Cursor after either has been closed.
type Cursor interface {
	// InstructionPointer returns the current frame's IP.
	InstructionPointer() (uint64, error)
	// IsSignalFrame reports whether the current frame was pushed by the
	// kernel delivering a signal. known=false if the backend cannot tell.
	IsSignalFrame() (isSignal bool, known bool)
	// Step advances to the next (caller) frame.
	Step() (StepResult, error)
	// RawProcedureName optionally returns the backend's own idea of the
	// current frame's procedure name and the IP's offset from its start,
	// before any symbol index lookup. ok=false if the backend doesn't
	// track procedure names (e.g. the dwarfstep stepper built without a
	// lookup function) or doesn't know one for this frame.
	RawProcedureName() (name string, offset uint64, ok bool)
	// RawProcedureBounds optionally returns the current frame's procedure
	// address range. ok=false if unavailable.
	RawProcedureBounds() (startIP, endIP uint64, ok bool)
}

// Unwinder opens a Cursor for a single OS thread of a process already
// attached via ptrace (pkg/ptrace.TracedThread). Implementations must not
// themselves attach or detach; that is pkg/ptrace's job.
type Unwinder interface {
	// OpenThread returns a Cursor positioned at tid's current (innermost)
	// frame. tid must already be ptrace-stopped.
	OpenThread(tid int32) (Cursor, error)
	// Close releases any per-process resources (e.g. the remote address
	// space handle) held by the Unwinder. Cursors opened from it must not
	// be used afterward.
	Close() error
}

// Error wraps a failure from an Unwinder backend with the operation that
// failed, used by pkg/rstack to classify it as rstack.KindUnwind without
// string matching.
type Error struct {
	Op    string
	Cause error
}

func (e *Error) Error() string { return fmt.Sprintf("unwind: %s: %v", e.Op, e.Cause) }
func (e *Error) Unwrap() error { return e.Cause }
