package rstack

import "github.com/gorstack/rstack/pkg/unwind"

// TraceOptions configures a trace, per spec §4.5.
type TraceOptions struct {
	// Snapshot selects snapshot-mode thread enumeration (all threads
	// stopped together for a consistent view) instead of rolling mode
	// (each thread attached, traced, and detached in turn).
	Snapshot bool
	// ThreadNames reads each thread's /proc/<pid>/task/<tid>/comm.
	ThreadNames bool
	// Symbols resolves symbols and inline chains through the
	// SymbolResolver given to TraceWithSymbols. Trace passes no resolver,
	// so with Trace this option resolves nothing.
	Symbols bool
	// PtraceAttach has the tracer perform PTRACE_SEIZE/ATTACH itself. If
	// false, the caller guarantees every thread is already attached and
	// stopped, and the tracer must not attempt to seize or detach them.
	PtraceAttach bool
}

// NewTraceOptions returns the zero-value TraceOptions (every option
// false/disabled except PtraceAttach, which defaults to true).
func NewTraceOptions() *TraceOptions {
	return &TraceOptions{PtraceAttach: true}
}

// Trace is the convenience entry point: thread names on, snapshot mode
// off, ptrace_attach on. It sets Symbols, but it runs TraceOptions.Trace,
// which has no SymbolResolver, so the returned frames carry no Symbol or
// inline chain.
func Trace(pid int32, unwinder unwind.Unwinder) (*Process, error) {
	opts := &TraceOptions{
		ThreadNames:  true,
		Symbols:      true,
		PtraceAttach: true,
	}
	return opts.Trace(pid, unwinder)
}
