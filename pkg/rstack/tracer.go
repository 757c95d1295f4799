package rstack

import (
	"fmt"

	"github.com/gorstack/rstack/internal/logflags"
	"github.com/gorstack/rstack/pkg/ptrace"
	"github.com/gorstack/rstack/pkg/unwind"
)

// SymbolResolver looks up the Symbol and inline chain covering an address,
// per pkg/symbol.Index.Lookup. It is an interface here, rather than a
// direct dependency on pkg/symbol, purely to keep pkg/rstack from needing
// to import the (cgo-using, heavier) symbol package when symbolication is
// disabled; pkg/symbol.Index satisfies it.
type SymbolResolver interface {
	Lookup(addr Address) (*Symbol, []InlineFrame)
}

// Trace enumerates and unwinds every thread of pid (spec §4.4), using
// unwinder to walk each thread's call stack. It passes no SymbolResolver,
// so its frames carry no Symbol or inline chain even when Symbols is set;
// TraceWithSymbols takes one.
func (o *TraceOptions) Trace(pid int32, unwinder unwind.Unwinder) (*Process, error) {
	return o.trace(pid, unwinder, nil)
}

// TraceWithSymbols is like Trace but also resolves symbols/inline chains
// through resolver when o.Symbols is set.
func (o *TraceOptions) TraceWithSymbols(pid int32, unwinder unwind.Unwinder, resolver SymbolResolver) (*Process, error) {
	return o.trace(pid, unwinder, resolver)
}

func (o *TraceOptions) trace(pid int32, unwinder unwind.Unwinder, resolver SymbolResolver) (*Process, error) {
	log := logflags.TraceLogger()

	if o.PtraceAttach && !o.Snapshot {
		// Rolling mode: each thread is traced inside the callback, while
		// EnumerateRolling still holds it attached.
		var result []*Thread
		err := ptrace.EnumerateRolling(pid, func(tid int32, tt *ptrace.TracedThread) {
			if thread, err := o.traceOne(pid, tt, unwinder, resolver); err != nil {
				log.Debugf("error tracing thread %d: %v", tid, err)
			} else {
				result = append(result, thread)
			}
		})
		if err != nil {
			return nil, wrapErr(KindIo, err)
		}
		return &Process{id: pid, threads: result}, nil
	}

	threads, err := o.enumerate(pid)
	if err != nil {
		return nil, wrapErr(KindIo, err)
	}

	var result []*Thread
	for _, tt := range threads {
		thread, err := o.traceOne(pid, tt, unwinder, resolver)
		if err != nil {
			log.Debugf("error tracing thread %d: %v", tt.TID, err)
		}
		if o.PtraceAttach {
			tt.Close()
		}
		if thread != nil {
			result = append(result, thread)
		}
	}

	return &Process{id: pid, threads: result}, nil
}

// enumerate acquires the set of threads to trace, honoring Snapshot and
// PtraceAttach (spec §4.3, §4.5). When PtraceAttach is false the caller
// guarantees threads are already attached and stopped: we list the task
// directory but wrap every TID as an owned (non-detaching) handle instead
// of seizing it ourselves.
func (o *TraceOptions) enumerate(pid int32) ([]*ptrace.TracedThread, error) {
	if !o.PtraceAttach {
		return o.enumerateOwned(pid)
	}
	if o.Snapshot {
		return ptrace.EnumerateSnapshot(pid)
	}

	var threads []*ptrace.TracedThread
	err := ptrace.EnumerateRolling(pid, func(tid int32, tt *ptrace.TracedThread) {
		threads = append(threads, tt)
	})
	return threads, err
}

func (o *TraceOptions) enumerateOwned(pid int32) ([]*ptrace.TracedThread, error) {
	tids, err := ptrace.ListTaskDir(pid)
	if err != nil {
		return nil, err
	}
	out := make([]*ptrace.TracedThread, 0, len(tids))
	for _, tid := range tids {
		out = append(out, ptrace.Owned(tid))
	}
	return out, nil
}

// traceOne drives the Unwinder over a single attached thread, assembling
// its Frame list (spec §4.4). Per-thread errors are non-fatal to the
// overall trace: the caller logs them and moves on.
func (o *TraceOptions) traceOne(pid int32, tt *ptrace.TracedThread, unwinder unwind.Unwinder, resolver SymbolResolver) (*Thread, error) {
	var name string
	if o.ThreadNames {
		n, err := ptrace.ReadCommName(pid, tt.TID)
		if err != nil {
			logflags.TraceLogger().Debugf("error getting name for thread %d: %v", tt.TID, err)
		} else {
			name = n
		}
	}

	cursor, err := unwinder.OpenThread(tt.TID)
	if err != nil {
		return nil, wrapErr(KindUnwind, fmt.Errorf("open cursor for thread %d: %w", tt.TID, err))
	}

	frames, err := walk(cursor, o, resolver)
	// A walk error truncates the frame list at the last good step rather
	// than discarding the thread (spec §4.4 step 4, §7).
	if err != nil {
		logflags.TraceLogger().Debugf("error unwinding thread %d: %v", tt.TID, err)
	}

	return &Thread{id: ThreadId(tt.TID), name: name, frames: frames}, nil
}

// walk drives cursor to exhaustion, recording one Frame per step. It
// treats a current IP of 0 as an implicit end-of-stack (spec §4.4's
// "legacy unwinder" quirk, and spec §9's open question, resolved in
// DESIGN.md as "keep unconditionally").
func walk(cursor unwind.Cursor, o *TraceOptions, resolver SymbolResolver) ([]*Frame, error) {
	var frames []*Frame

	for {
		ip, err := cursor.InstructionPointer()
		if err != nil {
			return frames, fmt.Errorf("read ip: %w", err)
		}

		isSignal, known := cursor.IsSignalFrame()
		tri := Unknown
		if known {
			tri = tristateOf(isSignal)
		}

		frame := &Frame{IP: Address(ip), IsSignal: tri}

		if o.Symbols && resolver != nil {
			frame.Symbol, frame.InlineChain = resolver.Lookup(frame.AdjustedIP())
		}

		frames = append(frames, frame)

		if ip == 0 {
			break
		}

		result, err := cursor.Step()
		if err != nil {
			return frames, fmt.Errorf("step: %w", err)
		}
		if result == unwind.EndOfStack {
			break
		}
	}

	return frames, nil
}
