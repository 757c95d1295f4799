// Package dwarfstep is the pure-Go default Unwinder backend: no cgo, no
// libunwind, no DWARF call-frame-information evaluator, just the
// frame-pointer chain every function compiled with frame pointers
// preserves. This is exactly the fallback devilkun-delve's
// arm64FixFrameUnwindContext reaches for "when there's no frame
// descriptor entry": saved-BP at [cfa-2*ptrSize], return address at
// [cfa-ptrSize], cfa == bp + 2*ptrSize. We use it unconditionally rather
// than only as a fallback, since evaluating real .eh_frame/.debug_frame
// programs is out of scope for this package and pkg/unwind/libunwind
// exists for callers who need CFI-accurate unwinding of
// frame-pointer-omitted code.
package dwarfstep

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"

	"github.com/gorstack/rstack/pkg/ptrace"
	"github.com/gorstack/rstack/pkg/unwind"
)

// ProcLookup answers, for an instruction pointer, the enclosing
// procedure's name/offset and bounds, if known. pkg/symbol.Index
// satisfies this signature trivially; dwarfstep takes it as a plain
// function rather than importing pkg/symbol directly, so that package
// stays a leaf of the unwind/symbol/rstack dependency graph rather than
// another node in a cycle.
type ProcLookup func(ip uint64) (name string, offset uint64, startIP, endIP uint64, ok bool)

// Unwinder opens frame-pointer-chain cursors against an already
// ptrace-attached process.
type Unwinder struct {
	pid    int32
	lookup ProcLookup
}

// New creates an Unwinder for pid. lookup may be nil, in which case
// RawProcedureName/RawProcedureBounds always report unknown and only the
// raw IP/frame-pointer chain is produced (still enough for spec §4.4's
// walk to produce correct AdjustedIP values).
func New(pid int32, lookup ProcLookup) *Unwinder {
	if lookup == nil {
		lookup = func(uint64) (string, uint64, uint64, uint64, bool) { return "", 0, 0, 0, false }
	}
	return &Unwinder{pid: pid, lookup: lookup}
}

func (u *Unwinder) Close() error { return nil }

// OpenThread seeds a cursor from tid's current register state. tid must
// already be ptrace-stopped (pkg/ptrace.Attach).
func (u *Unwinder) OpenThread(tid int32) (unwind.Cursor, error) {
	regs, err := ptrace.GetRegisters(tid)
	if err != nil {
		return nil, &unwind.Error{Op: "get_registers", Cause: err}
	}
	return &Cursor{
		pid: u.pid, tid: tid, lookup: u.lookup,
		ip: regs.IP(), bp: regs.BP(), sp: regs.SP(),
		first: true,
	}, nil
}

// Cursor walks a frame-pointer chain one call frame at a time.
type Cursor struct {
	pid, tid int32
	lookup   ProcLookup

	ip, bp, sp uint64
	first      bool
}

func (c *Cursor) InstructionPointer() (uint64, error) { return c.ip, nil }

// IsSignalFrame reports true when the current IP falls inside a
// recognized signal-trampoline procedure (e.g. runtime.sigreturn,
// __restore_rt), the same heuristic devilkun-delve's
// arm64FixFrameUnwindContext comment describes: a signal handler does
// not perform a normal call, so its saved registers must still be
// trusted even though no ordinary frame-pointer push occurred.
func (c *Cursor) IsSignalFrame() (isSignal bool, known bool) {
	name, _, _, _, ok := c.lookup(c.ip)
	if !ok {
		return false, false
	}
	return isSignalTrampoline(name), true
}

func (c *Cursor) Step() (unwind.StepResult, error) {
	if c.first {
		c.first = false

		if atEntry, err := c.prologuePush(); err == nil && atEntry {
			// The topmost frame is stopped at its very first instruction
			// ("push %rbp"), before the prologue runs: the bp register
			// still belongs to the caller, and the return address sits
			// directly at [sp] rather than at [bp+archWordSize].
			retAddr, err := ptrace.ReadWord(c.tid, c.sp)
			if err != nil {
				return unwind.EndOfStack, &unwind.Error{Op: "read_return_address", Cause: err}
			}
			if retAddr == 0 {
				return unwind.EndOfStack, nil
			}
			c.ip = retAddr
			c.sp += archWordSize
			return unwind.MoreFrames, nil
		}
	}

	if c.bp == 0 {
		return unwind.EndOfStack, nil
	}

	savedBP, err := ptrace.ReadWord(c.tid, c.bp)
	if err != nil {
		return unwind.EndOfStack, &unwind.Error{Op: "read_saved_bp", Cause: err}
	}
	retAddr, err := ptrace.ReadWord(c.tid, c.bp+archWordSize)
	if err != nil {
		return unwind.EndOfStack, &unwind.Error{Op: "read_return_address", Cause: err}
	}

	if retAddr == 0 {
		return unwind.EndOfStack, nil
	}

	c.sp = c.bp + 2*archWordSize
	c.ip = retAddr
	c.bp = savedBP
	return unwind.MoreFrames, nil
}

func (c *Cursor) RawProcedureName() (name string, offset uint64, ok bool) {
	n, off, _, _, ok := c.lookup(c.ip)
	return n, off, ok
}

func (c *Cursor) RawProcedureBounds() (startIP, endIP uint64, ok bool) {
	_, _, start, end, ok := c.lookup(c.ip)
	return start, end, ok
}

func isSignalTrampoline(name string) bool {
	switch name {
	case "runtime.sigreturn", "__restore_rt", "__restore":
		return true
	default:
		return false
	}
}

// prologueAdjustedSP reports whether the instruction at buf (read from
// the traced process at ip) is a function's entry "push %rbp" before the
// frame pointer chain has been established, in which case the return
// address sits at [sp] rather than via the (still-caller's) bp. Step
// consults this, through the arch-specific prologuePush, for the topmost
// frame: a thread can legitimately be stopped at a function's very first
// instruction, before its own frame pointer push has executed.
func prologueAdjustedSP(buf []byte, mode int) (pushesRBP bool, err error) {
	inst, err := x86asm.Decode(buf, mode)
	if err != nil {
		return false, fmt.Errorf("decode prologue: %w", err)
	}
	if inst.Op != x86asm.PUSH || len(inst.Args) == 0 {
		return false, nil
	}
	return inst.Args[0] == x86asm.RBP, nil
}
