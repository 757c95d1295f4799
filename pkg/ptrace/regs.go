package ptrace

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Registers holds the general-purpose register set of a stopped thread,
// as read by PTRACE_GETREGS.
type Registers struct {
	raw unix.PtraceRegs
}

// GetRegisters reads tid's current register set. tid must be ptrace-
// stopped.
func GetRegisters(tid int32) (*Registers, error) {
	var raw unix.PtraceRegs
	if err := unix.PtraceGetRegs(int(tid), &raw); err != nil {
		return nil, fmt.Errorf("ptrace getregs %d: %w", tid, err)
	}
	return &Registers{raw: raw}, nil
}

// IP returns the instruction pointer, in the architecture-specific field
// (regs_amd64.go, regs_arm64.go).
func (r *Registers) IP() uint64 { return archIP(&r.raw) }

// SP returns the stack pointer.
func (r *Registers) SP() uint64 { return archSP(&r.raw) }

// BP returns the frame/base pointer, where the architecture has one.
func (r *Registers) BP() uint64 { return archBP(&r.raw) }
