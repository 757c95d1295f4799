//go:build arm64

package ptrace

import "golang.org/x/sys/unix"

func archIP(r *unix.PtraceRegs) uint64 { return r.Pc }
func archSP(r *unix.PtraceRegs) uint64 { return r.Sp }

// archBP returns the ARM64 frame pointer, x29, which unix.PtraceRegs
// exposes as Regs[29].
func archBP(r *unix.PtraceRegs) uint64 { return r.Regs[29] }
