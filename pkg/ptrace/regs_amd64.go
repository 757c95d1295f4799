//go:build amd64

package ptrace

import "golang.org/x/sys/unix"

func archIP(r *unix.PtraceRegs) uint64 { return r.Rip }
func archSP(r *unix.PtraceRegs) uint64 { return r.Rsp }
func archBP(r *unix.PtraceRegs) uint64 { return r.Rbp }
