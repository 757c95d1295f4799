package ptrace

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// ReadMemory reads len(buf) bytes from tid's address space starting at
// addr, using process_vm_readv when available and falling back to
// PTRACE_PEEKDATA word-at-a-time reads (the portable path every kernel
// supporting ptrace also supports). tid must already be ptrace-attached.
func ReadMemory(tid int32, addr uint64, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}

	local := unix.Iovec{Base: &buf[0]}
	local.SetLen(len(buf))
	remote := unix.RemoteIovec{Base: uintptr(addr), Len: len(buf)}

	n, err := unix.ProcessVMReadv(int(tid), []unix.Iovec{local}, []unix.RemoteIovec{remote}, 0)
	if err == nil {
		return n, nil
	}

	return readMemoryPeek(tid, addr, buf)
}

func readMemoryPeek(tid int32, addr uint64, buf []byte) (int, error) {
	n, err := unix.PtracePeekData(int(tid), uintptr(addr), buf)
	if err != nil {
		return n, fmt.Errorf("ptrace peekdata %d@%#x: %w", tid, addr, err)
	}
	return n, nil
}

// ReadWord reads a single little-endian 64-bit word from tid's address
// space at addr.
func ReadWord(tid int32, addr uint64) (uint64, error) {
	var buf [8]byte
	n, err := ReadMemory(tid, addr, buf[:])
	if err != nil {
		return 0, err
	}
	if n < 8 {
		return 0, fmt.Errorf("short read at %#x: got %d of 8 bytes", addr, n)
	}
	return leUint64(buf[:]), nil
}

func leUint64(b []byte) uint64 {
	return uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 | uint64(b[3])<<24 |
		uint64(b[4])<<32 | uint64(b[5])<<40 | uint64(b[6])<<48 | uint64(b[7])<<56
}
