//go:build libunwind

// Package libunwind is an optional Unwinder backed by libunwind's
// ptrace accessors (the same production path sfackler/rstack uses via
// its unwind/unwind-sys crates: unw_create_addr_space +
// unw_accessors_ptrace + unw_init_remote + unw_step). It requires
// libunwind-ptrace and libunwind-generic to be installed and linkable,
// so it is gated behind the "libunwind" build tag; pkg/unwind/dwarfstep
// is the pure-Go default that needs no C library at all.
package libunwind

/*
#cgo LDFLAGS: -lunwind-ptrace -lunwind-generic -lunwind
#include <stdlib.h>
#include <libunwind.h>
#include <libunwind-ptrace.h>

static int rstack_step(unw_cursor_t *cursor) {
	return unw_step(cursor);
}
*/
import "C"

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/gorstack/rstack/pkg/unwind"
)

// Unwinder opens libunwind cursors against a ptrace'd process's address
// space, one unw_addr_space_t shared across every thread traced in a
// single Trace call (mirrors rstack::imp::unwind::State, which wraps one
// AddressSpace<PTraceStateRef> per TraceOptions.Trace invocation).
type Unwinder struct {
	mu   sync.Mutex
	pid  C.pid_t
	as   C.unw_addr_space_t
	accs *C.unw_accessors_t
}

// New creates an Unwinder for the process pid, whose threads the caller
// must already have ptrace-attached (pkg/ptrace.Attach) before OpenThread
// is called for any of them.
func New(pid int32) (*Unwinder, error) {
	accs := C.unw_accessors_t(C._UPT_accessors)
	as := C.unw_create_addr_space(&accs, 0)
	if as == nil {
		return nil, &unwind.Error{Op: "unw_create_addr_space", Cause: fmt.Errorf("failed")}
	}
	return &Unwinder{pid: C.pid_t(pid), as: as, accs: &accs}, nil
}

// Close releases the shared address space. Safe to call once all Cursors
// opened from u have gone out of scope.
func (u *Unwinder) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.as != nil {
		C.unw_destroy_addr_space(u.as)
		u.as = nil
	}
	return nil
}

// OpenThread creates a ptrace-backed unwind cursor for tid, which must be
// a thread of the process u was built for.
func (u *Unwinder) OpenThread(tid int32) (unwind.Cursor, error) {
	upt := C._UPT_create(C.pid_t(tid))
	if upt == nil {
		return nil, &unwind.Error{Op: "_UPT_create", Cause: fmt.Errorf("tid %d", tid)}
	}

	var cursor C.unw_cursor_t
	ret := C.unw_init_remote(&cursor, u.as, upt)
	if ret != 0 {
		C._UPT_destroy(upt)
		return nil, &unwind.Error{Op: "unw_init_remote", Cause: errnoOf(ret)}
	}

	return &Cursor{cursor: cursor, upt: upt}, nil
}

// Cursor wraps one libunwind unw_cursor_t, stepping the remote thread's
// call stack frame by frame (spec §4.4's walk loop, via pkg/rstack's
// generic unwind.Cursor consumer).
type Cursor struct {
	cursor C.unw_cursor_t
	upt    unsafe.Pointer
	closed bool
}

func (c *Cursor) InstructionPointer() (uint64, error) {
	var ip C.unw_word_t
	if ret := C.unw_get_reg(&c.cursor, C.UNW_REG_IP, &ip); ret != 0 {
		return 0, &unwind.Error{Op: "unw_get_reg(IP)", Cause: errnoOf(ret)}
	}
	return uint64(ip), nil
}

func (c *Cursor) IsSignalFrame() (isSignal bool, known bool) {
	ret := C.unw_is_signal_frame(&c.cursor)
	if ret < 0 {
		return false, false
	}
	return ret != 0, true
}

func (c *Cursor) Step() (unwind.StepResult, error) {
	ret := C.rstack_step(&c.cursor)
	if ret < 0 {
		return unwind.EndOfStack, &unwind.Error{Op: "unw_step", Cause: errnoOf(C.int(ret))}
	}
	if ret == 0 {
		return unwind.EndOfStack, nil
	}
	return unwind.MoreFrames, nil
}

func (c *Cursor) RawProcedureName() (name string, offset uint64, ok bool) {
	buf := make([]byte, 512)
	var off C.unw_word_t
	ret := C.unw_get_proc_name(&c.cursor, (*C.char)(unsafe.Pointer(&buf[0])), C.size_t(len(buf)), &off)
	if ret != 0 {
		return "", 0, false
	}
	return C.GoString((*C.char)(unsafe.Pointer(&buf[0]))), uint64(off), true
}

func (c *Cursor) RawProcedureBounds() (startIP, endIP uint64, ok bool) {
	var info C.unw_proc_info_t
	if ret := C.unw_get_proc_info(&c.cursor, &info); ret != 0 {
		return 0, 0, false
	}
	return uint64(info.start_ip), uint64(info.end_ip), true
}

// Close releases the _UPT_info created for this thread's cursor. Close is
// not part of the unwind.Cursor interface, so only callers that
// type-assert to *Cursor can call it; pkg/rstack's walk loop does not.
func (c *Cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	C._UPT_destroy(c.upt)
	return nil
}

func errnoOf(ret C.int) error {
	return fmt.Errorf("libunwind error %d", int(ret))
}
