// Package ptrace implements ThreadAttacher and ThreadEnumerator (spec
// §4.2, §4.3): acquiring exclusive, stopped ownership of individual Linux
// threads via ptrace, and converging on the set of threads of a target
// process under churn.
package ptrace

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/gorstack/rstack/internal/logflags"
)

// TracedThread is a resource handle owning the attached ptrace state for a
// single TID (spec §3). Detach is issued exactly once, on Close, when
// ShouldDetach is true.
type TracedThread struct {
	TID          int32
	ShouldDetach bool
	closed       bool
}

// Owned wraps a TID the caller already controls (already attached and
// stopped, e.g. because TraceOptions.PtraceAttach is false). Close on the
// result is a no-op.
func Owned(tid int32) *TracedThread {
	return &TracedThread{TID: tid, ShouldDetach: false}
}

// Attach seizes and interrupts tid (spec §4.2 primary path), falling back
// to PTRACE_ATTACH + wait-for-SIGSTOP when the kernel's SEIZE support is
// unavailable. It blocks until tid is stopped.
func Attach(tid int32) (*TracedThread, error) {
	if err := unix.PtraceSeize(int(tid)); err != nil {
		if !seizeUnsupported(err) {
			return nil, fmt.Errorf("ptrace seize %d: %w", tid, err)
		}
		logflags.PtraceLogger().Debugf("seize unsupported for %d, falling back to attach", tid)
		return attachFallback(tid)
	}

	if err := unix.PtraceInterrupt(int(tid)); err != nil {
		return nil, fmt.Errorf("ptrace interrupt %d: %w", tid, err)
	}

	status, err := waitStopped(tid)
	if err != nil {
		return nil, err
	}
	if !status.Stopped() {
		return nil, fmt.Errorf("ptrace %d: unexpected wait status %v", tid, status)
	}

	return &TracedThread{TID: tid, ShouldDetach: true}, nil
}

// attachFallback implements the legacy PTRACE_ATTACH path: attach, then
// loop waiting for the SIGSTOP the attach itself generates, continuing any
// other signal through until it arrives.
func attachFallback(tid int32) (*TracedThread, error) {
	if err := unix.PtraceAttach(int(tid)); err != nil {
		return nil, fmt.Errorf("ptrace attach %d: %w", tid, err)
	}

	for {
		status, err := waitStopped(tid)
		if err != nil {
			return nil, err
		}
		if status.Stopped() && status.StopSignal() == unix.SIGSTOP {
			return &TracedThread{TID: tid, ShouldDetach: true}, nil
		}
		sig := 0
		if status.Stopped() {
			sig = int(status.StopSignal())
		}
		if err := unix.PtraceCont(int(tid), sig); err != nil {
			return nil, fmt.Errorf("ptrace cont %d: %w", tid, err)
		}
	}
}

// waitStopped waits for tid to report a status, retrying EINTR, and
// requires __WALL so thread-group members not directly spawned by the
// caller are still reaped correctly.
func waitStopped(tid int32) (unix.WaitStatus, error) {
	var status unix.WaitStatus
	for {
		_, err := unix.Wait4(int(tid), &status, unix.WALL, nil)
		if err == nil {
			return status, nil
		}
		if errors.Is(err, unix.EINTR) {
			continue
		}
		return status, fmt.Errorf("waitpid %d: %w", tid, err)
	}
}

// seizeUnsupported reports whether err indicates the running kernel lacks
// PTRACE_SEIZE support (surfaced as ESRCH or EIO on pre-3.4 kernels) rather
// than the target having genuinely vanished. We can't always distinguish
// these perfectly from the errno alone; like the reference implementation,
// we treat ESRCH/EIO from SEIZE as "try the fallback" and let the fallback's
// own ESRCH surface as the real "thread is gone" signal.
func seizeUnsupported(err error) bool {
	return errors.Is(err, unix.ESRCH) || errors.Is(err, unix.EIO)
}

// Close releases the traced thread. If ShouldDetach, PTRACE_DETACH is
// issued unconditionally; its return value is ignored, matching the
// reference implementation's drop-time best-effort detach. Close is safe
// to call more than once and does nothing on later calls.
func (t *TracedThread) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	if t.ShouldDetach {
		_ = unix.PtraceDetach(int(t.TID))
	}
	return nil
}
