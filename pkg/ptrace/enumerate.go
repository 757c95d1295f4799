package ptrace

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/gorstack/rstack/internal/logflags"
)

// maxSnapshotPasses bounds snapshot-mode convergence (spec §4.3): a
// runaway thread fork-loop must not spin the tracer forever. Convergence
// in practice takes at most 3 passes.
const maxSnapshotPasses = 5

// EnumerateSnapshot attaches to every thread of pid, looping until a pass
// adds no new threads (or maxSnapshotPasses is reached), giving a
// consistent cross-thread view at the cost of holding every thread stopped
// for the whole enumeration. Threads that exit between listing and attach
// (ESRCH) are skipped silently; any other error aborts the whole
// enumeration and detaches everything collected so far.
func EnumerateSnapshot(pid int32) ([]*TracedThread, error) {
	byTID := make(map[int32]*TracedThread)

	for pass := 0; pass < maxSnapshotPasses; pass++ {
		tids, err := listTaskDir(pid)
		if err != nil {
			detachAll(byTID)
			return nil, err
		}

		before := len(byTID)
		for _, tid := range tids {
			if _, ok := byTID[tid]; ok {
				continue
			}
			tt, err := Attach(tid)
			if err != nil {
				if isESRCH(err) {
					logflags.PtraceLogger().Debugf("thread %d exited before attach", tid)
					continue
				}
				detachAll(byTID)
				return nil, err
			}
			byTID[tid] = tt
		}

		if len(byTID) == before {
			break
		}
	}

	out := make([]*TracedThread, 0, len(byTID))
	for _, tt := range byTID {
		out = append(out, tt)
	}
	return out, nil
}

// EnumerateRolling calls fn once per thread currently listed under
// /proc/<pid>/task, attaching immediately before the call and detaching
// immediately after. Threads observed mid-enumeration are not mutually
// consistent with each other, but no thread is paused longer than its own
// call to fn.
func EnumerateRolling(pid int32, fn func(tid int32, tt *TracedThread)) error {
	tids, err := listTaskDir(pid)
	if err != nil {
		return err
	}

	for _, tid := range tids {
		tt, err := Attach(tid)
		if err != nil {
			if isESRCH(err) {
				logflags.PtraceLogger().Debugf("thread %d exited before attach", tid)
				continue
			}
			if isEPERM(err) {
				return err
			}
			logflags.PtraceLogger().Debugf("error attaching to thread %d: %v", tid, err)
			continue
		}
		fn(tid, tt)
		tt.Close()
	}

	return nil
}

// ReadCommName reads /proc/<pid>/task/<tid>/comm, trims surrounding
// whitespace, and decodes it as lossy UTF-8, per spec §4.4 step 1 and §6.
func ReadCommName(pid, tid int32) (string, error) {
	path := fmt.Sprintf("/proc/%d/task/%d/comm", pid, tid)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return strings.TrimSpace(strings.ToValidUTF8(string(data), "�")), nil
}

// ListTaskDir returns the TIDs currently listed under /proc/<pid>/task, in
// arbitrary order. Used directly (without attaching) when
// TraceOptions.PtraceAttach is false: the caller already guarantees every
// thread is attached and stopped.
func ListTaskDir(pid int32) ([]int32, error) { return listTaskDir(pid) }

func listTaskDir(pid int32) ([]int32, error) {
	dir := fmt.Sprintf("/proc/%d/task", pid)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	tids := make([]int32, 0, len(entries))
	for _, e := range entries {
		n, err := strconv.ParseInt(e.Name(), 10, 32)
		if err != nil || n < 0 {
			continue
		}
		tids = append(tids, int32(n))
	}
	return tids, nil
}

func detachAll(byTID map[int32]*TracedThread) {
	for _, tt := range byTID {
		tt.Close()
	}
}

func isESRCH(err error) bool { return errors.Is(err, unix.ESRCH) }
func isEPERM(err error) bool { return errors.Is(err, unix.EPERM) }
