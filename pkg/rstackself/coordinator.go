package rstackself

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/gorstack/rstack/internal/logflags"
	"github.com/gorstack/rstack/pkg/rstack"
	"github.com/gorstack/rstack/pkg/symbol"
)

// traceLock serializes every self-trace in this process, since only one
// thread may hold PR_SET_PTRACER pointed at the helper child at a time
// (spec §5's TRACE_LOCK, grounded on rstack-self/src/lib.rs's
// lazy_static TRACE_LOCK: Mutex<()>).
var traceLock sync.Mutex

// Command is the *exec.Cmd that will run as the tracer helper.
// Callers typically re-exec their own binary with a hidden subcommand
// that calls Child (see cmd/rstack's "self-demo" wiring); Command is
// supplied by the caller rather than hardcoded so this package stays
// independent of any particular CLI flag layout.
type Command = exec.Cmd

// Trace spawns child (already configured with the child-side entry
// point as its argv), lets it ptrace this process, and returns the
// symbolicated result (spec §5 end to end). child's Stdin/Stdout must be
// left unset; Trace wires its own pipes.
func Trace(child *Command, opts Options) (*rstack.Process, error) {
	traceLock.Lock()
	defer traceLock.Unlock()

	log := logflags.SelfTraceLogger()

	stdin, err := child.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("rstackself: stdin pipe: %w", err)
	}
	stdoutPipe, err := child.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("rstackself: stdout pipe: %w", err)
	}
	stdout := bufio.NewReader(stdoutPipe)

	if err := child.Start(); err != nil {
		return nil, fmt.Errorf("rstackself: start helper: %w", err)
	}

	bomb := &ptracerBomb{armed: true}
	defer bomb.maybeExplode(log)

	if err := setPtracer(uint32(child.Process.Pid)); err != nil {
		_ = child.Process.Kill()
		_ = child.Wait()
		return nil, fmt.Errorf("rstackself: prctl(PR_SET_PTRACER): %w", err)
	}

	if err := WriteOptions(stdin, opts); err != nil {
		_ = child.Process.Kill()
		_ = child.Wait()
		return nil, err
	}
	if err := writeHandshake(stdin); err != nil {
		_ = child.Process.Kill()
		_ = child.Wait()
		return nil, fmt.Errorf("rstackself: start handshake: %w", err)
	}

	raw, err := ReadResult(stdout)
	if err != nil {
		_ = child.Process.Kill()
		_ = child.Wait()
		return nil, err
	}

	bomb.armed = false
	if err := setPtracer(0); err != nil {
		log.Debugf("revoking ptracer: %v", err)
	}

	if err := writeHandshake(stdin); err != nil {
		log.Debugf("exit handshake: %v", err)
	}
	_ = stdin.Close()

	if err := child.Wait(); err != nil {
		log.Debugf("helper child exited: %v", err)
	}

	return symbolicate(raw), nil
}

// ptracerBomb revokes PR_SET_PTRACER on any early return, mirroring
// rstack-self/src/lib.rs's PtracerBomb Drop guard: a failure partway
// through the handshake must not leave the helper authorized to ptrace
// this process indefinitely.
type ptracerBomb struct{ armed bool }

func (b *ptracerBomb) maybeExplode(log *logrus.Entry) {
	if !b.armed {
		return
	}
	b.armed = false
	if err := setPtracer(0); err != nil {
		log.Debugf("revoking ptracer on early return: %v", err)
	}
}

// setPtracer grants or revokes ptrace authorization via
// prctl(PR_SET_PTRACER, pid). EINVAL means the running kernel has no Yama
// LSM (or its ptrace_scope already permits the attach implicitly): the
// call has nothing to do, so it is treated as success rather than a fatal
// error (spec §4.6 step 3).
func setPtracer(pid uint32) error {
	err := unix.Prctl(unix.PR_SET_PTRACER, uintptr(pid), 0, 0, 0)
	if err == unix.EINVAL {
		return nil
	}
	return err
}

// symbolicate resolves every raw frame's address against the
// process-wide, self-process SymbolIndex (spec §5 step 6, §9): only the
// parent ever calls this, since only the parent's dl_iterate_phdr view
// describes its own loaded images.
func symbolicate(raw []RawThread) *rstack.Process {
	idx := symbol.Get()

	threads := make([]*rstack.Thread, 0, len(raw))
	for _, rt := range raw {
		frames := make([]*rstack.Frame, 0, len(rt.Frames))
		for _, rf := range rt.Frames {
			frame := &rstack.Frame{
				IP:       rstack.Address(rf.IP),
				IsSignal: rstack.TristateOf(rf.IsSignal),
			}
			frame.Symbol, frame.InlineChain = idx.Lookup(frame.AdjustedIP())
			frames = append(frames, frame)
		}
		threads = append(threads, rstack.NewThread(rstack.ThreadId(rt.ID), rt.Name, frames))
	}

	return rstack.NewProcess(int32(os.Getpid()), threads)
}
