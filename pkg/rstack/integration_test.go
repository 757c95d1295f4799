package rstack

import (
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/gorstack/rstack/pkg/unwind/dwarfstep"
)

// TestTraceChildProcess runs a full trace of a real child process using
// the pure-Go dwarfstep unwinder. Gated behind RSTACK_INTEGRATION_TESTS
// for the same ptrace-permission reasons as pkg/ptrace's integration
// tests.
func TestTraceChildProcess(t *testing.T) {
	if os.Getenv("RSTACK_INTEGRATION_TESTS") == "" {
		t.Skip("set RSTACK_INTEGRATION_TESTS=1 to run end-to-end trace integration tests")
	}

	cmd := exec.Command("sleep", "5")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start sleep: %v", err)
	}
	defer cmd.Process.Kill()
	time.Sleep(50 * time.Millisecond)

	pid := int32(cmd.Process.Pid)
	unwinder := dwarfstep.New(pid, nil)
	defer unwinder.Close()

	opts := NewTraceOptions()
	opts.ThreadNames = true
	opts.Snapshot = true

	process, err := opts.Trace(pid, unwinder)
	if err != nil {
		t.Fatalf("Trace: %v", err)
	}
	if process.Id() != pid {
		t.Errorf("process.Id() = %d, want %d", process.Id(), pid)
	}
	if len(process.Threads()) == 0 {
		t.Fatalf("Trace returned no threads")
	}
	for _, th := range process.Threads() {
		if len(th.Frames()) == 0 {
			t.Errorf("thread %d has no frames", th.Id())
		}
	}
}
