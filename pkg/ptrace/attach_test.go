package ptrace

import (
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestAttachDetachChild exercises Attach/Close against a real child
// process. Gated behind RSTACK_INTEGRATION_TESTS since it requires
// ptrace permissions (CAP_SYS_PTRACE or an unrestricted yama ptrace_scope)
// that a sandboxed or CI build environment may not grant.
func TestAttachDetachChild(t *testing.T) {
	if os.Getenv("RSTACK_INTEGRATION_TESTS") == "" {
		t.Skip("set RSTACK_INTEGRATION_TESTS=1 to run ptrace-attach integration tests")
	}

	cmd := exec.Command("sleep", "5")
	require.NoError(t, cmd.Start())
	defer cmd.Process.Kill()

	time.Sleep(50 * time.Millisecond)

	tt, err := Attach(int32(cmd.Process.Pid))
	require.NoError(t, err)
	defer tt.Close()

	regs, err := GetRegisters(int32(cmd.Process.Pid))
	require.NoError(t, err)
	require.NotZero(t, regs.IP())

	require.NoError(t, tt.Close())
}

func TestEnumerateSnapshotChild(t *testing.T) {
	if os.Getenv("RSTACK_INTEGRATION_TESTS") == "" {
		t.Skip("set RSTACK_INTEGRATION_TESTS=1 to run ptrace-attach integration tests")
	}

	cmd := exec.Command("sleep", "5")
	require.NoError(t, cmd.Start())
	defer cmd.Process.Kill()

	time.Sleep(50 * time.Millisecond)

	threads, err := EnumerateSnapshot(int32(cmd.Process.Pid))
	require.NoError(t, err)
	defer detachAll(toMap(threads))

	require.NotEmpty(t, threads)
}

func toMap(threads []*TracedThread) map[int32]*TracedThread {
	m := make(map[int32]*TracedThread, len(threads))
	for _, tt := range threads {
		m[tt.TID] = tt
	}
	return m
}
