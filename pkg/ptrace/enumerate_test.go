package ptrace

import (
	"os"
	"testing"
)

func TestReadCommNameSelf(t *testing.T) {
	pid := int32(os.Getpid())
	name, err := ReadCommName(pid, pid)
	if err != nil {
		t.Fatalf("ReadCommName: %v", err)
	}
	if name == "" {
		t.Errorf("ReadCommName returned empty name")
	}
}

func TestListTaskDirSelf(t *testing.T) {
	pid := int32(os.Getpid())
	tids, err := ListTaskDir(pid)
	if err != nil {
		t.Fatalf("ListTaskDir: %v", err)
	}
	if len(tids) == 0 {
		t.Errorf("ListTaskDir returned no threads for own process")
	}

	found := false
	for _, tid := range tids {
		if tid == pid {
			found = true
		}
	}
	if !found {
		t.Errorf("ListTaskDir(%d) = %v, expected to contain the main thread's tid", pid, tids)
	}
}
