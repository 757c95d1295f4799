//go:build linux

package symbol

import (
	"os"
	"testing"
)

func TestLoadRemoteImagesSelf(t *testing.T) {
	pid := int32(os.Getpid())
	images, err := loadRemoteImages(pid)
	if err != nil {
		t.Fatalf("loadRemoteImages: %v", err)
	}
	if len(images) == 0 {
		t.Fatalf("loadRemoteImages(%d) = empty, want at least the test binary itself", pid)
	}

	exe, err := os.Executable()
	if err != nil {
		t.Skipf("os.Executable: %v", err)
	}
	found := false
	for _, img := range images {
		if img.path == exe {
			found = true
		}
	}
	if !found {
		t.Errorf("loadRemoteImages(%d) did not include the executable %s: %+v", pid, exe, images)
	}
}

func TestBuildRemoteSelf(t *testing.T) {
	pid := int32(os.Getpid())
	idx, err := BuildRemote(pid)
	if err != nil {
		t.Fatalf("BuildRemote: %v", err)
	}
	if len(idx.Images) == 0 {
		t.Fatalf("BuildRemote(%d).Images = empty", pid)
	}
	if len(idx.Segments) == 0 {
		t.Fatalf("BuildRemote(%d).Segments = empty", pid)
	}
}
