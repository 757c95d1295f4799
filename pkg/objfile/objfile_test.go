package objfile

import (
	"os"
	"testing"
)

// openSelf parses this test binary's own ELF image: every `go test`
// binary on Linux is a standalone ELF executable, which makes it a
// convenient always-available fixture without checked-in testdata.
func openSelf(t *testing.T) *File {
	t.Helper()
	exe, err := os.Executable()
	if err != nil {
		t.Skipf("os.Executable: %v", err)
	}
	f, err := os.Open(exe)
	if err != nil {
		t.Skipf("open %s: %v", exe, err)
	}
	t.Cleanup(func() { f.Close() })

	obj, err := Open(f)
	if err != nil {
		t.Fatalf("Open(%s): %v", exe, err)
	}
	return obj
}

func TestSegmentsNonEmpty(t *testing.T) {
	obj := openSelf(t)
	segs := obj.Segments()
	if len(segs) == 0 {
		t.Fatalf("Segments() = empty, want at least one PT_LOAD segment")
	}
	for _, s := range segs {
		if s.Memsz == 0 {
			t.Errorf("segment %+v has zero Memsz", s)
		}
	}
}

func TestSymbolsAreFunctionsOnly(t *testing.T) {
	obj := openSelf(t)
	syms, err := obj.Symbols()
	if err != nil {
		t.Fatalf("Symbols(): %v", err)
	}
	for _, s := range syms {
		if s.Value == 0 || s.Size == 0 {
			t.Errorf("symbol %+v should have been filtered (zero value or size)", s)
		}
	}
}

func TestHasDWARF(t *testing.T) {
	obj := openSelf(t)
	// A `go test` binary is built with debug info by default; this should
	// hold in any normal CI/dev environment.
	if !obj.HasDWARF() {
		t.Skip("test binary built without DWARF (e.g. -ldflags=-w); skipping")
	}
	idx, err := BuildInlineIndex(obj)
	if err != nil {
		t.Fatalf("BuildInlineIndex: %v", err)
	}
	if idx == nil {
		t.Fatalf("BuildInlineIndex returned nil index")
	}
}
