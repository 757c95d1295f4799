package dwarfstep

import "testing"

func TestIsSignalTrampoline(t *testing.T) {
	cases := map[string]bool{
		"runtime.sigreturn": true,
		"__restore_rt":      true,
		"__restore":         true,
		"main.main":         false,
		"":                  false,
	}
	for name, want := range cases {
		if got := isSignalTrampoline(name); got != want {
			t.Errorf("isSignalTrampoline(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestNewWithNilLookupReportsUnknown(t *testing.T) {
	u := New(1, nil)
	c := &Cursor{lookup: u.lookup, ip: 0x1000}

	if _, known := c.IsSignalFrame(); known {
		t.Errorf("IsSignalFrame() known = true with nil lookup, want false")
	}
	if _, _, ok := c.RawProcedureName(); ok {
		t.Errorf("RawProcedureName() ok = true with nil lookup, want false")
	}
}
