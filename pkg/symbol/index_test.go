package symbol

import (
	"debug/elf"
	"testing"

	"github.com/derekparker/trie"
	lru "github.com/hashicorp/golang-lru"

	"github.com/gorstack/rstack/pkg/objfile"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	cache, err := lru.New(64)
	if err != nil {
		t.Fatalf("lru.New: %v", err)
	}
	return &Index{demangleCache: cache, prefixTrie: trie.New()}
}

func TestBindingRankOrder(t *testing.T) {
	if bindingRank(elf.STB_WEAK) >= bindingRank(elf.STB_GLOBAL) {
		t.Errorf("weak should outrank global")
	}
	if bindingRank(elf.STB_GLOBAL) >= bindingRank(elf.STB_LOCAL) {
		t.Errorf("global should outrank local")
	}
	if bindingRank(elf.STB_LOCAL) >= bindingRank(elf.SymBind(99)) {
		t.Errorf("local should outrank an unrecognized binding")
	}
}

// TestPreferredSymbolsTieBreak exercises the exact scenario the binding
// priority exists for: a glibc-style address with a weak public alias
// ("close") and a longer local/global alias ("__GI___close"); the weak,
// shorter name must win.
func TestPreferredSymbolsTieBreak(t *testing.T) {
	idx := newTestIndex(t)
	raw := []objfile.RawSymbol{
		{Name: "__GI___close", Value: 0x1000, Size: 0x10, Binding: elf.STB_GLOBAL},
		{Name: "close", Value: 0x1000, Size: 0x10, Binding: elf.STB_WEAK},
	}

	syms := preferredSymbols(raw, idx)
	if len(syms) != 1 {
		t.Fatalf("len(syms) = %d, want 1", len(syms))
	}
	if syms[0].Name != "close" {
		t.Errorf("syms[0].Name = %q, want %q", syms[0].Name, "close")
	}
}

func TestPreferredSymbolsShorterNameTieBreak(t *testing.T) {
	idx := newTestIndex(t)
	raw := []objfile.RawSymbol{
		{Name: "longer_alias_name", Value: 0x2000, Size: 0x8, Binding: elf.STB_GLOBAL},
		{Name: "short", Value: 0x2000, Size: 0x8, Binding: elf.STB_GLOBAL},
	}

	syms := preferredSymbols(raw, idx)
	if len(syms) != 1 || syms[0].Name != "short" {
		t.Errorf("syms = %+v, want single entry named %q", syms, "short")
	}
}

func TestLookupPrefix(t *testing.T) {
	idx := newTestIndex(t)
	raw := []objfile.RawSymbol{
		{Name: "foo_bar", Value: 0x3000, Size: 0x8, Binding: elf.STB_GLOBAL},
		{Name: "foo_baz", Value: 0x3100, Size: 0x8, Binding: elf.STB_GLOBAL},
		{Name: "other", Value: 0x3200, Size: 0x8, Binding: elf.STB_GLOBAL},
	}
	preferredSymbols(raw, idx)

	matches := idx.LookupPrefix("foo_")
	if len(matches) != 2 {
		t.Fatalf("LookupPrefix(\"foo_\") = %d matches, want 2", len(matches))
	}
}

func TestLookupSymbolBinarySearch(t *testing.T) {
	syms := []*Symbol{
		{Name: "a", Start: 0x100, End: 0x110},
		{Name: "b", Start: 0x200, End: 0x210},
	}

	if got := lookupSymbol(syms, 0x105); got == nil || got.Name != "a" {
		t.Errorf("lookupSymbol(0x105) = %+v, want a", got)
	}
	if got := lookupSymbol(syms, 0x150); got != nil {
		t.Errorf("lookupSymbol(0x150) = %+v, want nil (gap between symbols)", got)
	}
	if got := lookupSymbol(syms, 0x205); got == nil || got.Name != "b" {
		t.Errorf("lookupSymbol(0x205) = %+v, want b", got)
	}
}
