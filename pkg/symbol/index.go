// Package symbol implements SymbolIndex (spec §3, §4.1): a process-wide,
// lazily-built, immutable map of loaded images -> segments -> symbols that
// answers "what procedure (and, with debug info, what inlined call chain)
// covers address A?" in O(log n).
package symbol

import (
	"debug/elf"
	"os"
	"sort"
	"sync"

	"github.com/derekparker/trie"
	lru "github.com/hashicorp/golang-lru"

	"github.com/gorstack/rstack/internal/logflags"
	"github.com/gorstack/rstack/pkg/objfile"
	"github.com/gorstack/rstack/pkg/rstack"
)

// Image is one loaded ELF object: its path (empty meaning the main
// executable, per spec §4.1 step 2), its runtime load bias, its symbol
// table sorted by start address, and the parsed object whose backing file
// stays open for the process's lifetime (spec §3, §9). The file is read on
// demand through os.File; it is not memory-mapped.
type Image struct {
	Path     string
	LoadBias uint64
	Symbols  []*Symbol
	inline   *objfile.InlineIndex

	file *os.File
	obj  *objfile.File
}

// Symbol is one resolved, demangled function symbol within an Image,
// relative to the image (i.e. link-time addresses, before LoadBias is
// applied).
type Symbol struct {
	Name  string
	Start uint64
	End   uint64
}

// Segment is one PT_LOAD mapping, absolute address range, sorted globally
// by Start so lookup is a single binary search (spec §3's invariant).
type Segment struct {
	Start, End uint64
	ImageIndex int
}

// Index is the built SymbolIndex: images in discovery order, segments
// sorted by start address.
type Index struct {
	Images   []*Image
	Segments []Segment

	demangleCache *lru.Cache
	prefixTrie    *trie.Trie
}

var (
	once        sync.Once
	globalIndex *Index
)

// Get returns the process-wide SymbolIndex, building it on first call
// (spec §4.1, §5, §9: a one-shot latch, never torn down). Construction
// enumerates the calling process's own loaded images via dl_iterate_phdr
// (phdr_linux.go); to symbolicate a *different* (remote) process, use
// BuildRemote, which parses that process's /proc/<pid>/maps instead (see
// DESIGN.md's note on resolving this from the distilled spec's silence on
// remote image enumeration).
func Get() *Index {
	once.Do(func() {
		globalIndex = build(loadSelfImages())
	})
	return globalIndex
}

// BuildRemote builds a standalone SymbolIndex for an arbitrary, already
// ptrace-attached PID by parsing /proc/<pid>/maps for its loaded images,
// since dl_iterate_phdr only ever reports the calling process's own
// loader state. Unlike Get, this is not cached process-wide: callers
// tracing many short-lived targets should call it once per Process and
// discard it, since each call opens and parses every distinct backing
// file afresh.
func BuildRemote(pid int32) (*Index, error) {
	images, err := loadRemoteImages(pid)
	if err != nil {
		return nil, err
	}
	return build(images), nil
}

func build(images []rawImage) *Index {
	idx := &Index{}

	cache, _ := lru.New(4096)
	idx.demangleCache = cache
	idx.prefixTrie = trie.New()

	for _, raw := range images {
		img := buildImage(raw, idx)
		if img == nil {
			continue
		}
		imageIndex := len(idx.Images)
		idx.Images = append(idx.Images, img)

		for _, seg := range img.obj.Segments() {
			idx.Segments = append(idx.Segments, Segment{
				Start:      img.LoadBias + seg.VAddr,
				End:        img.LoadBias + seg.VAddr + seg.Memsz,
				ImageIndex: imageIndex,
			})
		}
	}

	sort.Slice(idx.Segments, func(i, j int) bool { return idx.Segments[i].Start < idx.Segments[j].Start })

	return idx
}

// rawImage is the minimal information the two loader strategies
// (phdr_linux.go, maps_linux.go) need to produce before an Image can be
// parsed: where to find the backing file and at what bias it is mapped.
type rawImage struct {
	path     string
	loadBias uint64
}

// buildImage opens and parses one image, keeping its file open (not
// memory-mapped) on success. Any failure is logged and
// skipped (spec §4.1 step 2, §7 "per-image, recovered"); it never aborts
// the whole SymbolIndex build.
func buildImage(raw rawImage, idx *Index) *Image {
	log := logflags.SymbolLogger()

	path := raw.path
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			log.Debugf("no path for main executable: %v", err)
			return nil
		}
		path = exe
	}

	f, err := os.Open(path)
	if err != nil {
		log.Debugf("error opening image %q: %v", path, err)
		return nil
	}

	obj, err := objfile.Open(f)
	if err != nil {
		log.Debugf("error parsing image %q: %v", path, err)
		f.Close()
		return nil
	}

	img := &Image{Path: raw.path, LoadBias: raw.loadBias, file: f, obj: obj}

	rawSyms, err := obj.Symbols()
	if err != nil {
		log.Debugf("error reading symbols for %q: %v", path, err)
	} else {
		img.Symbols = preferredSymbols(rawSyms, idx)
	}

	if obj.HasDWARF() {
		if inlineIdx, err := objfile.BuildInlineIndex(obj); err != nil {
			log.Debugf("error reading debug info for %q: %v", path, err)
		} else {
			img.inline = inlineIdx
		}
	}

	return img
}

// preferredSymbols groups raw ELF symbols by start address and, for each
// group, keeps exactly one per spec §4.1 step 2's tie-break: binding
// priority weak > global > local > other, shorter name wins ties. This is
// load-bearing: it ensures e.g. "close" is reported rather than
// "__GI___close" for a glibc symbol with multiple aliases at one address.
func preferredSymbols(raw []objfile.RawSymbol, idx *Index) []*Symbol {
	byStart := make(map[uint64][]objfile.RawSymbol)
	var starts []uint64
	for _, s := range raw {
		if _, ok := byStart[s.Value]; !ok {
			starts = append(starts, s.Value)
		}
		byStart[s.Value] = append(byStart[s.Value], s)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })

	out := make([]*Symbol, 0, len(starts))
	for _, start := range starts {
		group := byStart[start]
		best := group[0]
		for _, cand := range group[1:] {
			if bindingRank(cand.Binding) < bindingRank(best.Binding) {
				best = cand
				continue
			}
			if bindingRank(cand.Binding) == bindingRank(best.Binding) &&
				len(demangledName(cand.Name, idx)) < len(demangledName(best.Name, idx)) {
				best = cand
			}
		}

		name := demangledName(best.Name, idx)
		sym := &Symbol{Name: name, Start: best.Value, End: best.Value + best.Size}
		out = append(out, sym)
		idx.prefixTrie.Add(name, sym)
	}

	return out
}

// bindingRank implements weak > global > local > other; lower is
// preferred.
func bindingRank(b elf.SymBind) int {
	switch b {
	case elf.STB_WEAK:
		return 0
	case elf.STB_GLOBAL:
		return 1
	case elf.STB_LOCAL:
		return 2
	default:
		return 3
	}
}

// Lookup answers, for address a, the covering Symbol and inline chain, if
// any (spec §4.1's `lookup` query). Satisfies pkg/rstack.SymbolResolver.
func (idx *Index) Lookup(a rstack.Address) (*rstack.Symbol, []rstack.InlineFrame) {
	addr := uint64(a)

	segIdx := sort.Search(len(idx.Segments), func(i int) bool { return idx.Segments[i].End > addr })
	if segIdx == len(idx.Segments) || idx.Segments[segIdx].Start > addr {
		return nil, nil
	}

	seg := idx.Segments[segIdx]
	img := idx.Images[seg.ImageIndex]
	rel := addr - img.LoadBias

	sym := lookupSymbol(img.Symbols, rel)
	var out *rstack.Symbol
	if sym != nil {
		out = &rstack.Symbol{
			Name:               sym.Name,
			OffsetFromSymStart: rstack.Address(rel - sym.Start),
			SymbolAddress:      rstack.Address(img.LoadBias + sym.Start),
			SymbolSize:         rstack.Address(sym.End - sym.Start),
		}
	}

	var chain []rstack.InlineFrame
	if img.inline != nil {
		chain = inlineChain(img.inline.Chain(rel))
	}

	return out, chain
}

func lookupSymbol(syms []*Symbol, rel uint64) *Symbol {
	i := sort.Search(len(syms), func(i int) bool { return syms[i].End > rel })
	if i == len(syms) || syms[i].Start > rel {
		return nil
	}
	return syms[i]
}

// LookupPrefix returns every known symbol whose demangled name begins with
// prefix, an ancillary query backed by the derekparker/trie prefix index
// (used by cmd/rstack's `syms` subcommand).
func (idx *Index) LookupPrefix(prefix string) []*Symbol {
	matches := idx.prefixTrie.PrefixSearch(prefix)
	out := make([]*Symbol, 0, len(matches))
	for _, m := range matches {
		if meta, ok := idx.prefixTrie.Find(m); ok {
			if sym, ok := meta.Meta().(*Symbol); ok {
				out = append(out, sym)
			}
		}
	}
	return out
}

func demangledName(raw string, idx *Index) string {
	if idx.demangleCache != nil {
		if v, ok := idx.demangleCache.Get(raw); ok {
			return v.(string)
		}
	}
	name := demangle(raw)
	if idx.demangleCache != nil {
		idx.demangleCache.Add(raw, name)
	}
	return name
}
