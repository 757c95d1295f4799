package objfile

import (
	"debug/dwarf"
	"fmt"
	"sort"
)

// SubprogramRange is one contiguous PC range belonging to a
// DW_TAG_subprogram or DW_TAG_inlined_subroutine, built once per image so
// Chain queries are a binary search rather than a DWARF tree walk per call.
// The overall shape (walk every compile unit, record ranges, sort,
// binary-search) is grounded on dispatchrun-wzprof/dwarf.go's
// dwarfparser/subprogramRange, retargeted from WASM source offsets to ELF
// virtual addresses.
type SubprogramRange struct {
	LowPC, HighPC uint64
	Name          string
	File          string
	Line          int
	Inlined       bool
	Depth         int
}

// InlineIndex answers "what DWARF subprogram/inlined-subroutine chain
// covers address a" for one image.
type InlineIndex struct {
	ranges []SubprogramRange
}

// BuildInlineIndex walks every compile unit of f's DWARF data and records
// the PC range of each subprogram and inlined subroutine. Returns an error
// only if the DWARF data itself cannot be opened; a malformed individual
// entry is skipped.
func BuildInlineIndex(f *File) (*InlineIndex, error) {
	d, err := f.elf.DWARF()
	if err != nil {
		return nil, fmt.Errorf("open dwarf: %w", err)
	}

	idx := &InlineIndex{}
	r := d.Reader()
	for {
		entry, err := r.Next()
		if err != nil || entry == nil {
			break
		}
		if entry.Tag != dwarf.TagCompileUnit {
			r.SkipChildren()
			continue
		}

		var files []*dwarf.LineFile
		if lr, err := d.LineReader(entry); err == nil && lr != nil {
			files = lr.Files()
		}

		idx.walk(d, r, 0, files)
	}

	sort.Slice(idx.ranges, func(i, j int) bool { return idx.ranges[i].LowPC < idx.ranges[j].LowPC })
	return idx, nil
}

// walk descends the children of the entry most recently returned by r,
// recording a subprogramRange for every DW_TAG_subprogram and
// DW_TAG_inlined_subroutine. depth counts inlining levels so a later query
// can reconstruct outermost-caller-first ordering. files is the enclosing
// compile unit's line-table file list, used to resolve decl_file/call_file
// indices to source paths.
func (idx *InlineIndex) walk(d *dwarf.Data, r *dwarf.Reader, depth int, files []*dwarf.LineFile) {
	for {
		entry, err := r.Next()
		if err != nil || entry == nil {
			return
		}
		if entry.Tag == 0 {
			return
		}

		switch entry.Tag {
		case dwarf.TagSubprogram:
			if rng, ok := entryRange(entry, false, depth, files); ok {
				idx.ranges = append(idx.ranges, rng)
			}
			if entry.Children {
				idx.walk(d, r, depth+1, files)
			}
		case dwarf.TagInlinedSubroutine:
			if rng, ok := entryRange(entry, true, depth, files); ok {
				idx.ranges = append(idx.ranges, rng)
			}
			if entry.Children {
				idx.walk(d, r, depth+1, files)
			}
		default:
			if entry.Children {
				idx.walk(d, r, depth, files)
			}
		}
	}
}

func entryRange(entry *dwarf.Entry, inlined bool, depth int, files []*dwarf.LineFile) (SubprogramRange, bool) {
	low, lowOK := entry.Val(dwarf.AttrLowpc).(uint64)
	if !lowOK {
		return SubprogramRange{}, false
	}

	var high uint64
	switch v := entry.Val(dwarf.AttrHighpc).(type) {
	case uint64:
		high = v
	case int64:
		high = low + uint64(v)
	default:
		return SubprogramRange{}, false
	}

	name, _ := entry.Val(dwarf.AttrName).(string)

	// An inlined routine's source position is its call site
	// (DW_AT_call_file/DW_AT_call_line); a real subprogram's is where it
	// is declared (DW_AT_decl_file/DW_AT_decl_line).
	fileAttr, lineAttr := dwarf.AttrDeclFile, dwarf.AttrDeclLine
	if inlined {
		fileAttr, lineAttr = dwarf.AttrCallFile, dwarf.AttrCallLine
	}

	var file string
	var line int
	if l, ok := entry.Val(lineAttr).(int64); ok {
		line = int(l)
	}
	if fi, ok := entry.Val(fileAttr).(int64); ok && fi >= 0 && int(fi) < len(files) && files[fi] != nil {
		file = files[fi].Name
	}

	return SubprogramRange{
		LowPC:   low,
		HighPC:  high,
		Name:    name,
		File:    file,
		Line:    line,
		Inlined: inlined,
		Depth:   depth,
	}, true
}

// Chain returns the inline call chain covering addr, outermost caller
// first, innermost call site last (spec §4.1 step 4). The outermost entry
// is the enclosing (non-inlined) subprogram itself when found; nil if addr
// is not covered by any known range.
func (idx *InlineIndex) Chain(addr uint64) []SubprogramRange {
	var matches []SubprogramRange
	for _, rng := range idx.ranges {
		if addr >= rng.LowPC && addr < rng.HighPC {
			matches = append(matches, rng)
		}
	}
	if len(matches) == 0 {
		return nil
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Depth < matches[j].Depth })
	return matches
}
