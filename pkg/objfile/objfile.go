// Package objfile is the module's concrete ObjectReader (spec §6): it
// loads an ELF image, enumerates its PT_LOAD segments and symbols, and
// answers inline-frame queries against its DWARF line/inlining data. It is
// built entirely on the standard library's debug/elf and debug/dwarf; no
// third-party ELF or DWARF parser appears anywhere in the retrieval pack
// (dispatchrun-wzprof parses WASM custom DWARF sections with the same
// debug/dwarf package, not a separate library), so none was substituted in.
package objfile

import (
	"debug/elf"
	"fmt"
	"os"
)

// RawSymbol is one ST_FUNC entry from an ELF symbol table, pre-filtering
// (spec §4.1 step 2: nonzero value, nonzero size).
type RawSymbol struct {
	Name    string
	Value   uint64
	Size    uint64
	Binding elf.SymBind
}

// Segment is one PT_LOAD program header, link-time addressed (the caller
// applies the image's load bias).
type Segment struct {
	VAddr  uint64
	Memsz  uint64
}

// File is a parsed ELF image whose backing *os.File symbol.Image keeps
// open for the process's lifetime. The file is read on demand, not
// memory-mapped.
type File struct {
	elf *elf.File
}

// Open parses the already-open file r as an ELF file. The caller is
// responsible for keeping r open for as long as File is in use;
// debug/elf reads lazily from the underlying io.ReaderAt.
func Open(r *os.File) (*File, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("parse elf: %w", err)
	}
	return &File{elf: f}, nil
}

// Segments returns every PT_LOAD program header.
func (f *File) Segments() []Segment {
	var out []Segment
	for _, prog := range f.elf.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		out = append(out, Segment{VAddr: prog.Vaddr, Memsz: prog.Memsz})
	}
	return out
}

// Symbols returns every STT_FUNC symbol with a nonzero value and size,
// from both the regular and dynamic symbol tables (spec §4.1 step 2).
func (f *File) Symbols() ([]RawSymbol, error) {
	var out []RawSymbol

	add := func(syms []elf.Symbol) {
		for _, s := range syms {
			if elf.ST_TYPE(s.Info) != elf.STT_FUNC {
				continue
			}
			if s.Value == 0 || s.Size == 0 {
				continue
			}
			out = append(out, RawSymbol{
				Name:    s.Name,
				Value:   s.Value,
				Size:    s.Size,
				Binding: elf.ST_BIND(s.Info),
			})
		}
	}

	if syms, err := f.elf.Symbols(); err == nil {
		add(syms)
	} else if err != elf.ErrNoSymbols {
		return nil, fmt.Errorf("read symtab: %w", err)
	}

	if syms, err := f.elf.DynamicSymbols(); err == nil {
		add(syms)
	} else if err != elf.ErrNoSymbols {
		return nil, fmt.Errorf("read dynsym: %w", err)
	}

	return out, nil
}

// HasDWARF reports whether the image carries .debug_info.
func (f *File) HasDWARF() bool {
	return f.elf.Section(".debug_info") != nil
}

// Elf exposes the underlying debug/elf.File for callers (pkg/symbol's
// inline.go) that need DWARF access beyond what File wraps directly.
func (f *File) Elf() *elf.File { return f.elf }
