package symbol

import (
	"github.com/gorstack/rstack/pkg/objfile"
	"github.com/gorstack/rstack/pkg/rstack"
)

// inlineChain converts the DWARF-derived ranges covering one address
// (objfile.InlineIndex.Chain, outermost first) into the public
// rstack.InlineFrame vocabulary (spec §4.1 step 4). The enclosing
// subprogram itself is included as the first entry when present, so a
// caller walking InlineChain front-to-back sees outermost-to-innermost,
// matching the order a human reads an inlined backtrace.
func inlineChain(ranges []objfile.SubprogramRange) []rstack.InlineFrame {
	if len(ranges) == 0 {
		return nil
	}

	out := make([]rstack.InlineFrame, 0, len(ranges))
	for _, rng := range ranges {
		frame := rstack.InlineFrame{}
		if rng.Name != "" {
			name := rng.Name
			frame.FunctionName = &name
		}
		if rng.File != "" {
			file := rng.File
			frame.FilePath = &file
		}
		if rng.Line != 0 {
			line := rng.Line
			frame.LineNumber = &line
		}
		out = append(out, frame)
	}
	return out
}
