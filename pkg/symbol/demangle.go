package symbol

import (
	"strings"

	demanglelib "github.com/ianlancetaylor/demangle"
)

// demangle turns a raw linker symbol name into the human-readable form
// spec §4.1 step 2 calls for. demanglelib.ToString auto-detects the
// mangling scheme from the name's prefix: Itanium C++ ABI, Rust v0
// ("_R..."), and legacy Rust ("_ZN...17h<hash>E"). A name it does not
// recognize as mangled is returned unchanged, decoded as lossy UTF-8 so
// it never breaks the prefix trie on invalid bytes.
func demangle(raw string) string {
	out, err := demanglelib.ToString(raw, demanglelib.NoClones)
	if err != nil {
		return strings.ToValidUTF8(raw, "�")
	}
	return out
}
