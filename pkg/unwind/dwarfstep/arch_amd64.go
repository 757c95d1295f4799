//go:build amd64

package dwarfstep

import "github.com/gorstack/rstack/pkg/ptrace"

// archWordSize is the saved-register slot width a "push %rbp" frame
// uses: one slot for the saved bp at [bp], one for the return address at
// [bp+archWordSize].
const archWordSize = 8

// prologuePush reports whether c's current instruction pointer sits on a
// not-yet-executed "push %rbp", by reading and decoding the first few
// bytes of the instruction at that address out of the traced process.
func (c *Cursor) prologuePush() (bool, error) {
	var buf [16]byte
	n, err := ptrace.ReadMemory(c.tid, c.ip, buf[:])
	if err != nil {
		return false, err
	}
	return prologueAdjustedSP(buf[:n], 64)
}
