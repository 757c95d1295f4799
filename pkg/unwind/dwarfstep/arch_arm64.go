//go:build arm64

package dwarfstep

// archWordSize mirrors the amd64 case: arm64's AAPCS64 frame-pointer
// convention stores the saved x29 (FP) at [fp] and the saved x30 (LR,
// the return address) at [fp+archWordSize], the same layout shape as
// x86_64's push-rbp frames even though the register numbers differ.
const archWordSize = 8

// prologuePush always reports false: x86asm's push-%rbp prologue check
// has no arm64 equivalent wired up, so the topmost frame always falls
// through to the ordinary frame-pointer chain step.
func (c *Cursor) prologuePush() (bool, error) {
	return false, nil
}
