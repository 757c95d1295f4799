package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/gorstack/rstack/pkg/rstack"
	"github.com/gorstack/rstack/pkg/rstackself"
	"github.com/gorstack/rstack/pkg/unwind"
	"github.com/gorstack/rstack/pkg/unwind/dwarfstep"
)

// runChild is the entry point this same binary takes when re-exec'd by
// runSelfDemo as the ptrace helper (spec §5 steps 4-7).
func runChild() error {
	return rstackself.Child(func(pid int32) (unwind.Unwinder, error) {
		return dwarfstep.New(pid, nil), nil
	})
}

// runSelfDemo spawns this same binary (re-exec via the childSubcommand
// argv) and coordinates a self-trace through it.
func runSelfDemo() (*rstack.Process, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve own executable: %w", err)
	}

	child := exec.Command(exe, childSubcommand)
	child.Stderr = os.Stderr

	return rstackself.Trace(child, rstackself.Options{ThreadNames: true})
}
