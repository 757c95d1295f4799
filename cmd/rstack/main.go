// Command rstack captures and prints stack traces of every thread of a
// running Linux process, or of itself via the self-trace helper protocol
// (pkg/rstackself).
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/gorstack/rstack/internal/logflags"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == childSubcommand {
		if err := runChild(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// childSubcommand is never documented in newRootCommand's help tree: it
// is the argv[1] the coordinator re-execs this same binary with, so the
// helper process it spawns is this binary running in "be the ptrace
// child" mode rather than a second compiled artifact (spec §5, grounded
// on original_source/rstack-self/examples/basic.rs, which likewise
// re-execs its own binary via std::env::current_exe()).
const childSubcommand = "__rstack_self_child"

func applyVerbosity(verbose bool) {
	if verbose {
		logflags.SetLevel(logrus.DebugLevel)
	}
}
