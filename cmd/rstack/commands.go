package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/gorstack/rstack/internal/logflags"
	"github.com/gorstack/rstack/pkg/rstack"
	"github.com/gorstack/rstack/pkg/symbol"
	"github.com/gorstack/rstack/pkg/unwind"
	"github.com/gorstack/rstack/pkg/unwind/dwarfstep"
)

var verbose bool

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "rstack",
		Short: "Capture stack traces of every thread of a running process",
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentPreRun = func(*cobra.Command, []string) { applyVerbosity(verbose) }

	root.AddCommand(newTraceCommand())
	root.AddCommand(newSelfDemoCommand())
	root.AddCommand(newSymsCommand())
	return root
}

// config is the optional ~/.rstack.yaml: persistent defaults for flags a
// user would otherwise pass every invocation. Its presence and shape are
// this module's config layer (the distilled spec has none of its own;
// this is the ambient stack every delve-style CLI in the pack carries).
type config struct {
	ThreadNames bool `yaml:"thread_names"`
	Symbols     bool `yaml:"symbols"`
	Snapshot    bool `yaml:"snapshot"`
}

func loadConfig() config {
	cfg := config{ThreadNames: true, Symbols: true, Snapshot: true}

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg
	}
	data, err := os.ReadFile(home + "/.rstack.yaml")
	if err != nil {
		return cfg
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		logflags.TraceLogger().Debugf("parsing ~/.rstack.yaml: %v", err)
	}
	return cfg
}

func newTraceCommand() *cobra.Command {
	var noSymbols, rolling bool

	cmd := &cobra.Command{
		Use:   "trace <pid>",
		Short: "Attach to a process and print every thread's stack",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := strconv.ParseInt(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid pid %q: %w", args[0], err)
			}

			cfg := loadConfig()
			opts := rstack.NewTraceOptions()
			opts.ThreadNames = cfg.ThreadNames
			opts.Symbols = cfg.Symbols && !noSymbols
			opts.Snapshot = cfg.Snapshot && !rolling

			var resolver rstack.SymbolResolver
			if opts.Symbols {
				idx, err := symbol.BuildRemote(int32(pid))
				if err != nil {
					return fmt.Errorf("build symbol index: %w", err)
				}
				resolver = idx
			}

			unwinder := dwarfstep.New(int32(pid), remoteProcLookup(resolver))
			process, err := opts.TraceWithSymbols(int32(pid), unwinder, resolver)
			if err != nil {
				return err
			}

			printProcess(out(cmd), process)
			return nil
		},
	}
	cmd.Flags().BoolVar(&noSymbols, "no-symbols", false, "skip symbol resolution")
	cmd.Flags().BoolVar(&rolling, "rolling", false, "enumerate threads one at a time instead of a consistent snapshot")
	return cmd
}

func newSelfDemoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "self-demo",
		Short: "Trace this process's own threads via the self-trace helper",
		RunE: func(cmd *cobra.Command, args []string) error {
			process, err := runSelfDemo()
			if err != nil {
				return err
			}
			printProcess(out(cmd), process)
			return nil
		},
	}
}

func newSymsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "syms <pid> <prefix>",
		Short: "List known symbols of a process matching a name prefix",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := strconv.ParseInt(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid pid %q: %w", args[0], err)
			}
			idx, err := symbol.BuildRemote(int32(pid))
			if err != nil {
				return err
			}
			for _, sym := range idx.LookupPrefix(args[1]) {
				fmt.Fprintf(out(cmd), "%#016x %s\n", sym.Start, sym.Name)
			}
			return nil
		},
	}
	return cmd
}

// remoteProcLookup adapts a rstack.SymbolResolver into the
// dwarfstep.ProcLookup signature, letting the pure-Go unwinder report
// procedure names/bounds without importing pkg/symbol itself.
func remoteProcLookup(resolver rstack.SymbolResolver) dwarfstep.ProcLookup {
	return func(ip uint64) (name string, offset uint64, startIP, endIP uint64, ok bool) {
		if resolver == nil {
			return "", 0, 0, 0, false
		}
		sym, _ := resolver.Lookup(rstack.Address(ip))
		if sym == nil {
			return "", 0, 0, 0, false
		}
		return sym.Name, uint64(sym.OffsetFromSymStart), uint64(sym.SymbolAddress), uint64(sym.SymbolAddress + sym.SymbolSize), true
	}
}

func out(cmd *cobra.Command) io.Writer {
	w := cmd.OutOrStdout()
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return colorable.NewColorable(f)
	}
	return w
}

func printProcess(w io.Writer, process *rstack.Process) {
	for _, thread := range process.Threads() {
		fmt.Fprintf(w, "thread %d - %s\n", thread.Id(), thread.Name())
		for _, frame := range thread.Frames() {
			if frame.Symbol != nil {
				fmt.Fprintf(w, "%#016x - %s + %#x\n", uint64(frame.AdjustedIP()), frame.Symbol.Name, uint64(frame.Symbol.OffsetFromSymStart))
			} else {
				fmt.Fprintf(w, "%#016x - ???\n", uint64(frame.AdjustedIP()))
			}
			for _, inline := range frame.InlineChain {
				name := "????"
				if inline.FunctionName != nil {
					name = *inline.FunctionName
				}
				loc := ""
				if inline.FilePath != nil {
					line := 0
					if inline.LineNumber != nil {
						line = *inline.LineNumber
					}
					loc = fmt.Sprintf(" %s:%d", *inline.FilePath, line)
				}
				fmt.Fprintf(w, "        (inlined) %s%s\n", name, loc)
			}
		}
		fmt.Fprintln(w)
	}
}

var _ unwind.Unwinder = (*dwarfstep.Unwinder)(nil)
