package rstackself

import (
	"fmt"
	"io"
	"os"

	"github.com/gorstack/rstack/pkg/rstack"
	"github.com/gorstack/rstack/pkg/unwind"
)

// Child is the helper process's entire job (spec §5 steps 4-7): read the
// options the parent wants, trace the parent (its own getppid()), write
// the raw result back, then block until the parent says it is done
// reading before exiting. newUnwinder builds the Unwinder to trace the
// parent with; it is supplied by the caller (cmd/rstack) rather than
// fixed here so the child can use whichever backend (pkg/unwind/dwarfstep
// or the libunwind-tagged build) the binary was built with.
func Child(newUnwinder func(pid int32) (unwind.Unwinder, error)) error {
	stdin := os.Stdin
	stdout := os.Stdout

	opts, err := ReadOptions(stdin)
	if err != nil {
		return fmt.Errorf("rstackself: child read options: %w", err)
	}
	if err := readHandshake(stdin); err != nil {
		return fmt.Errorf("rstackself: child start handshake: %w", err)
	}

	raw, traceErr := childTrace(opts, newUnwinder)
	if err := WriteResult(stdout, raw, traceErr); err != nil {
		return fmt.Errorf("rstackself: child write result: %w", err)
	}

	if err := readHandshake(stdin); err != nil && err != io.EOF {
		return fmt.Errorf("rstackself: child exit handshake: %w", err)
	}
	return nil
}

func childTrace(opts Options, newUnwinder func(pid int32) (unwind.Unwinder, error)) ([]RawThread, error) {
	parent := int32(os.Getppid())

	unwinder, err := newUnwinder(parent)
	if err != nil {
		return nil, fmt.Errorf("build unwinder for parent %d: %w", parent, err)
	}
	defer unwinder.Close()

	to := rstack.NewTraceOptions()
	to.ThreadNames = opts.ThreadNames
	to.Symbols = false // the parent symbolicates; the child only has raw addresses to offer
	to.PtraceAttach = true

	process, err := to.Trace(parent, unwinder)
	if err != nil {
		return nil, err
	}

	threads := make([]RawThread, 0, len(process.Threads()))
	for _, t := range process.Threads() {
		frames := make([]RawFrame, 0, len(t.Frames()))
		for _, f := range t.Frames() {
			frames = append(frames, RawFrame{
				IP:       uint64(f.IP),
				IsSignal: f.IsSignal == rstack.True,
			})
		}
		threads = append(threads, RawThread{ID: int32(t.Id()), Name: t.Name(), Frames: frames})
	}
	return threads, nil
}
