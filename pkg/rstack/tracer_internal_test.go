package rstack

import (
	"errors"
	"testing"

	"github.com/gorstack/rstack/pkg/unwind"
)

// fakeCursor replays a fixed sequence of (ip, isSignal) pairs, used to
// drive walk() without a real ptrace-attached thread.
type fakeCursor struct {
	ips       []uint64
	signals   []bool
	signalOK  []bool
	pos       int
}

func (c *fakeCursor) InstructionPointer() (uint64, error) { return c.ips[c.pos], nil }

func (c *fakeCursor) IsSignalFrame() (bool, bool) {
	if !c.signalOK[c.pos] {
		return false, false
	}
	return c.signals[c.pos], true
}

func (c *fakeCursor) Step() (unwind.StepResult, error) {
	c.pos++
	if c.pos >= len(c.ips) {
		return unwind.EndOfStack, nil
	}
	return unwind.MoreFrames, nil
}

func (c *fakeCursor) RawProcedureName() (string, uint64, bool)    { return "", 0, false }
func (c *fakeCursor) RawProcedureBounds() (uint64, uint64, bool) { return 0, 0, false }

type fakeResolver struct {
	calls []Address
}

func (r *fakeResolver) Lookup(addr Address) (*Symbol, []InlineFrame) {
	r.calls = append(r.calls, addr)
	return &Symbol{Name: "fake"}, nil
}

func TestWalkStopsAtEndOfStack(t *testing.T) {
	cursor := &fakeCursor{
		ips:      []uint64{0x1000, 0x2000, 0x3000},
		signals:  []bool{false, false, false},
		signalOK: []bool{true, true, true},
	}
	opts := &TraceOptions{Symbols: false}

	frames, err := walk(cursor, opts, nil)
	if err != nil {
		t.Fatalf("walk() error = %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("len(frames) = %d, want 3", len(frames))
	}
	if frames[0].IP != 0x1000 || frames[2].IP != 0x3000 {
		t.Errorf("frames = %+v", frames)
	}
}

func TestWalkStopsOnIPZero(t *testing.T) {
	cursor := &fakeCursor{
		ips:      []uint64{0x1000, 0},
		signals:  []bool{false, false},
		signalOK: []bool{true, true},
	}
	opts := &TraceOptions{}

	frames, err := walk(cursor, opts, nil)
	if err != nil {
		t.Fatalf("walk() error = %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("len(frames) = %d, want 2 (the ip==0 frame is still recorded)", len(frames))
	}
	if frames[1].IP != 0 {
		t.Errorf("frames[1].IP = %#x, want 0", frames[1].IP)
	}
}

func TestWalkResolvesSymbolsWhenEnabled(t *testing.T) {
	cursor := &fakeCursor{
		ips:      []uint64{0x1000},
		signals:  []bool{false},
		signalOK: []bool{true},
	}
	opts := &TraceOptions{Symbols: true}
	resolver := &fakeResolver{}

	frames, err := walk(cursor, opts, resolver)
	if err != nil {
		t.Fatalf("walk() error = %v", err)
	}
	if len(resolver.calls) != 1 {
		t.Fatalf("resolver called %d times, want 1", len(resolver.calls))
	}
	if frames[0].Symbol == nil || frames[0].Symbol.Name != "fake" {
		t.Errorf("frames[0].Symbol = %+v", frames[0].Symbol)
	}
}

func TestWalkUnknownSignalStatusIsUnknown(t *testing.T) {
	cursor := &fakeCursor{
		ips:      []uint64{0x1000, 0},
		signals:  []bool{false, false},
		signalOK: []bool{false, true},
	}
	opts := &TraceOptions{}

	frames, err := walk(cursor, opts, nil)
	if err != nil {
		t.Fatalf("walk() error = %v", err)
	}
	if frames[0].IsSignal != Unknown {
		t.Errorf("frames[0].IsSignal = %v, want Unknown", frames[0].IsSignal)
	}
}

func TestWalkPropagatesStepError(t *testing.T) {
	cursor := &erroringCursor{fakeCursor: fakeCursor{
		ips:      []uint64{0x1000},
		signals:  []bool{false},
		signalOK: []bool{true},
	}}
	opts := &TraceOptions{}

	frames, err := walk(cursor, opts, nil)
	if err == nil {
		t.Fatalf("walk() error = nil, want non-nil")
	}
	if len(frames) != 1 {
		t.Errorf("len(frames) = %d, want 1 (partial progress preserved)", len(frames))
	}
}

type erroringCursor struct{ fakeCursor }

func (c *erroringCursor) Step() (unwind.StepResult, error) {
	return unwind.EndOfStack, errors.New("step failed")
}
