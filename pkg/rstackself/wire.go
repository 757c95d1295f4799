// Package rstackself implements self-tracing (spec §5): since Linux
// forbids a process from ptracing itself, a short-lived helper
// child is spawned to trace the parent instead, coordinating over a
// length-prefixed binary protocol on the child's stdin/stdout pipes.
// Grounded throughout on original_source/rstack-self/src/lib.rs's
// trace/child pair, reworked from bincode framing to encoding/gob payloads
// inside a fixed uint32-length-prefixed frame (this module's equivalent
// "machine byte order" framing, since bincode has no Go port in the
// retrieval pack).
package rstackself

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
)

// RawThread and RawFrame are what the child serializes back to the
// parent: plain addresses and flags, not yet symbolicated (the parent
// alone holds the self-process SymbolIndex, spec §5 step 6).
type RawThread struct {
	ID     int32
	Name   string
	Frames []RawFrame
}

type RawFrame struct {
	IP       uint64
	IsSignal bool
}

// Options is the subset of rstack.TraceOptions the coordinator forwards
// to the child, since the child performs the actual remote trace of its
// parent.
type Options struct {
	ThreadNames bool
}

// writeFrame writes a uint32 little-endian length prefix followed by
// payload, matching the framing every wire.go read/write pair uses.
func writeFrame(w io.Writer, payload []byte) error {
	var hdr [4]byte
	if len(payload) > 1<<31 {
		return fmt.Errorf("rstackself: frame too large: %d bytes", len(payload))
	}
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}
	return nil
}

func readFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("read frame header: %w", err)
	}
	n := binary.LittleEndian.Uint32(hdr[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("read frame payload: %w", err)
	}
	return buf, nil
}

// WriteOptions sends the trace options the child should use when it
// traces its parent.
func WriteOptions(w io.Writer, opts Options) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(opts); err != nil {
		return fmt.Errorf("encode options: %w", err)
	}
	return writeFrame(w, buf.Bytes())
}

func ReadOptions(r io.Reader) (Options, error) {
	payload, err := readFrame(r)
	if err != nil {
		return Options{}, err
	}
	var opts Options
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&opts); err != nil {
		return Options{}, fmt.Errorf("decode options: %w", err)
	}
	return opts, nil
}

// result is the wire shape of a Result<Vec<RawThread>, String> from the
// original: either Threads is populated and Err is empty, or Err holds a
// message and Threads is nil.
type result struct {
	Threads []RawThread
	Err     string
}

// WriteResult sends either a completed trace or an error message, never
// both.
func WriteResult(w io.Writer, threads []RawThread, traceErr error) error {
	res := result{Threads: threads}
	if traceErr != nil {
		res = result{Err: traceErr.Error()}
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(res); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return writeFrame(w, buf.Bytes())
}

func ReadResult(r io.Reader) ([]RawThread, error) {
	payload, err := readFrame(r)
	if err != nil {
		return nil, err
	}
	var res result
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&res); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	if res.Err != "" {
		return nil, fmt.Errorf("rstackself: child trace failed: %s", res.Err)
	}
	return res.Threads, nil
}

// writeHandshake/readHandshake exchange the single-byte "go ahead"
// signals the original protocol uses both to start the child's trace and
// to release it after the parent is done reading results (spec §5 steps
// 3 and 7).
func writeHandshake(w io.Writer) error {
	_, err := w.Write([]byte{0})
	return err
}

func readHandshake(r io.Reader) error {
	var buf [1]byte
	_, err := io.ReadFull(r, buf[:])
	return err
}
