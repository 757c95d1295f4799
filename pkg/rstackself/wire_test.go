package rstackself

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOptionsRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := Options{ThreadNames: true}

	require.NoError(t, WriteOptions(&buf, want))

	got, err := ReadOptions(&buf)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestResultRoundTripSuccess(t *testing.T) {
	var buf bytes.Buffer
	threads := []RawThread{
		{ID: 1, Name: "main", Frames: []RawFrame{{IP: 0x1000}, {IP: 0x2000, IsSignal: true}}},
	}

	require.NoError(t, WriteResult(&buf, threads, nil))

	got, err := ReadResult(&buf)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, int32(1), got[0].ID)
	require.Len(t, got[0].Frames, 2)
	require.True(t, got[0].Frames[1].IsSignal)
}

func TestResultRoundTripError(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, WriteResult(&buf, nil, errFor("child trace failed")))

	_, err := ReadResult(&buf)
	require.Error(t, err)
}

func TestHandshakeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeHandshake(&buf))
	require.NoError(t, readHandshake(&buf))
}

type simpleError string

func (e simpleError) Error() string { return string(e) }

func errFor(msg string) error { return simpleError(msg) }
