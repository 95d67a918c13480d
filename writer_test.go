package bdf

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterAddEntryAfterCloseIsStateViolation(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, 0)
	require.NoError(t, w.Close())

	err := w.AddEntry("lol", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStateViolation)
}

func TestWriterRegisterHashAfterCloseIsStateViolation(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, 0)
	require.NoError(t, w.Close())

	_, err := w.RegisterHash("foo", 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStateViolation)
}

func TestWriterDoubleCloseIsStateViolation(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, 0)
	require.NoError(t, w.Close())

	err := w.Close()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStateViolation)
}

func TestWriterStatsReflectEntriesAndChunks(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, 5, WithEntriesPerChunk(2))
	_, err := w.RegisterHash("foo", 3)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, w.AddEntry("x", map[string][]byte{"foo": {1, 2, 3}}))
	}
	require.NoError(t, w.Close())

	stats := w.Stats()
	assert.Equal(t, uint64(5), stats.EntriesWritten)
	// 1 META + 1 HTBL + 3 DTBL chunks (ceil(5/2) == 3)
	assert.Equal(t, uint32(5), stats.ChunksWritten)
}

func TestWriterProgressFuncInvokedPerDTBLChunk(t *testing.T) {
	var buf bytes.Buffer
	var calls int
	w := NewWriter(&buf, 3, WithEntriesPerChunk(1), WithProgressFunc(func(WriteStats) { calls++ }))
	for i := 0; i < 3; i++ {
		require.NoError(t, w.AddEntry("x", nil))
	}
	require.NoError(t, w.Close())

	assert.Equal(t, 3, calls)
}

func TestWriterEmptyContainerHasZeroChunkCount(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, 0)
	require.NoError(t, w.Close())

	r := NewReader(bytes.NewReader(buf.Bytes()))
	m, err := r.ReadHeader()
	require.NoError(t, err)
	assert.Equal(t, uint32(0), m.ChunkCount)
	assert.Equal(t, uint64(0), m.EntryCount)
}
