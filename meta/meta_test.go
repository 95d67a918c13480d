package meta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeParseRoundTripUncompressed(t *testing.T) {
	m := &MetaChunk{
		ChunkCount:      3,
		EntriesPerChunk: 100000,
		EntryCount:      250001,
	}
	got, err := Parse(m.Serialize())
	require.NoError(t, err)
	assert.Equal(t, m, got)
	assert.False(t, got.Compressed())
}

func TestSerializeParseRoundTripLzma(t *testing.T) {
	m := &MetaChunk{
		ChunkCount:        1,
		EntriesPerChunk:   100000,
		EntryCount:        42,
		CompressionMethod: "lzma",
	}
	got, err := Parse(m.Serialize())
	require.NoError(t, err)
	assert.Equal(t, m, got)
	assert.True(t, got.Compressed())
}

func TestParseTruncated(t *testing.T) {
	_, err := Parse(make([]byte, Size-1))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestParseUnsupportedCompression(t *testing.T) {
	payload := (&MetaChunk{ChunkCount: 1, EntriesPerChunk: 1, EntryCount: 1}).Serialize()
	copy(payload[16:20], "zstd")

	_, err := Parse(payload)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedCompression)
}

func TestSerializeSizeIsFixed(t *testing.T) {
	m := &MetaChunk{ChunkCount: 1, EntriesPerChunk: 1, EntryCount: 1}
	assert.Len(t, m.Serialize(), Size)
}
