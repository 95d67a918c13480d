package chunk

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeParseRoundTrip(t *testing.T) {
	c := New(Meta, []byte("hello world"))
	buf := c.Serialize()

	got, err := Parse(bytes.NewReader(buf))
	require.NoError(t, err)
	assert.Equal(t, c.Name, got.Name)
	assert.Equal(t, c.Data, got.Data)
	assert.Equal(t, c.Crc, got.Crc)
	assert.Equal(t, c.Length, got.Length)
}

func TestSerializeEmptyPayload(t *testing.T) {
	c := New(Htbl, nil)
	buf := c.Serialize()

	got, err := Parse(bytes.NewReader(buf))
	require.NoError(t, err)
	assert.Equal(t, uint32(0), got.Length)
	assert.Empty(t, got.Data)
}

func TestParseTruncatedHeader(t *testing.T) {
	_, err := Parse(bytes.NewReader([]byte{0, 0, 0}))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestParseCleanEOFAtChunkBoundary(t *testing.T) {
	_, err := Parse(bytes.NewReader(nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, io.EOF)
	assert.NotErrorIs(t, err, ErrTruncated)
}

func TestParseTruncatedPayload(t *testing.T) {
	c := New(Dtbl, []byte("payload"))
	buf := c.Serialize()
	// cut off before the CRC trailer and part of the payload
	truncated := buf[:len(buf)-6]

	_, err := Parse(bytes.NewReader(truncated))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestCompressDecompressRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 50)
	c := New(Dtbl, payload)
	originalCrc := c.Crc

	require.NoError(t, c.Compress(6))
	assert.NotEqual(t, payload, c.Data, "compressed data should differ from input")

	require.NoError(t, c.Decompress())
	assert.Equal(t, payload, c.Data)
	assert.Equal(t, originalCrc, c.Crc)
}

func TestDecompressCrcMismatch(t *testing.T) {
	payload := []byte("some plaintext bytes to compress")
	c := New(Dtbl, payload)
	require.NoError(t, c.Compress(1))

	// corrupt the stored CRC so verification fails post-decompress
	c.Crc ^= 0xffffffff

	err := c.Decompress()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCrcMismatch)
}

func TestDictCapForLevelClampsAndGrows(t *testing.T) {
	low := dictCapForLevel(0)
	high := dictCapForLevel(9)
	clamped := dictCapForLevel(99)

	assert.Less(t, low, high)
	assert.Equal(t, high, clamped)
}
