package entry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpfs/bdf/hashtable"
)

func newTestLookup() *hashtable.HashLookupTable {
	tbl := hashtable.New()
	tbl.Add("foo", 3)
	tbl.Add("bar", 3)
	return tbl
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	lookup := newTestLookup()
	de := DataEntry{
		Plain: "lol",
		Digests: map[string][]byte{
			"foo": {1, 2, 3},
			"bar": {4, 5, 6},
		},
	}

	encoded, err := de.Encode(lookup)
	require.NoError(t, err)

	decoded, err := DecodeAll(encoded, lookup)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	assert.Equal(t, de.Plain, decoded[0].Plain)
	assert.Equal(t, de.Digests, decoded[0].Digests)
}

func TestEncodeDropsUnregisteredDigestNames(t *testing.T) {
	lookup := hashtable.New()
	lookup.Add("foo", 3)

	de := DataEntry{
		Plain: "lel",
		Digests: map[string][]byte{
			"foo":     {1, 2, 3},
			"unknown": {9, 9, 9},
		},
	}

	encoded, err := de.Encode(lookup)
	require.NoError(t, err)

	decoded, err := DecodeAll(encoded, lookup)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	assert.Equal(t, map[string][]byte{"foo": {1, 2, 3}}, decoded[0].Digests)
}

func TestEncodeRejectsInvalidUTF8(t *testing.T) {
	lookup := newTestLookup()
	de := DataEntry{Plain: string([]byte{0xff, 0xfe, 0xfd})}

	_, err := de.Encode(lookup)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidUTF8)
}

func TestDecodeAllMultipleEntriesSequential(t *testing.T) {
	lookup := newTestLookup()
	first := DataEntry{Plain: "lol", Digests: map[string][]byte{"foo": {1, 2, 3}}}
	second := DataEntry{Plain: "lel", Digests: map[string][]byte{"bar": {4, 5, 6}}}

	encFirst, err := first.Encode(lookup)
	require.NoError(t, err)
	encSecond, err := second.Encode(lookup)
	require.NoError(t, err)

	payload := append(append([]byte{}, encFirst...), encSecond...)
	decoded, err := DecodeAll(payload, lookup)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	assert.Equal(t, "lol", decoded[0].Plain)
	assert.Equal(t, "lel", decoded[1].Plain)
}

func TestDecodeAllUnknownHashIDIsFatal(t *testing.T) {
	lookup := newTestLookup()
	de := DataEntry{Plain: "lol", Digests: map[string][]byte{"foo": {1, 2, 3}}}
	encoded, err := de.Encode(lookup)
	require.NoError(t, err)

	emptyLookup := hashtable.New()
	_, err = DecodeAll(encoded, emptyLookup)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownHashID)
}

func TestDecodeAllTruncated(t *testing.T) {
	lookup := newTestLookup()
	de := DataEntry{Plain: "lol", Digests: map[string][]byte{"foo": {1, 2, 3}}}
	encoded, err := de.Encode(lookup)
	require.NoError(t, err)

	_, err = DecodeAll(encoded[:len(encoded)-2], lookup)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestDecodeAllEmptyPayload(t *testing.T) {
	decoded, err := DecodeAll(nil, newTestLookup())
	require.NoError(t, err)
	assert.Empty(t, decoded)
}
