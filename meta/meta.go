// Package meta implements the BDF container's META chunk payload: the
// fixed-width record describing how many data chunks follow, how many
// entries each holds, and whether those chunks are compressed.
package meta

import (
	"github.com/pkg/errors"

	"github.com/bpfs/bdf/internal/binutil"
)

// compressionMethodLen is the fixed width of the compression_method field.
// A value of four zero bytes means "no compression".
const compressionMethodLen = 4

// Size is the fixed on-disk size of a MetaChunk payload:
// chunk_count(4) + entries_per_chunk(4) + entry_count(8) + compression_method(4).
const Size = binutil.Uint32Len*2 + binutil.Uint64Len + compressionMethodLen

// lzmaMethod is the only non-empty compression method name BDF currently
// defines on the wire.
const lzmaMethod = "lzma"

// ErrUnsupportedCompression is returned when the compression_method field
// is neither all-zero nor "lzma".
var ErrUnsupportedCompression = errors.New("meta: unsupported compression method")

// ErrTruncated is returned when a META payload is shorter than Size.
var ErrTruncated = errors.New("meta: truncated payload")

// MetaChunk is the decoded form of the META chunk payload.
type MetaChunk struct {
	ChunkCount        uint32
	EntriesPerChunk   uint32
	EntryCount        uint64
	CompressionMethod string // "" means uncompressed, "lzma" otherwise
}

// Compressed reports whether DTBL chunks in this container are
// LZMA-compressed.
func (m *MetaChunk) Compressed() bool {
	return m.CompressionMethod != ""
}

// Serialize packs the fixed 20-byte META payload.
func (m *MetaChunk) Serialize() []byte {
	out := make([]byte, 0, Size)
	out = binutil.PutUint32(out, m.ChunkCount)
	out = binutil.PutUint32(out, m.EntriesPerChunk)
	out = binutil.PutUint64(out, m.EntryCount)

	var method [compressionMethodLen]byte
	copy(method[:], m.CompressionMethod)
	out = append(out, method[:]...)
	return out
}

// Parse decodes a META chunk payload. It fails if the payload is shorter
// than Size, or if the compression_method field is neither all-zero nor
// "lzma".
func Parse(payload []byte) (*MetaChunk, error) {
	if len(payload) < Size {
		return nil, errors.Wrapf(ErrTruncated, "need %d bytes, have %d", Size, len(payload))
	}

	chunkCount, err := binutil.ReadUint32(payload[0:4])
	if err != nil {
		return nil, err
	}
	entriesPerChunk, err := binutil.ReadUint32(payload[4:8])
	if err != nil {
		return nil, err
	}
	entryCount, err := binutil.ReadUint64(payload[8:16])
	if err != nil {
		return nil, err
	}

	method, err := methodFromBytes(payload[16:20])
	if err != nil {
		return nil, err
	}

	return &MetaChunk{
		ChunkCount:        chunkCount,
		EntriesPerChunk:   entriesPerChunk,
		EntryCount:        entryCount,
		CompressionMethod: method,
	}, nil
}

func methodFromBytes(b []byte) (string, error) {
	allZero := true
	for _, c := range b {
		if c != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return "", nil
	}
	if string(b) == lzmaMethod {
		return lzmaMethod, nil
	}
	return "", errors.Wrapf(ErrUnsupportedCompression, "got %q", string(b))
}
