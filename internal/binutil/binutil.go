// Package binutil provides the big-endian integer and CRC-32 primitives
// shared by every on-disk structure in the BDF container format.
package binutil

import (
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/pkg/errors"
)

// Uint32Len is the byte width of every length/id/count field on disk.
const Uint32Len = 4

// Uint64Len is the byte width of the entry_count field on disk.
const Uint64Len = 8

// PutUint32 appends the big-endian encoding of v to dst.
func PutUint32(dst []byte, v uint32) []byte {
	var buf [Uint32Len]byte
	binary.BigEndian.PutUint32(buf[:], v)
	return append(dst, buf[:]...)
}

// PutUint64 appends the big-endian encoding of v to dst.
func PutUint64(dst []byte, v uint64) []byte {
	var buf [Uint64Len]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return append(dst, buf[:]...)
}

// ReadUint32 decodes a big-endian uint32 from the front of b.
// It returns an error if b is shorter than Uint32Len.
func ReadUint32(b []byte) (uint32, error) {
	if len(b) < Uint32Len {
		return 0, errors.Wrapf(ErrShortBuffer, "need %d bytes, have %d", Uint32Len, len(b))
	}
	return binary.BigEndian.Uint32(b), nil
}

// ReadUint64 decodes a big-endian uint64 from the front of b.
// It returns an error if b is shorter than Uint64Len.
func ReadUint64(b []byte) (uint64, error) {
	if len(b) < Uint64Len {
		return 0, errors.Wrapf(ErrShortBuffer, "need %d bytes, have %d", Uint64Len, len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

// ErrShortBuffer is returned when a fixed-width field can't be decoded
// because fewer bytes remain than the field requires.
var ErrShortBuffer = errors.New("binutil: buffer too short")

// ReadFull reads exactly len(buf) bytes from r. Any error is wrapped with
// a truncation message; the underlying io.EOF or io.ErrUnexpectedEOF
// stays visible to errors.Is.
func ReadFull(r io.Reader, buf []byte) error {
	if _, err := io.ReadFull(r, buf); err != nil {
		return errors.Wrap(err, "binutil: truncated read")
	}
	return nil
}

// ChecksumIEEE computes the IEEE CRC-32 of data, matching the zlib/gzip
// polynomial used throughout the BDF format.
func ChecksumIEEE(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}
