// Package bdf implements the BDF binary container format: a sequence of
// plaintext strings stored alongside precomputed digests under one or
// more named hash algorithms, framed into CRC-32-protected, optionally
// LZMA-compressed chunks.
package bdf

import (
	logging "github.com/dep2p/log"
	"github.com/pkg/errors"
)

var logger = logging.Logger("bdf")

// Magic is the fixed 11-byte prelude every BDF container opens with:
// "BDF" + version byte (1) + "RAINBOW".
var Magic = [11]byte{'B', 'D', 'F', 0x01, 'R', 'A', 'I', 'N', 'B', 'O', 'W'}

// magicVersionOffset is the index of the version byte within Magic.
const magicVersionOffset = 3

// CurrentVersion is the only version this package knows how to read or
// write.
const CurrentVersion = 1

// Sentinel errors, one per spec error kind (spec.md §7). Callers branch on
// error kind with errors.Is/errors.As; an error of one of these kinds
// returned by this package wraps the matching sentinel with
// github.com/pkg/errors. Sink/source I/O errors and entry.ErrUnknownHashID
// are returned wrapped but not mapped to a sentinel, and Reader.Next
// reports the end of the stream as io.EOF.
var (
	ErrTruncated              = errors.New("bdf: truncated input")
	ErrInvalidHeader          = errors.New("bdf: invalid magic header")
	ErrInvalidChunkName       = errors.New("bdf: invalid chunk name")
	ErrUnsupportedCompression = errors.New("bdf: unsupported compression method")
	ErrCrcMismatch            = errors.New("bdf: crc mismatch")
	ErrInvalidUTF8            = errors.New("bdf: invalid utf-8 plaintext")
	ErrStateViolation         = errors.New("bdf: operation invalid in current state")
)

// defaultEntriesPerChunk mirrors original_source/src/io.rs's
// ENTRIES_PER_CHUNK constant: the number of data entries packed into each
// DTBL chunk before a new one is started.
const defaultEntriesPerChunk = 100_000
