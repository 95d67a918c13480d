// Package chunk implements the BDF container's generic on-disk record
// envelope: a 4-byte length, a 4-byte name, the payload, and a trailing
// IEEE CRC-32 of the payload.
package chunk

import (
	"bytes"
	"io"

	logging "github.com/dep2p/log"
	"github.com/pkg/errors"
	"github.com/ulikunitz/xz/lzma"

	"github.com/bpfs/bdf/internal/binutil"
)

var logger = logging.Logger("chunk")

// Names recognized by the BDF core. A reader that encounters any other
// 4-byte name is required to fail fast (spec: unknown chunk names are
// fatal).
const (
	Meta = "META"
	Htbl = "HTBL"
	Dtbl = "DTBL"
)

const nameLen = 4
const headerLen = binutil.Uint32Len + nameLen // length + name, before payload
const trailerLen = binutil.Uint32Len          // crc

// Sentinel errors surfaced by this package. They compose with
// github.com/pkg/errors so callers can still use errors.Is/errors.As
// after a Wrap.
var (
	ErrInvalidChunkName = errors.New("chunk: invalid chunk name")
	ErrCrcMismatch      = errors.New("chunk: crc mismatch")
	ErrTruncated        = errors.New("chunk: truncated read")
)

// Chunk is the generic {length, name, payload, crc} envelope. Length
// always describes the payload currently held in Data. CRC is computed
// once, at construction, over the uncompressed payload, and Compress
// never recomputes it — only Decompress verifies it.
type Chunk struct {
	Length uint32
	Name   string
	Data   []byte
	Crc    uint32
}

// New builds a chunk over data, computing its CRC-32 immediately. Name
// must be exactly 4 bytes; this is a caller contract, not validated here,
// since the core only ever constructs chunks with its own constant names.
func New(name string, data []byte) *Chunk {
	return &Chunk{
		Length: uint32(len(data)),
		Name:   name,
		Data:   data,
		Crc:    binutil.ChecksumIEEE(data),
	}
}

// Serialize concatenates the four on-disk fields. It does not recompute
// the CRC — the CRC is fixed at construction time (or preserved across
// Compress) and reflects the uncompressed payload.
func (c *Chunk) Serialize() []byte {
	out := make([]byte, 0, headerLen+len(c.Data)+trailerLen)
	out = binutil.PutUint32(out, c.Length)
	out = append(out, []byte(c.Name)...)
	out = append(out, c.Data...)
	out = binutil.PutUint32(out, c.Crc)
	return out
}

// Parse reads one chunk from r: 4-byte length, 4-byte name, length bytes
// of payload, 4-byte CRC. A clean end of stream exactly at the chunk
// boundary (no bytes read for the next header) is reported as io.EOF, so
// a sequential reader can tell "no more chunks" apart from "this chunk is
// truncated": any short read once the header is partially consumed is
// ErrTruncated.
func Parse(r io.Reader) (*Chunk, error) {
	var head [headerLen]byte
	if err := binutil.ReadFull(r, head[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, errors.Wrap(ErrTruncated, err.Error())
	}
	length, err := binutil.ReadUint32(head[:binutil.Uint32Len])
	if err != nil {
		return nil, err
	}
	name := string(head[binutil.Uint32Len:headerLen])

	data := make([]byte, length)
	if length > 0 {
		if err := binutil.ReadFull(r, data); err != nil {
			return nil, errors.Wrapf(ErrTruncated, "chunk %q payload: %v", name, err)
		}
	}

	var crcBuf [trailerLen]byte
	if err := binutil.ReadFull(r, crcBuf[:]); err != nil {
		return nil, errors.Wrapf(ErrTruncated, "chunk %q crc: %v", name, err)
	}
	crc, err := binutil.ReadUint32(crcBuf[:])
	if err != nil {
		return nil, err
	}

	return &Chunk{Length: length, Name: name, Data: data, Crc: crc}, nil
}

// Compress replaces Data with its LZMA-compressed form at the given level
// (0-9, see dictCapForLevel). Length is updated; Crc is left untouched
// since it always describes the uncompressed payload (spec.md §4.1).
// Compress is only meaningful for Dtbl chunks; callers are responsible for
// never compressing Meta/Htbl (the format requires those stay raw).
func (c *Chunk) Compress(level uint32) error {
	var buf bytes.Buffer
	cfg := lzma.WriterConfig{DictCap: dictCapForLevel(level)}
	w, err := cfg.NewWriter(&buf)
	if err != nil {
		return errors.Wrap(err, "chunk: init lzma writer")
	}
	if _, err := w.Write(c.Data); err != nil {
		return errors.Wrap(err, "chunk: lzma compress")
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, "chunk: lzma compress close")
	}

	c.Data = buf.Bytes()
	c.Length = uint32(len(c.Data))
	logger.Debugf("compressed chunk %q: level=%d size=%d", c.Name, level, c.Length)
	return nil
}

// VerifyCRC checks the stored Crc against the CRC-32 of the current Data.
// Use this directly for chunks that are never compressed (META, HTBL);
// Decompress performs the equivalent check for DTBL chunks after
// decompression.
func (c *Chunk) VerifyCRC() error {
	if crc := binutil.ChecksumIEEE(c.Data); crc != c.Crc {
		return errors.Wrapf(ErrCrcMismatch, "chunk %q: got %08x want %08x", c.Name, crc, c.Crc)
	}
	return nil
}

// Decompress replaces Data with its LZMA-decompressed form, then verifies
// CRC32(decompressed) against the stored Crc. A mismatch is fatal
// (ErrCrcMismatch); Data and Length are replaced only when the CRC
// matches, so on any error they still hold the compressed payload.
func (c *Chunk) Decompress() error {
	r, err := lzma.NewReader(bytes.NewReader(c.Data))
	if err != nil {
		return errors.Wrap(err, "chunk: init lzma reader")
	}
	decompressed, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrap(err, "chunk: lzma decompress")
	}

	if crc := binutil.ChecksumIEEE(decompressed); crc != c.Crc {
		return errors.Wrapf(ErrCrcMismatch, "chunk %q: got %08x want %08x", c.Name, crc, c.Crc)
	}

	c.Data = decompressed
	c.Length = uint32(len(decompressed))
	return nil
}

// dictCapForLevel maps the spec's caller-facing 0-9 compression level to
// an lzma.WriterConfig.DictCap. The wire format only ever records the
// method name ("lzma"), never the level (spec.md §9), so this mapping is
// purely an encode-side knob; decoders never need to reproduce it.
func dictCapForLevel(level uint32) int {
	if level > 9 {
		level = 9
	}
	const minDictCap = 1 << 16 // 64KiB, level 0
	const maxDictCap = 1 << 26 // 64MiB ceiling; level 9 yields 32MiB
	cap := minDictCap << level
	if cap > maxDictCap || cap < 0 {
		cap = maxDictCap
	}
	return cap
}
