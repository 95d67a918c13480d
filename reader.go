package bdf

import (
	"bufio"
	"bytes"
	"io"

	"github.com/pkg/errors"

	"github.com/bpfs/bdf/chunk"
	"github.com/bpfs/bdf/entry"
	"github.com/bpfs/bdf/hashtable"
	"github.com/bpfs/bdf/meta"
)

// readerState is the Reader's lifecycle position (spec.md §4.6).
type readerState int

const (
	readerFresh readerState = iota
	readerMetaRead
	readerLookupRead
	readerStreaming
	readerEOF
	readerError
)

// Reader pulls plaintext+digest entries out of a BDF container, one DTBL
// chunk at a time. It never prefetches past the chunk currently being
// drained.
type Reader struct {
	br   *bufio.Reader
	opts ReaderOptions

	state  readerState
	meta   *meta.MetaChunk
	lookup *hashtable.HashLookupTable

	pending []entry.DataEntry
}

// NewReader wraps src and returns a fresh Reader.
func NewReader(src io.Reader, opts ...ReaderOption) *Reader {
	o := DefaultReaderOptions()
	for _, fn := range opts {
		fn(&o)
	}
	return &Reader{
		br:    bufio.NewReader(src),
		opts:  o,
		state: readerFresh,
	}
}

// ReadHeader validates the magic prelude and decodes the META chunk. It
// may be called at most once, and only on a Fresh Reader;
// ReadLookupTable calls it itself when it has not been called yet.
func (r *Reader) ReadHeader() (*meta.MetaChunk, error) {
	if r.state != readerFresh {
		return nil, errors.Wrapf(ErrStateViolation, "ReadHeader called outside Fresh state")
	}

	var magic [len(Magic)]byte
	if _, err := io.ReadFull(r.br, magic[:]); err != nil {
		r.state = readerError
		return nil, errors.Wrap(ErrTruncated, err.Error())
	}
	if !bytes.Equal(magic[:], Magic[:]) {
		r.state = readerError
		return nil, errors.Wrapf(ErrInvalidHeader, "got %x", magic)
	}

	c, err := r.readChunkNamed(chunk.Meta)
	if err != nil {
		r.state = readerError
		if errors.Is(err, io.EOF) {
			return nil, errors.Wrap(ErrTruncated, "missing META chunk")
		}
		return nil, err
	}
	if err := c.VerifyCRC(); err != nil {
		r.state = readerError
		return nil, mapCrcErr(err)
	}

	m, err := meta.Parse(c.Data)
	if err != nil {
		r.state = readerError
		if errors.Is(err, meta.ErrUnsupportedCompression) {
			return nil, errors.Wrap(ErrUnsupportedCompression, err.Error())
		}
		if errors.Is(err, meta.ErrTruncated) {
			return nil, errors.Wrap(ErrTruncated, err.Error())
		}
		return nil, err
	}

	r.meta = m
	r.state = readerMetaRead
	logger.Debugf("bdf: header read, entry_count=%d chunk_count=%d compressed=%v", m.EntryCount, m.ChunkCount, m.Compressed())
	return m, nil
}

// ReadLookupTable decodes the HTBL chunk, exactly once. Called on a Fresh
// Reader, it first performs ReadHeader.
func (r *Reader) ReadLookupTable() (*hashtable.HashLookupTable, error) {
	if r.state == readerFresh {
		if _, err := r.ReadHeader(); err != nil {
			return nil, err
		}
	}
	if r.state != readerMetaRead {
		return nil, errors.Wrapf(ErrStateViolation, "ReadLookupTable called outside MetaRead state")
	}

	c, err := r.readChunkNamed(chunk.Htbl)
	if err != nil {
		r.state = readerError
		if errors.Is(err, io.EOF) {
			return nil, errors.Wrap(ErrTruncated, "missing HTBL chunk")
		}
		return nil, err
	}
	if err := c.VerifyCRC(); err != nil {
		r.state = readerError
		return nil, mapCrcErr(err)
	}

	var lookup *hashtable.HashLookupTable
	if r.opts.StrictHashTable {
		lookup, err = hashtable.ParseStrict(c.Data)
	} else {
		lookup, err = hashtable.Parse(c.Data)
	}
	if err != nil {
		r.state = readerError
		if errors.Is(err, hashtable.ErrTruncated) {
			return nil, errors.Wrap(ErrTruncated, err.Error())
		}
		return nil, err
	}

	r.lookup = lookup
	r.state = readerLookupRead
	return lookup, nil
}

// Next returns the next decoded DataEntry, pulling and decompressing a
// new DTBL chunk from the underlying reader only when the previously
// pulled chunk's entries are exhausted. MetaChunk.ChunkCount is advisory
// and never consulted here: Next streams until the DTBL sequence hits a
// clean end of stream, reported as io.EOF (spec.md §9).
func (r *Reader) Next() (*entry.DataEntry, error) {
	if r.state == readerLookupRead {
		r.state = readerStreaming
	}
	if r.state != readerStreaming && r.state != readerEOF {
		return nil, errors.Wrapf(ErrStateViolation, "Next called outside Streaming state")
	}

	for len(r.pending) == 0 {
		if r.state == readerEOF {
			return nil, io.EOF
		}
		if err := r.pullChunk(); err != nil {
			if errors.Is(err, io.EOF) {
				r.state = readerEOF
				return nil, io.EOF
			}
			r.state = readerError
			return nil, err
		}
	}

	next := r.pending[0]
	r.pending = r.pending[1:]
	return &next, nil
}

func (r *Reader) pullChunk() error {
	c, err := r.readChunkNamed(chunk.Dtbl)
	if err != nil {
		return err
	}

	if r.meta.Compressed() {
		if err := c.Decompress(); err != nil {
			return mapCrcErr(err)
		}
	} else if err := c.VerifyCRC(); err != nil {
		return mapCrcErr(err)
	}

	entries, err := entry.DecodeAll(c.Data, r.lookup)
	if err != nil {
		if errors.Is(err, entry.ErrInvalidUTF8) {
			return errors.Wrap(ErrInvalidUTF8, err.Error())
		}
		if errors.Is(err, entry.ErrTruncated) {
			return errors.Wrap(ErrTruncated, err.Error())
		}
		return err
	}
	r.pending = entries
	return nil
}

// mapCrcErr translates a chunk-package CRC mismatch into the root
// package's sentinel, preserving every other error unchanged.
func mapCrcErr(err error) error {
	if errors.Is(err, chunk.ErrCrcMismatch) {
		return errors.Wrap(ErrCrcMismatch, err.Error())
	}
	return err
}

func (r *Reader) readChunkNamed(want string) (*chunk.Chunk, error) {
	c, err := chunk.Parse(r.br)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if errors.Is(err, chunk.ErrTruncated) {
			return nil, errors.Wrap(ErrTruncated, err.Error())
		}
		return nil, err
	}
	if c.Name != want {
		return nil, errors.Wrapf(ErrInvalidChunkName, "expected %q, got %q", want, c.Name)
	}
	return c, nil
}
