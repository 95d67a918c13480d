package bdf

import "runtime"

// WriterOptions configures a Writer. Build one with DefaultWriterOptions
// and WriterOption functions, mirroring bpfs-defs/opts's functional
// options shape.
type WriterOptions struct {
	Compress        bool
	CompressionLevel uint32
	EntriesPerChunk uint32
	WorkerCount     int
	ProgressFunc    func(WriteStats)
}

// DefaultWriterOptions returns the baseline options: no compression,
// ENTRIES_PER_CHUNK entries per DTBL chunk, and one worker per logical
// CPU.
func DefaultWriterOptions() WriterOptions {
	return WriterOptions{
		Compress:        false,
		CompressionLevel: 1,
		EntriesPerChunk: defaultEntriesPerChunk,
		WorkerCount:     runtime.NumCPU(),
	}
}

// WriterOption mutates a WriterOptions in place.
type WriterOption func(*WriterOptions)

// WithCompression enables or disables LZMA compression of DTBL chunks.
func WithCompression(enabled bool) WriterOption {
	return func(o *WriterOptions) { o.Compress = enabled }
}

// WithCompressionLevel sets the LZMA compression level (0-9). Implies
// WithCompression(true).
func WithCompressionLevel(level uint32) WriterOption {
	return func(o *WriterOptions) {
		o.Compress = true
		o.CompressionLevel = level
	}
}

// WithEntriesPerChunk overrides the number of data entries packed into
// each DTBL chunk. A zero value is ignored.
func WithEntriesPerChunk(n uint32) WriterOption {
	return func(o *WriterOptions) {
		if n > 0 {
			o.EntriesPerChunk = n
		}
	}
}

// WithWorkerCount overrides the compression worker pool size. A
// non-positive value is ignored.
func WithWorkerCount(n int) WriterOption {
	return func(o *WriterOptions) {
		if n > 0 {
			o.WorkerCount = n
		}
	}
}

// WithProgressFunc registers a hook invoked after each DTBL chunk is
// written to the Writer's buffered sink.
func WithProgressFunc(fn func(WriteStats)) WriterOption {
	return func(o *WriterOptions) { o.ProgressFunc = fn }
}

// ReaderOptions configures a Reader.
type ReaderOptions struct {
	// StrictHashTable rejects any trailing bytes in the HTBL chunk that
	// don't form a complete entry, instead of tolerating and discarding
	// them (spec.md §9 open question).
	StrictHashTable bool
}

// DefaultReaderOptions returns the baseline options: tolerant HTBL
// parsing, matching spec.md §4.3's stated default parser behavior.
func DefaultReaderOptions() ReaderOptions {
	return ReaderOptions{StrictHashTable: false}
}

// ReaderOption mutates a ReaderOptions in place.
type ReaderOption func(*ReaderOptions)

// WithStrictHashTable enables strict HTBL trailing-byte rejection.
func WithStrictHashTable(strict bool) ReaderOption {
	return func(o *ReaderOptions) { o.StrictHashTable = strict }
}
