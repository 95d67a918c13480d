package bdf

import (
	"bufio"
	"container/heap"
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/bpfs/bdf/chunk"
	"github.com/bpfs/bdf/entry"
	"github.com/bpfs/bdf/hashtable"
	"github.com/bpfs/bdf/meta"
)

// writerState is the Writer's lifecycle position (spec.md §4.5).
type writerState int

const (
	writerFresh writerState = iota
	writerHeadersEmitted
	writerDraining
	writerClosed
)

// WriteStats is a read-only snapshot of a Writer's progress, refreshed
// after every chunk written to the Writer's buffered sink (SPEC_FULL.md
// §3, §6); the bytes reach the underlying sink when the buffer fills or
// on Close.
type WriteStats struct {
	EntriesWritten   uint64
	ChunksWritten    uint32
	RawBytesWritten  uint64
	WireBytesWritten uint64
}

// Writer packs plaintext strings and their digests into a BDF container.
// Entries accumulate in an in-memory buffer until it reaches
// EntriesPerChunk, at which point the buffer is packed into a DTBL chunk
// and submitted to a pool of compression workers; results are written to
// the sink in submission order as they complete (spec.md §5, §9 option
// (b)). The first flush — whether triggered by a full buffer or by Close
// on a short container — emits the magic prelude, META, and HTBL before
// any DTBL chunk.
//
// Like bufio.Writer, a Writer is driven by a single producer goroutine:
// RegisterHash, AddEntry, and Close must not be called concurrently with
// each other. The worker pool and drain goroutine it starts are the only
// other concurrency involved, and only the drain goroutine ever writes
// chunk bytes to the sink after the header section is written.
type Writer struct {
	sink io.Writer
	bw   *bufio.Writer
	opts WriterOptions

	// entryCount is the caller-supplied advisory total (spec.md §6),
	// used only to populate MetaChunk before the actual number of
	// entries added is known.
	entryCount uint64

	lookup *hashtable.HashLookupTable

	jobs      chan group
	results   chan result
	workersWG sync.WaitGroup
	drainDone chan struct{}

	mu            sync.Mutex
	state         writerState
	buf           []entry.DataEntry
	actualEntries uint64
	nextTag       int
	stats         WriteStats
	err           error
}

// NewWriter wraps sink and returns a fresh Writer. entryCount is the
// advisory total number of entries the caller expects to add; it is used
// only to populate MetaChunk.EntryCount/ChunkCount ahead of time and need
// not match the number of entries actually added (spec.md §6, §9). sink
// is only flushed and never closed by this package.
func NewWriter(sink io.Writer, entryCount uint64, opts ...WriterOption) *Writer {
	o := DefaultWriterOptions()
	for _, fn := range opts {
		fn(&o)
	}
	workerCount := o.WorkerCount
	if workerCount < 1 {
		workerCount = 1
	}

	w := &Writer{
		sink:       sink,
		bw:         bufio.NewWriter(sink),
		opts:       o,
		entryCount: entryCount,
		lookup:     hashtable.New(),
		jobs:       make(chan group, workerCount),
		results:    make(chan result, workerCount),
		drainDone:  make(chan struct{}),
		state:      writerFresh,
	}

	for i := 0; i < workerCount; i++ {
		w.workersWG.Add(1)
		go w.compressWorker()
	}
	go w.orderedDrainLoop()

	return w
}

// RegisterHash declares a hash algorithm that may appear in later
// AddEntry digests, and returns its assigned id. Must be called while the
// Writer is Fresh — once the first chunk is flushed, HTBL has already
// been written to the sink and can no longer change.
func (w *Writer) RegisterHash(name string, outputLength uint32) (uint32, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != writerFresh {
		return 0, errors.Wrapf(ErrStateViolation, "RegisterHash after headers emitted")
	}
	return w.lookup.Add(name, outputLength), nil
}

// AddEntry buffers one plaintext + digests record and packs+submits a
// DTBL chunk whenever the buffer reaches EntriesPerChunk (spec.md §4.5).
// The first flush this triggers also emits magic+META+HTBL. Submitting a
// full chunk to the worker pool may block until a worker is free
// (spec.md §6's "may block on backpressure"). Digests for hash names
// never registered via RegisterHash are silently dropped at encode time
// (spec.md §4.4).
func (w *Writer) AddEntry(plain string, digests map[string][]byte) error {
	w.mu.Lock()
	if w.err != nil {
		err := w.err
		w.mu.Unlock()
		return err
	}
	if w.state == writerClosed {
		w.mu.Unlock()
		return errors.Wrapf(ErrStateViolation, "AddEntry after Close")
	}
	w.buf = append(w.buf, entry.DataEntry{Plain: plain, Digests: digests})
	w.actualEntries++
	full := uint32(len(w.buf)) >= w.opts.EntriesPerChunk
	w.mu.Unlock()

	if full {
		return w.flush()
	}
	return nil
}

// Stats returns a snapshot of the Writer's progress so far.
func (w *Writer) Stats() WriteStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Close flushes any remaining buffered entries (emitting headers first if
// the Writer never reached a full chunk), waits for every outstanding
// chunk to drain to the sink in order, and flushes the sink. Close is not
// idempotent: calling it twice returns ErrStateViolation.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.state == writerClosed {
		w.mu.Unlock()
		return errors.Wrapf(ErrStateViolation, "Close called twice")
	}
	actual := w.actualEntries
	w.mu.Unlock()

	if actual != w.entryCount {
		logger.Warnf("bdf: advisory entry_count %d did not match %d entries actually added", w.entryCount, actual)
	}

	flushErr := w.flush()
	w.closeChannels()

	w.mu.Lock()
	w.state = writerClosed
	err := w.err
	w.mu.Unlock()

	if flushErr != nil {
		return flushErr
	}
	if err != nil {
		return err
	}

	return errors.Wrap(w.bw.Flush(), "bdf: flush sink")
}

func (w *Writer) closeChannels() {
	close(w.jobs)
	w.workersWG.Wait()
	close(w.results)
	<-w.drainDone
}

// flush emits headers on first use, then packs whatever is currently
// buffered into one DTBL chunk and submits it to the worker pool. It is a
// no-op if nothing is buffered and headers have already been emitted.
func (w *Writer) flush() error {
	if err := w.ensureHeaders(); err != nil {
		return err
	}

	w.mu.Lock()
	if len(w.buf) == 0 {
		err := w.err
		w.mu.Unlock()
		return err
	}
	buf := w.buf
	w.buf = nil
	tag := w.nextTag
	w.nextTag++
	w.mu.Unlock()

	g, err := w.buildGroup(tag, buf)
	if err != nil {
		w.setErr(err)
		return err
	}

	w.jobs <- g // may block: backpressure, spec.md §6
	return w.currentErr()
}

// ensureHeaders emits magic+META+HTBL exactly once, transitioning
// Fresh -> HeadersEmitted -> Draining (spec.md §4.5). Callers after the
// first see state already past Fresh and return immediately.
func (w *Writer) ensureHeaders() error {
	w.mu.Lock()
	if w.state != writerFresh {
		w.mu.Unlock()
		return w.currentErr()
	}
	w.state = writerHeadersEmitted
	w.mu.Unlock()

	if err := w.emitHeaders(); err != nil {
		w.setErr(err)
		return err
	}

	w.mu.Lock()
	w.state = writerDraining
	w.mu.Unlock()
	return nil
}

func (w *Writer) emitHeaders() error {
	entriesPerChunk := w.opts.EntriesPerChunk
	chunkCount := uint32(0)
	if w.entryCount > 0 {
		chunkCount = uint32((w.entryCount + uint64(entriesPerChunk) - 1) / uint64(entriesPerChunk))
	}

	method := ""
	if w.opts.Compress {
		method = "lzma"
	}

	m := &meta.MetaChunk{
		ChunkCount:        chunkCount,
		EntriesPerChunk:   entriesPerChunk,
		EntryCount:        w.entryCount,
		CompressionMethod: method,
	}

	if _, err := w.bw.Write(Magic[:]); err != nil {
		return errors.Wrap(err, "bdf: write magic")
	}
	if err := w.writeRawChunk(chunk.Meta, m.Serialize()); err != nil {
		return err
	}
	if err := w.writeRawChunk(chunk.Htbl, w.lookup.Serialize()); err != nil {
		return err
	}

	logger.Debugf("bdf: headers emitted, entry_count(advisory)=%d chunk_count(advisory)=%d compressed=%v", w.entryCount, chunkCount, w.opts.Compress)
	return nil
}

func (w *Writer) writeRawChunk(name string, payload []byte) error {
	c := chunk.New(name, payload)
	wire := c.Serialize()
	if _, err := w.bw.Write(wire); err != nil {
		return errors.Wrapf(err, "bdf: write %s chunk", name)
	}
	w.mu.Lock()
	w.stats.ChunksWritten++
	w.stats.WireBytesWritten += uint64(len(wire))
	w.mu.Unlock()
	return nil
}

// group is one DTBL chunk's worth of already-encoded entries, tagged with
// its submission order.
type group struct {
	tag        int
	payload    []byte // concatenated entry.Encode() output
	rawLen     int
	entryCount int
}

// result is a worker's output for one group: the fully serialized chunk
// bytes, ready to write to the sink verbatim.
type result struct {
	tag        int
	wire       []byte
	rawLen     int
	wireLen    int
	entryCount int
	err        error
}

// buildGroup encodes buf's entries against the (by now fixed) lookup
// table into one DTBL payload. Runs on the producer goroutine so the
// lookup table is never touched concurrently with RegisterHash.
func (w *Writer) buildGroup(tag int, buf []entry.DataEntry) (group, error) {
	var payload []byte
	for _, e := range buf {
		encoded, err := e.Encode(w.lookup)
		if err != nil {
			if errors.Is(err, entry.ErrInvalidUTF8) {
				return group{}, errors.Wrapf(ErrInvalidUTF8, "bdf: encode entry in chunk %d: %v", tag, err)
			}
			return group{}, errors.Wrapf(err, "bdf: encode entry in chunk %d", tag)
		}
		payload = append(payload, encoded...)
	}
	return group{tag: tag, payload: payload, rawLen: len(payload), entryCount: len(buf)}, nil
}

// compressWorker compresses (when enabled) and serializes each submitted
// group independently, preserving the group's tag for order restoration
// at the drain side (SPEC_FULL.md §5).
func (w *Writer) compressWorker() {
	defer w.workersWG.Done()
	for g := range w.jobs {
		c := chunk.New(chunk.Dtbl, g.payload)
		if w.opts.Compress {
			if err := c.Compress(w.opts.CompressionLevel); err != nil {
				w.results <- result{tag: g.tag, err: errors.Wrapf(err, "bdf: compress chunk %d", g.tag)}
				continue
			}
		}
		wire := c.Serialize()
		w.results <- result{tag: g.tag, wire: wire, rawLen: g.rawLen, wireLen: len(wire), entryCount: g.entryCount}
	}
}

// resultHeap is a min-heap of results keyed by tag, used to restore
// submission order across a pool of concurrent compress workers
// (SPEC_FULL.md §5, spec.md §9 option (b)).
type resultHeap []result

func (h resultHeap) Len() int            { return len(h) }
func (h resultHeap) Less(i, j int) bool  { return h[i].tag < h[j].tag }
func (h resultHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *resultHeap) Push(x interface{}) { *h = append(*h, x.(result)) }
func (h *resultHeap) Pop() interface{} {
	old := *h
	n := len(old)
	last := old[n-1]
	*h = old[:n-1]
	return last
}

// orderedDrainLoop runs for the Writer's whole lifetime, reordering
// worker results by submission tag and writing them to the sink as soon
// as the next tag due becomes available. It exits once w.results is
// closed and drained, signaling exit via drainDone.
func (w *Writer) orderedDrainLoop() {
	defer close(w.drainDone)

	pending := &resultHeap{}
	heap.Init(pending)
	nextTag := 0

	for r := range w.results {
		if w.hasErr() {
			continue // already failed; keep draining so workers never block on a full channel
		}
		if r.err != nil {
			w.setErr(r.err)
			continue
		}

		heap.Push(pending, r)
		for pending.Len() > 0 && (*pending)[0].tag == nextTag {
			next := heap.Pop(pending).(result)
			if err := w.writeGroupResult(next); err != nil {
				w.setErr(err)
				break
			}
			nextTag++
		}
	}
}

func (w *Writer) writeGroupResult(r result) error {
	if _, err := w.bw.Write(r.wire); err != nil {
		return errors.Wrapf(err, "bdf: write DTBL chunk %d", r.tag)
	}

	w.mu.Lock()
	w.stats.ChunksWritten++
	w.stats.EntriesWritten += uint64(r.entryCount)
	w.stats.RawBytesWritten += uint64(r.rawLen)
	w.stats.WireBytesWritten += uint64(r.wireLen)
	progressFn := w.opts.ProgressFunc
	stats := w.stats
	w.mu.Unlock()

	if progressFn != nil {
		progressFn(stats)
	}
	return nil
}

func (w *Writer) setErr(err error) {
	w.mu.Lock()
	if w.err == nil {
		w.err = err
	}
	w.mu.Unlock()
}

func (w *Writer) hasErr() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err != nil
}

func (w *Writer) currentErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}
