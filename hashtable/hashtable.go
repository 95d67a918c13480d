// Package hashtable implements the BDF container's HTBL chunk payload: a
// dense, insertion-ordered id -> (name, output_length) table describing
// every hash algorithm whose digests appear in the data entries.
package hashtable

import (
	logging "github.com/dep2p/log"
	"github.com/pkg/errors"

	"github.com/bpfs/bdf/internal/binutil"
)

var logger = logging.Logger("hashtable")

// entryHeaderLen is id(4) + output_length(4) + name_length(4), before the
// variable-length name bytes.
const entryHeaderLen = binutil.Uint32Len * 3

// ErrTruncated is returned when an entry's fixed header or name bytes run
// past the end of the payload.
var ErrTruncated = errors.New("hashtable: truncated payload")

// HashEntry describes one hash algorithm registered in the lookup table.
type HashEntry struct {
	ID           uint32
	Name         string
	OutputLength uint32
}

// HashLookupTable is the ordered set of HashEntry records backing one
// container. Ids are dense and monotonic starting at 0, assigned in
// insertion order.
type HashLookupTable struct {
	entries []HashEntry
	byName  map[string]uint32
}

// New returns an empty lookup table.
func New() *HashLookupTable {
	return &HashLookupTable{byName: make(map[string]uint32)}
}

// Add registers a hash algorithm and returns its assigned id. If name is
// already registered, its existing id is returned unchanged and
// outputLength is ignored (first registration wins).
func (t *HashLookupTable) Add(name string, outputLength uint32) uint32 {
	if id, ok := t.byName[name]; ok {
		return id
	}
	id := uint32(len(t.entries))
	t.entries = append(t.entries, HashEntry{ID: id, Name: name, OutputLength: outputLength})
	t.byName[name] = id
	return id
}

// GetEntry looks up a registered algorithm by name.
func (t *HashLookupTable) GetEntry(name string) (HashEntry, bool) {
	id, ok := t.byName[name]
	if !ok {
		return HashEntry{}, false
	}
	return t.entries[id], true
}

// GetByID looks up a registered algorithm by id.
func (t *HashLookupTable) GetByID(id uint32) (HashEntry, bool) {
	if int(id) >= len(t.entries) {
		return HashEntry{}, false
	}
	return t.entries[id], true
}

// Len returns the number of registered entries.
func (t *HashLookupTable) Len() int {
	return len(t.entries)
}

// Entries returns the registered entries in id order. The returned slice
// must not be mutated by the caller.
func (t *HashLookupTable) Entries() []HashEntry {
	return t.entries
}

// Serialize packs every entry as {id, output_length, name_length, name},
// in id order.
func (t *HashLookupTable) Serialize() []byte {
	out := make([]byte, 0, len(t.entries)*entryHeaderLen)
	for _, e := range t.entries {
		out = binutil.PutUint32(out, e.ID)
		out = binutil.PutUint32(out, e.OutputLength)
		out = binutil.PutUint32(out, uint32(len(e.Name)))
		out = append(out, e.Name...)
	}
	return out
}

// Parse decodes a HTBL payload. A trailing remainder that does not form a
// complete entry (shorter than one entry header, or a name running past
// the end of the payload) is logged and discarded, per spec.md §4.3/§9.
// Use ParseStrict to reject any such remainder instead.
func Parse(payload []byte) (*HashLookupTable, error) {
	return parse(payload, false)
}

// ParseStrict is like Parse but fails on any trailing bytes that don't
// form a complete entry.
func ParseStrict(payload []byte) (*HashLookupTable, error) {
	return parse(payload, true)
}

func parse(payload []byte, strict bool) (*HashLookupTable, error) {
	t := New()
	remaining := payload

	for len(remaining) > 0 {
		if len(remaining) < entryHeaderLen {
			return tolerateOrFail(t, remaining, strict)
		}

		id, err := binutil.ReadUint32(remaining[0:4])
		if err != nil {
			return nil, err
		}
		outputLength, err := binutil.ReadUint32(remaining[4:8])
		if err != nil {
			return nil, err
		}
		nameLength, err := binutil.ReadUint32(remaining[8:12])
		if err != nil {
			return nil, err
		}

		end := entryHeaderLen + int(nameLength)
		if end > len(remaining) {
			return tolerateOrFail(t, remaining, strict)
		}

		name := string(remaining[entryHeaderLen:end])
		entry := HashEntry{ID: id, Name: name, OutputLength: outputLength}
		t.entries = append(t.entries, entry)
		t.byName[name] = id

		remaining = remaining[end:]
	}

	return t, nil
}

func tolerateOrFail(t *HashLookupTable, remainder []byte, strict bool) (*HashLookupTable, error) {
	if strict {
		return nil, errors.Wrapf(ErrTruncated, "%d trailing bytes", len(remainder))
	}
	logger.Warnf("hashtable: discarding %d trailing bytes that don't form a complete entry", len(remainder))
	return t, nil
}
