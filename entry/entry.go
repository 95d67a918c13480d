// Package entry implements the BDF container's DataEntry codec: one
// plaintext string plus its precomputed digests under zero or more
// hash algorithms, packed against a shared hashtable.HashLookupTable.
package entry

import (
	"unicode/utf8"

	logging "github.com/dep2p/log"
	"github.com/pkg/errors"

	"github.com/bpfs/bdf/internal/binutil"
	"github.com/bpfs/bdf/hashtable"
)

var logger = logging.Logger("entry")

// digestRecordHeaderLen is hash_id(4), before the digest bytes whose width
// is the registered output_length for that id.
const digestRecordHeaderLen = binutil.Uint32Len

// entryHeaderLen is entry_length(4) + plain_length(4), before the
// plaintext bytes and digest records.
const entryHeaderLen = binutil.Uint32Len * 2

var (
	// ErrInvalidUTF8 is returned when a plaintext payload fails UTF-8
	// validation, either on encode (refusing to write non-UTF-8) or on
	// decode (the stored bytes are not valid UTF-8).
	ErrInvalidUTF8 = errors.New("entry: invalid utf-8 plaintext")
	// ErrUnknownHashID is returned when a digest record references a hash
	// id absent from the lookup table supplied to DecodeAll.
	ErrUnknownHashID = errors.New("entry: unknown hash id")
	// ErrTruncated is returned when a DataEntry's declared length runs
	// past the end of the buffer being decoded.
	ErrTruncated = errors.New("entry: truncated payload")
)

// DataEntry is one decoded (plaintext, digests) record. Digests is keyed
// by hash algorithm name, since that's the stable identity across
// containers; hashtable.HashLookupTable resolves it to an id only at
// encode time.
type DataEntry struct {
	Plain   string
	Digests map[string][]byte
}

// Encode packs one entry against lookup, resolving each digest's
// algorithm name to its registered id. Digest names absent from lookup
// are silently dropped (spec.md §4.4) — the writer is expected to have
// registered every algorithm name it intends to carry before encoding any
// entry. Encode refuses to pack a non-UTF-8 Plain value.
func (e *DataEntry) Encode(lookup *hashtable.HashLookupTable) ([]byte, error) {
	if !utf8.ValidString(e.Plain) {
		return nil, errors.Wrap(ErrInvalidUTF8, "entry: refusing to encode non-utf-8 plaintext")
	}

	body := make([]byte, 0, entryHeaderLen+len(e.Plain))
	body = binutil.PutUint32(body, uint32(len(e.Plain)))
	body = append(body, e.Plain...)

	for name, digest := range e.Digests {
		hashEntry, ok := lookup.GetEntry(name)
		if !ok {
			logger.Warnf("entry: dropping digest for unregistered hash %q", name)
			continue
		}
		body = binutil.PutUint32(body, hashEntry.ID)
		body = append(body, digest...)
	}

	out := make([]byte, 0, entryHeaderLen+len(body))
	out = binutil.PutUint32(out, uint32(len(body)))
	out = append(out, body...)
	return out, nil
}

// DecodeAll decodes every DataEntry packed sequentially in payload,
// resolving digest hash ids against lookup. An unknown hash id is fatal
// (ErrUnknownHashID): unlike encode-side unregistered names, a decode-side
// unknown id means the stream disagrees with its own lookup table.
func DecodeAll(payload []byte, lookup *hashtable.HashLookupTable) ([]DataEntry, error) {
	var out []DataEntry
	remaining := payload

	for len(remaining) > 0 {
		if len(remaining) < binutil.Uint32Len {
			return nil, errors.Wrapf(ErrTruncated, "%d bytes left, need at least %d", len(remaining), binutil.Uint32Len)
		}
		entryLength, err := binutil.ReadUint32(remaining[0:4])
		if err != nil {
			return nil, err
		}
		bodyStart := binutil.Uint32Len
		bodyEnd := bodyStart + int(entryLength)
		if bodyEnd > len(remaining) {
			return nil, errors.Wrapf(ErrTruncated, "entry declares %d bytes, %d available", entryLength, len(remaining)-bodyStart)
		}
		body := remaining[bodyStart:bodyEnd]

		de, err := decodeOne(body, lookup)
		if err != nil {
			return nil, err
		}
		out = append(out, de)

		remaining = remaining[bodyEnd:]
	}

	return out, nil
}

func decodeOne(body []byte, lookup *hashtable.HashLookupTable) (DataEntry, error) {
	if len(body) < binutil.Uint32Len {
		return DataEntry{}, errors.Wrapf(ErrTruncated, "entry body too short for plain_length")
	}
	plainLength, err := binutil.ReadUint32(body[0:4])
	if err != nil {
		return DataEntry{}, err
	}
	plainStart := binutil.Uint32Len
	plainEnd := plainStart + int(plainLength)
	if plainEnd > len(body) {
		return DataEntry{}, errors.Wrapf(ErrTruncated, "plain declares %d bytes, %d available", plainLength, len(body)-plainStart)
	}
	plainBytes := body[plainStart:plainEnd]
	if !utf8.Valid(plainBytes) {
		return DataEntry{}, errors.Wrap(ErrInvalidUTF8, "entry: decoded plaintext is not valid utf-8")
	}

	digests := make(map[string][]byte)
	remaining := body[plainEnd:]
	for len(remaining) > 0 {
		if len(remaining) < digestRecordHeaderLen {
			return DataEntry{}, errors.Wrapf(ErrTruncated, "digest record header truncated")
		}
		hashID, err := binutil.ReadUint32(remaining[0:4])
		if err != nil {
			return DataEntry{}, err
		}
		hashEntry, ok := lookup.GetByID(hashID)
		if !ok {
			return DataEntry{}, errors.Wrapf(ErrUnknownHashID, "id %d", hashID)
		}

		digestStart := digestRecordHeaderLen
		digestEnd := digestStart + int(hashEntry.OutputLength)
		if digestEnd > len(remaining) {
			return DataEntry{}, errors.Wrapf(ErrTruncated, "digest for hash %q truncated", hashEntry.Name)
		}
		digest := make([]byte, hashEntry.OutputLength)
		copy(digest, remaining[digestStart:digestEnd])
		digests[hashEntry.Name] = digest

		remaining = remaining[digestEnd:]
	}

	return DataEntry{Plain: string(plainBytes), Digests: digests}, nil
}
