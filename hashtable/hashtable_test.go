package hashtable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAssignsDenseMonotonicIds(t *testing.T) {
	tbl := New()
	fooID := tbl.Add("foo", 32)
	barID := tbl.Add("bar", 20)

	assert.Equal(t, uint32(0), fooID)
	assert.Equal(t, uint32(1), barID)
	assert.Equal(t, 2, tbl.Len())
}

func TestAddIsIdempotentPerName(t *testing.T) {
	tbl := New()
	first := tbl.Add("sha256", 32)
	second := tbl.Add("sha256", 999) // outputLength ignored on re-add

	assert.Equal(t, first, second)
	assert.Equal(t, 1, tbl.Len())

	entry, ok := tbl.GetEntry("sha256")
	require.True(t, ok)
	assert.Equal(t, uint32(32), entry.OutputLength)
}

func TestSerializeParseRoundTrip(t *testing.T) {
	tbl := New()
	tbl.Add("foo", 32)
	tbl.Add("bar", 20)

	got, err := Parse(tbl.Serialize())
	require.NoError(t, err)
	assert.Equal(t, tbl.Entries(), got.Entries())
}

func TestGetEntryAndGetByID(t *testing.T) {
	tbl := New()
	id := tbl.Add("foo", 32)

	byName, ok := tbl.GetEntry("foo")
	require.True(t, ok)
	assert.Equal(t, id, byName.ID)

	byID, ok := tbl.GetByID(id)
	require.True(t, ok)
	assert.Equal(t, "foo", byID.Name)

	_, ok = tbl.GetEntry("missing")
	assert.False(t, ok)
	_, ok = tbl.GetByID(999)
	assert.False(t, ok)
}

func TestParseTolerantOfTrailingBytes(t *testing.T) {
	tbl := New()
	tbl.Add("foo", 32)
	payload := append(tbl.Serialize(), 0x01, 0x02, 0x03)

	got, err := Parse(payload)
	require.NoError(t, err)
	assert.Equal(t, tbl.Entries(), got.Entries())
}

func TestParseStrictRejectsTrailingBytes(t *testing.T) {
	tbl := New()
	tbl.Add("foo", 32)
	payload := append(tbl.Serialize(), 0x01, 0x02, 0x03)

	_, err := ParseStrict(payload)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestParseEmptyPayload(t *testing.T) {
	got, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Len())
}
