package linemap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kovaxis/gaze/internal/layout"
)

// memSource is a ByteSource backed by a single in-memory file image,
// standing in for sparsestore.Store in tests that don't need a real
// loader.
type memSource struct {
	data []byte
}

func (m *memSource) Bytes(offset, length int64) ([]byte, bool) {
	if offset < 0 || offset+length > int64(len(m.data)) {
		return nil, false
	}
	return m.data[offset : offset+length], true
}

func newResidentFromString(s string, table layout.Table) Fragment {
	d, _, w := layout.LayoutOf([]byte(s), layout.Start, table)
	f := NewResident(int64(len(s)), d, w)
	f.PendingBytes = []byte(s)
	return f
}

func TestTreeLenAfterInsert(t *testing.T) {
	table := layout.DefaultTable(1)
	tree := NewEmptyTree(4)
	require.NoError(t, tree.Insert(0, newResidentFromString("hello", table), table, nil))
	assert.Equal(t, int64(5), tree.Len())

	require.NoError(t, tree.Insert(5, newResidentFromString(" world", table), table, nil))
	assert.Equal(t, int64(11), tree.Len())
}

func TestTreeInsertAtInteriorOffsetSplits(t *testing.T) {
	table := layout.DefaultTable(1)
	tree := NewEmptyTree(4)
	require.NoError(t, tree.Insert(0, newResidentFromString("helloworld", table), table, nil))

	// Insert "X" between "hello" and "world".
	require.NoError(t, tree.Insert(5, newResidentFromString("X", table), table, nil))
	assert.Equal(t, int64(11), tree.Len())

	delta, mapped := tree.SpatialDelta(0, 11)
	require.True(t, mapped)
	whole, _, _ := layout.LayoutOf([]byte("helloXworld"), layout.Start, table)
	assert.Equal(t, whole, delta)
}

func TestTreeDeleteRemovesRange(t *testing.T) {
	table := layout.DefaultTable(1)
	tree := NewEmptyTree(4)
	require.NoError(t, tree.Insert(0, newResidentFromString("hello world", table), table, nil))

	require.NoError(t, tree.Delete(5, 11, table, nil)) // drop " world"
	assert.Equal(t, int64(5), tree.Len())

	delta, mapped := tree.SpatialDelta(0, 5)
	require.True(t, mapped)
	want, _, _ := layout.LayoutOf([]byte("hello"), layout.Start, table)
	assert.Equal(t, want, delta)
}

func TestTreeDeleteInteriorSplitsBoundaryFragments(t *testing.T) {
	table := layout.DefaultTable(1)
	src := &memSource{data: []byte("0123456789")}
	tree := NewTree(4, NewUnmappedFileBacked(10, 0))

	// Scan the whole thing resident first.
	for tree.ScanOnce(table, src) {
	}

	require.NoError(t, tree.Delete(3, 7, table, src)) // drop "3456"
	assert.Equal(t, int64(6), tree.Len())

	delta, mapped := tree.SpatialDelta(0, 6)
	require.True(t, mapped)
	want, _, _ := layout.LayoutOf([]byte("012789"), layout.Start, table)
	assert.Equal(t, want, delta)
}

func TestTreeManyInsertsTriggerSplitAndStayConsistent(t *testing.T) {
	table := layout.DefaultTable(1)
	tree := NewEmptyTree(4) // small fanout to force splits quickly

	var want []byte
	offset := int64(0)
	for i := 0; i < 50; i++ {
		s := "ab\n"
		require.NoError(t, tree.Insert(offset, newResidentFromString(s, table), table, nil))
		want = append(want, s...)
		offset += int64(len(s))
	}

	assert.Equal(t, int64(len(want)), tree.Len())
	delta, mapped := tree.SpatialDelta(0, tree.Len())
	require.True(t, mapped)
	wantDelta, _, _ := layout.LayoutOf(want, layout.Start, table)
	assert.Equal(t, wantDelta, delta)
}

func TestScanOnceResolvesUnmappedFragment(t *testing.T) {
	table := layout.DefaultTable(1)
	src := &memSource{data: []byte("line one\nline two\n")}
	tree := NewTree(4, NewUnmappedFileBacked(int64(len(src.data)), 0))

	delta, mapped := tree.SpatialDelta(0, int64(len(src.data)))
	assert.False(t, mapped)

	progressed := tree.ScanOnce(table, src)
	assert.True(t, progressed)

	delta, mapped = tree.SpatialDelta(0, int64(len(src.data)))
	require.True(t, mapped)
	want, _, _ := layout.LayoutOf(src.data, layout.Start, table)
	assert.Equal(t, want, delta)

	assert.False(t, tree.ScanOnce(table, src), "nothing left to scan")
}

func TestMappedNeighborhoodSpansResidentFragments(t *testing.T) {
	table := layout.DefaultTable(1)
	tree := NewEmptyTree(4)
	require.NoError(t, tree.Insert(0, newResidentFromString("abc", table), table, nil))
	require.NoError(t, tree.Insert(3, newResidentFromString("def", table), table, nil))

	lo, hi := tree.MappedNeighborhood(4)
	assert.Equal(t, int64(0), lo)
	assert.Equal(t, int64(6), hi)
}

func TestMappedNeighborhoodEmptyOnUnmapped(t *testing.T) {
	tree := NewTree(4, NewUnmappedFileBacked(10, 0))
	lo, hi := tree.MappedNeighborhood(5)
	assert.Equal(t, lo, hi)
}

func TestOffsetAtFindsLineStart(t *testing.T) {
	table := layout.DefaultTable(1)
	src := &memSource{data: []byte("aaa\nbbb\nccc\n")}
	tree := NewTree(4, NewUnmappedFileBacked(int64(len(src.data)), 0))
	for tree.ScanOnce(table, src) {
	}

	offset, ok := tree.OffsetAt(1, 0, RoundFloor, table, src)
	require.True(t, ok)
	assert.Equal(t, int64(4), offset) // start of "bbb"
}

func TestCursorForwardVisitsAllFragments(t *testing.T) {
	table := layout.DefaultTable(1)
	tree := NewEmptyTree(4)
	require.NoError(t, tree.Insert(0, newResidentFromString("abc", table), table, nil))
	require.NoError(t, tree.Insert(3, newResidentFromString("def", table), table, nil))

	c := tree.Iterate(0, Forward)
	var lengths []int64
	for {
		f, ok := c.Next()
		if !ok {
			break
		}
		lengths = append(lengths, f.VirtualLength)
	}
	assert.Equal(t, []int64{3, 3}, lengths)
}

func TestOffsetAtRoundingModes(t *testing.T) {
	table := layout.DefaultTable(1)
	src := &memSource{data: []byte("abcdef\n")}
	tree := NewTree(4, NewUnmappedFileBacked(int64(len(src.data)), 0))
	for tree.ScanOnce(table, src) {
	}

	floor, ok := tree.OffsetAt(0, 2.5, RoundFloor, table, src)
	require.True(t, ok)
	assert.Equal(t, int64(2), floor) // "ab" then "c" starts at 2

	ceil, ok := tree.OffsetAt(0, 2.5, RoundCeil, table, src)
	require.True(t, ok)
	assert.Equal(t, int64(3), ceil)
}

func TestComposeSummaryAssociative(t *testing.T) {
	a := summary{length: 3, mapped: true, layout: layout.Delta{Lines: 1, TrailingX: 2}, maxLineWidth: 5}
	b := summary{length: 2, mapped: true, layout: layout.Delta{Lines: 0, TrailingX: 1}, maxLineWidth: 1}
	c := summary{length: 4, mapped: true, layout: layout.Delta{Lines: 2, TrailingX: 3}, maxLineWidth: 9}

	left := composeSummary(composeSummary(a, b), c)
	right := composeSummary(a, composeSummary(b, c))
	assert.Equal(t, left, right)
}

func TestComposeSummaryUnmappedPoisonsMapped(t *testing.T) {
	a := summary{length: 3, mapped: true}
	b := summary{length: 2, mapped: false}
	got := composeSummary(a, b)
	assert.False(t, got.mapped)
}
