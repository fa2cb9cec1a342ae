package sparsestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadForwardNotResident(t *testing.T) {
	s := NewStore(1 << 20)
	n, end := s.ReadForward(100)
	assert.Equal(t, int64(0), n)
	assert.Equal(t, int64(100), end)
}

func TestCommitThenReadForward(t *testing.T) {
	s := NewStore(1 << 20)
	s.Commit(0, []byte("hello world"), nil)

	n, end := s.ReadForward(0)
	require.Equal(t, int64(11), n)
	assert.Equal(t, int64(11), end)

	b, ok := s.Bytes(0, 11)
	require.True(t, ok)
	assert.Equal(t, "hello world", string(b))
}

func TestReadBackward(t *testing.T) {
	s := NewStore(1 << 20)
	s.Commit(10, []byte("abcde"), nil)

	n, start := s.ReadBackward(15)
	require.Equal(t, int64(5), n)
	assert.Equal(t, int64(10), start)

	n, _ = s.ReadBackward(12)
	assert.Equal(t, int64(2), n)
}

func TestCommitMergesTouchingSegments(t *testing.T) {
	s := NewStore(1 << 20)
	s.Commit(0, []byte("hello"), nil)
	s.Commit(5, []byte(" world"), nil)

	require.Len(t, s.segs.all(), 1)
	n, _ := s.ReadForward(0)
	assert.Equal(t, int64(11), n)
}

func TestSegmentsNeverTouchOrOverlap(t *testing.T) {
	s := NewStore(1 << 20)
	s.Commit(100, []byte("aaaa"), nil)
	s.Commit(0, []byte("bbbb"), nil)
	s.Commit(50, []byte("cccc"), nil)

	segs := s.segs.all()
	for i := 1; i < len(segs); i++ {
		assert.Less(t, segs[i-1].end(), segs[i].FileOffset,
			"segments must not touch or overlap")
	}
}

func TestEpochAdvancesOnCommitAndHotSet(t *testing.T) {
	s := NewStore(1 << 20)
	e0 := s.PollEpoch()
	s.Commit(0, []byte("x"), nil)
	e1 := s.PollEpoch()
	assert.Greater(t, e1, e0)

	s.SetHotSet([]HotRange{{Range: Range{Start: 0, Length: 1}, Priority: PriorityViewport}})
	e2 := s.PollEpoch()
	assert.Greater(t, e2, e1)
}

func TestPendingRangesSkipsResidentAndFailed(t *testing.T) {
	s := NewStore(1 << 20)
	s.Commit(0, []byte("0123456789"), nil) // [0,10) resident
	s.MarkFailed(20, 5)                    // [20,25) sticky failed

	s.SetHotSet([]HotRange{
		{Range: Range{Start: 0, Length: 30}, Priority: PriorityViewport},
	})

	pending := s.PendingRanges()
	// Expect one gap [10,20) and one gap [25,30); [20,25) is dropped.
	require.Len(t, pending, 2)
	assert.Equal(t, Range{Start: 10, Length: 10}, pending[0].Range)
	assert.Equal(t, Range{Start: 25, Length: 5}, pending[1].Range)
}

func TestHotSetPinsAgainstEviction(t *testing.T) {
	s := NewStore(5)
	s.Commit(0, []byte("hot!!"), nil)
	s.Commit(100, []byte("cold!"), nil)

	s.SetHotSet([]HotRange{{Range: Range{Start: 0, Length: 5}, Priority: PriorityViewport}})
	s.EvictUntilWithinBudget()

	n, _ := s.ReadForward(0)
	assert.Equal(t, int64(5), n, "hot segment must survive eviction")
	n, _ = s.ReadForward(100)
	assert.Equal(t, int64(0), n, "cold segment should have been evicted")
}

func TestIsFailedSticky(t *testing.T) {
	s := NewStore(1 << 20)
	assert.False(t, s.IsFailed(5))
	s.MarkFailed(0, 10)
	assert.True(t, s.IsFailed(5))
	assert.False(t, s.IsFailed(20))
}

func TestStatsSnapshotsSegmentsHotSetAndEpoch(t *testing.T) {
	s := NewStore(1024)
	s.Commit(0, []byte("hello"), nil)
	s.MarkFailed(50, 5)
	s.SetHotSet([]HotRange{{Range: Range{Start: 0, Length: 5}, Priority: PriorityViewport}})

	stats := s.Stats()
	require.Len(t, stats.Segments, 1)
	assert.Equal(t, int64(0), stats.Segments[0].FileOffset)
	assert.Equal(t, int64(5), stats.Segments[0].Length)
	assert.EqualValues(t, 1, stats.Segments[0].Refs)

	require.Len(t, stats.HotSet, 1)
	assert.Equal(t, int64(5), stats.HotSet[0].Length)

	require.Len(t, stats.FailedRanges, 1)
	assert.Equal(t, Range{Start: 50, Length: 5}, stats.FailedRanges[0])

	assert.Equal(t, int64(5), stats.ResidentBytes)
	assert.Equal(t, int64(1024), stats.BudgetBytes)
	assert.Equal(t, s.PollEpoch(), stats.Epoch)
}
