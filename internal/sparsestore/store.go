package sparsestore

import (
	"os"
	"sync"
	"sync/atomic"
)

// FileIO is the external File I/O collaborator from spec.md §6,
// consumed only by the background loader, never by the main thread.
type FileIO interface {
	Read(offset int64, buf []byte) (int, error)
	Length() int64
}

// MappableFileIO is an optional extension of FileIO: a collaborator
// backed by a real on-disk file can hand the loader its *os.File so
// segments are memory-mapped straight into the segment set instead of
// copied through a heap buffer via Read. The loader type-asserts for
// this on every FileIO it's given and falls back to Read when absent.
type MappableFileIO interface {
	FileIO
	MapFile() *os.File
}

// Priority ranks hot-set ranges for the loader (spec.md §4.B).
type Priority int

const (
	PriorityViewport Priority = iota
	PriorityPrefetch
	PrioritySpeculative
)

// Range is a half-open file-offset interval [Start, Start+Length).
type Range struct {
	Start  int64
	Length int64
}

func (r Range) End() int64 { return r.Start + r.Length }

func (r Range) overlaps(o Range) bool {
	return r.Start < o.End() && o.Start < r.End()
}

// HotRange is a Range the loader must keep resident, tagged with the
// priority spec.md §4.B uses to pick among several missing ranges.
type HotRange struct {
	Range
	Priority Priority
}

// Store is the Sparse Store (spec.md §4.B): a non-blocking,
// O(log S) cache of file-backed byte ranges, shared between the main
// thread (queries + hot-set mutation) and one loader goroutine
// (segment-set mutation) under a single mutex.
//
// Grounded on internal/log/log.go's segment-routing Read, generalized
// from "route an append-ordered offset to its segment" to "route an
// arbitrary read offset to its segment, or report the gap".
type Store struct {
	mu sync.Mutex

	segs   segmentSet
	hotSet []HotRange

	// failed records sticky IoError ranges (spec.md §7): once set,
	// permanently unavailable regardless of later loader activity.
	failed []Range

	budget     int64
	resident   int64
	tick       uint64
	lastUsedAt map[*Segment]uint64

	epoch uint64
}

// NewStore creates an empty Sparse Store with the given advisory
// memory budget.
func NewStore(budgetBytes int64) *Store {
	return &Store{
		budget:     budgetBytes,
		lastUsedAt: make(map[*Segment]uint64),
	}
}

// ReadForward returns the longest contiguous resident run starting at
// offset and the file offset one past its end. A zero-length result
// means "not resident" (spec.md §4.B) — never an error.
func (s *Store) ReadForward(offset int64) (bytesAvailable int64, endOffset int64) {
	if !s.mu.TryLock() {
		return 0, offset
	}
	defer s.mu.Unlock()

	n, _ := s.segs.longestAvailableFrom(offset)
	if n > 0 {
		s.touch(s.segs.findCovering(offset))
	}
	return n, offset + n
}

// ReadBackward is the symmetric counterpart of ReadForward.
func (s *Store) ReadBackward(offset int64) (bytesAvailable int64, startOffset int64) {
	if !s.mu.TryLock() {
		return 0, offset
	}
	defer s.mu.Unlock()

	n, _ := s.segs.longestAvailableTo(offset)
	if n > 0 {
		s.touch(s.segs.findCovering(offset - 1))
	}
	return n, offset - n
}

// Bytes returns a view over the resident bytes in [offset,
// offset+length), or ok=false if any part of that range isn't fully
// resident. Used by layout/linemap once a caller already knows (via
// ReadForward) that the range is available.
func (s *Store) Bytes(offset, length int64) ([]byte, bool) {
	if !s.mu.TryLock() {
		return nil, false
	}
	defer s.mu.Unlock()

	seg := s.segs.findCovering(offset)
	if seg == nil {
		return nil, false
	}
	start := offset - seg.FileOffset
	end := start + length
	if end > int64(len(seg.data)) {
		return nil, false
	}
	s.touch(seg)
	return seg.data[start:end], true
}

// SetHotSet replaces the set of ranges the loader must keep resident.
// It recomputes every segment's hot-set refcount and advances the
// epoch so background scans and queries can observe the change.
func (s *Store) SetHotSet(ranges []HotRange) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hotSet = append([]HotRange(nil), ranges...)
	for _, seg := range s.segs.all() {
		seg.refs = int32(s.countHotOverlaps(seg))
	}
	s.bumpEpoch()
}

func (s *Store) countHotOverlaps(seg *Segment) int {
	n := 0
	segRange := Range{Start: seg.FileOffset, Length: seg.Length}
	for _, hr := range s.hotSet {
		if segRange.overlaps(hr.Range) {
			n++
		}
	}
	return n
}

// MemoryBudget sets the advisory eviction target.
func (s *Store) MemoryBudget(bytes int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.budget = bytes
}

// PollEpoch returns the monotonically increasing change counter
// (spec.md §5): a query observing epoch e sees every segment
// committed at epochs <= e.
func (s *Store) PollEpoch() uint64 {
	return atomic.LoadUint64(&s.epoch)
}

// IsFailed reports whether offset falls inside a sticky IoError range.
func (s *Store) IsFailed(offset int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.failed {
		if r.Start <= offset && offset < r.End() {
			return true
		}
	}
	return false
}

// SegmentInfo is a read-only snapshot of one resident segment, for
// introspection only (internal/debugserver); never used by the
// interactive query path.
type SegmentInfo struct {
	FileOffset int64
	Length     int64
	Refs       int32
}

// HotRangeInfo is a read-only snapshot of one hot-set member.
type HotRangeInfo struct {
	Start    int64
	Length   int64
	Priority Priority
}

// Stats is a point-in-time snapshot of the store's internal state,
// for the read-only debug/introspection surface (internal/debugserver:
// segment stats, store epoch, hot-set contents).
type Stats struct {
	Segments      []SegmentInfo
	HotSet        []HotRangeInfo
	FailedRanges  []Range
	ResidentBytes int64
	BudgetBytes   int64
	Epoch         uint64
}

// Stats snapshots the store under its mutex. Grounded on
// internal/log/log.go having no analogous introspection method of its
// own — this is new surface added for spec.md's debug server, not a
// teacher-ported one.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	segs := s.segs.all()
	out := Stats{
		Segments:      make([]SegmentInfo, 0, len(segs)),
		HotSet:        make([]HotRangeInfo, 0, len(s.hotSet)),
		FailedRanges:  append([]Range(nil), s.failed...),
		ResidentBytes: s.resident,
		BudgetBytes:   s.budget,
		Epoch:         atomic.LoadUint64(&s.epoch),
	}
	for _, seg := range segs {
		out.Segments = append(out.Segments, SegmentInfo{
			FileOffset: seg.FileOffset,
			Length:     seg.Length,
			Refs:       seg.refs,
		})
	}
	for _, hr := range s.hotSet {
		out.HotSet = append(out.HotSet, HotRangeInfo{
			Start:    hr.Start,
			Length:   hr.Length,
			Priority: hr.Priority,
		})
	}
	return out
}

// --- loader-facing API (internal/loader is the only other importer) ---

// PendingRanges returns the portions of the hot set not yet resident
// and not sticky-failed, most urgent first (spec.md §4.B priority:
// viewport > prefetch > speculative, then lowest offset).
func (s *Store) PendingRanges() []HotRange {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []HotRange
	for _, hr := range s.hotSet {
		for _, gap := range s.uncoveredGaps(hr.Range) {
			pending = append(pending, HotRange{Range: gap, Priority: hr.Priority})
		}
	}
	sortHotRanges(pending)
	return pending
}

// uncoveredGaps splits r into the sub-ranges that are neither already
// resident nor sticky-failed. A sub-range is skipped, not retried,
// once any part of it has a recorded IoError (spec.md §7).
func (s *Store) uncoveredGaps(r Range) []Range {
	var gaps []Range
	cursor := r.Start
	for cursor < r.End() {
		if seg := s.segs.findCovering(cursor); seg != nil {
			cursor = seg.end()
			continue
		}
		if f := s.failedCovering(cursor); f != nil {
			cursor = f.End()
			continue
		}
		// A real gap: extend until the next segment, failed range, or
		// the end of r, whichever comes first.
		next := r.End()
		for _, other := range s.segs.all() {
			if other.FileOffset > cursor && other.FileOffset < next {
				next = other.FileOffset
			}
		}
		for _, f := range s.failed {
			if f.Start > cursor && f.Start < next {
				next = f.Start
			}
		}
		gaps = append(gaps, Range{Start: cursor, Length: next - cursor})
		cursor = next
	}
	return gaps
}

// failedCovering returns the sticky-failed range containing offset,
// or nil.
func (s *Store) failedCovering(offset int64) *Range {
	for i, f := range s.failed {
		if f.Start <= offset && offset < f.End() {
			return &s.failed[i]
		}
	}
	return nil
}

func sortHotRanges(rs []HotRange) {
	for i := 1; i < len(rs); i++ {
		for j := i; j > 0 && less(rs[j], rs[j-1]); j-- {
			rs[j], rs[j-1] = rs[j-1], rs[j]
		}
	}
}

func less(a, b HotRange) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.Start < b.Start
}

// Commit inserts newly-loaded bytes into the segment set and advances
// the epoch. Called by the loader with the mutex released around the
// actual file read (spec.md §4.B/§5: "all long work happens with the
// mutex released").
func (s *Store) Commit(offset int64, data []byte, mm mmapping) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seg := s.segs.insert(offset, data, mm)
	seg.refs = int32(s.countHotOverlaps(seg))
	s.resident += int64(len(data))
	s.touch(seg)
	s.bumpEpoch()
}

// CommitMapped memory-maps [offset, offset+length) of f read-only and
// commits the mapping as a resident segment, instead of copying the
// range through a heap buffer first. The mapping is unmapped once the
// segment is evicted or merged away (see unmap in mmap.go).
func (s *Store) CommitMapped(offset, length int64, f *os.File) error {
	data, mm, err := mapRegion(f, offset, length)
	if err != nil {
		return err
	}
	s.Commit(offset, data, mm)
	return nil
}

// MarkFailed records offset range as permanently unavailable
// (spec.md §7: sticky IoError).
func (s *Store) MarkFailed(offset, length int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, Range{Start: offset, Length: length})
	s.bumpEpoch()
}

// EvictUntilWithinBudget runs best-effort LRU eviction among
// refcount-0 segments until resident bytes is at or below the budget,
// or no more evictable segments remain (spec.md §4.B: "must respect
// budget eventually, not instantly").
func (s *Store) EvictUntilWithinBudget() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.resident > s.budget {
		victim := s.oldestEvictable()
		if victim == nil {
			return
		}
		s.segs.remove(victim)
		unmap(victim.mm)
		s.resident -= victim.Length
		delete(s.lastUsedAt, victim)
	}
}

func (s *Store) oldestEvictable() *Segment {
	var victim *Segment
	var oldest uint64 = ^uint64(0)
	for _, seg := range s.segs.all() {
		if seg.refs > 0 {
			continue
		}
		t := s.lastUsedAt[seg]
		if t < oldest {
			oldest = t
			victim = seg
		}
	}
	return victim
}

func (s *Store) touch(seg *Segment) {
	if seg == nil {
		return
	}
	s.tick++
	s.lastUsedAt[seg] = s.tick
}

func (s *Store) bumpEpoch() {
	atomic.AddUint64(&s.epoch, 1)
}
