// Package sparsestore implements the Sparse Store (spec.md §4.B) and
// its Segment Set (spec.md §4.A): a demand-paged, explicitly
// non-blocking cache of file-backed byte ranges.
//
// Grounded on the teacher's internal/log/store.go (mutex-guarded
// file-backed byte store) and internal/log/index.go (ordered,
// offset-keyed table, binary-searchable, mmap-backed) — here the
// store no longer appends monotonically; it answers "what's resident
// starting/ending at this file offset" and reports gaps instead of
// erroring.
package sparsestore

import (
	"sort"
)

// Segment is a RAM-resident, non-overlapping, non-touching byte range
// backed by the file at [FileOffset, FileOffset+Length). Spec.md §3.
type Segment struct {
	FileOffset int64
	Length     int64

	// data holds the resident bytes: either a plain copy or an mmap
	// (see mmap.go). Always exactly Length bytes.
	data []byte

	// mm is non-nil when data is backed by a memory map that must be
	// unmapped on eviction instead of simply dropped for the GC.
	mm mmapping

	// refs is the hot-set reference count; a segment with refs > 0 is
	// pinned against eviction (spec.md §5).
	refs int32
}

func (s *Segment) end() int64 { return s.FileOffset + s.Length }

// Bytes returns the segment's resident bytes. Callers must not retain
// the slice past the next store mutation that could evict or remap
// this segment.
func (s *Segment) Bytes() []byte { return s.data }

// segmentSet is an ordered, non-overlapping collection of segments,
// sorted by FileOffset. Lookups are O(log S) binary searches in segment
// count; insert and remove also shift the slice's tail. Callers hold
// the store's mutex. A slice with binary search is the
// right container here — see DESIGN.md for why no pack dependency
// offers anything better suited to a few hundred mutex-guarded
// entries.
type segmentSet struct {
	segs []*Segment
}

// indexAtOrAfter returns the index of the first segment whose
// FileOffset is >= off.
func (s *segmentSet) indexAtOrAfter(off int64) int {
	return sort.Search(len(s.segs), func(i int) bool {
		return s.segs[i].FileOffset >= off
	})
}

// findCovering returns the segment containing off, or nil if off
// falls in a gap.
func (s *segmentSet) findCovering(off int64) *Segment {
	i := s.indexAtOrAfter(off + 1)
	if i == 0 {
		return nil
	}
	seg := s.segs[i-1]
	if seg.FileOffset <= off && off < seg.end() {
		return seg
	}
	return nil
}

// longestAvailableFrom returns the longest contiguous resident run
// starting at off and the slice over it, or (0, nil) if off is not
// resident. Because the set's invariant forbids touching segments
// (insert always merges them, see below), "longest contiguous run" is
// exactly "the rest of the single segment covering off".
func (s *segmentSet) longestAvailableFrom(off int64) (int64, []byte) {
	seg := s.findCovering(off)
	if seg == nil {
		return 0, nil
	}
	start := off - seg.FileOffset
	return seg.Length - start, seg.data[start:]
}

// longestAvailableTo returns the longest contiguous resident run
// ending at off (exclusive) and the slice over it, or (0, nil).
func (s *segmentSet) longestAvailableTo(off int64) (int64, []byte) {
	seg := s.findCovering(off - 1)
	if seg == nil {
		return 0, nil
	}
	end := off - seg.FileOffset
	return end, seg.data[:end]
}

// insert adds a new resident range, merging with any touching
// neighbour so the no-touch/no-overlap invariant (spec.md §3, §8)
// holds after every call. It returns the resulting segment (which may
// be a different, merged, object than the one passed in).
func (s *segmentSet) insert(off int64, data []byte, mm mmapping) *Segment {
	length := int64(len(data))
	i := s.indexAtOrAfter(off)

	var left, right *Segment
	if i > 0 && s.segs[i-1].end() == off {
		left = s.segs[i-1]
	}
	if i < len(s.segs) && s.segs[i].FileOffset == off+length {
		right = s.segs[i]
	}

	if left == nil && right == nil {
		seg := &Segment{FileOffset: off, Length: length, data: data, mm: mm}
		s.segs = append(s.segs, nil)
		copy(s.segs[i+1:], s.segs[i:])
		s.segs[i] = seg
		return seg
	}

	// At least one neighbour touches: merge into a single flat
	// segment. Merging always materializes a plain copy, even when an
	// input was mmap-backed, trading one extra copy at merge time for
	// a simple "always one contiguous slice" segment contract.
	start := off
	end := off + length
	if left != nil {
		start = left.FileOffset
	}
	if right != nil {
		end = right.end()
	}
	merged := make([]byte, 0, end-start)
	if left != nil {
		merged = append(merged, left.data...)
		unmap(left.mm)
	}
	merged = append(merged, data...)
	unmap(mm)
	if right != nil {
		merged = append(merged, right.data...)
		unmap(right.mm)
	}
	seg := &Segment{FileOffset: start, Length: end - start, data: merged}

	lo, hi := i, i
	if left != nil {
		lo = i - 1
	}
	if right != nil {
		hi = i + 1
	}
	s.segs = append(s.segs[:lo], append([]*Segment{seg}, s.segs[hi:]...)...)
	return seg
}

// remove deletes seg from the set (used by eviction).
func (s *segmentSet) remove(seg *Segment) {
	i := s.indexAtOrAfter(seg.FileOffset)
	if i < len(s.segs) && s.segs[i] == seg {
		s.segs = append(s.segs[:i], s.segs[i+1:]...)
	}
}

// all returns the segments in ascending FileOffset order. Callers must
// not mutate the returned slice.
func (s *segmentSet) all() []*Segment { return s.segs }
