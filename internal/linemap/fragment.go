// Package linemap implements the Linemap Tree from spec.md §3/§9: a
// fixed-fanout, arena-indexed B-tree whose leaves are Fragments
// (contiguous virtual runs, either resident-with-known-layout or
// unmapped-with-unknown-layout) and whose internal nodes cache a
// monoidal summary of their subtree so every spatial query answers in
// O(log N) without walking bytes.
//
// No teacher precedent exists for this shape in the retrieved pack;
// it's grounded directly on spec.md §3/§9's data model, borrowing the
// arena-of-indices style from how internal/log.Log in the teacher
// keeps segments in a flat, index-addressed slice rather than a
// pointer graph.
package linemap

import (
	"sync/atomic"

	"github.com/kovaxis/gaze/internal/layout"
)

// Kind distinguishes a Resident run (layout known, computed once) from
// an Unmapped run (byte length known, layout unknown until a
// background scan or an edit-time split resolves it).
type Kind int

const (
	Unmapped Kind = iota
	Resident
)

var nextFragmentID uint64

func stampID() uint64 { return atomic.AddUint64(&nextFragmentID, 1) }

// Fragment is the leaf entity of the tree (spec.md §3).
type Fragment struct {
	Kind          Kind
	VirtualLength int64

	// Layout and MaxLineWidth are only meaningful when Kind ==
	// Resident: Layout is this fragment's own delta (independent of
	// anything outside it, spec.md §4.D purity), and MaxLineWidth is a
	// lower bound on the widest line wholly contained within it.
	Layout       layout.Delta
	MaxLineWidth float64

	// FileOffset/HasFileOffset locate this fragment's bytes in the
	// backing file, when it has one; a fragment created from a fresh
	// in-memory insert that was never file-backed has HasFileOffset
	// false and carries its bytes directly in PendingBytes so a
	// background scan can still compute Layout without round-tripping
	// through a file.
	FileOffset    int64
	HasFileOffset bool
	PendingBytes  []byte

	// id is a private, monotonically stamped identity used by the
	// background scan (scan.go) to detect that the fragment it read
	// is still the same one physically present in the tree before
	// splicing a computed layout back in (spec.md §5's
	// compare-and-swap requirement for background splices).
	id uint64
}

// NewUnmappedFileBacked creates an Unmapped fragment over length bytes
// starting at fileOffset in the backing file (spec.md §3: "created on
// buffer open, one unmapped run per file").
func NewUnmappedFileBacked(length, fileOffset int64) Fragment {
	return Fragment{
		Kind:          Unmapped,
		VirtualLength: length,
		FileOffset:    fileOffset,
		HasFileOffset: true,
		id:            stampID(),
	}
}

// NewUnmappedPending creates an Unmapped fragment over bytes that
// exist only in memory (e.g. a large paste not yet flushed to any
// file), to be scanned into a Resident fragment in the background
// exactly like a file-backed one.
func NewUnmappedPending(data []byte) Fragment {
	return Fragment{
		Kind:          Unmapped,
		VirtualLength: int64(len(data)),
		PendingBytes:  append([]byte(nil), data...),
		id:            stampID(),
	}
}

// NewResident creates a Resident fragment with an already-known
// layout, computed synchronously by the caller (spec.md §4.F: "small
// enough to lay out on the caller's thread").
func NewResident(length int64, d layout.Delta, maxLineWidth float64) Fragment {
	return Fragment{
		Kind:          Resident,
		VirtualLength: length,
		Layout:        d,
		MaxLineWidth:  maxLineWidth,
		id:            stampID(),
	}
}

func (f Fragment) summary() summary {
	s := summary{length: f.VirtualLength}
	if f.Kind == Resident {
		s.mapped = true
		s.layout = f.Layout
		s.maxLineWidth = f.MaxLineWidth
	}
	return s
}
