package linemap

import "github.com/kovaxis/gaze/internal/layout"

// summary is the monoidal per-subtree aggregate from spec.md §9:
// total virtual length, whether every byte in the subtree is
// resident, the composed layout delta (meaningful only when mapped is
// true), and a lower bound on the widest wholly-interior line.
//
// mapped and layout are themselves a smaller monoid nested inside
// this one: Compose keeps mapped true only while both sides are
// fully resident, matching spec.md §3's rule that a layout delta is
// only defined over an entirely-mapped range.
type summary struct {
	length       int64
	mapped       bool
	layout       layout.Delta
	maxLineWidth float64
}

var identitySummary = summary{mapped: true}

func composeSummary(a, b summary) summary {
	s := summary{
		length: a.length + b.length,
		mapped: a.mapped && b.mapped,
	}
	if s.mapped {
		s.layout = layout.Compose(a.layout, b.layout)
	}
	// maxLineWidth stays a valid lower bound on the union regardless of
	// whether a line crosses the a/b boundary: the true supremum over
	// [a,b) is never smaller than either side's own bound, so the max
	// of the two remains sound even though it may undercount a line
	// that straddles the split (spec.md §9 explicitly allows this).
	if a.maxLineWidth > s.maxLineWidth {
		s.maxLineWidth = a.maxLineWidth
	}
	if b.maxLineWidth > s.maxLineWidth {
		s.maxLineWidth = b.maxLineWidth
	}
	return s
}

// node is one arena slot: either a leaf holding Fragments directly, or
// an internal node holding child arena indices and their cached
// summaries. parent is -1 for the root.
type node struct {
	leaf   bool
	parent int32

	frags []Fragment // leaf only

	children []int32  // internal only
	childSum []summary // internal only, parallel to children

	sum summary
}

func (n *node) recomputeSum() {
	s := identitySummary
	if n.leaf {
		for _, f := range n.frags {
			s = composeSummary(s, f.summary())
		}
	} else {
		for _, cs := range n.childSum {
			s = composeSummary(s, cs)
		}
	}
	n.sum = s
}
