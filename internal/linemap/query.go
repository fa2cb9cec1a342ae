package linemap

import (
	"unicode/utf8"

	"github.com/kovaxis/gaze/internal/layout"
)

// Rounding selects how OffsetAt resolves a (line, column) that falls
// between two representable positions — e.g. a column past the end of
// a short line (spec.md §4.E).
type Rounding int

const (
	RoundFloor Rounding = iota
	RoundNearest
	RoundCeil
)

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// SpatialDelta returns the composed layout delta of [start, end) and
// whether it could be composed from resident fragments. mapped is false
// when any covered fragment is unmapped, and also when start or end
// falls strictly inside a fragment, resident or not: only whole
// fragments' cached layouts are composed, and a partly covered
// fragment's bytes are not re-scanned. A false mapped result means
// the caller must fall back to the hot set / loader rather than trust
// Delta, which is left zero-valued.
func (t *Tree) SpatialDelta(start, end int64) (delta layout.Delta, mapped bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.rangeSummary(t.root, 0, t.arena[t.root].sum.length, start, end)
	return s.layout, s.mapped
}

// MaxLineWidthLowerBound returns a lower bound on the widest line
// wholly contained in [start, end): the largest cached bound among the
// resident fragments lying wholly inside the range. Unmapped fragments
// and fragments only partly inside the range contribute nothing, so
// the result is 0 when no resident fragment qualifies (spec.md §9:
// deliberately conservative, never an overestimate).
func (t *Tree) MaxLineWidthLowerBound(start, end int64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.rangeSummary(t.root, 0, t.arena[t.root].sum.length, start, end)
	return s.maxLineWidth
}

// rangeSummary aggregates the portion of nodeIdx's subtree (spanning
// [nodeStart, nodeEnd) in virtual offsets) that overlaps [qStart,
// qEnd). A fragment only partially covered by the query range can't
// contribute an exact layout without re-scanning its bytes, so its
// overlap is folded in as an unmapped length instead of guessed at.
func (t *Tree) rangeSummary(nodeIdx int32, nodeStart, nodeEnd, qStart, qEnd int64) summary {
	if qEnd <= nodeStart || qStart >= nodeEnd {
		return identitySummary
	}
	if qStart <= nodeStart && nodeEnd <= qEnd {
		return t.arena[nodeIdx].sum
	}

	n := &t.arena[nodeIdx]
	acc := identitySummary
	cum := nodeStart

	if n.leaf {
		for _, f := range n.frags {
			end := cum + f.VirtualLength
			if qEnd <= cum {
				break
			}
			if qStart < end {
				if qStart <= cum && end <= qEnd {
					acc = composeSummary(acc, f.summary())
				} else {
					overlap := min64(end, qEnd) - max64(cum, qStart)
					acc = composeSummary(acc, summary{length: overlap})
				}
			}
			cum = end
		}
		return acc
	}

	for i, c := range n.children {
		end := cum + n.childSum[i].length
		if qEnd <= cum {
			break
		}
		if qStart < end {
			acc = composeSummary(acc, t.rangeSummary(c, cum, end, qStart, qEnd))
		}
		cum = end
	}
	return acc
}

// prevLeaf is nextLeaf's mirror image.
func (t *Tree) prevLeaf(path []pathStep, leafIdx int32) (newPath []pathStep, newLeaf int32, ok bool) {
	curPath := path
	for len(curPath) > 0 {
		top := curPath[len(curPath)-1]
		if top.idx > 0 {
			base := append([]pathStep{}, curPath[:len(curPath)-1]...)
			base = append(base, pathStep{node: top.node, idx: top.idx - 1})
			cur := t.arena[top.node].children[top.idx-1]
			for !t.arena[cur].leaf {
				kids := t.arena[cur].children
				base = append(base, pathStep{node: cur, idx: len(kids) - 1})
				cur = kids[len(kids)-1]
			}
			return base, cur, true
		}
		curPath = curPath[:len(curPath)-1]
	}
	return nil, 0, false
}

// ByteAt returns the raw byte at virtual offset, reading through
// whichever fragment covers it (its PendingBytes if it has them, else
// src if it's file-backed), regardless of whether that fragment is
// Resident or still Unmapped. ok is false if offset is out of range or
// the fragment's bytes aren't currently reachable. Used by callers
// (the buffer façade's InvalidEdit check, spec.md §7) that need to
// inspect content at a specific edit boundary without a full
// SpatialDelta/OffsetAt query.
func (t *Tree) ByteAt(offset int64, src ByteSource) (b byte, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, leafIdx, fragIdx, local := t.findLeaf(offset)
	leaf := &t.arena[leafIdx]
	if fragIdx >= len(leaf.frags) {
		return 0, false
	}
	data, gotData := fragmentBytes(leaf.frags[fragIdx], src)
	if !gotData || local >= int64(len(data)) {
		return 0, false
	}
	return data[local], true
}

// MappedNeighborhood returns the maximal resident run [lo, hi)
// containing offset, or (offset, offset) if offset falls in an
// unmapped fragment (spec.md §4.E: callers use this to know how far a
// cursor can move before needing to wait on the loader).
func (t *Tree) MappedNeighborhood(offset int64) (lo, hi int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	path, leafIdx, fragIdx, local := t.findLeaf(offset)
	leaf := &t.arena[leafIdx]
	if fragIdx >= len(leaf.frags) || leaf.frags[fragIdx].Kind != Resident {
		return offset, offset
	}

	fragStart := offset - local
	fragEnd := fragStart + leaf.frags[fragIdx].VirtualLength
	lo, hi = fragStart, fragEnd

	// extend left
	p, l, i := path, leafIdx, fragIdx
	for {
		if i == 0 {
			np, nl, ok := t.prevLeaf(p, l)
			if !ok {
				break
			}
			p, l = np, nl
			i = len(t.arena[l].frags)
		}
		i--
		f := t.arena[l].frags[i]
		if f.Kind != Resident {
			break
		}
		lo -= f.VirtualLength
	}

	// extend right
	p, l, i = path, leafIdx, fragIdx
	for {
		i++
		if i >= len(t.arena[l].frags) {
			np, nl, ok := t.nextLeaf(p, l)
			if !ok {
				break
			}
			p, l, i = np, nl, -1
			continue
		}
		f := t.arena[l].frags[i]
		if f.Kind != Resident {
			break
		}
		hi += f.VirtualLength
	}

	return lo, hi
}

// OffsetAt finds the virtual offset whose line/column position is
// target, descending the tree using each subtree's cached line count
// (an O(log N) jump to the fragment containing the target line) and
// then scanning that single fragment's own bytes to pin down the
// column (spec.md §4.E). ok is false if the search would have to pass
// through unmapped territory to answer, or if bytes for the final
// fragment aren't reachable through src.
func (t *Tree) OffsetAt(targetLine int, targetCol float64, rounding Rounding, table layout.Table, src ByteSource) (offset int64, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur := t.root
	virtualStart := int64(0)
	lineStart := 0

	for {
		n := &t.arena[cur]
		if n.leaf {
			cum := virtualStart
			line := lineStart
			for _, f := range n.frags {
				if f.Kind != Resident {
					return 0, false
				}
				lineAfter := line + f.Layout.Lines
				if targetLine < lineAfter || (targetLine == lineAfter && f.Layout.Lines == 0) {
					return scanFragmentForColumn(f, cum, line, targetLine, targetCol, rounding, table, src)
				}
				if targetLine == lineAfter {
					// target sits exactly at the newline this fragment
					// ends on, deferred to the next fragment/leaf so its
					// TrailingX (0) is what's scanned against.
				}
				cum += f.VirtualLength
				line = lineAfter
			}
			// Ran off the end of every fragment; clamp to the document's
			// end rather than fail outright.
			return cum, true
		}

		cum := virtualStart
		line := lineStart
		chosen := len(n.children) - 1
		for i, cs := range n.childSum {
			if !cs.mapped {
				return 0, false
			}
			lineAfter := line + cs.layout.Lines
			if targetLine < lineAfter || i == len(n.children)-1 {
				chosen = i
				break
			}
			cum += cs.length
			line = lineAfter
		}
		virtualStart, lineStart = cum, line
		cur = n.children[chosen]
	}
}

// Direction selects which way an Iterate cursor walks.
type Direction int

const (
	Forward Direction = iota
	Backward
)

// Cursor walks fragments in document order (or reverse) from a
// starting virtual offset, without holding the tree's lock between
// steps — each Next call re-locks briefly (spec.md §4.E: iteration
// must never block the interactive thread waiting on the loader).
// Unmapped fragments are returned like any other; callers check
// Fragment.Kind.
type Cursor struct {
	tree      *Tree
	path      []pathStep
	leaf      int32
	fragIdx   int
	dir       Direction
	exhausted bool
}

// Iterate returns a cursor starting at the fragment covering offset.
func (t *Tree) Iterate(offset int64, dir Direction) *Cursor {
	t.mu.Lock()
	defer t.mu.Unlock()
	path, leafIdx, fragIdx, _ := t.findLeaf(offset)
	return &Cursor{tree: t, path: path, leaf: leafIdx, fragIdx: fragIdx, dir: dir}
}

// Next returns the next fragment in the cursor's direction, or
// ok=false once the cursor runs off the end of the tree.
func (c *Cursor) Next() (frag Fragment, ok bool) {
	if c.exhausted {
		return Fragment{}, false
	}
	t := c.tree
	t.mu.Lock()
	defer t.mu.Unlock()

	for {
		leaf := &t.arena[c.leaf]
		if c.dir == Forward {
			if c.fragIdx < len(leaf.frags) {
				frag = leaf.frags[c.fragIdx]
				c.fragIdx++
				return frag, true
			}
			np, nl, more := t.nextLeaf(c.path, c.leaf)
			if !more {
				c.exhausted = true
				return Fragment{}, false
			}
			c.path, c.leaf, c.fragIdx = np, nl, 0
			continue
		}
		if c.fragIdx > 0 {
			c.fragIdx--
			return leaf.frags[c.fragIdx], true
		}
		np, nl, more := t.prevLeaf(c.path, c.leaf)
		if !more {
			c.exhausted = true
			return Fragment{}, false
		}
		c.path, c.leaf = np, nl
		c.fragIdx = len(t.arena[c.leaf].frags)
	}
}

// scanFragmentForColumn re-walks a single fragment's bytes to find the
// byte offset of targetCol on targetLine, given that the fragment
// starts at virtual offset fragStart on line startLine.
func scanFragmentForColumn(f Fragment, fragStart int64, startLine, targetLine int, targetCol float64, rounding Rounding, table layout.Table, src ByteSource) (int64, bool) {
	var data []byte
	if f.HasFileOffset && src != nil {
		if b, ok := src.Bytes(f.FileOffset, f.VirtualLength); ok {
			data = b
		}
	}
	if data == nil && f.PendingBytes != nil {
		data = f.PendingBytes
	}
	if data == nil {
		return 0, false
	}

	line := startLine
	col := 0.0
	i := 0
	lastLineStart := 0
	for i < len(data) {
		if line == targetLine {
			break
		}
		r, size := utf8.DecodeRune(data[i:])
		if r == '\n' {
			line++
			col = 0
			lastLineStart = i + size
		} else if r == '\t' {
			w := table.TabStopWidth
			if w <= 0 {
				w = 1
			}
			col = (float64(int(col/w)) + 1) * w
		} else {
			col += table.WidthOf(r)
		}
		i += size
	}
	if line != targetLine {
		// Target line isn't in this fragment at all (shouldn't happen
		// given the caller's line-range check, but degrade safely).
		return fragStart + int64(len(data)), true
	}

	col = 0
	j := lastLineStart
	for j < len(data) {
		r, size := utf8.DecodeRune(data[j:])
		if r == '\n' {
			break
		}
		next := col + table.WidthOf(r)
		if r == '\t' {
			w := table.TabStopWidth
			if w <= 0 {
				w = 1
			}
			next = (float64(int(col/w)) + 1) * w
		}
		if next > targetCol {
			switch rounding {
			case RoundFloor:
				return fragStart + int64(j), true
			case RoundCeil:
				return fragStart + int64(j+size), true
			default: // RoundNearest
				if targetCol-col < next-targetCol {
					return fragStart + int64(j), true
				}
				return fragStart + int64(j+size), true
			}
		}
		col = next
		j += size
	}
	return fragStart + int64(j), true
}
