package linemap

import (
	"sync"

	"github.com/kovaxis/gaze/internal/layout"
)

// ByteSource supplies resident bytes by file offset: for re-laying-out
// the halves of a Resident fragment split at an interior offset, and
// for reading a file-backed fragment's bytes in ScanOnce, ByteAt and
// OffsetAt. Deliberately identical in shape to
// sparsestore.Store.Bytes so the buffer façade can pass its store
// straight through without an adapter.
type ByteSource interface {
	Bytes(offset, length int64) ([]byte, bool)
}

// pathStep records one downward step while walking from the root: at
// node, the walk descended into children[idx].
type pathStep struct {
	node int32
	idx  int
}

// Tree is the Linemap Tree (spec.md §3/§9): a fixed-fanout B-tree of
// Fragments, arena-indexed so nodes reference each other by int32
// slot rather than by pointer. fanout bounds internal-node and leaf
// occupancy from above; no lower bound is maintained after deletions
// (see removeRange).
//
// Arena slots freed by unlinking a node or a root collapse are never reused or
// compacted — acceptable for a student exercise, but a real long-lived
// buffer would want a periodic compaction pass once freed slots
// accumulate past some threshold.
type Tree struct {
	mu     sync.Mutex
	fanout int
	arena  []node
	root   int32
}

// NewTree creates a tree with a single initial fragment (e.g. one
// unmapped run covering the whole file, spec.md §3: "created on
// buffer open, one unmapped run per file"). Pass a zero-length
// fragment list's worth by calling NewEmptyTree instead for an empty
// buffer.
func NewTree(fanout int, initial Fragment) *Tree {
	if fanout < 4 {
		fanout = 4
	}
	t := &Tree{fanout: fanout}
	var frags []Fragment
	if initial.VirtualLength > 0 {
		frags = []Fragment{initial}
	}
	t.root = t.allocLeaf(frags)
	return t
}

// NewEmptyTree creates a tree over a zero-length buffer.
func NewEmptyTree(fanout int) *Tree {
	if fanout < 4 {
		fanout = 4
	}
	t := &Tree{fanout: fanout}
	t.root = t.allocLeaf(nil)
	return t
}

// Len returns the total virtual length spanned by the tree.
func (t *Tree) Len() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.arena[t.root].sum.length
}

func (t *Tree) allocLeaf(frags []Fragment) int32 {
	idx := int32(len(t.arena))
	t.arena = append(t.arena, node{leaf: true, parent: -1, frags: frags})
	t.arena[idx].recomputeSum()
	return idx
}

func (t *Tree) allocInternal(children []int32) int32 {
	cs := make([]summary, len(children))
	for i, c := range children {
		cs[i] = t.arena[c].sum
	}
	return t.allocInternalRaw(children, cs)
}

func (t *Tree) allocInternalRaw(children []int32, cs []summary) int32 {
	idx := int32(len(t.arena))
	t.arena = append(t.arena, node{leaf: false, parent: -1, children: children, childSum: cs})
	t.arena[idx].recomputeSum()
	return idx
}

// findLeaf locates the leaf and in-leaf fragment index covering
// virtual offset. local is the offset relative to the start of
// frags[fragIdx] (0 means exactly aligned with its start, or the leaf
// is empty). fragIdx == len(leaf.frags) means offset is at or past the
// end of every fragment this leaf holds (the very end of the
// document, if this is also the last leaf).
func (t *Tree) findLeaf(offset int64) (path []pathStep, leafIdx int32, fragIdx int, local int64) {
	cur := t.root
	for {
		n := &t.arena[cur]
		if n.leaf {
			cum := int64(0)
			for i, f := range n.frags {
				end := cum + f.VirtualLength
				if offset < end {
					return path, cur, i, offset - cum
				}
				cum = end
			}
			return path, cur, len(n.frags), offset - cum
		}
		cum := int64(0)
		chosen := len(n.children) - 1
		for i, cs := range n.childSum {
			end := cum + cs.length
			if offset < end || i == len(n.children)-1 {
				chosen = i
				break
			}
			cum = end
		}
		path = append(path, pathStep{node: cur, idx: chosen})
		offset -= cum
		cur = n.children[chosen]
	}
}

// nextLeaf returns the leaf immediately to the right of (path, leafIdx)
// in document order, or ok=false if it was the last leaf. Only valid
// when called without any intervening tree mutation.
func (t *Tree) nextLeaf(path []pathStep, leafIdx int32) (newPath []pathStep, newLeaf int32, ok bool) {
	curPath := path
	for len(curPath) > 0 {
		top := curPath[len(curPath)-1]
		parent := &t.arena[top.node]
		if top.idx+1 < len(parent.children) {
			base := append([]pathStep{}, curPath[:len(curPath)-1]...)
			base = append(base, pathStep{node: top.node, idx: top.idx + 1})
			cur := parent.children[top.idx+1]
			for !t.arena[cur].leaf {
				base = append(base, pathStep{node: cur, idx: 0})
				cur = t.arena[cur].children[0]
			}
			return base, cur, true
		}
		curPath = curPath[:len(curPath)-1]
	}
	return nil, 0, false
}

// propagate recomputes leafIdx's summary and every ancestor's cached
// child summary along path, bottom-up.
func (t *Tree) propagate(path []pathStep, leafIdx int32) {
	t.arena[leafIdx].recomputeSum()
	t.propagateAncestors(path, leafIdx)
}

func (t *Tree) propagateAncestors(path []pathStep, childIdx int32) {
	cur := childIdx
	for i := len(path) - 1; i >= 0; i-- {
		step := path[i]
		parent := &t.arena[step.node]
		parent.childSum[step.idx] = t.arena[cur].sum
		parent.recomputeSum()
		cur = step.node
	}
}

// insertChildAfter inserts newChild immediately after afterChild in
// afterChild's parent (identified by the last step of path), splitting
// that parent (and recursing up, possibly growing a new root) if it
// overflows.
func (t *Tree) insertChildAfter(path []pathStep, afterChild, newChild int32) {
	if len(path) == 0 {
		rootIdx := t.allocInternal([]int32{afterChild, newChild})
		t.arena[afterChild].parent = rootIdx
		t.arena[newChild].parent = rootIdx
		t.root = rootIdx
		return
	}
	step := path[len(path)-1]
	parent := &t.arena[step.node]
	at := step.idx + 1
	parent.children = append(parent.children, 0)
	copy(parent.children[at+1:], parent.children[at:])
	parent.children[at] = newChild
	parent.childSum = append(parent.childSum, summary{})
	copy(parent.childSum[at+1:], parent.childSum[at:])
	parent.childSum[step.idx] = t.arena[afterChild].sum
	parent.childSum[at] = t.arena[newChild].sum
	t.arena[newChild].parent = step.node
	parent.recomputeSum()

	if len(parent.children) > t.fanout {
		t.splitInternal(path[:len(path)-1], step.node)
	} else {
		t.propagateAncestors(path[:len(path)-1], step.node)
	}
}

func (t *Tree) splitInternal(path []pathStep, nodeIdx int32) {
	n := &t.arena[nodeIdx]
	mid := len(n.children) / 2
	rightChildren := append([]int32(nil), n.children[mid:]...)
	rightSum := append([]summary(nil), n.childSum[mid:]...)
	n.children = append([]int32(nil), n.children[:mid]...)
	n.childSum = append([]summary(nil), n.childSum[:mid]...)
	n.recomputeSum()

	newIdx := t.allocInternalRaw(rightChildren, rightSum)
	for _, c := range rightChildren {
		t.arena[c].parent = newIdx
	}
	t.insertChildAfter(path, nodeIdx, newIdx)
}

// splitLeafIfNeeded splits leafIdx in two if it exceeds the fanout,
// wiring the new right half into the tree (spec.md §9: occupancy in
// [F/2, F] except the root).
func (t *Tree) splitLeafIfNeeded(path []pathStep, leafIdx int32) {
	leaf := &t.arena[leafIdx]
	if len(leaf.frags) <= t.fanout {
		return
	}
	mid := len(leaf.frags) / 2
	rightFrags := append([]Fragment(nil), leaf.frags[mid:]...)
	leaf.frags = append([]Fragment(nil), leaf.frags[:mid]...)
	leaf.recomputeSum()

	newIdx := t.allocLeaf(rightFrags)
	t.insertChildAfter(path, leafIdx, newIdx)
}

// deleteChild excises nodeIdx from its parent (identified by the last
// step of path), collapsing the tree's height if the root is left
// with a single child, or replacing the root with a fresh empty leaf
// if it loses every child.
func (t *Tree) deleteChild(path []pathStep, nodeIdx int32) {
	if len(path) == 0 {
		// nodeIdx is the root; an empty root leaf is a valid empty
		// document, nothing to excise it from.
		return
	}
	step := path[len(path)-1]
	parent := &t.arena[step.node]
	parent.children = append(parent.children[:step.idx], parent.children[step.idx+1:]...)
	parent.childSum = append(parent.childSum[:step.idx], parent.childSum[step.idx+1:]...)

	if len(parent.children) == 0 {
		if len(path) == 1 {
			t.root = t.allocLeaf(nil)
			return
		}
		t.deleteChild(path[:len(path)-1], step.node)
		return
	}
	if len(parent.children) == 1 && len(path) == 1 {
		only := parent.children[0]
		t.arena[only].parent = -1
		t.root = only
		return
	}
	parent.recomputeSum()
	t.propagateAncestors(path[:len(path)-1], step.node)
}

func (t *Tree) deleteLeaf(path []pathStep, leafIdx int32) {
	t.deleteChild(path, leafIdx)
}

func insertFragAt(frags []Fragment, i int, f Fragment) []Fragment {
	frags = append(frags, Fragment{})
	copy(frags[i+1:], frags[i:])
	frags[i] = f
	return frags
}

func replaceFragAt(frags []Fragment, i int, repl []Fragment) []Fragment {
	out := make([]Fragment, 0, len(frags)-1+len(repl))
	out = append(out, frags[:i]...)
	out = append(out, repl...)
	out = append(out, frags[i+1:]...)
	return out
}

// splitFragment splits f at local (0 < local < f.VirtualLength) into
// two fragments covering the same bytes. The right half's layout is
// computed carrying over the left half's exit state (column, pending
// rune), so a tab landing near the split still snaps the way it would
// if scanned as one run. A fragment's cached Layout is only as
// accurate as the column it was scanned against, though: an insert
// elsewhere that changes what now precedes a resident fragment doesn't
// retroactively re-snap its tabs, a known, accepted imprecision rather
// than something every edit needs to chase down.
//
// A Resident fragment is re-laid-out exactly when its bytes are still
// reachable through src
// (or carried directly as PendingBytes); otherwise both halves degrade
// to Unmapped, to be recomputed by a later background scan rather than
// blocking the edit (spec.md §4.F).
func splitFragment(f Fragment, local int64, table layout.Table, src ByteSource) (left, right Fragment) {
	if f.Kind == Unmapped {
		left = f
		left.VirtualLength = local
		left.id = stampID()
		right = f
		right.VirtualLength = f.VirtualLength - local
		right.id = stampID()
		if f.HasFileOffset {
			right.FileOffset = f.FileOffset + local
		}
		if f.PendingBytes != nil {
			left.PendingBytes = append([]byte(nil), f.PendingBytes[:local]...)
			right.PendingBytes = append([]byte(nil), f.PendingBytes[local:]...)
		}
		return left, right
	}

	if f.HasFileOffset && src != nil {
		lb, lok := src.Bytes(f.FileOffset, local)
		rb, rok := src.Bytes(f.FileOffset+local, f.VirtualLength-local)
		if lok && rok {
			ld, st, lw := layout.LayoutOf(lb, layout.Start, table)
			rd, _, rw := layout.LayoutOf(rb, st, table)
			left = NewResident(local, ld, lw)
			left.FileOffset, left.HasFileOffset = f.FileOffset, true
			right = NewResident(f.VirtualLength-local, rd, rw)
			right.FileOffset, right.HasFileOffset = f.FileOffset+local, true
			return left, right
		}
	}
	if f.PendingBytes != nil {
		lb := f.PendingBytes[:local]
		rb := f.PendingBytes[local:]
		ld, st, lw := layout.LayoutOf(lb, layout.Start, table)
		rd, _, rw := layout.LayoutOf(rb, st, table)
		left = NewResident(local, ld, lw)
		left.PendingBytes = append([]byte(nil), lb...)
		right = NewResident(f.VirtualLength-local, rd, rw)
		right.PendingBytes = append([]byte(nil), rb...)
		return left, right
	}

	// Bytes unreachable (evicted and not file-backed, shouldn't
	// normally happen): degrade both halves to unmapped rather than
	// block or guess at a layout.
	left = Fragment{Kind: Unmapped, VirtualLength: local, FileOffset: f.FileOffset, HasFileOffset: f.HasFileOffset, id: stampID()}
	right = Fragment{Kind: Unmapped, VirtualLength: f.VirtualLength - local, FileOffset: f.FileOffset + local, HasFileOffset: f.HasFileOffset, id: stampID()}
	return left, right
}

// Insert splices frag into the tree at virtual offset. If offset
// falls inside an existing fragment, that fragment is split around
// it first.
func (t *Tree) Insert(offset int64, frag Fragment, table layout.Table, src ByteSource) error {
	if frag.VirtualLength == 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	path, leafIdx, fragIdx, local := t.findLeaf(offset)
	leaf := &t.arena[leafIdx]

	switch {
	case len(leaf.frags) == 0:
		leaf.frags = []Fragment{frag}
	case local == 0:
		leaf.frags = insertFragAt(leaf.frags, fragIdx, frag)
	default:
		existing := leaf.frags[fragIdx]
		l, r := splitFragment(existing, local, table, src)
		repl := make([]Fragment, 0, 3)
		if l.VirtualLength > 0 {
			repl = append(repl, l)
		}
		repl = append(repl, frag)
		if r.VirtualLength > 0 {
			repl = append(repl, r)
		}
		leaf.frags = replaceFragAt(leaf.frags, fragIdx, repl)
	}

	t.propagate(path, leafIdx)
	t.splitLeafIfNeeded(path, leafIdx)
	return nil
}

// cutAt ensures a fragment boundary exists exactly at offset, splitting
// whatever fragment currently straddles it. A no-op if one already
// does, or if offset is 0 or the document's total length.
func (t *Tree) cutAt(offset int64, table layout.Table, src ByteSource) {
	if offset <= 0 {
		return
	}
	path, leafIdx, fragIdx, local := t.findLeaf(offset)
	leaf := &t.arena[leafIdx]
	if local == 0 || fragIdx >= len(leaf.frags) {
		return
	}
	existing := leaf.frags[fragIdx]
	l, r := splitFragment(existing, local, table, src)
	repl := make([]Fragment, 0, 2)
	if l.VirtualLength > 0 {
		repl = append(repl, l)
	}
	if r.VirtualLength > 0 {
		repl = append(repl, r)
	}
	leaf.frags = replaceFragAt(leaf.frags, fragIdx, repl)
	t.propagate(path, leafIdx)
	t.splitLeafIfNeeded(path, leafIdx)
}

// Delete removes the virtual range [start, end). Boundary fragments
// are split around start/end first so only whole fragments ever need
// to be unlinked.
func (t *Tree) Delete(start, end int64, table layout.Table, src ByteSource) error {
	if end <= start {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cutAt(end, table, src)
	t.cutAt(start, table, src)
	t.removeRange(start, end)
	return nil
}

// removeRange deletes every fragment inside [start, end), which must
// already be fragment-aligned at both ends. It re-resolves the
// current leaf from the root after every structural change instead of
// threading stale path/arena indices through a mutation, trading a
// little redundant descent for never reasoning about shifted sibling
// indices after a leaf is unlinked.
//
// A leaf or internal node is unlinked only once it is empty; one left
// below half the fanout is neither merged with nor refilled from a
// sibling.
func (t *Tree) removeRange(start, end int64) {
	cur := start
	path, leafIdx, fragIdx, _ := t.findLeaf(cur)
	for cur < end {
		leaf := &t.arena[leafIdx]
		if fragIdx >= len(leaf.frags) {
			path, leafIdx, fragIdx, _ = t.findLeaf(cur)
			if fragIdx >= len(t.arena[leafIdx].frags) {
				return
			}
			continue
		}
		f := leaf.frags[fragIdx]
		if cur+f.VirtualLength > end {
			return
		}
		leaf.frags = append(leaf.frags[:fragIdx], leaf.frags[fragIdx+1:]...)
		cur += f.VirtualLength

		if len(leaf.frags) == 0 {
			t.deleteLeaf(path, leafIdx)
		} else {
			t.propagate(path, leafIdx)
		}
		if cur < end {
			path, leafIdx, fragIdx, _ = t.findLeaf(cur)
		}
	}
}
