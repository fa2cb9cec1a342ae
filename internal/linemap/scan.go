package linemap

import (
	"github.com/kovaxis/gaze/internal/layout"
)

// ScanOnce finds one Unmapped fragment whose bytes are currently
// reachable (either PendingBytes, or file-backed bytes available
// through src) and splices a freshly-computed Resident fragment in
// its place. It returns false once no such fragment remains (spec.md
// §5: the background layout-scan worker "keeps running, in the
// background, until every unmapped fragment it can currently reach has
// become resident").
//
// The splice is guarded by the fragment's private identity stamp: the
// scan reads a fragment's bytes and computes its layout without
// holding the tree's lock (so it never blocks edits), then re-takes
// the lock and only commits if the fragment at that position is still
// the exact one it scanned. If an edit raced in and replaced it, the
// scan's result is discarded — the caller will see the new fragment on
// its next ScanOnce call instead (spec.md §5's compare-and-swap
// requirement for background splices).
func (t *Tree) ScanOnce(table layout.Table, src ByteSource) bool {
	leafIdx, fragIdx, target, ok := t.findOneUnmapped(src)
	if !ok {
		return false
	}

	data, gotData := fragmentBytes(target, src)
	if !gotData {
		return false
	}
	delta, _, maxWidth := layout.LayoutOf(data, layout.Start, table)
	resident := NewResident(target.VirtualLength, delta, maxWidth)
	resident.FileOffset, resident.HasFileOffset = target.FileOffset, target.HasFileOffset
	resident.PendingBytes = target.PendingBytes

	t.mu.Lock()
	defer t.mu.Unlock()
	if leafIdx >= int32(len(t.arena)) {
		return false
	}
	leaf := &t.arena[leafIdx]
	if fragIdx >= len(leaf.frags) || leaf.frags[fragIdx].id != target.id {
		// Raced with an edit; the fragment moved or was replaced.
		return true
	}
	leaf.frags[fragIdx] = resident
	leaf.recomputeSum()
	path := t.pathTo(leafIdx)
	t.propagateAncestors(path, leafIdx)
	return true
}

// findOneUnmapped returns the first Unmapped fragment in document
// order whose bytes are reachable through src (or carried as
// PendingBytes), without holding the lock past this call.
func (t *Tree) findOneUnmapped(src ByteSource) (leafIdx int32, fragIdx int, frag Fragment, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	path, leafIdx, fragIdx, _ := t.findLeaf(0)
	for {
		leaf := &t.arena[leafIdx]
		for i := fragIdx; i < len(leaf.frags); i++ {
			if leaf.frags[i].Kind == Unmapped {
				if _, reachable := fragmentBytes(leaf.frags[i], src); reachable {
					return leafIdx, i, leaf.frags[i], true
				}
			}
		}
		np, nl, more := t.nextLeaf(path, leafIdx)
		if !more {
			return 0, 0, Fragment{}, false
		}
		path, leafIdx, fragIdx = np, nl, 0
	}
}

// pathTo recovers leafIdx's ancestor path by walking parent pointers,
// used after ScanOnce re-takes the lock since the path captured before
// releasing it may be stale if an unrelated edit ran in between.
func (t *Tree) pathTo(leafIdx int32) []pathStep {
	type frame struct {
		node int32
		idx  int
	}
	var rev []frame
	cur := leafIdx
	for t.arena[cur].parent != -1 {
		parent := t.arena[cur].parent
		idx := -1
		for i, c := range t.arena[parent].children {
			if c == cur {
				idx = i
				break
			}
		}
		rev = append(rev, frame{node: parent, idx: idx})
		cur = parent
	}
	path := make([]pathStep, len(rev))
	for i, f := range rev {
		path[len(rev)-1-i] = pathStep{node: f.node, idx: f.idx}
	}
	return path
}

func fragmentBytes(f Fragment, src ByteSource) ([]byte, bool) {
	if f.PendingBytes != nil {
		return f.PendingBytes, true
	}
	if f.HasFileOffset && src != nil {
		return src.Bytes(f.FileOffset, f.VirtualLength)
	}
	return nil, false
}
