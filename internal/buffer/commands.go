package buffer

import (
	"fmt"
	"sync/atomic"

	"github.com/kovaxis/gaze/internal/gazeerr"
	"github.com/kovaxis/gaze/internal/layout"
	"github.com/kovaxis/gaze/internal/linemap"
)

// EditKind distinguishes the two edit operations an EditRecord logs.
type EditKind int

const (
	EditInsert EditKind = iota
	EditDelete
)

// EditRecord is one entry of the unsaved-edit log persist() serializes
// (spec.md §6: "sequence of (unsaved_edit_log, ...)"). Bytes is only
// populated for EditInsert of literal (non-file-region) data.
type EditRecord struct {
	Kind   EditKind
	Offset int64
	Length int64
	Bytes  []byte
}

// Insert splices literal bytes into the document at virtualOffset
// (spec.md §6's insert(virtual_offset, bytes_or_file_region), the
// bytes_or_file_region variant). Layout is computed on the caller's
// thread when the insert is small enough per
// gazeconfig.Config.ResidentInsertThreshold; otherwise the fragment is
// admitted as Unmapped-with-pending-bytes and left for a later
// background scan, so a large paste never stalls the interactive
// thread (spec.md §4.F).
func (b *Buffer) Insert(virtualOffset int64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := b.rejectIfSplitsRune(virtualOffset); err != nil {
		return err
	}

	frag := b.fragmentForInsert(data)
	if err := b.tree.Insert(virtualOffset, frag, b.table, b.store); err != nil {
		return err
	}
	b.recordEdit(EditRecord{Kind: EditInsert, Offset: virtualOffset, Length: int64(len(data)), Bytes: append([]byte(nil), data...)})
	return nil
}

func (b *Buffer) fragmentForInsert(data []byte) linemap.Fragment {
	threshold := b.tuning.ResidentInsertThreshold
	if threshold <= 0 || len(data) <= threshold {
		delta, _, maxWidth := layout.LayoutOf(data, layout.Start, b.table)
		frag := linemap.NewResident(int64(len(data)), delta, maxWidth)
		// Carried as PendingBytes too, same as a large deferred insert,
		// so a later split (rejectIfSplitsRune, or an edit that lands
		// inside this fragment) can still read its raw bytes without a
		// backing file (spec.md §4.F: in-memory inserts have no file
		// region of their own).
		frag.PendingBytes = append([]byte(nil), data...)
		return frag
	}
	return linemap.NewUnmappedPending(data)
}

// InsertFileRegion splices a file-backed, not-yet-scanned region into
// the document at virtualOffset (spec.md §6's insert's
// bytes_or_file_region variant, the file-region case — e.g. pasting a
// 30 GB region described in spec.md §8 scenario 4). It is always
// admitted Unmapped regardless of length: its bytes live in a
// different file than the one this buffer's own loader is filling, so
// there is no FileIO collaborator available yet to scan it against —
// only a later background scan, once that file's bytes are reachable
// through the same ByteSource the caller wires into RefineOnce, can
// resolve its layout.
func (b *Buffer) InsertFileRegion(virtualOffset, sourceFileOffset, length int64) error {
	if length <= 0 {
		return nil
	}
	if err := b.rejectIfSplitsRune(virtualOffset); err != nil {
		return err
	}
	frag := linemap.NewUnmappedFileBacked(length, sourceFileOffset)
	if err := b.tree.Insert(virtualOffset, frag, b.table, b.store); err != nil {
		return err
	}
	b.recordEdit(EditRecord{Kind: EditInsert, Offset: virtualOffset, Length: length})
	return nil
}

// Delete removes the virtual range [start, end) (spec.md §6's
// delete(virtual_range)).
func (b *Buffer) Delete(start, end int64) error {
	if end <= start {
		return nil
	}
	if err := b.rejectIfSplitsRune(start); err != nil {
		return err
	}
	if err := b.rejectIfSplitsRune(end); err != nil {
		return err
	}
	if err := b.tree.Delete(start, end, b.table, b.store); err != nil {
		return err
	}
	b.recordEdit(EditRecord{Kind: EditDelete, Offset: start, Length: end - start})
	return nil
}

// rejectIfSplitsRune implements spec.md §7's InvalidEdit: an edit
// boundary landing strictly inside an already-resident multi-byte
// UTF-8 sequence is rejected before any mutation happens, rather than
// left to silently corrupt the sequence. The byte is read through
// Tree.ByteAt, so a boundary inside an Unmapped fragment is checked too
// when that fragment's bytes are reachable (pending in memory or
// resident in the store). A boundary whose byte isn't reachable can't
// be checked this way — it is allowed through, since spec.md §1 gives
// the core no synchronous access to unloaded data to validate against.
func (b *Buffer) rejectIfSplitsRune(offset int64) error {
	at, ok := b.tree.ByteAt(offset, b.store)
	if !ok {
		return nil
	}
	if isUTF8Continuation(at) {
		return gazeerr.ErrInvalidEdit
	}
	return nil
}

func isUTF8Continuation(c byte) bool {
	return c&0xC0 == 0x80
}

// recordEdit appends to the unsaved-edit log under the façade's own
// mutex — distinct from the tree/store's locks, since this log is
// façade-private bookkeeping, not tree state.
func (b *Buffer) recordEdit(rec EditRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unsaved = append(b.unsaved, rec)
}

// saveJobCounter hands out job IDs for Save, mirroring the teacher's
// monotonically-assigned offsets in Log.Append.
var saveJobCounter uint64

// Save runs the buffer's flush-to-disk in the background and returns
// immediately with a job ID (spec.md §6: "save() -> job_id (runs in
// background)"). The core has no concrete file-writer collaborator of
// its own (spec.md §1: no wire format, no persistence mechanism
// beyond the opaque persist() state), so Save's background job is
// intentionally a thin placeholder that only clears the unsaved-edit
// log once "complete" — a real embedder supplies its own writer and
// drives Persist/clears the log itself through that path instead.
func (b *Buffer) Save() (jobID string, err error) {
	id := atomic.AddUint64(&saveJobCounter, 1)
	jobID = fmt.Sprintf("%s-save-%d", b.id, id)

	go func() {
		b.mu.Lock()
		b.unsaved = nil
		b.mu.Unlock()
	}()

	return jobID, nil
}

// checkFailed surfaces a sticky IoError for offset as a buffer-level
// flag the first time it's observed (spec.md §7), without failing the
// call that triggered it — the caller still gets whatever best-effort
// answer it already has.
func (b *Buffer) checkFailed(offset, length int64) {
	if b.store.IsFailed(offset) {
		b.noteIoError(offset, length)
	}
}
