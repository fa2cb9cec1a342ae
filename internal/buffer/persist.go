package buffer

import (
	"encoding/json"
	"fmt"
)

// PersistedState is spec.md §6's persist() result: an opaque (to the
// core) snapshot of everything needed to resume a buffer, serialized
// with encoding/json rather than protobuf (see DESIGN.md — the
// teacher's generated api/v1 package was never retrieved into the
// pack, and spec.md §9 explicitly leaves the wire format undefined, so
// there is no schema to adapt in the first place). The format carries
// no compatibility guarantee across versions of this package.
type PersistedState struct {
	UnsavedEdits               []EditRecord `json:"unsaved_edits"`
	BackingFilePath            string       `json:"backing_file_path"`
	BackingFileLengthAtPersist int64        `json:"backing_file_length_at_persist"`
}

// Persist captures the buffer's opaque compact state (spec.md §6:
// "persist() -> compact_state"). It does not clear the unsaved-edit
// log — persisting is a snapshot, not a save.
func (b *Buffer) Persist() (PersistedState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return PersistedState{
		UnsavedEdits:               append([]EditRecord(nil), b.unsaved...),
		BackingFilePath:            b.backingPath,
		BackingFileLengthAtPersist: b.backingLen,
	}, nil
}

// EncodePersisted serializes a PersistedState for storage between
// process runs.
func EncodePersisted(s PersistedState) ([]byte, error) {
	return json.Marshal(s)
}

// DecodePersisted parses bytes previously produced by
// EncodePersisted.
func DecodePersisted(data []byte) (PersistedState, error) {
	var s PersistedState
	if err := json.Unmarshal(data, &s); err != nil {
		return PersistedState{}, fmt.Errorf("decoding persisted buffer state: %w", err)
	}
	return s, nil
}

// ReplayUnsavedEdits re-applies a persisted edit log onto a freshly
// opened buffer (spec.md §6: "Replay on restart validates backing file
// length; mismatch forces a full reload as unmapped"). currentLength
// is the backing file's length as observed at reopen time; if it
// doesn't match what was recorded at persist time, the edits are
// rejected outright rather than replayed against bytes that may no
// longer mean what they meant when the log was captured — the caller
// is left with the freshly opened, fully-unmapped buffer instead.
// Insert records without Bytes (the file-region inserts made by
// InsertFileRegion) are not replayed: the record carries no source file
// offset, and Insert treats the empty payload as a no-op.
func (b *Buffer) ReplayUnsavedEdits(s PersistedState, currentLength int64) error {
	if s.BackingFileLengthAtPersist != currentLength {
		return fmt.Errorf("gaze: backing file length changed (%d at persist, %d now); discarding unsaved edits and reloading unmapped", s.BackingFileLengthAtPersist, currentLength)
	}
	for _, rec := range s.UnsavedEdits {
		switch rec.Kind {
		case EditInsert:
			if err := b.Insert(rec.Offset, rec.Bytes); err != nil {
				return err
			}
		case EditDelete:
			if err := b.Delete(rec.Offset, rec.Offset+rec.Length); err != nil {
				return err
			}
		}
	}
	b.backingLen = currentLength
	return nil
}
