package sparsestore

import (
	"os"

	"github.com/tysonmote/gommap"
)

// mmapping wraps a gommap.MMap so segset.go doesn't need a build-tag
// aware import; nil means "not memory-mapped, just a plain slice".
//
// Grounded on internal/log/index.go's use of gommap to map an offset
// table read/write, shared. Here the mapping is read-only and
// file-backed: a resident segment's bytes are never mutated in place
// (edits live in the linemap tree, not in the sparse store), so
// PROT_READ + MAP_SHARED is enough, and unmapping never needs an
// MS_SYNC flush.
type mmapping gommap.MMap

// mapRegion memory-maps [offset, offset+length) of f read-only. The
// caller is responsible for offset/length falling within f's bounds;
// the loader never requests past the file's known length (spec.md §6
// "Files must have a defined length").
func mapRegion(f *os.File, offset, length int64) ([]byte, mmapping, error) {
	if length == 0 {
		return nil, nil, nil
	}
	m, err := gommap.MapRegion(f.Fd(), int(length), gommap.PROT_READ, gommap.MAP_SHARED, offset)
	if err != nil {
		return nil, nil, err
	}
	return []byte(m), mmapping(m), nil
}

func unmap(mm mmapping) {
	if mm == nil {
		return
	}
	_ = gommap.MMap(mm).Unmap()
}
