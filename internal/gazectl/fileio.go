package gazectl

import (
	"os"
)

// osFile adapts *os.File to sparsestore.FileIO, the only collaborator
// the core ever touches a real file through (spec.md §1: "the core
// has no file-system access of its own").
type osFile struct {
	f *os.File
}

func openFile(path string) (*osFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &osFile{f: f}, nil
}

func (o *osFile) Read(offset int64, buf []byte) (int, error) {
	return o.f.ReadAt(buf, offset)
}

func (o *osFile) Length() int64 {
	info, err := o.f.Stat()
	if err != nil {
		return 0
	}
	return info.Size()
}

// MapFile satisfies sparsestore.MappableFileIO, letting the loader
// memory-map segments of the underlying file directly rather than
// copying them through a Read buffer.
func (o *osFile) MapFile() *os.File {
	return o.f
}

func (o *osFile) Close() error {
	return o.f.Close()
}
