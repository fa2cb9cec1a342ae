package loader

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kovaxis/gaze/internal/sparsestore"
)

type fakeFile struct {
	data []byte
	fail func(offset int64) bool
}

func (f *fakeFile) Read(offset int64, buf []byte) (int, error) {
	if f.fail != nil && f.fail(offset) {
		return 0, errors.New("simulated io error")
	}
	n := copy(buf, f.data[offset:])
	return n, nil
}

func (f *fakeFile) Length() int64 { return int64(len(f.data)) }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestLoaderFillsHotSet(t *testing.T) {
	content := []byte("the quick brown fox jumps over the lazy dog")
	store := sparsestore.NewStore(1 << 20)
	ld := New(store, &fakeFile{data: content}, 8, "test")
	ld.Run()
	defer ld.Close()

	store.SetHotSet([]sparsestore.HotRange{
		{Range: sparsestore.Range{Start: 0, Length: int64(len(content))}, Priority: sparsestore.PriorityViewport},
	})
	ld.Notify()

	waitFor(t, func() bool {
		n, _ := store.ReadForward(0)
		return n == int64(len(content))
	})

	b, ok := store.Bytes(0, int64(len(content)))
	require.True(t, ok)
	assert.Equal(t, string(content), string(b))
}

func TestLoaderMarksStickyIoError(t *testing.T) {
	store := sparsestore.NewStore(1 << 20)
	ld := New(store, &fakeFile{data: []byte("0123456789"), fail: func(int64) bool { return true }}, 4, "test")
	ld.Run()
	defer ld.Close()

	store.SetHotSet([]sparsestore.HotRange{
		{Range: sparsestore.Range{Start: 0, Length: 10}, Priority: sparsestore.PriorityViewport},
	})
	ld.Notify()

	waitFor(t, func() bool { return store.IsFailed(0) })

	n, _ := store.ReadForward(0)
	assert.Equal(t, int64(0), n)
}

func TestLoaderCloseJoins(t *testing.T) {
	store := sparsestore.NewStore(1 << 20)
	ld := New(store, &fakeFile{data: []byte("x")}, 4, "test")
	ld.Run()
	ld.Close() // must return, not hang
}

// mappedFile wraps a real *os.File so it satisfies
// sparsestore.MappableFileIO, exercising the loader's memory-mapped
// commit path the same way internal/gazectl's osFile does.
type mappedFile struct {
	f *os.File
}

func (m *mappedFile) Read(offset int64, buf []byte) (int, error) {
	return m.f.ReadAt(buf, offset)
}

func (m *mappedFile) Length() int64 {
	info, err := m.f.Stat()
	if err != nil {
		return 0
	}
	return info.Size()
}

func (m *mappedFile) MapFile() *os.File { return m.f }

func TestLoaderFillsHotSetViaMmap(t *testing.T) {
	content := []byte("the quick brown fox jumps over the lazy dog")
	tmp, err := os.CreateTemp(t.TempDir(), "loader-mmap-*")
	require.NoError(t, err)
	_, err = tmp.Write(content)
	require.NoError(t, err)
	defer tmp.Close()

	store := sparsestore.NewStore(1 << 20)
	ld := New(store, &mappedFile{f: tmp}, 8, "test")
	ld.Run()
	defer ld.Close()

	store.SetHotSet([]sparsestore.HotRange{
		{Range: sparsestore.Range{Start: 0, Length: int64(len(content))}, Priority: sparsestore.PriorityViewport},
	})
	ld.Notify()

	waitFor(t, func() bool {
		n, _ := store.ReadForward(0)
		return n == int64(len(content))
	})

	b, ok := store.Bytes(0, int64(len(content)))
	require.True(t, ok)
	assert.Equal(t, string(content), string(b))
}
