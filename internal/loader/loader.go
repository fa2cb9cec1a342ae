// Package loader implements the single background worker per buffer
// described in spec.md §4.C: it services the Sparse Store's hot set
// against the underlying file, entirely off the interactive thread.
//
// Grounded on the teacher's internal/log/log.go segment-rotation loop
// (setup/newSegment), turned from "roll to a new segment when the
// active one is full" into "pick the next missing hot-set range and
// fill it". The worker is woken through a one-slot, coalescing wake
// channel that carries no command payloads, and stops cooperatively on
// context cancellation, checked between chunks.
package loader

import (
	"context"
	"time"

	"github.com/kovaxis/gaze/internal/glog"
	"github.com/kovaxis/gaze/internal/sparsestore"
)

// Loader drives one Store's hot set against one FileIO, on its own
// goroutine, and nothing else touches the store's segment set.
type Loader struct {
	store     *sparsestore.Store
	file      sparsestore.FileIO
	chunkSize int

	wake   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}

	log interface {
		Debugf(format string, args ...any)
		Warnf(format string, args ...any)
	}
}

// New creates a loader for store, reading from file in chunks of at
// most chunkSize bytes. Call Run to start the background worker.
func New(store *sparsestore.Store, file sparsestore.FileIO, chunkSize int, bufferID string) *Loader {
	if chunkSize <= 0 {
		chunkSize = 1 << 20
	}
	return &Loader{
		store:     store,
		file:      file,
		chunkSize: chunkSize,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		log:       glog.ForBuffer(bufferID),
	}
}

// Run starts the loader's goroutine. It returns immediately; call
// Close to request shutdown and wait for it to drain and exit
// (spec.md §5: "closing a buffer sets its cancellation token; the
// loader observes it between chunks, aborts outstanding reads, and
// exits").
func (l *Loader) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	go l.loop(ctx)
}

// Notify wakes the loader after a hot-set change or memory pressure
// (spec.md §4.B: "Wakes on hot-set change or memory pressure").
// Non-blocking: a pending wake coalesces with any already queued.
func (l *Loader) Notify() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Close requests shutdown: the worker stops before its next chunk,
// leaving any hot-set gaps it has not loaded yet unloaded. Close blocks
// until the worker has joined.
func (l *Loader) Close() {
	if l.cancel != nil {
		l.cancel()
	}
	<-l.done
}

func (l *Loader) loop(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.wake:
		case <-time.After(250 * time.Millisecond):
			// Poll periodically even without an explicit Notify, so
			// eviction still runs and any hot-set gaps left over (e.g.
			// a chunk whose commit was skipped) are retried.
		}

		l.store.EvictUntilWithinBudget()

		for {
			if ctx.Err() != nil {
				return
			}
			pending := l.store.PendingRanges()
			if len(pending) == 0 {
				break
			}
			l.fillOne(ctx, pending[0].Range)
		}
	}
}

// fillOne reads one bounded chunk of r from the file and commits it.
// It never holds the store's mutex while reading (spec.md §5: "all
// long work... happens with the mutex released, on temporary
// buffers"). When the file collaborator exposes a real *os.File, the
// chunk is memory-mapped straight into the segment set instead of
// copied through a heap buffer.
func (l *Loader) fillOne(ctx context.Context, r sparsestore.Range) {
	length := r.Length
	if int64(l.chunkSize) < length {
		length = int64(l.chunkSize)
	}

	if mf, ok := l.file.(sparsestore.MappableFileIO); ok {
		if err := l.store.CommitMapped(r.Start, length, mf.MapFile()); err == nil {
			l.log.Debugf("mapped %d bytes at offset %d", length, r.Start)
			return
		} else {
			l.log.Debugf("mmap failed at offset %d (+%d), falling back to read: %v", r.Start, length, err)
		}
	}

	buf := make([]byte, length)
	n, err := l.file.Read(r.Start, buf)
	if err != nil && n == 0 {
		l.log.Warnf("read failed at offset %d (+%d): %v", r.Start, length, err)
		l.store.MarkFailed(r.Start, length)
		return
	}
	if ctx.Err() != nil {
		// Cancelled mid-read; don't commit a possibly-truncated chunk
		// that doesn't reflect the file at this offset. The range
		// remains a gap and will be retried on next open/Notify.
		return
	}

	l.store.Commit(r.Start, buf[:n], nil)
	l.log.Debugf("loaded %d bytes at offset %d", n, r.Start)
}
