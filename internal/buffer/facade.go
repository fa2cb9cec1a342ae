// Package buffer implements the Buffer Façade from spec.md §4.G: it
// binds one Sparse Store to one Linemap Tree and mediates every access
// a renderer or an editor command makes to either, so neither
// collaborator ever has to reach into the other directly.
//
// Grounded on internal/server/server.go's grpcServer, which mediates
// access to one CommitLog behind a Config — here the single CommitLog
// seam becomes a store+tree seam, and Config.CommitLog's
// dependency-injection shape becomes Config.Store/Config.Tree so tests
// can inject fakes exactly as server_test.go injects an in-memory
// CommitLog.
package buffer

import (
	"sync"
	"sync/atomic"

	"github.com/kovaxis/gaze/internal/gazeconfig"
	"github.com/kovaxis/gaze/internal/gazeerr"
	"github.com/kovaxis/gaze/internal/glog"
	"github.com/kovaxis/gaze/internal/layout"
	"github.com/kovaxis/gaze/internal/linemap"
	"github.com/kovaxis/gaze/internal/loader"
	"github.com/kovaxis/gaze/internal/sparsestore"
)

// Store is the subset of *sparsestore.Store the façade depends on,
// mirroring the teacher's CommitLog interface seam so tests can inject
// an in-memory fake instead of a real mmap-backed store.
type Store interface {
	ReadForward(offset int64) (bytesAvailable int64, endOffset int64)
	ReadBackward(offset int64) (bytesAvailable int64, startOffset int64)
	Bytes(offset, length int64) ([]byte, bool)
	SetHotSet(ranges []sparsestore.HotRange)
	MemoryBudget(bytes int64)
	PollEpoch() uint64
	IsFailed(offset int64) bool
	Stats() sparsestore.Stats
}

// Tree is the subset of *linemap.Tree the façade depends on.
type Tree interface {
	Len() int64
	SpatialDelta(start, end int64) (layout.Delta, bool)
	MaxLineWidthLowerBound(start, end int64) float64
	MappedNeighborhood(offset int64) (lo, hi int64)
	OffsetAt(targetLine int, targetCol float64, rounding linemap.Rounding, table layout.Table, src linemap.ByteSource) (int64, bool)
	Iterate(offset int64, dir linemap.Direction) *linemap.Cursor
	Insert(offset int64, frag linemap.Fragment, table layout.Table, src linemap.ByteSource) error
	Delete(start, end int64, table layout.Table, src linemap.ByteSource) error
	ScanOnce(table layout.Table, src linemap.ByteSource) bool
	ByteAt(offset int64, src linemap.ByteSource) (byte, bool)
}

// Config binds a Buffer to its collaborators, the façade's analogue of
// the teacher's server Config binding a grpcServer to one CommitLog.
type Config struct {
	ID     string
	Store  Store
	Tree   Tree
	Loader *loader.Loader // nil for an unbacked (pure in-memory) buffer
	Table  layout.Table
	Tuning gazeconfig.Config
}

// Buffer is the Buffer Façade (spec.md §4.G): owns one tree and one
// sparse store, translates viewport requests into hot-set membership
// and query calls, and surfaces partial results. Refinement is not
// scheduled by the façade itself: it runs only when the caller invokes
// RefineOnce, and nothing here watches the epoch.
type Buffer struct {
	id     string
	store  Store
	tree   Tree
	ld     *loader.Loader
	table  layout.Table
	tuning gazeconfig.Config
	log    interface {
		Debugf(format string, args ...any)
		Warnf(format string, args ...any)
	}

	mu          sync.Mutex
	unsaved     []EditRecord
	backingPath string
	backingLen  int64

	ioErr atomic.Value // stores error, nil until first IoError observed
}

// New creates a Buffer from an explicit Config, the seam
// internal/buffer's tests use to inject fakes in place of a real
// sparsestore.Store/linemap.Tree.
func New(cfg Config) *Buffer {
	b := &Buffer{
		id:     cfg.ID,
		store:  cfg.Store,
		tree:   cfg.Tree,
		ld:     cfg.Loader,
		table:  cfg.Table,
		tuning: cfg.Tuning,
		log:    glog.ForBuffer(cfg.ID),
	}
	return b
}

// Open binds a freshly-loaded file to a new Buffer: a sparse store
// over file, a loader servicing it, and a tree whose entire span
// starts as a single unmapped fragment (spec.md §3: "created on buffer
// open, one unmapped run per file"). path is recorded only for
// PersistedState.BackingFilePath; it's never reopened by the core
// itself (spec.md §1: the core has no file-system access of its own,
// only through the File I/O collaborator already bound into file).
func Open(id, path string, file sparsestore.FileIO, cfg gazeconfig.Config) *Buffer {
	store := sparsestore.NewStore(cfg.MemoryBudgetBytes)
	length := file.Length()
	tree := linemap.NewTree(cfg.Fanout, linemap.NewUnmappedFileBacked(length, 0))
	ld := loader.New(store, file, cfg.ChunkSize, id)
	ld.Run()

	return &Buffer{
		id:          id,
		store:       store,
		tree:        tree,
		ld:          ld,
		table:       tableFromConfig(cfg),
		tuning:      cfg,
		log:         glog.ForBuffer(id),
		backingPath: path,
		backingLen:  length,
	}
}

// OpenEmpty creates a Buffer over an empty, unbacked document (no
// loader: there is nothing to page in).
func OpenEmpty(id string, cfg gazeconfig.Config) *Buffer {
	store := sparsestore.NewStore(cfg.MemoryBudgetBytes)
	tree := linemap.NewEmptyTree(cfg.Fanout)
	return &Buffer{
		id:     id,
		store:  store,
		tree:   tree,
		table:  tableFromConfig(cfg),
		tuning: cfg,
		log:    glog.ForBuffer(id),
	}
}

// Close shuts down the buffer's loader, if it has one (spec.md §5:
// "closing a buffer sets its cancellation token"). Hot-set ranges not
// yet loaded are left unloaded; Close returns once the loader's worker
// has exited.
func (b *Buffer) Close() {
	if b.ld != nil {
		b.ld.Close()
	}
}

// tableFromConfig builds the layout width table from gazeconfig's
// tunables: a single font-height unit width, with the tab stop
// gazeconfig.Config.TabStopWidth controls directly rather than the
// 8-unit default layout.DefaultTable assumes.
func tableFromConfig(cfg gazeconfig.Config) layout.Table {
	t := layout.DefaultTable(1)
	if cfg.TabStopWidth > 0 {
		t.TabStopWidth = cfg.TabStopWidth
	}
	return t
}

// Rect is the façade's notion of a query rectangle: a half-open range
// of virtual byte offsets. The 2D line/column viewport the Renderer
// collaborator actually displays is projected down to this range by
// the caller via OffsetAt before calling QueryRect — the façade itself
// only ever reasons in virtual-offset space, leaving the 2D→1D
// projection (and therefore the render surface itself) out of the
// core's scope per spec.md §1's "no window/render surface" non-goal.
type Rect struct {
	Start, End int64
}

// RectAnswer is query_rect's result (spec.md §6): the resident and
// unmapped sub-runs covering the requested rect, plus the store epoch
// they were computed against, so the Renderer collaborator knows when
// to re-issue the query.
type RectAnswer struct {
	ResidentRuns []Rect
	UnmappedRuns []Rect
	Epoch        uint64
}

// QueryRect answers spec.md §6's query_rect contract: it walks rect's
// fragments via the tree's cursor, classifying each run as resident or
// unmapped, and stamps the answer with the store's epoch at the time
// of the call so the caller can tell whether a later SetViewport
// refined anything.
func (b *Buffer) QueryRect(rect Rect) RectAnswer {
	ans := RectAnswer{Epoch: b.store.PollEpoch()}
	if rect.End <= rect.Start {
		return ans
	}

	c := b.tree.Iterate(rect.Start, linemap.Forward)
	cur := rect.Start
	for cur < rect.End {
		frag, ok := c.Next()
		if !ok {
			break
		}
		end := cur + frag.VirtualLength
		if end > rect.End {
			end = rect.End
		}
		run := Rect{Start: cur, End: end}
		if frag.Kind == linemap.Resident {
			ans.ResidentRuns = append(ans.ResidentRuns, run)
		} else {
			ans.UnmappedRuns = append(ans.UnmappedRuns, run)
			if frag.HasFileOffset {
				b.checkFailed(frag.FileOffset, frag.VirtualLength)
			}
		}
		cur = cur + frag.VirtualLength
	}
	return ans
}

// SetViewport tells the façade which virtual range the renderer is
// currently displaying. It becomes the PriorityViewport hot-set
// member; everything previously hot at that priority is replaced, not
// merged, matching spec.md §4.B's "viewport > prefetch > speculative"
// ranking where only the current viewport counts as that top tier.
func (b *Buffer) SetViewport(start, end int64, prefetch []Rect) {
	ranges := make([]sparsestore.HotRange, 0, 1+len(prefetch))
	if end > start {
		ranges = append(ranges, sparsestore.HotRange{
			Range:    sparsestore.Range{Start: start, Length: end - start},
			Priority: sparsestore.PriorityViewport,
		})
	}
	for _, r := range prefetch {
		if r.End <= r.Start {
			continue
		}
		ranges = append(ranges, sparsestore.HotRange{
			Range:    sparsestore.Range{Start: r.Start, Length: r.End - r.Start},
			Priority: sparsestore.PriorityPrefetch,
		})
	}
	b.store.SetHotSet(ranges)
	if b.ld != nil {
		b.ld.Notify()
	}
}

// PollEpoch exposes the store's epoch counter directly, the signal the
// Renderer collaborator subscribes to (spec.md §6).
func (b *Buffer) PollEpoch() uint64 {
	return b.store.PollEpoch()
}

// RefineOnce drives one step of background work: splicing one
// previously-unmapped fragment into a resident one if the tree has
// any bytes available to scan (spec.md §5: the background
// layout-scan worker "keeps running... until every unmapped fragment
// it can currently reach has become resident"). Callers (normally
// cmd/gazectl's debug/demo loop, since a production embedder would
// run this from its own background goroutine) call it repeatedly
// until it returns false.
func (b *Buffer) RefineOnce() bool {
	return b.tree.ScanOnce(b.table, b.store)
}

// LastIoError reports the first sticky I/O failure observed on this
// buffer, or nil (spec.md §7: IoError "raises a buffer-level flag").
// Mirrors the teacher's plain io.EOF/bare-error propagation through
// Log.Read rather than a richer typed-error channel.
func (b *Buffer) LastIoError() error {
	v := b.ioErr.Load()
	if v == nil {
		return nil
	}
	return v.(error)
}

// noteIoError is called by command paths that detect a sticky failure
// via Store.IsFailed; it only ever sets the flag once (spec.md §7:
// "recorded once").
func (b *Buffer) noteIoError(offset, length int64) {
	err := &gazeerr.IoError{FileOffsetStart: offset, Length: length, Cause: gazeerr.ErrIoError}
	b.ioErr.CompareAndSwap(nil, error(err))
}

// Bytes returns the raw resident bytes in [offset, offset+length), or
// ok=false if any part of that range isn't currently resident. A
// Renderer collaborator calls this only after QueryRect has told it
// the covering run is resident — spec.md §6 gives query_rect no
// payload of its own, just run boundaries, so reading content is a
// second, separate call.
func (b *Buffer) Bytes(offset, length int64) ([]byte, bool) {
	return b.store.Bytes(offset, length)
}

// DocLength returns the document's current total virtual length, the
// debug server's /segments response includes alongside the store's
// own byte accounting.
func (b *Buffer) DocLength() int64 {
	return b.tree.Len()
}

// Stats snapshots the Sparse Store's segments, hot set and epoch for
// the read-only debug/introspection surface (internal/debugserver).
func (b *Buffer) Stats() sparsestore.Stats {
	return b.store.Stats()
}
