package bufferpool

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tuanvm/hazeldb/internal/storage"
	"github.com/tuanvm/hazeldb/internal/wal"
)

var (
	DefaultPoolSize = 128

	ErrNoFreeFrame   = errors.New("bufferpool: no free frame available (all pinned)")
	ErrInvalidPageID = errors.New("bufferpool: invalid page id")
)

// frame is one slot of the pool. Pin count and dirty flag live here, next to
// the page table, so a single mutex guards all of them.
type frame struct {
	page  *storage.Page
	pin   int
	dirty bool
}

// Manager caches fixed-size disk pages in a bounded set of in-memory frames.
//
// The mutex guards the page table, the free list, replacer calls and
// per-frame bookkeeping. Per-page latches guard page bytes only; they are
// taken here just around write-backs of those bytes, always after the
// mutex, never the other way around. Reads from disk go into a detached
// frame and take no page latch.
type Manager struct {
	disk *storage.DiskManager
	log  *wal.Manager // optional, may be nil

	mu        sync.Mutex
	frames    []*frame
	pageTable map[storage.PageID]int
	freeList  []int
	replacer  *ClockReplacer
}

func NewManager(poolSize int, disk *storage.DiskManager, log *wal.Manager) *Manager {
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}
	m := &Manager{
		disk:      disk,
		log:       log,
		frames:    make([]*frame, poolSize),
		pageTable: make(map[storage.PageID]int),
		freeList:  make([]int, 0, poolSize),
		replacer:  NewClockReplacer(poolSize),
	}
	// Initially every frame is free.
	for i := range poolSize {
		m.frames[i] = &frame{page: storage.NewPage(storage.InvalidPageID)}
		m.freeList = append(m.freeList, i)
	}
	return m
}

// PoolSize reports the fixed number of frames.
func (m *Manager) PoolSize() int { return len(m.frames) }

// Log exposes the attached redo log, nil when none is configured.
func (m *Manager) Log() *wal.Manager { return m.log }

// FetchPage returns the requested page pinned, loading it from disk (and
// possibly evicting another page) when it is not resident. Every successful
// call must be paired with an UnpinPage.
func (m *Manager) FetchPage(id storage.PageID) (*storage.Page, error) {
	if id == storage.InvalidPageID {
		return nil, ErrInvalidPageID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if idx, ok := m.pageTable[id]; ok {
		f := m.frames[idx]
		f.pin++
		m.replacer.Pin(idx)
		return f.page, nil
	}

	idx, err := m.takeFrame()
	if err != nil {
		return nil, err
	}
	f := m.frames[idx]
	if err := m.disk.ReadPage(id, f.page.Data()); err != nil {
		// Frame was detached from its old page already; hand it back as free.
		f.page.SetID(storage.InvalidPageID)
		m.freeList = append(m.freeList, idx)
		return nil, fmt.Errorf("bufferpool: read page %d: %w", id, err)
	}
	f.page.SetID(id)
	f.pin = 1
	f.dirty = false
	m.pageTable[id] = idx
	m.replacer.Pin(idx)
	return f.page, nil
}

// UnpinPage drops one pin. The dirty flag is sticky: once a page is marked
// dirty it stays dirty until flushed, whatever later callers pass.
func (m *Manager) UnpinPage(id storage.PageID, dirty bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.pageTable[id]
	if !ok {
		slog.Warn("bufferpool: unpin of non-resident page", "page_id", id)
		return false
	}
	f := m.frames[idx]
	if f.pin <= 0 {
		slog.Warn("bufferpool: unpin below zero", "page_id", id, "pin", f.pin)
		return false
	}
	f.dirty = f.dirty || dirty
	f.pin--
	if f.pin == 0 {
		m.replacer.Unpin(idx)
	}
	return true
}

// FlushPage writes the page through to disk and clears its dirty flag.
// Pin state is untouched; flushing a pinned page is allowed.
func (m *Manager) FlushPage(id storage.PageID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.pageTable[id]
	if !ok || id == storage.InvalidPageID {
		return false
	}
	f := m.frames[idx]
	if err := m.writeBack(f); err != nil {
		slog.Warn("bufferpool: flush failed", "page_id", id, "err", err)
		return false
	}
	return true
}

// NewPage allocates a fresh disk page into a free frame, zeroed and pinned
// once. When no frame is available nothing is allocated on disk.
func (m *Manager) NewPage() (*storage.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, err := m.takeFrame()
	if err != nil {
		return nil, err
	}
	id := m.disk.AllocatePage()

	f := m.frames[idx]
	f.page.SetID(id)
	f.page.Reset()
	f.pin = 1
	f.dirty = false
	m.pageTable[id] = idx
	m.replacer.Pin(idx)
	return f.page, nil
}

// DeletePage drops a page from the pool and deallocates it on disk.
// A page that is not resident counts as already deleted; a pinned page
// cannot be deleted and the caller may retry after the pins drain.
func (m *Manager) DeletePage(id storage.PageID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.pageTable[id]
	if !ok {
		return true
	}
	f := m.frames[idx]
	if f.pin > 0 {
		return false
	}

	delete(m.pageTable, id)
	// Pin count zero means the frame sits in the replacer; pull it out
	// before it goes back on the free list.
	m.replacer.Pin(idx)
	f.page.SetID(storage.InvalidPageID)
	f.page.Reset()
	f.pin = 0
	f.dirty = false
	m.freeList = append(m.freeList, idx)
	m.disk.DeallocatePage(id)
	return true
}

// FlushAllPages flushes every resident page. The resident set is snapshotted
// under the mutex and each page is flushed without holding it, so concurrent
// fetches only wait for single-page critical sections.
func (m *Manager) FlushAllPages() {
	m.mu.Lock()
	ids := make([]storage.PageID, 0, len(m.pageTable))
	for id := range m.pageTable {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.FlushPage(id)
	}
}

// takeFrame returns a detached frame: free list first, then a replacer
// victim with its old page written back and unmapped. Caller holds m.mu.
func (m *Manager) takeFrame() (int, error) {
	if len(m.freeList) > 0 {
		idx := m.freeList[0]
		m.freeList = m.freeList[1:]
		return idx, nil
	}

	idx, ok := m.replacer.Victim()
	if !ok {
		return 0, ErrNoFreeFrame
	}
	f := m.frames[idx]
	if f.dirty {
		if err := m.writeBack(f); err != nil {
			// Put the victim back as a candidate, nothing was unmapped yet.
			m.replacer.Unpin(idx)
			return 0, fmt.Errorf("bufferpool: evict page %d: %w", f.page.ID(), err)
		}
	}
	delete(m.pageTable, f.page.ID())
	return idx, nil
}

// writeBack writes one frame's bytes through to disk, logging the page image
// first when a redo log is attached, and clears the dirty flag.
// Caller holds m.mu.
func (m *Manager) writeBack(f *frame) error {
	f.page.RLatch()
	defer f.page.RUnlatch()

	if m.log != nil {
		if _, err := m.log.Append(int32(f.page.ID()), f.page.Data()); err != nil {
			return err
		}
	}
	if err := m.disk.WritePage(f.page.ID(), f.page.Data()); err != nil {
		return err
	}
	f.dirty = false
	return nil
}
