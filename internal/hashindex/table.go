// Package hashindex implements a disk-resident linear-probing hash index on
// top of the buffer pool. One header page lists the block pages; each block
// page holds a fixed array of slots with occupied/readable bitmaps.
package hashindex

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tuanvm/hazeldb/internal/bufferpool"
	"github.com/tuanvm/hazeldb/internal/catalog"
	"github.com/tuanvm/hazeldb/internal/storage"
	"github.com/tuanvm/hazeldb/internal/txn"
)

// MasterPageID is where the database keeps its named record table.
const MasterPageID storage.PageID = 0

var (
	ErrIndexExists   = errors.New("hashindex: name already registered")
	ErrIndexNotFound = errors.New("hashindex: name not registered")
	ErrZeroBuckets   = errors.New("hashindex: bucket count must be positive")
)

type pair[K any, V any] struct {
	key   K
	value V
}

// HashTable is a persistent hash index. Point operations hold the table
// latch shared and the touched block latch exclusive or shared; Resize holds
// the table latch exclusive, which quiesces every point operation.
//
// Latch order is table latch, then block latch, then (inside FetchPage) the
// buffer pool mutex. Nothing acquires in the other direction.
type HashTable[K any, V comparable] struct {
	name string
	bpm  *bufferpool.Manager
	cmp  Comparator[K]
	hash HashFunc[K]
	kc   Codec[K]
	vc   Codec[V]
	l    blockLayout

	headerPageID storage.PageID

	tableLatch   sync.RWMutex
	blockLatches []*sync.RWMutex
	size         uint64 // logical bucket count, guarded by tableLatch
}

// New creates a hash table with numBuckets logical buckets, registers its
// header page under name in the master record table, and allocates
// numBuckets/blockArraySize + 1 block pages.
func New[K any, V comparable](
	name string,
	bpm *bufferpool.Manager,
	cmp Comparator[K],
	numBuckets uint64,
	hash HashFunc[K],
	kc Codec[K],
	vc Codec[V],
) (*HashTable[K, V], error) {
	if numBuckets == 0 {
		return nil, ErrZeroBuckets
	}

	ht := &HashTable[K, V]{
		name: name,
		bpm:  bpm,
		cmp:  cmp,
		hash: hash,
		kc:   kc,
		vc:   vc,
		l:    layoutFor(kc.Width() + vc.Width()),
	}

	hp, err := bpm.NewPage()
	if err != nil {
		return nil, fmt.Errorf("hashindex: allocate header page: %w", err)
	}
	ht.headerPageID = hp.ID()

	master, err := bpm.FetchPage(MasterPageID)
	if err != nil {
		bpm.UnpinPage(ht.headerPageID, false)
		return nil, fmt.Errorf("hashindex: fetch master page: %w", err)
	}
	master.WLatch()
	registered := catalog.Master(master).InsertRecord(name, ht.headerPageID)
	master.WUnlatch()
	bpm.UnpinPage(MasterPageID, registered)
	if !registered {
		bpm.UnpinPage(ht.headerPageID, false)
		bpm.DeletePage(ht.headerPageID)
		return nil, ErrIndexExists
	}

	ht.tableLatch.Lock()
	defer ht.tableLatch.Unlock()

	h := headerPage{page: hp}
	h.SetPageID(ht.headerPageID)
	if log := bpm.Log(); log != nil {
		h.SetLSN(int32(log.LSN()))
	}
	h.SetSize(numBuckets)

	numBlocks := int(numBuckets)/ht.l.arraySize + 1
	for range numBlocks {
		bp, err := bpm.NewPage()
		if err != nil {
			bpm.UnpinPage(ht.headerPageID, true)
			return nil, fmt.Errorf("hashindex: allocate block page: %w", err)
		}
		h.AddBlockPageID(bp.ID())
		bpm.UnpinPage(bp.ID(), false)
	}

	ht.size = numBuckets
	ht.blockLatches = newBlockLatches(numBlocks)
	bpm.UnpinPage(ht.headerPageID, true)
	return ht, nil
}

// Open attaches to a hash table previously registered under name.
func Open[K any, V comparable](
	name string,
	bpm *bufferpool.Manager,
	cmp Comparator[K],
	hash HashFunc[K],
	kc Codec[K],
	vc Codec[V],
) (*HashTable[K, V], error) {
	master, err := bpm.FetchPage(MasterPageID)
	if err != nil {
		return nil, fmt.Errorf("hashindex: fetch master page: %w", err)
	}
	master.RLatch()
	headerID, ok := catalog.Master(master).GetRecord(name)
	master.RUnlatch()
	bpm.UnpinPage(MasterPageID, false)
	if !ok {
		return nil, ErrIndexNotFound
	}

	ht := &HashTable[K, V]{
		name:         name,
		bpm:          bpm,
		cmp:          cmp,
		hash:         hash,
		kc:           kc,
		vc:           vc,
		l:            layoutFor(kc.Width() + vc.Width()),
		headerPageID: headerID,
	}

	hp, err := bpm.FetchPage(headerID)
	if err != nil {
		return nil, fmt.Errorf("hashindex: fetch header page: %w", err)
	}
	h := headerPage{page: hp}
	ht.size = h.Size()
	ht.blockLatches = newBlockLatches(h.NumBlocks())
	bpm.UnpinPage(headerID, false)
	return ht, nil
}

func newBlockLatches(n int) []*sync.RWMutex {
	latches := make([]*sync.RWMutex, n)
	for i := range latches {
		latches[i] = &sync.RWMutex{}
	}
	return latches
}

// Size reports the logical bucket count.
func (ht *HashTable[K, V]) Size() uint64 {
	ht.tableLatch.RLock()
	defer ht.tableLatch.RUnlock()
	return ht.size
}

// HeaderPageID reports where the table's header page lives.
func (ht *HashTable[K, V]) HeaderPageID() storage.PageID {
	return ht.headerPageID
}

// startSlot computes the key's home position in the logical slot array.
// Caller holds the table latch.
func (ht *HashTable[K, V]) startSlot(key K) int {
	return int(ht.hash(key) % ht.size)
}

func (ht *HashTable[K, V]) fetchHeader() (headerPage, error) {
	hp, err := ht.bpm.FetchPage(ht.headerPageID)
	if err != nil {
		return headerPage{}, fmt.Errorf("hashindex: fetch header page: %w", err)
	}
	return headerPage{page: hp}, nil
}

func (ht *HashTable[K, V]) fetchBlock(h headerPage, blockIdx int) (blockPage[K, V], error) {
	id := h.BlockPageID(blockIdx)
	bp, err := ht.bpm.FetchPage(id)
	if err != nil {
		return blockPage[K, V]{}, fmt.Errorf("hashindex: fetch block page %d: %w", id, err)
	}
	return blockPage[K, V]{page: bp, l: ht.l, kc: ht.kc, vc: ht.vc}, nil
}

// blockSpan reports how many slots of a block are inside the logical array.
// Only the tail block is cut short. Caller holds the table latch.
func (ht *HashTable[K, V]) blockSpan(blockIdx int) int {
	return min(ht.l.arraySize, int(ht.size)-blockIdx*ht.l.arraySize)
}

// GetValue collects every live value stored under key, in probe order.
func (ht *HashTable[K, V]) GetValue(_ *txn.Transaction, key K) ([]V, error) {
	ht.tableLatch.RLock()
	defer ht.tableLatch.RUnlock()

	h, err := ht.fetchHeader()
	if err != nil {
		return nil, err
	}
	defer ht.bpm.UnpinPage(ht.headerPageID, false)

	start := ht.startSlot(key)
	blockIdx := start / ht.l.arraySize
	offset := start % ht.l.arraySize

	var result []V
	for blockIdx*ht.l.arraySize < int(ht.size) {
		span := ht.blockSpan(blockIdx)
		b, err := ht.fetchBlock(h, blockIdx)
		if err != nil {
			return nil, err
		}

		ht.blockLatches[blockIdx].RLock()
		b.page.RLatch()
		for offset < span && b.IsOccupied(offset) {
			if b.IsReadable(offset) && ht.cmp(key, b.KeyAt(offset)) == 0 {
				result = append(result, b.ValueAt(offset))
			}
			offset++
		}
		b.page.RUnlatch()
		ht.blockLatches[blockIdx].RUnlock()
		ht.bpm.UnpinPage(b.page.ID(), false)

		if offset < span {
			// Hit a never-written slot: the probe sequence ends here.
			break
		}
		if span < ht.l.arraySize {
			// Ran off the logical end of the table.
			break
		}
		blockIdx++
		offset = 0
	}
	return result, nil
}

// Insert stores a (key, value) pair. It reports false when the identical
// live pair already exists. When the probe runs off the logical end of the
// table, Insert releases the table latch, doubles the table, and retries.
func (ht *HashTable[K, V]) Insert(_ *txn.Transaction, key K, value V) (bool, error) {
	for {
		ht.tableLatch.RLock()
		h, err := ht.fetchHeader()
		if err != nil {
			ht.tableLatch.RUnlock()
			return false, err
		}
		ok, needsResize, err := ht.probeInsert(h, key, value)
		ht.bpm.UnpinPage(ht.headerPageID, false)
		oldSize := ht.size
		ht.tableLatch.RUnlock()

		if err != nil {
			return false, err
		}
		if !needsResize {
			return ok, nil
		}
		if err := ht.Resize(oldSize); err != nil {
			return false, err
		}
	}
}

// probeInsert walks the probe sequence under block write latches. It reports
// needsResize when every logical slot from the key's home position on is
// occupied. Caller holds the table latch (shared or exclusive) and the
// header pin.
func (ht *HashTable[K, V]) probeInsert(h headerPage, key K, value V) (ok, needsResize bool, err error) {
	start := ht.startSlot(key)
	blockIdx := start / ht.l.arraySize
	offset := start % ht.l.arraySize

	for blockIdx*ht.l.arraySize < int(ht.size) {
		span := ht.blockSpan(blockIdx)
		b, err := ht.fetchBlock(h, blockIdx)
		if err != nil {
			return false, false, err
		}

		lt := ht.blockLatches[blockIdx]
		lt.Lock()
		b.page.WLatch()
		for offset < span && b.IsOccupied(offset) {
			if b.IsReadable(offset) && ht.cmp(key, b.KeyAt(offset)) == 0 && value == b.ValueAt(offset) {
				// duplicated key-value pair
				b.page.WUnlatch()
				lt.Unlock()
				ht.bpm.UnpinPage(b.page.ID(), false)
				return false, false, nil
			}
			offset++
		}
		if offset < span {
			b.Insert(offset, key, value)
			b.page.WUnlatch()
			lt.Unlock()
			ht.bpm.UnpinPage(b.page.ID(), true)
			return true, false, nil
		}
		b.page.WUnlatch()
		lt.Unlock()
		ht.bpm.UnpinPage(b.page.ID(), false)

		if span < ht.l.arraySize {
			break
		}
		blockIdx++
		offset = 0
	}

	// Every slot from the home position to the logical end is occupied.
	return false, true, nil
}

// Remove tombstones one live (key, value) pair. It reports false when no
// such pair is live.
func (ht *HashTable[K, V]) Remove(_ *txn.Transaction, key K, value V) (bool, error) {
	ht.tableLatch.RLock()
	defer ht.tableLatch.RUnlock()

	h, err := ht.fetchHeader()
	if err != nil {
		return false, err
	}
	defer ht.bpm.UnpinPage(ht.headerPageID, false)

	start := ht.startSlot(key)
	blockIdx := start / ht.l.arraySize
	offset := start % ht.l.arraySize

	for blockIdx*ht.l.arraySize < int(ht.size) {
		span := ht.blockSpan(blockIdx)
		b, err := ht.fetchBlock(h, blockIdx)
		if err != nil {
			return false, err
		}

		removed := false
		lt := ht.blockLatches[blockIdx]
		lt.Lock()
		b.page.WLatch()
		for offset < span && b.IsOccupied(offset) {
			if b.IsReadable(offset) && ht.cmp(key, b.KeyAt(offset)) == 0 && value == b.ValueAt(offset) {
				b.Remove(offset)
				removed = true
				break
			}
			offset++
		}
		b.page.WUnlatch()
		lt.Unlock()
		ht.bpm.UnpinPage(b.page.ID(), removed)

		if removed {
			return true, nil
		}
		if offset < span || span < ht.l.arraySize {
			break
		}
		blockIdx++
		offset = 0
	}
	return false, nil
}

// Resize doubles the table: it snapshots every live pair, clears every block
// back to empty, grows the block list, and re-inserts. oldSize is the size
// the caller observed; if another thread already grew the table past it,
// Resize is a no-op and the caller simply retries its insert.
func (ht *HashTable[K, V]) Resize(oldSize uint64) error {
	ht.tableLatch.Lock()
	defer ht.tableLatch.Unlock()

	if ht.size != oldSize {
		return nil
	}

	h, err := ht.fetchHeader()
	if err != nil {
		return err
	}
	defer ht.bpm.UnpinPage(ht.headerPageID, true)

	// Snapshot all live pairs and return every slot to empty. Tombstones die
	// here; that is what keeps the load factor meaningful after removes.
	var pairs []pair[K, V]
	for i := range h.NumBlocks() {
		b, err := ht.fetchBlock(h, i)
		if err != nil {
			return err
		}
		ht.blockLatches[i].Lock()
		b.page.WLatch()
		for off := range ht.l.arraySize {
			if b.IsReadable(off) {
				pairs = append(pairs, pair[K, V]{key: b.KeyAt(off), value: b.ValueAt(off)})
			}
		}
		b.Reset()
		b.page.WUnlatch()
		ht.blockLatches[i].Unlock()
		ht.bpm.UnpinPage(b.page.ID(), true)
	}

	if err := ht.grow(h); err != nil {
		return err
	}

	for _, pr := range pairs {
		for {
			_, needsResize, err := ht.probeInsert(h, pr.key, pr.value)
			if err != nil {
				return err
			}
			if !needsResize {
				break
			}
			if err := ht.grow(h); err != nil {
				return err
			}
		}
	}
	return nil
}

// grow doubles the logical size, allocates block pages up to
// size/blockArraySize + 1, and rebuilds the block latch vector.
// Caller holds the table latch exclusive and the header pin.
func (ht *HashTable[K, V]) grow(h headerPage) error {
	ht.size *= 2
	h.SetSize(ht.size)

	numBlocks := int(ht.size)/ht.l.arraySize + 1
	for i := h.NumBlocks(); i < numBlocks; i++ {
		bp, err := ht.bpm.NewPage()
		if err != nil {
			return fmt.Errorf("hashindex: allocate block page: %w", err)
		}
		h.AddBlockPageID(bp.ID())
		ht.bpm.UnpinPage(bp.ID(), false)
	}
	ht.blockLatches = newBlockLatches(numBlocks)
	return nil
}
