package hashindex

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuanvm/hazeldb/internal/bufferpool"
	"github.com/tuanvm/hazeldb/internal/catalog"
	"github.com/tuanvm/hazeldb/internal/storage"
)

// identHash keeps bucket placement predictable: key k lands on slot
// k mod size.
func identHash(k uint64) uint64 { return k }

// newTestPool builds a buffer pool over a temp directory with page 0
// reserved for the master record table.
func newTestPool(t *testing.T, poolSize int) (*bufferpool.Manager, storage.LocalFileSet) {
	t.Helper()

	fs := storage.LocalFileSet{Dir: t.TempDir(), Base: "idx"}
	pool := newPoolOver(t, fs, poolSize)

	master, err := pool.NewPage()
	require.NoError(t, err)
	require.Equal(t, MasterPageID, master.ID())
	pool.UnpinPage(master.ID(), true)

	return pool, fs
}

func newPoolOver(t *testing.T, fs storage.LocalFileSet, poolSize int) *bufferpool.Manager {
	t.Helper()

	disk, err := storage.NewDiskManager(fs)
	require.NoError(t, err)
	return bufferpool.NewManager(poolSize, disk, nil)
}

func newTestIndex(t *testing.T, name string, buckets uint64) (*HashTable[uint64, uint64], *bufferpool.Manager) {
	t.Helper()

	pool, _ := newTestPool(t, 16)
	ht, err := New[uint64, uint64](name, pool, CompareUint64, buckets, identHash, Uint64Codec{}, Uint64Codec{})
	require.NoError(t, err)
	return ht, pool
}

func TestHashTable_InsertGet_GrowsUnderLoad(t *testing.T) {
	ht, _ := newTestIndex(t, "load", 16)

	for k := uint64(1); k <= 100; k++ {
		ok, err := ht.Insert(nil, k, k)
		require.NoError(t, err)
		require.True(t, ok, "key %d", k)
	}

	// 100 keys cannot fit in 16, 32 or 64 buckets: at least two doublings.
	require.GreaterOrEqual(t, ht.Size(), uint64(64))

	for k := uint64(1); k <= 100; k++ {
		vals, err := ht.GetValue(nil, k)
		require.NoError(t, err)
		require.Equal(t, []uint64{k}, vals)
	}
}

func TestHashTable_TombstoneKeepsProbeChain(t *testing.T) {
	ht, _ := newTestIndex(t, "tomb", 16)

	// Key 26 hashes to the same bucket as 10 and lands one slot later.
	ok, err := ht.Insert(nil, 10, 100)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = ht.Insert(nil, 26, 200)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = ht.Remove(nil, 10, 100)
	require.NoError(t, err)
	require.True(t, ok)

	// The tombstone must keep the probe to 26 alive.
	vals, err := ht.GetValue(nil, 26)
	require.NoError(t, err)
	require.Equal(t, []uint64{200}, vals)

	vals, err = ht.GetValue(nil, 10)
	require.NoError(t, err)
	require.Empty(t, vals)
}

func TestHashTable_DuplicatePairRejected(t *testing.T) {
	ht, _ := newTestIndex(t, "dup", 16)

	ok, err := ht.Insert(nil, 5, 55)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = ht.Insert(nil, 5, 55)
	require.NoError(t, err)
	require.False(t, ok)

	vals, err := ht.GetValue(nil, 5)
	require.NoError(t, err)
	require.Equal(t, []uint64{55}, vals)
}

func TestHashTable_SameKeyManyValues(t *testing.T) {
	ht, _ := newTestIndex(t, "multi", 16)

	for _, v := range []uint64{7, 8, 9} {
		ok, err := ht.Insert(nil, 3, v)
		require.NoError(t, err)
		require.True(t, ok)
	}

	// Values come back in probe (insertion) order.
	vals, err := ht.GetValue(nil, 3)
	require.NoError(t, err)
	require.Equal(t, []uint64{7, 8, 9}, vals)

	ok, err := ht.Remove(nil, 3, 8)
	require.NoError(t, err)
	require.True(t, ok)

	vals, err = ht.GetValue(nil, 3)
	require.NoError(t, err)
	require.Equal(t, []uint64{7, 9}, vals)
}

func TestHashTable_RemoveMissing(t *testing.T) {
	ht, _ := newTestIndex(t, "rm", 16)

	ok, err := ht.Remove(nil, 1, 1)
	require.NoError(t, err)
	require.False(t, ok)

	okIns, err := ht.Insert(nil, 1, 1)
	require.NoError(t, err)
	require.True(t, okIns)

	// Right key, wrong value.
	ok, err = ht.Remove(nil, 1, 2)
	require.NoError(t, err)
	require.False(t, ok)

	// Removing a tombstoned pair again fails.
	ok, err = ht.Remove(nil, 1, 1)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = ht.Remove(nil, 1, 1)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHashTable_ResizeAtLogicalEnd(t *testing.T) {
	ht, _ := newTestIndex(t, "grow", 4)

	for k := uint64(0); k < 4; k++ {
		ok, err := ht.Insert(nil, k, k)
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.Equal(t, uint64(4), ht.Size())

	// Slot 3 is taken and is the logical end: this insert must double.
	ok, err := ht.Insert(nil, 3, 33)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(8), ht.Size())

	for k := uint64(0); k < 4; k++ {
		vals, err := ht.GetValue(nil, k)
		require.NoError(t, err)
		require.Contains(t, vals, k)
	}
	vals, err := ht.GetValue(nil, 3)
	require.NoError(t, err)
	require.ElementsMatch(t, []uint64{3, 33}, vals)
}

func TestHashTable_ProbeCrossesBlockBoundary(t *testing.T) {
	// More buckets than one block holds, so the logical array spans blocks.
	as := uint64(layoutFor(16).arraySize)
	buckets := as * 2

	pool, _ := newTestPool(t, 16)
	ht, err := New[uint64, uint64]("span", pool, CompareUint64, buckets, identHash, Uint64Codec{}, Uint64Codec{})
	require.NoError(t, err)

	last := as - 1 // final slot of block 0
	ok, err := ht.Insert(nil, last, 1)
	require.NoError(t, err)
	require.True(t, ok)

	// Collides into block 0's last slot, probes into block 1.
	ok, err = ht.Insert(nil, last+buckets, 2)
	require.NoError(t, err)
	require.True(t, ok)

	vals, err := ht.GetValue(nil, last+buckets)
	require.NoError(t, err)
	require.Equal(t, []uint64{2}, vals)

	ok, err = ht.Remove(nil, last+buckets, 2)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestHashTable_RegistersInMasterPage(t *testing.T) {
	ht, pool := newTestIndex(t, "registered", 16)

	master, err := pool.FetchPage(MasterPageID)
	require.NoError(t, err)
	id, ok := catalog.Master(master).GetRecord("registered")
	pool.UnpinPage(MasterPageID, false)

	require.True(t, ok)
	require.Equal(t, ht.HeaderPageID(), id)
}

func TestHashTable_DuplicateNameRejected(t *testing.T) {
	_, pool := newTestIndex(t, "taken", 16)

	_, err := New[uint64, uint64]("taken", pool, CompareUint64, 16, identHash, Uint64Codec{}, Uint64Codec{})
	require.ErrorIs(t, err, ErrIndexExists)
}

func TestHashTable_ZeroBucketsRejected(t *testing.T) {
	pool, _ := newTestPool(t, 16)

	_, err := New[uint64, uint64]("zero", pool, CompareUint64, 0, identHash, Uint64Codec{}, Uint64Codec{})
	require.ErrorIs(t, err, ErrZeroBuckets)
}

func TestHashTable_OpenSeesPersistedState(t *testing.T) {
	fs := storage.LocalFileSet{Dir: t.TempDir(), Base: "idx"}
	pool := newPoolOver(t, fs, 16)

	master, err := pool.NewPage()
	require.NoError(t, err)
	pool.UnpinPage(master.ID(), true)

	ht, err := New[uint64, uint64]("persisted", pool, CompareUint64, 16, identHash, Uint64Codec{}, Uint64Codec{})
	require.NoError(t, err)
	for k := uint64(1); k <= 40; k++ {
		ok, err := ht.Insert(nil, k, k*2)
		require.NoError(t, err)
		require.True(t, ok)
	}
	grownTo := ht.Size()
	pool.FlushAllPages()

	// A cold pool over the same files sees the same table.
	pool2 := newPoolOver(t, fs, 16)
	reopened, err := Open[uint64, uint64]("persisted", pool2, CompareUint64, identHash, Uint64Codec{}, Uint64Codec{})
	require.NoError(t, err)
	require.Equal(t, grownTo, reopened.Size())

	for k := uint64(1); k <= 40; k++ {
		vals, err := reopened.GetValue(nil, k)
		require.NoError(t, err)
		require.Equal(t, []uint64{k * 2}, vals)
	}

	_, err = Open[uint64, uint64]("missing", pool2, CompareUint64, identHash, Uint64Codec{}, Uint64Codec{})
	require.ErrorIs(t, err, ErrIndexNotFound)
}

func TestHashTable_ConcurrentInserts(t *testing.T) {
	pool, _ := newTestPool(t, 16)
	kc := Uint64Codec{}
	ht, err := New[uint64, uint64]("conc", pool, CompareUint64, 16, XXHash[uint64](kc), kc, Uint64Codec{})
	require.NoError(t, err)

	const workers = 8
	const perWorker = 50

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := range workers {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			base := uint64(w * perWorker)
			for i := uint64(0); i < perWorker; i++ {
				k := base + i
				if _, err := ht.Insert(nil, k, k+1); err != nil {
					errs <- err
					return
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for k := uint64(0); k < workers*perWorker; k++ {
		vals, err := ht.GetValue(nil, k)
		require.NoError(t, err)
		require.Equal(t, []uint64{k + 1}, vals)
	}
}
