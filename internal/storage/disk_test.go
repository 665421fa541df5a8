package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestDiskManager(t *testing.T) *DiskManager {
	t.Helper()

	fs := LocalFileSet{Dir: t.TempDir(), Base: "testdb"}
	dm, err := NewDiskManager(fs)
	require.NoError(t, err)
	return dm
}

func TestDiskManager_WriteReadRoundTrip(t *testing.T) {
	dm := newTestDiskManager(t)

	id := dm.AllocatePage()
	src := make([]byte, PageSize)
	src[0] = 0xAB
	src[PageSize-1] = 0xCD
	require.NoError(t, dm.WritePage(id, src))

	dst := make([]byte, PageSize)
	require.NoError(t, dm.ReadPage(id, dst))
	require.Equal(t, src, dst)
}

func TestDiskManager_ReadBeyondEOF_ZeroFills(t *testing.T) {
	dm := newTestDiskManager(t)

	id := dm.AllocatePage()
	dst := make([]byte, PageSize)
	dst[10] = 0xFF // stale bytes must be overwritten
	require.NoError(t, dm.ReadPage(id, dst))
	for i, b := range dst {
		require.Zero(t, b, "byte %d", i)
	}
}

func TestDiskManager_WrongBufferSize(t *testing.T) {
	dm := newTestDiskManager(t)

	id := dm.AllocatePage()
	require.Error(t, dm.ReadPage(id, make([]byte, PageSize-1)))
	require.Error(t, dm.WritePage(id, make([]byte, PageSize+1)))
}

func TestDiskManager_AllocateMonotonic(t *testing.T) {
	dm := newTestDiskManager(t)

	require.Equal(t, PageID(0), dm.AllocatePage())
	require.Equal(t, PageID(1), dm.AllocatePage())
	require.Equal(t, PageID(2), dm.AllocatePage())
	require.Equal(t, 3, dm.AllocationCount())
}

func TestDiskManager_DeallocateReusesID(t *testing.T) {
	dm := newTestDiskManager(t)

	a := dm.AllocatePage()
	b := dm.AllocatePage()
	dm.DeallocatePage(a)

	// The freed id comes back before the sequence grows.
	require.Equal(t, a, dm.AllocatePage())
	require.Equal(t, PageID(2), dm.AllocatePage())
	_ = b
}

func TestDiskManager_DeallocateTwice_NoOp(t *testing.T) {
	dm := newTestDiskManager(t)

	a := dm.AllocatePage()
	dm.DeallocatePage(a)
	dm.DeallocatePage(a)

	require.Equal(t, a, dm.AllocatePage())
	require.Equal(t, PageID(1), dm.AllocatePage())
}

func TestDiskManager_DeallocateUnknown_NoOp(t *testing.T) {
	dm := newTestDiskManager(t)

	dm.DeallocatePage(-1)
	dm.DeallocatePage(99)
	require.Equal(t, PageID(0), dm.AllocatePage())
}

func TestDiskManager_ReusedIDReadsAsZeroesUntilWritten(t *testing.T) {
	dm := newTestDiskManager(t)

	id := dm.AllocatePage()
	stale := make([]byte, PageSize)
	stale[0] = 0xEE
	require.NoError(t, dm.WritePage(id, stale))
	dm.DeallocatePage(id)

	// The old bytes must not leak into the id's next life.
	require.Equal(t, id, dm.AllocatePage())
	dst := make([]byte, PageSize)
	require.NoError(t, dm.ReadPage(id, dst))
	require.Zero(t, dst[0])

	fresh := make([]byte, PageSize)
	fresh[0] = 0x11
	require.NoError(t, dm.WritePage(id, fresh))
	require.NoError(t, dm.ReadPage(id, dst))
	require.Equal(t, byte(0x11), dst[0])
}

func TestDiskManager_ReadDeallocatedPageFails(t *testing.T) {
	dm := newTestDiskManager(t)

	id := dm.AllocatePage()
	require.NoError(t, dm.WritePage(id, make([]byte, PageSize)))
	dm.DeallocatePage(id)

	err := dm.ReadPage(id, make([]byte, PageSize))
	require.ErrorIs(t, err, ErrPageDeallocated)
}

func TestDiskManager_ReopenContinuesSequence(t *testing.T) {
	fs := LocalFileSet{Dir: t.TempDir(), Base: "testdb"}
	dm, err := NewDiskManager(fs)
	require.NoError(t, err)

	id0 := dm.AllocatePage()
	id1 := dm.AllocatePage()
	buf := make([]byte, PageSize)
	buf[0] = 1
	require.NoError(t, dm.WritePage(id0, buf))
	require.NoError(t, dm.WritePage(id1, buf))

	reopened, err := NewDiskManager(fs)
	require.NoError(t, err)
	require.Equal(t, PageID(2), reopened.NextPageID())
	require.Equal(t, PageID(2), reopened.AllocatePage())
}
