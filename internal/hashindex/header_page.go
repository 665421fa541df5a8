package hashindex

import (
	"log/slog"

	"github.com/tuanvm/hazeldb/internal/bx"
	"github.com/tuanvm/hazeldb/internal/storage"
)

// Header page layout:
//
//	pageID   i32
//	lsn      i32
//	size     u64   logical bucket count
//	nextInd  u64   number of block page ids in use
//	blocks   [maxBlockNum]i32
const (
	offHeaderPageID = 0
	offHeaderLSN    = 4
	offHeaderSize   = 8
	offHeaderNext   = 16
	offHeaderBlocks = 24

	maxBlockNum = (storage.PageSize - offHeaderBlocks) / 4
)

// headerPage is a view over the index's header page bytes. The caller owns
// the pin; mutations require the table latch discipline of the owning table.
type headerPage struct {
	page *storage.Page
}

func (h headerPage) PageID() storage.PageID {
	return storage.PageID(bx.I32At(h.page.Data(), offHeaderPageID))
}

func (h headerPage) SetPageID(id storage.PageID) {
	bx.PutI32At(h.page.Data(), offHeaderPageID, int32(id))
}

func (h headerPage) LSN() int32 {
	return bx.I32At(h.page.Data(), offHeaderLSN)
}

func (h headerPage) SetLSN(lsn int32) {
	bx.PutI32At(h.page.Data(), offHeaderLSN, lsn)
}

func (h headerPage) Size() uint64 {
	return bx.U64At(h.page.Data(), offHeaderSize)
}

func (h headerPage) SetSize(size uint64) {
	bx.PutU64At(h.page.Data(), offHeaderSize, size)
}

func (h headerPage) NumBlocks() int {
	return int(bx.U64At(h.page.Data(), offHeaderNext))
}

func (h headerPage) setNumBlocks(n int) {
	bx.PutU64At(h.page.Data(), offHeaderNext, uint64(n))
}

// AddBlockPageID appends a block page id to the header's list.
func (h headerPage) AddBlockPageID(id storage.PageID) bool {
	n := h.NumBlocks()
	if n >= maxBlockNum {
		slog.Warn("hashindex: header page is full", "blocks", n)
		return false
	}
	bx.PutI32At(h.page.Data(), offHeaderBlocks+4*n, int32(id))
	h.setNumBlocks(n + 1)
	return true
}

// BlockPageID returns the id of the i-th block page.
func (h headerPage) BlockPageID(i int) storage.PageID {
	if i < 0 || i >= h.NumBlocks() {
		slog.Warn("hashindex: block index out of range", "index", i, "blocks", h.NumBlocks())
		return storage.InvalidPageID
	}
	return storage.PageID(bx.I32At(h.page.Data(), offHeaderBlocks+4*i))
}
