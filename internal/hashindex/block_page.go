package hashindex

import (
	"log/slog"

	"github.com/tuanvm/hazeldb/internal/storage"
)

// blockLayout fixes where the two bitmaps and the pair array live for a
// given key+value width. All blocks of one table share a layout.
type blockLayout struct {
	arraySize int // slots per block
	pairWidth int // encoded key + value bytes
	bitmapLen int // bytes per bitmap
}

// layoutFor picks the largest slot count such that both bitmaps and the
// pair array fit in one page.
func layoutFor(pairWidth int) blockLayout {
	n := storage.PageSize * 8 / (pairWidth*8 + 2)
	for 2*((n+7)/8)+n*pairWidth > storage.PageSize {
		n--
	}
	return blockLayout{
		arraySize: n,
		pairWidth: pairWidth,
		bitmapLen: (n + 7) / 8,
	}
}

// Block page layout:
//
//	occupied bitmap   [bitmapLen]byte   slot was ever written
//	readable bitmap   [bitmapLen]byte   slot holds a live pair
//	pairs             [arraySize]{key, value}
//
// occupied=1, readable=0 is a tombstone: it keeps probe sequences intact
// after a remove.
type blockPage[K any, V any] struct {
	page *storage.Page
	l    blockLayout
	kc   Codec[K]
	vc   Codec[V]
}

func (b blockPage[K, V]) occupied() []byte {
	return b.page.Data()[:b.l.bitmapLen]
}

func (b blockPage[K, V]) readable() []byte {
	return b.page.Data()[b.l.bitmapLen : 2*b.l.bitmapLen]
}

func (b blockPage[K, V]) pairAt(i int) []byte {
	off := 2*b.l.bitmapLen + i*b.l.pairWidth
	return b.page.Data()[off : off+b.l.pairWidth]
}

func (b blockPage[K, V]) boundCheck(i int) bool {
	if i < 0 || i >= b.l.arraySize {
		slog.Warn("hashindex: slot offset out of range", "offset", i, "array_size", b.l.arraySize)
		return false
	}
	return true
}

func (b blockPage[K, V]) IsOccupied(i int) bool {
	if !b.boundCheck(i) {
		return false
	}
	return bitGet(b.occupied(), i)
}

func (b blockPage[K, V]) IsReadable(i int) bool {
	if !b.boundCheck(i) {
		return false
	}
	return bitGet(b.readable(), i)
}

func (b blockPage[K, V]) KeyAt(i int) K {
	if !b.boundCheck(i) {
		var zero K
		return zero
	}
	return b.kc.Get(b.pairAt(i))
}

func (b blockPage[K, V]) ValueAt(i int) V {
	if !b.boundCheck(i) {
		var zero V
		return zero
	}
	return b.vc.Get(b.pairAt(i)[b.kc.Width():])
}

// Insert writes a pair into slot i. It refuses occupied slots; tombstones
// stay dead until a resize sweeps them away.
func (b blockPage[K, V]) Insert(i int, key K, value V) bool {
	if !b.boundCheck(i) {
		return false
	}
	if bitGet(b.occupied(), i) {
		return false
	}
	pair := b.pairAt(i)
	b.kc.Put(pair, key)
	b.vc.Put(pair[b.kc.Width():], value)
	bitSet(b.occupied(), i)
	bitSet(b.readable(), i)
	return true
}

// Remove turns slot i into a tombstone.
func (b blockPage[K, V]) Remove(i int) {
	if !b.boundCheck(i) {
		return
	}
	bitClear(b.readable(), i)
}

// Reset returns every slot to empty.
func (b blockPage[K, V]) Reset() {
	b.page.Reset()
}

func bitGet(bm []byte, i int) bool {
	return bm[i/8]&(1<<(i%8)) != 0
}

func bitSet(bm []byte, i int) {
	bm[i/8] |= 1 << (i % 8)
}

func bitClear(bm []byte, i int) {
	bm[i/8] &^= 1 << (i % 8)
}
