package hashindex

import (
	"github.com/cespare/xxhash/v2"

	"github.com/tuanvm/hazeldb/internal/bx"
)

// Codec encodes fixed-width values into page bytes. Block pages store keys
// and values back to back at Width-sized strides, little-endian.
type Codec[T any] interface {
	Width() int
	Put(dst []byte, v T)
	Get(src []byte) T
}

// Comparator orders keys; it returns 0 when the keys are equal.
type Comparator[K any] func(a, b K) int

// HashFunc maps a key to the hash that selects its home bucket.
type HashFunc[K any] func(key K) uint64

type Uint64Codec struct{}

func (Uint64Codec) Width() int               { return 8 }
func (Uint64Codec) Put(dst []byte, v uint64) { bx.PutU64(dst, v) }
func (Uint64Codec) Get(src []byte) uint64    { return bx.U64(src) }

type Uint32Codec struct{}

func (Uint32Codec) Width() int               { return 4 }
func (Uint32Codec) Put(dst []byte, v uint32) { bx.PutU32(dst, v) }
func (Uint32Codec) Get(src []byte) uint32    { return bx.U32(src) }

func CompareUint64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// XXHash builds the default HashFunc: xxhash over the codec's encoding of
// the key.
func XXHash[K any](c Codec[K]) HashFunc[K] {
	return func(key K) uint64 {
		buf := make([]byte, c.Width())
		c.Put(buf, key)
		return xxhash.Sum64(buf)
	}
}
