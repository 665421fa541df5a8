package hazeldb

import (
	"errors"

	"github.com/tuanvm/hazeldb/internal/hashindex"
)

// Uint64Index is the common instantiation: 8-byte keys and values, xxhash
// bucket selection.
type Uint64Index = hashindex.HashTable[uint64, uint64]

// CreateUint64Index builds a new linear-probe hash index registered under
// name, or attaches to it when it already exists.
func CreateUint64Index(db *Database, name string, buckets uint64) (*Uint64Index, error) {
	kc := hashindex.Uint64Codec{}
	vc := hashindex.Uint64Codec{}
	hash := hashindex.XXHash[uint64](kc)

	idx, err := hashindex.New[uint64, uint64](name, db.Pool(), hashindex.CompareUint64, buckets, hash, kc, vc)
	if errors.Is(err, hashindex.ErrIndexExists) {
		return hashindex.Open[uint64, uint64](name, db.Pool(), hashindex.CompareUint64, hash, kc, vc)
	}
	return idx, err
}
