package memkv

import (
	"context"
	"encoding/binary"

	"github.com/ledgerwatch/recordlayer/kv"
)

// Directory is the in-memory implementation of kv.DirectoryAllocator,
// per spec.md §6: a logical path (literal and dynamic elements, plus a
// layer tag) maps to a compact byte prefix, allocated once on first
// use. Grounded on the teacher's bucket-name-to-prefix idiom
// (common/dbutils) generalized from a static compile-time table to a
// runtime allocator, since record-store subspaces are created
// dynamically per schema rather than known at compile time.
type Directory struct {
	db *DB
}

// NewDirectory returns a directory allocator backed by db's own
// key-value storage (table "__directory"), so prefix allocations are
// transactional and durable alongside everything else.
func NewDirectory(db *DB) *Directory {
	return &Directory{db: db}
}

const directoryTable = "__directory"

func pathKey(path []kv.PathElement, layer kv.DirectoryLayer) string {
	key := []byte{byte(layer)}
	for _, e := range path {
		if e.IsDynamic {
			key = append(key, 0x01)
			key = append(key, e.Dynamic...)
		} else {
			key = append(key, 0x00)
			key = append(key, []byte(e.Literal)...)
		}
		key = append(key, 0xFF)
	}
	return string(key)
}

// Open allocates (or returns the existing) byte prefix for path under
// layer.
func (d *Directory) Open(ctx context.Context, path []kv.PathElement, layer kv.DirectoryLayer) ([]byte, error) {
	pk := []byte(pathKey(path, layer))
	var prefix []byte
	err := d.db.Update(ctx, func(tx kv.RwTx) error {
		if v, ok, err := tx.Get(directoryTable, pk); err != nil {
			return err
		} else if ok {
			prefix = v
			return nil
		}
		n, err := tx.AddInt64(directoryTable, []byte("__next_id"), 1)
		if err != nil {
			return err
		}
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, uint32(n))
		prefix = buf
		return tx.Put(directoryTable, pk, prefix)
	})
	if err != nil {
		return nil, err
	}
	return prefix, nil
}
