// Package rangeset implements the persistent, coalescing set of
// non-overlapping `[begin, end)` byte ranges spec.md §4.H uses as
// progress state for the online indexer: keyspace 6 of a record
// store's subspace, key `(index_name, begin_bytes) -> end_bytes`.
// Grounded on the teacher's bitmap progress files
// (`ethdb/bitmapdb`/`common/etl`), generalized from a bitmap of
// already-processed block numbers to an ordered set of byte-key
// ranges, since this module's progress markers are primary keys, not
// integers.
package rangeset

import (
	"bytes"
	"sort"

	"github.com/ledgerwatch/recordlayer/kv"
	"github.com/ledgerwatch/recordlayer/tuple"
)

// Manager reads and writes a coalescing range set at keyspace 6 of a
// record store's subspace, scoped per index name.
type Manager struct {
	subspace tuple.Subspace
	table    string
}

// New returns a range-set manager scoped to recordStoreSubspace.
func New(recordStoreSubspace tuple.Subspace, table string) *Manager {
	return &Manager{subspace: recordStoreSubspace.Sub(tuple.Int(6)), table: table}
}

type interval struct {
	begin, end []byte
}

func (m *Manager) prefix(indexName string) tuple.Subspace {
	return m.subspace.Sub(tuple.String(indexName))
}

func (m *Manager) key(indexName string, begin []byte) []byte {
	return m.prefix(indexName).Pack(tuple.Tuple{tuple.Bytes(begin)})
}

// Ranges returns every stored range for indexName, ascending by begin.
func (m *Manager) Ranges(tx kv.Tx, indexName string) ([]interval, error) {
	sub := m.prefix(indexName)
	begin, end := sub.Range()
	it, err := tx.Range(m.table, begin, end)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []interval
	for it.Next() {
		t, err := sub.Unpack(it.Key())
		if err != nil {
			return nil, err
		}
		out = append(out, interval{begin: t[0].AsBytes(), end: append([]byte{}, it.Value()...)})
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Add records [begin, end) as built for indexName, merging it with any
// existing ranges it touches or overlaps.
func (m *Manager) Add(tx kv.RwTx, indexName string, begin, end []byte) error {
	existing, err := m.Ranges(tx, indexName)
	if err != nil {
		return err
	}
	merged := coalesce(append(existing, interval{begin: begin, end: end}))

	for _, iv := range existing {
		if err := tx.Delete(m.table, m.key(indexName, iv.begin)); err != nil {
			return err
		}
	}
	for _, iv := range merged {
		if err := tx.Put(m.table, m.key(indexName, iv.begin), iv.end); err != nil {
			return err
		}
	}
	return nil
}

// coalesce sorts ivs by begin and merges any that overlap or touch
// (iv[i].end >= iv[i+1].begin).
func coalesce(ivs []interval) []interval {
	if len(ivs) == 0 {
		return nil
	}
	sort.Slice(ivs, func(i, j int) bool { return bytes.Compare(ivs[i].begin, ivs[j].begin) < 0 })
	out := []interval{ivs[0]}
	for _, iv := range ivs[1:] {
		last := &out[len(out)-1]
		if bytes.Compare(iv.begin, last.end) <= 0 {
			if bytes.Compare(iv.end, last.end) > 0 {
				last.end = iv.end
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

// Frontier returns the end of the maximal contiguous range starting
// exactly at keyspaceBegin — the point spec.md §4.H's "resume from the
// last successful range's end key" names. ok is false if nothing
// covers keyspaceBegin yet, meaning the build should resume from
// keyspaceBegin itself.
func (m *Manager) Frontier(tx kv.Tx, indexName string, keyspaceBegin []byte) (frontier []byte, ok bool, err error) {
	ranges, err := m.Ranges(tx, indexName)
	if err != nil {
		return nil, false, err
	}
	merged := coalesce(ranges)
	for _, iv := range merged {
		if bytes.Equal(iv.begin, keyspaceBegin) {
			return iv.end, true, nil
		}
	}
	return nil, false, nil
}

// Covers reports whether [begin, end) is entirely covered by the
// union of stored ranges for indexName — spec.md §4.H's "RangeSet
// covers the whole keyspace" completion check, applied to an arbitrary
// sub-range.
func (m *Manager) Covers(tx kv.Tx, indexName string, begin, end []byte) (bool, error) {
	ranges, err := m.Ranges(tx, indexName)
	if err != nil {
		return false, err
	}
	merged := coalesce(ranges)
	cursor := begin
	for _, iv := range merged {
		if bytes.Compare(iv.begin, cursor) > 0 {
			return false, nil
		}
		if bytes.Compare(iv.end, cursor) > 0 {
			cursor = iv.end
		}
		if bytes.Compare(cursor, end) >= 0 {
			return true, nil
		}
	}
	return bytes.Compare(cursor, end) >= 0, nil
}
