package index

import (
	"github.com/ledgerwatch/recordlayer/kv"
	"github.com/ledgerwatch/recordlayer/schema"
	"github.com/ledgerwatch/recordlayer/tuple"
)

// RankMaintainer implements spec.md §4.G's rank index: entries keyed
// by (group, value, primary_key) in the KV store, so rank-of-value and
// value-of-rank queries can walk a bounded range instead of scanning
// the whole group. The KV entries are the sole authority; an
// in-process ordering cache was tried and dropped (see DESIGN.md's
// dropped-dependency ledger) since it never fed RankOfValue and
// GoLLRB's plain red-black tree doesn't support the rank/order-
// statistics query this index actually needs without custom
// augmentation.
type RankMaintainer struct{}

func rankGroupAndValue(def schema.IndexDefinition, values []tuple.Value) (group, value tuple.Tuple) {
	if len(values) == 0 {
		return nil, nil
	}
	return values[:len(values)-1], values[len(values)-1:]
}

func (m RankMaintainer) ApplyInsert(tx kv.RwTx, subspace tuple.Subspace, def schema.IndexDefinition, d Delta) error {
	group, value := rankGroupAndValue(def, d.NewValues)
	key := entryKey(subspace, def.SubspaceKey, append(append(tuple.Tuple{}, group...), value...), d.PrimaryKey)
	return tx.Put(tableName(subspace), key, []byte{})
}

func (m RankMaintainer) ApplyUpdate(tx kv.RwTx, subspace tuple.Subspace, def schema.IndexDefinition, d Delta) error {
	if valuesEqual(d.OldValues, d.NewValues) {
		return nil
	}
	if err := m.ApplyDelete(tx, subspace, def, Delta{PrimaryKey: d.PrimaryKey, OldValues: d.OldValues}); err != nil {
		return err
	}
	return m.ApplyInsert(tx, subspace, def, Delta{PrimaryKey: d.PrimaryKey, NewValues: d.NewValues})
}

func (m RankMaintainer) ApplyDelete(tx kv.RwTx, subspace tuple.Subspace, def schema.IndexDefinition, d Delta) error {
	group, value := rankGroupAndValue(def, d.OldValues)
	key := entryKey(subspace, def.SubspaceKey, append(append(tuple.Tuple{}, group...), value...), d.PrimaryKey)
	return tx.Delete(tableName(subspace), key)
}

// RankOfValue returns the zero-based rank of the first entry at or
// above value within group, by counting KV entries strictly below it.
func RankOfValue(tx kv.RwTx, subspace tuple.Subspace, def schema.IndexDefinition, group tuple.Tuple, value tuple.Tuple) (int64, error) {
	prefix := make(tuple.Tuple, 0, 2+len(group))
	prefix = append(prefix, tuple.Int(3), tuple.Int(int64(def.SubspaceKey)))
	prefix = append(prefix, group...)
	begin := subspace.Pack(prefix)
	end := subspace.Pack(append(append(tuple.Tuple{}, prefix...), value...))

	it, err := tx.Range(tableName(subspace), begin, end)
	if err != nil {
		return 0, err
	}
	defer it.Close()
	var rank int64
	for it.Next() {
		rank++
	}
	return rank, it.Err()
}
