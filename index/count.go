package index

import (
	"encoding/binary"

	"github.com/ledgerwatch/recordlayer/kv"
	"github.com/ledgerwatch/recordlayer/schema"
	"github.com/ledgerwatch/recordlayer/tuple"
)

// CountMaintainer implements spec.md §4.G's count index: grouping key
// is the root-expression prefix, value a counter maintained via the
// KV store's atomic add. Insert/delete perform +1/-1; update with an
// unchanged group is a no-op, a changed group decrements the old
// group and increments the new one.
type CountMaintainer struct{}

func (CountMaintainer) ApplyInsert(tx kv.RwTx, subspace tuple.Subspace, def schema.IndexDefinition, d Delta) error {
	return bumpGroup(tx, subspace, def, d.NewValues, 1)
}

func (CountMaintainer) ApplyUpdate(tx kv.RwTx, subspace tuple.Subspace, def schema.IndexDefinition, d Delta) error {
	if valuesEqual(d.OldValues, d.NewValues) {
		return nil
	}
	if err := bumpGroup(tx, subspace, def, d.OldValues, -1); err != nil {
		return err
	}
	return bumpGroup(tx, subspace, def, d.NewValues, 1)
}

func (CountMaintainer) ApplyDelete(tx kv.RwTx, subspace tuple.Subspace, def schema.IndexDefinition, d Delta) error {
	return bumpGroup(tx, subspace, def, d.OldValues, -1)
}

func bumpGroup(tx kv.RwTx, subspace tuple.Subspace, def schema.IndexDefinition, groupValues []tuple.Value, delta int64) error {
	key := groupKey(subspace, def.SubspaceKey, groupValues)
	_, err := tx.AddInt64(tableName(subspace), key, delta)
	return err
}

// readCounter reads the current value of a count/sum group, returning
// 0 if absent. Exposed for use by the statistics manager and tests;
// the wire encoding is little-endian int64 via protowire-style fixed
// framing on the value side (no order-preservation requirement here,
// unlike tuple keys).
func readCounter(tx kv.Tx, subspace tuple.Subspace, subspaceKey byte, groupValues []tuple.Value) (int64, error) {
	key := groupKey(subspace, subspaceKey, groupValues)
	v, ok, err := tx.Get(tableName(subspace), key)
	if err != nil || !ok {
		return 0, err
	}
	if len(v) < 8 {
		return 0, nil
	}
	return int64(binary.LittleEndian.Uint64(v)), nil
}

// ReadCount exposes the current grouped count for an index, used by
// consumers that need the aggregate directly (e.g. the statistics
// manager, or tests asserting end-to-end scenario 2 of spec.md §8).
func ReadCount(tx kv.Tx, subspace tuple.Subspace, def schema.IndexDefinition, groupValues []tuple.Value) (int64, error) {
	return readCounter(tx, subspace, def.SubspaceKey, groupValues)
}
