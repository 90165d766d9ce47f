package index

import (
	"bytes"

	"github.com/ledgerwatch/recordlayer/kv"
	"github.com/ledgerwatch/recordlayer/schema"
	"github.com/ledgerwatch/recordlayer/tuple"
)

// minMaxEntriesTag distinguishes the per-record rows this maintainer
// keeps (one per group member, keyed so a group's entries sort by
// value then primary key) from the scalar extremum key groupKey packs
// under tag 3. Using a distinct leading tuple element keeps the two
// keyspaces from ever prefix-colliding, regardless of subspaceKey.
var minMaxEntriesTag = tuple.Int(8)

// MinMaxMaintainer implements spec.md §4.G's min/max index: a scalar
// extremum at (group_key) updated via the KV store's byte-min/byte-max
// atomic op on insert (a new record can only extend the extremum, never
// retract it), plus a per-record (group, value, primary_key) row so
// ApplyUpdate/ApplyDelete can re-derive the true extremum with a
// bounded range read over the group's remaining entries whenever the
// changed or deleted record held it — the KV layer has no atomic
// "recompute extremum from neighbors" primitive, so the maintainer
// must read it back itself, per spec.md §4.G's explicit fallback
// clause and the Open Question decision in DESIGN.md.
type MinMaxMaintainer struct {
	Min bool // true for min, false for max
}

func (m MinMaxMaintainer) extremumValue(def schema.IndexDefinition, values []tuple.Value) []tuple.Value {
	if len(values) == 0 {
		return nil
	}
	return values[len(values)-1:]
}

func minMaxEntryKey(subspace tuple.Subspace, subspaceKey byte, group, value []tuple.Value, pk tuple.Tuple) []byte {
	t := make(tuple.Tuple, 0, 2+len(group)+len(value)+len(pk))
	t = append(t, minMaxEntriesTag, tuple.Int(int64(subspaceKey)))
	t = append(t, group...)
	t = append(t, value...)
	t = append(t, pk...)
	return subspace.Pack(t)
}

func minMaxGroupPrefix(subspace tuple.Subspace, subspaceKey byte, group []tuple.Value) []byte {
	t := make(tuple.Tuple, 0, 2+len(group))
	t = append(t, minMaxEntriesTag, tuple.Int(int64(subspaceKey)))
	t = append(t, group...)
	return subspace.Pack(t)
}

func (m MinMaxMaintainer) ApplyInsert(tx kv.RwTx, subspace tuple.Subspace, def schema.IndexDefinition, d Delta) error {
	group := d.NewValues[:len(d.NewValues)-1]
	value := m.extremumValue(def, d.NewValues)
	entryKey := minMaxEntryKey(subspace, def.SubspaceKey, group, value, d.PrimaryKey)
	if err := tx.Put(tableName(subspace), entryKey, []byte{}); err != nil {
		return err
	}
	return m.applyExtreme(tx, subspace, def, group, tuple.Encode(value))
}

func (m MinMaxMaintainer) ApplyUpdate(tx kv.RwTx, subspace tuple.Subspace, def schema.IndexDefinition, d Delta) error {
	if valuesEqual(d.OldValues, d.NewValues) {
		return nil
	}
	oldGroup := d.OldValues[:len(d.OldValues)-1]
	oldValue := m.extremumValue(def, d.OldValues)
	newGroup := d.NewValues[:len(d.NewValues)-1]
	newValue := m.extremumValue(def, d.NewValues)

	oldKey := minMaxEntryKey(subspace, def.SubspaceKey, oldGroup, oldValue, d.PrimaryKey)
	if err := tx.Delete(tableName(subspace), oldKey); err != nil {
		return err
	}
	newKey := minMaxEntryKey(subspace, def.SubspaceKey, newGroup, newValue, d.PrimaryKey)
	if err := tx.Put(tableName(subspace), newKey, []byte{}); err != nil {
		return err
	}

	// The old group's extremum may have been this record's value; if it
	// was, reconcile it from what remains.
	heldOld, err := m.holdsExtremum(tx, subspace, def, oldGroup, oldValue)
	if err != nil {
		return err
	}
	if heldOld {
		if err := m.recompute(tx, subspace, def, oldGroup); err != nil {
			return err
		}
	}

	// The new candidate can only extend (never retract) newGroup's
	// extremum; any retraction from the old group was handled above.
	return m.applyExtreme(tx, subspace, def, newGroup, tuple.Encode(newValue))
}

func (m MinMaxMaintainer) ApplyDelete(tx kv.RwTx, subspace tuple.Subspace, def schema.IndexDefinition, d Delta) error {
	group := d.OldValues[:len(d.OldValues)-1]
	value := m.extremumValue(def, d.OldValues)
	entryKey := minMaxEntryKey(subspace, def.SubspaceKey, group, value, d.PrimaryKey)
	if err := tx.Delete(tableName(subspace), entryKey); err != nil {
		return err
	}
	held, err := m.holdsExtremum(tx, subspace, def, group, value)
	if err != nil {
		return err
	}
	if !held {
		return nil
	}
	return m.recompute(tx, subspace, def, group)
}

// holdsExtremum reports whether value is (byte-equal to) the extremum
// currently stored for group — i.e. whether removing/changing the
// record that held it requires a recompute.
func (m MinMaxMaintainer) holdsExtremum(tx kv.RwTx, subspace tuple.Subspace, def schema.IndexDefinition, group []tuple.Value, value []tuple.Value) (bool, error) {
	current, ok, err := ReadExtremum(tx, subspace, def, group)
	if err != nil || !ok {
		return false, err
	}
	return bytes.Equal(current, tuple.Encode(value)), nil
}

// recompute re-derives group's extremum from its remaining per-record
// entries with a bounded range read, the same pattern RankOfValue uses
// to answer rank queries directly off the KV store rather than a cache.
func (m MinMaxMaintainer) recompute(tx kv.RwTx, subspace tuple.Subspace, def schema.IndexDefinition, group []tuple.Value) error {
	prefix := minMaxGroupPrefix(subspace, def.SubspaceKey, group)
	end := tuple.Strinc(prefix)
	it, err := tx.Range(tableName(subspace), prefix, end)
	if err != nil {
		return err
	}
	defer it.Close()

	var bestKey []byte
	for it.Next() {
		k := it.Key()
		switch {
		case bestKey == nil:
			bestKey = append([]byte{}, k...)
		case m.Min && bytes.Compare(k, bestKey) < 0:
			bestKey = append([]byte{}, k...)
		case !m.Min && bytes.Compare(k, bestKey) > 0:
			bestKey = append([]byte{}, k...)
		}
	}
	if err := it.Err(); err != nil {
		return err
	}

	scalarKey := groupKey(subspace, def.SubspaceKey, group)
	if bestKey == nil {
		return tx.Delete(tableName(subspace), scalarKey)
	}
	t, err := subspace.Unpack(bestKey)
	if err != nil {
		return err
	}
	valueIdx := 2 + len(group)
	return tx.Put(tableName(subspace), scalarKey, tuple.Encode(tuple.Tuple{t[valueIdx]}))
}

func (m MinMaxMaintainer) applyExtreme(tx kv.RwTx, subspace tuple.Subspace, def schema.IndexDefinition, group []tuple.Value, candidate []byte) error {
	key := groupKey(subspace, def.SubspaceKey, group)
	if m.Min {
		return tx.ByteMin(tableName(subspace), key, candidate)
	}
	return tx.ByteMax(tableName(subspace), key, candidate)
}

// ReadExtremum returns the current stored min/max encoded value for a
// group, or (nil, false) if none recorded.
func ReadExtremum(tx kv.Tx, subspace tuple.Subspace, def schema.IndexDefinition, group []tuple.Value) ([]byte, bool, error) {
	key := groupKey(subspace, def.SubspaceKey, group)
	return tx.Get(tableName(subspace), key)
}
