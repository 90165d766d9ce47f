package index

import (
	"github.com/ledgerwatch/recordlayer/kv"
	"github.com/ledgerwatch/recordlayer/recorderr"
	"github.com/ledgerwatch/recordlayer/schema"
	"github.com/ledgerwatch/recordlayer/tuple"
)

// ValueMaintainer implements spec.md §4.G's value index: entry key is
// (3, subspace_key, root_expression(record)..., primary_key...),
// value empty. The Unique option checks for an existing entry sharing
// the evaluated root-expression prefix before writing.
type ValueMaintainer struct{}

func (ValueMaintainer) ApplyInsert(tx kv.RwTx, subspace tuple.Subspace, def schema.IndexDefinition, d Delta) error {
	return writeValueEntry(tx, subspace, def, d.PrimaryKey, d.NewValues)
}

func (ValueMaintainer) ApplyUpdate(tx kv.RwTx, subspace tuple.Subspace, def schema.IndexDefinition, d Delta) error {
	if valuesEqual(d.OldValues, d.NewValues) {
		return nil
	}
	if err := deleteValueEntry(tx, subspace, def, d.PrimaryKey, d.OldValues); err != nil {
		return err
	}
	return writeValueEntry(tx, subspace, def, d.PrimaryKey, d.NewValues)
}

func (ValueMaintainer) ApplyDelete(tx kv.RwTx, subspace tuple.Subspace, def schema.IndexDefinition, d Delta) error {
	return deleteValueEntry(tx, subspace, def, d.PrimaryKey, d.OldValues)
}

func writeValueEntry(tx kv.RwTx, subspace tuple.Subspace, def schema.IndexDefinition, pk tuple.Tuple, values []tuple.Value) error {
	if def.Options.Unique {
		conflictPK, found, err := findUniqueConflict(tx, subspace, def, values, pk)
		if err != nil {
			return err
		}
		if found {
			if def.Options.ReplaceOnDuplicate {
				if err := deleteValueEntry(tx, subspace, def, conflictPK, values); err != nil {
					return err
				}
			} else {
				return recorderr.UniquenessViolation(def.Name, toInterfaceSlice(pk))
			}
		}
	}
	key := entryKey(subspace, def.SubspaceKey, values, pk)
	return tx.Put(tableName(subspace), key, []byte{})
}

func deleteValueEntry(tx kv.RwTx, subspace tuple.Subspace, def schema.IndexDefinition, pk tuple.Tuple, values []tuple.Value) error {
	if values == nil {
		return nil
	}
	key := entryKey(subspace, def.SubspaceKey, values, pk)
	return tx.Delete(tableName(subspace), key)
}

// findUniqueConflict scans for any existing entry under this index's
// evaluated root-expression prefix (excluding the primary-key suffix)
// that belongs to a different record.
func findUniqueConflict(tx kv.RwTx, subspace tuple.Subspace, def schema.IndexDefinition, values []tuple.Value, ownPK tuple.Tuple) (tuple.Tuple, bool, error) {
	prefixTuple := make(tuple.Tuple, 0, 2+len(values))
	prefixTuple = append(prefixTuple, tuple.Int(3), tuple.Int(int64(def.SubspaceKey)))
	prefixTuple = append(prefixTuple, values...)
	begin := subspace.Pack(prefixTuple)
	end := tuple.Strinc(begin)

	it, err := tx.Range(tableName(subspace), begin, end)
	if err != nil {
		return nil, false, err
	}
	defer it.Close()
	for it.Next() {
		full, err := subspace.Unpack(it.Key())
		if err != nil {
			return nil, false, err
		}
		// full = (3, subspace_key, values..., pk...)
		existingPK := full[2+len(values):]
		if !tuple.Tuple(existingPK).Equal(ownPK) {
			cp := make(tuple.Tuple, len(existingPK))
			copy(cp, existingPK)
			return cp, true, nil
		}
	}
	return nil, false, it.Err()
}

func valuesEqual(a, b []tuple.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Compare(b[i]) != 0 {
			return false
		}
	}
	return true
}

func toInterfaceSlice(t tuple.Tuple) []interface{} {
	out := make([]interface{}, len(t))
	for i, v := range t {
		out[i] = v
	}
	return out
}

// tableName maps a record store's subspace to the underlying KV table
// name its index entries live in. One physical table per subspace
// keeps every keyspace tag (0,1,2,3,5,6,7,9 from spec.md §3) together
// under a single prefix, matching how a subspace is meant to be used.
func tableName(subspace tuple.Subspace) string {
	return "records:" + string(subspace.Bytes())
}
