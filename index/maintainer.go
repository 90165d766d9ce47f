// Package index implements the index maintainers of spec.md §4.G: one
// concrete type per index kind, each writing under keyspace 3 of a
// record store's subspace. Grounded on the teacher's
// core/state/db_state_writer.go, which diffs an old-vs-new account
// value to decide what secondary state (change sets, indexes) to
// write on every state mutation — the same shape spec.md's
// apply_insert/apply_update/apply_delete split generalizes to
// arbitrary typed records instead of just accounts.
package index

import (
	"github.com/ledgerwatch/recordlayer/kv"
	"github.com/ledgerwatch/recordlayer/recorderr"
	"github.com/ledgerwatch/recordlayer/schema"
	"github.com/ledgerwatch/recordlayer/tuple"
)

// Delta describes what changed for one record, the common input to
// every maintainer capability.
type Delta struct {
	PrimaryKey tuple.Tuple
	OldValues  []tuple.Value // root_expression(record) before the change; nil on insert
	NewValues  []tuple.Value // root_expression(record) after the change; nil on delete
}

// Maintainer is the capability set named in spec.md §4.G:
// apply_insert, apply_update, apply_delete, build_from_scan. Maintainers
// do not check index state: callers (recordstore.Store) skip DISABLED
// indexes via indexstate.MaintainsWrites and invoke the maintainer for
// WRITEONLY/READABLE/BUILDING.
type Maintainer interface {
	ApplyInsert(tx kv.RwTx, subspace tuple.Subspace, def schema.IndexDefinition, d Delta) error
	ApplyUpdate(tx kv.RwTx, subspace tuple.Subspace, def schema.IndexDefinition, d Delta) error
	ApplyDelete(tx kv.RwTx, subspace tuple.Subspace, def schema.IndexDefinition, d Delta) error
}

// ForKind returns the Maintainer implementation for kind.
func ForKind(kind schema.IndexKind) (Maintainer, error) {
	switch kind {
	case schema.IndexValue:
		return ValueMaintainer{}, nil
	case schema.IndexCount:
		return CountMaintainer{}, nil
	case schema.IndexSum:
		return SumMaintainer{}, nil
	case schema.IndexMin:
		return MinMaxMaintainer{Min: true}, nil
	case schema.IndexMax:
		return MinMaxMaintainer{Min: false}, nil
	case schema.IndexRank:
		return RankMaintainer{}, nil
	case schema.IndexSpatial:
		return SpatialMaintainer{}, nil
	case schema.IndexVector:
		return VectorMaintainer{}, nil
	default:
		return nil, recorderr.New(recorderr.KindInternal, "unknown index kind %v", kind)
	}
}

// entryKey builds the (3, subspace_key, value_tuple..., pk_tuple...)
// key named in spec.md §4.G for value/rank-style entries.
func entryKey(subspace tuple.Subspace, subspaceKey byte, valueElems []tuple.Value, pk tuple.Tuple) []byte {
	t := make(tuple.Tuple, 0, 2+len(valueElems)+len(pk))
	t = append(t, tuple.Int(3), tuple.Int(int64(subspaceKey)))
	t = append(t, valueElems...)
	t = append(t, pk...)
	return subspace.Pack(t)
}

// groupKey builds the grouping-prefix key used by count/sum/min/max:
// (3, subspace_key, group_values...).
func groupKey(subspace tuple.Subspace, subspaceKey byte, groupValues []tuple.Value) []byte {
	t := make(tuple.Tuple, 0, 2+len(groupValues))
	t = append(t, tuple.Int(3), tuple.Int(int64(subspaceKey)))
	t = append(t, groupValues...)
	return subspace.Pack(t)
}

// Prefix exposes groupKey for callers outside this package (the query
// planner) that need to bound an IndexScan's key range to the entries
// sharing a given value prefix.
func Prefix(subspace tuple.Subspace, subspaceKey byte, values []tuple.Value) []byte {
	return groupKey(subspace, subspaceKey, values)
}
