// Package recordstore implements the typed per-record-type CRUD and
// scan/query surface of spec.md §4.E. One Store serves one record
// type at one subspace. Grounded on the teacher's
// core/state/db_state_writer.go: that writer reads a record's prior
// on-disk value before writing, diffs it against the new value, and
// drives secondary-state updates (change sets) from the diff — the
// same shape this package generalizes from accounts to arbitrary
// typed records and from change sets to index maintainers.
package recordstore

import (
	"github.com/ledgerwatch/recordlayer/tuple"
)

// Record is the contract spec.md §3 requires of a typed user struct:
// a name, field access for key-expression evaluation, and a
// bidirectional byte codec. Implementations are expected to be small,
// generated-or-handwritten value types specific to one record type.
type Record interface {
	RecordName() string
	FieldValue(fieldName string) (tuple.Value, bool)
	Marshal() ([]byte, error)
	Unmarshal(data []byte) error
}

// FieldAccessor adapts a Record to the keyexpr.FieldAccessor contract.
func FieldAccessor(r Record) func(string) (tuple.Value, bool) {
	return r.FieldValue
}
