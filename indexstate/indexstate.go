// Package indexstate implements the index-state manager of
// spec.md §4.F: a small persisted state machine per index, stored at
// keyspace 5 of a record store's subspace. Grounded on the teacher's
// migrations package, whose applied/unapplied status per migration is
// likewise a tiny persisted enum read in a batch before any migration
// runs — generalized here to four states instead of two.
package indexstate

import (
	"github.com/ledgerwatch/recordlayer/kv"
	"github.com/ledgerwatch/recordlayer/recorderr"
	"github.com/ledgerwatch/recordlayer/tuple"
)

// State is the persisted index lifecycle state of spec.md §4.F.
type State uint8

const (
	StateDisabled State = iota
	StateWriteOnly
	StateReadable
	StateBuilding
)

func (s State) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateWriteOnly:
		return "writeonly"
	case StateReadable:
		return "readable"
	case StateBuilding:
		return "building"
	default:
		return "unknown"
	}
}

// Manager reads and writes index state at keyspace 5 of a record
// store's subspace.
type Manager struct {
	subspace tuple.Subspace
	table    string
}

// New returns a state manager scoped to recordStoreSubspace, reading
// and writing under table for its backing KV table.
func New(recordStoreSubspace tuple.Subspace, table string) *Manager {
	return &Manager{subspace: recordStoreSubspace.Sub(tuple.Int(5)), table: table}
}

func (m *Manager) key(indexName string) []byte {
	return m.subspace.Pack(tuple.Tuple{tuple.String(indexName)})
}

// Get returns an index's current state. Absent keys default to
// DISABLED, per spec.md §4.F.
func (m *Manager) Get(tx kv.Tx, indexName string) (State, error) {
	v, ok, err := tx.Get(m.table, m.key(indexName))
	if err != nil {
		return StateDisabled, err
	}
	if !ok || len(v) == 0 {
		return StateDisabled, nil
	}
	return State(v[0]), nil
}

// States performs one batched read across multiple index names, per
// spec.md §4.F's `states(of: [names])`.
func (m *Manager) States(tx kv.Tx, indexNames []string) (map[string]State, error) {
	out := make(map[string]State, len(indexNames))
	for _, name := range indexNames {
		s, err := m.Get(tx, name)
		if err != nil {
			return nil, err
		}
		out[name] = s
	}
	return out, nil
}

// validTransition enforces the state machine diagram of spec.md §4.F:
// any state can go to DISABLED; DISABLED->WRITEONLY is "enable";
// WRITEONLY->READABLE is "make_readable"; WRITEONLY and BUILDING may
// move to each other or to READABLE. Every other move is disallowed,
// including DISABLED->READABLE, any move out of READABLE other than to
// DISABLED, and staying in the same non-DISABLED state.
func validTransition(from, to State) bool {
	if to == StateDisabled {
		return true
	}
	switch from {
	case StateDisabled:
		return to == StateWriteOnly
	case StateWriteOnly:
		return to == StateReadable || to == StateBuilding
	case StateBuilding:
		return to == StateReadable || to == StateWriteOnly
	case StateReadable:
		return false
	default:
		return false
	}
}

// Set transitions indexName to to, failing with InvalidTransition if
// the move isn't allowed from its current state.
func (m *Manager) Set(tx kv.RwTx, indexName string, to State) error {
	from, err := m.Get(tx, indexName)
	if err != nil {
		return err
	}
	if !validTransition(from, to) {
		return recorderr.Wrap(recorderr.KindInvalidTransition, recorderr.ErrInvalidTransition,
			"index %q cannot transition from %s to %s", indexName, from, to)
	}
	return tx.Put(m.table, m.key(indexName), []byte{byte(to)})
}

// Enable transitions an index from DISABLED to WRITEONLY.
func (m *Manager) Enable(tx kv.RwTx, indexName string) error {
	return m.Set(tx, indexName, StateWriteOnly)
}

// MakeReadable transitions an index from WRITEONLY (or BUILDING) to
// READABLE.
func (m *Manager) MakeReadable(tx kv.RwTx, indexName string) error {
	return m.Set(tx, indexName, StateReadable)
}

// Disable transitions an index to DISABLED from any state.
func (m *Manager) Disable(tx kv.RwTx, indexName string) error {
	return m.Set(tx, indexName, StateDisabled)
}

// MaintainsWrites reports whether a maintainer should run for live
// writes at this state: WRITEONLY, READABLE, and BUILDING all
// maintain (BUILDING behaves like WRITEONLY, per spec.md §4.G); only
// DISABLED is a no-op.
func MaintainsWrites(s State) bool { return s != StateDisabled }

// ReadableForQueries reports whether the planner may choose this index
// for a query plan (only READABLE qualifies).
func ReadableForQueries(s State) bool { return s == StateReadable }
