// Package migration implements the ordered, idempotent migration
// manager of spec.md §4.L. Grounded directly on the teacher's
// migrations package: migrations/migrations.go's Migrator.Apply
// (walk an applied-markers bucket, skip migrations already recorded,
// run the rest in order, record each as it completes) generalized from
// a single linear []Migration list gated only by name into a
// version-graph walk gated by (from_version, to_version), and
// migrations/receipts.go as the concrete shape one Migration's Up
// closure takes.
package migration

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ledgerwatch/recordlayer/kv"
	"github.com/ledgerwatch/recordlayer/recorderr"
	"github.com/ledgerwatch/recordlayer/recordstore"
	"github.com/ledgerwatch/recordlayer/tuple"
)

var (
	versionKeyspace = tuple.Int(0)
	appliedKeyspace = tuple.Int(1)
)

// Migration is one step in the configured migration list, gated by the
// (from_version, to_version) pair it applies between, per spec.md
// §4.L step 3.
type Migration struct {
	Name        string
	FromVersion Version
	ToVersion   Version
	Up          func(ctx context.Context, mctx *MigrationContext) error
}

// StoreRegistry maps a caller-chosen name to the record store a
// migration operates against — spec.md §4.L's "migrations may target
// multiple record types via a store registry".
type StoreRegistry map[string]*recordstore.Store

// MigrationContext is the handle a Migration's Up closure receives:
// the store registry plus the add_index/remove_index/rebuild_index
// helpers named in spec.md §4.L.
type MigrationContext struct {
	Stores StoreRegistry
}

// Manager drives migrate_to, per spec.md §4.L.
type Manager struct {
	db         kv.RwDB
	subspace   tuple.Subspace
	table      string
	migrations []Migration
	registry   StoreRegistry
	inProgress int32 // atomic; 0=idle, 1=a migrate_to call is running
}

// New returns a Manager storing current_version/applied-markers at
// subspace, driving registry, choosing among migrations.
func New(db kv.RwDB, subspace tuple.Subspace, table string, migrations []Migration, registry StoreRegistry) *Manager {
	return &Manager{
		db:         db,
		subspace:   subspace,
		table:      table,
		migrations: migrations,
		registry:   registry,
	}
}

func (m *Manager) versionKey() []byte {
	return m.subspace.Sub(versionKeyspace).Pack(nil)
}

func (m *Manager) appliedKey(name string) []byte {
	return m.subspace.Sub(appliedKeyspace).Pack(tuple.Tuple{tuple.String(name)})
}

// CurrentVersion returns the persisted current_version, or the zero
// version if none has ever been written.
func (m *Manager) CurrentVersion(tx kv.Tx) (Version, error) {
	v, ok, err := tx.Get(m.table, m.versionKey())
	if err != nil {
		return Version{}, err
	}
	if !ok {
		return zeroVersion, nil
	}
	return decodeVersion(v)
}

// applied reports whether a migration's applied marker already exists.
func (m *Manager) applied(tx kv.Tx, name string) (bool, error) {
	_, ok, err := tx.Get(m.table, m.appliedKey(name))
	return ok, err
}

func (m *Manager) markApplied(tx kv.RwTx, name string, at time.Time) error {
	return tx.Put(m.table, m.appliedKey(name), encodeAppliedMarker(at))
}

// MigrateTo drives current_version to target, per spec.md §4.L's
// five-step algorithm. now supplies the timestamp recorded on each
// applied marker (the caller passes it in: migration scripts must not
// read the wall clock internally, so one migrate_to call stamps every
// migration it applies with the same instant).
func (m *Manager) MigrateTo(ctx context.Context, target Version, now time.Time) error {
	if !atomic.CompareAndSwapInt32(&m.inProgress, 0, 1) {
		return recorderr.Wrap(recorderr.KindAlreadyInProgress, recorderr.ErrAlreadyInProgress, "a migrate_to call is already running")
	}
	defer atomic.StoreInt32(&m.inProgress, 0)

	var current Version
	if err := m.db.View(ctx, func(tx kv.Tx) error {
		var err error
		current, err = m.CurrentVersion(tx)
		return err
	}); err != nil {
		return err
	}

	path, err := buildPath(m.migrations, current, target)
	if err != nil {
		return err
	}

	mctx := &MigrationContext{Stores: m.registry}
	for _, mig := range path {
		var skip bool
		if err := m.db.View(ctx, func(tx kv.Tx) error {
			var err error
			skip, err = m.applied(tx, mig.Name)
			return err
		}); err != nil {
			return err
		}
		if skip {
			log.Info("Skipping already-applied migration", "name", mig.Name)
			continue
		}

		log.Info("Apply migration", "name", mig.Name, "from", mig.FromVersion, "to", mig.ToVersion)
		if err := mig.Up(ctx, mctx); err != nil {
			return recorderr.Wrap(recorderr.KindInternal, err, "migration %q failed", mig.Name)
		}

		if err := m.db.Update(ctx, func(tx kv.RwTx) error {
			return m.markApplied(tx, mig.Name, now)
		}); err != nil {
			return err
		}
		log.Info("Applied migration", "name", mig.Name)
	}

	if err := m.db.Update(ctx, func(tx kv.RwTx) error {
		return tx.Put(m.table, m.versionKey(), encodeVersion(target))
	}); err != nil {
		return err
	}
	log.Info("Migrated", "from", current, "to", target)
	return nil
}

// buildPath greedily chooses, at each step, a migration whose
// FromVersion equals the running version and whose ToVersion <=
// target, per spec.md §4.L step 3. Fails with NoMigrationPath if no
// applicable migration is found before reaching target.
func buildPath(migrations []Migration, from, target Version) ([]Migration, error) {
	var path []Migration
	current := from
	for current.Compare(target) != 0 {
		next, ok := findNext(migrations, current, target)
		if !ok {
			return nil, recorderr.Wrap(recorderr.KindNoMigrationPath, recorderr.ErrNoMigrationPath,
				"no migration from %s toward %s", current, target)
		}
		path = append(path, next)
		current = next.ToVersion
	}
	return path, nil
}

func findNext(migrations []Migration, current, target Version) (Migration, bool) {
	for _, mig := range migrations {
		if mig.FromVersion.Compare(current) == 0 && mig.ToVersion.LessOrEqual(target) {
			return mig, true
		}
	}
	return Migration{}, false
}
