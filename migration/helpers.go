package migration

import (
	"context"

	"github.com/ledgerwatch/recordlayer/evolution"
	"github.com/ledgerwatch/recordlayer/kv"
	"github.com/ledgerwatch/recordlayer/onlineindex"
	"github.com/ledgerwatch/recordlayer/recorderr"
	"github.com/ledgerwatch/recordlayer/schema"
)

// AddIndex drives indexName on storeName's store from DISABLED through
// an online build to READABLE, the canonical add_index_migration
// helper named in spec.md §4.L. The index definition itself must
// already exist (DISABLED) in that store's schema — schema content is
// an evolution-time concern (component K), not something a migration
// mutates live.
func (c *MigrationContext) AddIndex(ctx context.Context, storeName, indexName string, opts onlineindex.Options) error {
	store, ok := c.Stores[storeName]
	if !ok {
		return recorderr.New(recorderr.KindNotFound, "migration: store %q not registered", storeName)
	}
	return onlineindex.New(store, indexName, opts).Build(ctx)
}

// RemoveIndex disables indexName on storeName's store, the canonical
// remove_index_migration helper named in spec.md §4.L. This stops live
// maintenance and query eligibility; physically dropping the index's
// stored entries is left to a follow-up migration or offline cleanup,
// matching the teacher's two-phase ClearBuckets/DropBuckets pattern in
// migrations/migrations.go's doc comment.
func (c *MigrationContext) RemoveIndex(ctx context.Context, storeName, indexName string) error {
	store, ok := c.Stores[storeName]
	if !ok {
		return recorderr.New(recorderr.KindNotFound, "migration: store %q not registered", storeName)
	}
	return store.DB().Update(ctx, func(tx kv.RwTx) error {
		return store.States().Disable(tx, indexName)
	})
}

// RebuildIndex disables then rebuilds indexName from scratch on
// storeName's store, the canonical rebuild_index_migration helper
// named in spec.md §4.L — used when an evolution allowed the index's
// format to change (IndexFormatChanged, with allow_index_rebuilds
// set).
func (c *MigrationContext) RebuildIndex(ctx context.Context, storeName, indexName string, opts onlineindex.Options) error {
	store, ok := c.Stores[storeName]
	if !ok {
		return recorderr.New(recorderr.KindNotFound, "migration: store %q not registered", storeName)
	}
	if err := store.DB().Update(ctx, func(tx kv.RwTx) error {
		return store.States().Disable(tx, indexName)
	}); err != nil {
		return err
	}
	return onlineindex.New(store, indexName, opts).Build(ctx)
}

// LightweightMigration builds a Migration whose Up is a no-op data
// step, valid only when oldSchema -> newSchema is a safe evolution per
// spec.md §4.K: it routes the pair through evolution.Validate and
// rejects (at construction time, before the migration ever runs) if
// any diagnostic is present.
func LightweightMigration(name string, from, to Version, oldSchema, newSchema *schema.Schema, evolutionOpts evolution.Options) (Migration, error) {
	if diags := evolution.Validate(oldSchema, newSchema, evolutionOpts); len(diags) > 0 {
		return Migration{}, recorderr.New(recorderr.KindInternal, "lightweight_migration %q: unsafe schema evolution: %v", name, diags)
	}
	return Migration{
		Name:        name,
		FromVersion: from,
		ToVersion:   to,
		Up:          func(context.Context, *MigrationContext) error { return nil },
	}, nil
}
