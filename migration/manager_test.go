package migration

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/ledgerwatch/recordlayer/keyexpr"
	"github.com/ledgerwatch/recordlayer/kv"
	"github.com/ledgerwatch/recordlayer/kv/memkv"
	"github.com/ledgerwatch/recordlayer/onlineindex"
	"github.com/ledgerwatch/recordlayer/recordstore"
	"github.com/ledgerwatch/recordlayer/schema"
	"github.com/ledgerwatch/recordlayer/tuple"
)

type widgetRecord struct {
	ID       int64
	Category string
}

func (w *widgetRecord) RecordName() string { return "Widget" }

func (w *widgetRecord) FieldValue(name string) (tuple.Value, bool) {
	switch name {
	case "id":
		return tuple.Int(w.ID), true
	case "category":
		return tuple.String(w.Category), true
	default:
		return nil, false
	}
}

func (w *widgetRecord) Marshal() ([]byte, error) {
	out := make([]byte, 8+len(w.Category))
	binary.BigEndian.PutUint64(out, uint64(w.ID))
	copy(out[8:], w.Category)
	return out, nil
}

func (w *widgetRecord) Unmarshal(data []byte) error {
	w.ID = int64(binary.BigEndian.Uint64(data[:8]))
	w.Category = string(data[8:])
	return nil
}

func openWidgetStore(t *testing.T) *recordstore.Store {
	t.Helper()
	b := schema.NewBuilder(1)
	if err := b.AddRecordType(schema.RecordType{
		Name: "Widget", PrimaryKeyExpression: keyexpr.Field("id"),
		FieldDescriptors: []string{"id", "category"},
	}); err != nil {
		t.Fatalf("add record type: %v", err)
	}
	if err := b.AddIndex(schema.IndexDefinition{
		Name: "count_by_category", Kind: schema.IndexCount, RootExpression: keyexpr.Field("category"),
		SubspaceKey: 0x01, ApplicableRecordTypes: []string{"Widget"},
	}); err != nil {
		t.Fatalf("add index: %v", err)
	}
	sch, err := b.Build()
	if err != nil {
		t.Fatalf("build schema: %v", err)
	}
	db := memkv.New()
	store, err := recordstore.Open(db, sch, "Widget", tuple.FromBytes([]byte{0x40}),
		func() recordstore.Record { return &widgetRecord{} }, recordstore.Options{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return store
}

func TestMigrateToAppliesPathInOrderAndIsIdempotent(t *testing.T) {
	store := openWidgetStore(t)
	ctx := context.Background()
	if err := store.Save(ctx, &widgetRecord{ID: 1, Category: "bolt"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	var applyCount int
	migrations := []Migration{
		{
			Name: "enable_count_index", FromVersion: Version{0, 0, 0}, ToVersion: Version{1, 0, 0},
			Up: func(ctx context.Context, mctx *MigrationContext) error {
				applyCount++
				return mctx.AddIndex(ctx, "widgets", "count_by_category", onlineindex.Options{})
			},
		},
	}
	registry := StoreRegistry{"widgets": store}
	mgr := New(store.DB(), tuple.FromBytes([]byte{0x41}), "migration_state", migrations, registry)

	now := time.Unix(1700000000, 0)
	if err := mgr.MigrateTo(ctx, Version{1, 0, 0}, now); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if applyCount != 1 {
		t.Fatalf("expected migration to run once, ran %d times", applyCount)
	}

	if err := store.DB().View(ctx, func(tx kv.Tx) error {
		v, err := mgr.CurrentVersion(tx)
		if err != nil {
			return err
		}
		if v != (Version{1, 0, 0}) {
			t.Errorf("expected current_version 1.0.0, got %s", v)
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}

	// Re-running migrate_to the same target must not re-apply the
	// already-applied migration (idempotent per spec.md §4.L step 4).
	if err := mgr.MigrateTo(ctx, Version{1, 0, 0}, now); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if applyCount != 1 {
		t.Fatalf("expected migration to stay applied exactly once, got %d runs", applyCount)
	}
}

func TestMigrateToFailsWithNoMigrationPath(t *testing.T) {
	store := openWidgetStore(t)
	mgr := New(store.DB(), tuple.FromBytes([]byte{0x42}), "migration_state", nil, StoreRegistry{"widgets": store})
	if err := mgr.MigrateTo(context.Background(), Version{1, 0, 0}, time.Unix(0, 0)); err == nil {
		t.Fatalf("expected NoMigrationPath with an empty migration list")
	}
}

func TestMigrateToRejectsConcurrentCalls(t *testing.T) {
	store := openWidgetStore(t)
	release := make(chan struct{})
	migrations := []Migration{
		{
			Name: "slow", FromVersion: Version{0, 0, 0}, ToVersion: Version{1, 0, 0},
			Up: func(context.Context, *MigrationContext) error {
				<-release
				return nil
			},
		},
	}
	mgr := New(store.DB(), tuple.FromBytes([]byte{0x43}), "migration_state", migrations, StoreRegistry{"widgets": store})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = mgr.MigrateTo(context.Background(), Version{1, 0, 0}, time.Unix(0, 0))
	}()

	// Give the goroutine a chance to acquire the in-process lock before
	// this call observes AlreadyInProgress.
	time.Sleep(10 * time.Millisecond)
	err := mgr.MigrateTo(context.Background(), Version{1, 0, 0}, time.Unix(0, 0))
	close(release)
	wg.Wait()

	if err == nil {
		t.Fatalf("expected AlreadyInProgress for a concurrent migrate_to call")
	}
}
