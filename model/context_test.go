package model

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/ledgerwatch/recordlayer/keyexpr"
	"github.com/ledgerwatch/recordlayer/kv/memkv"
	"github.com/ledgerwatch/recordlayer/recorderr"
	"github.com/ledgerwatch/recordlayer/recordstore"
	"github.com/ledgerwatch/recordlayer/schema"
	"github.com/ledgerwatch/recordlayer/tuple"
)

type taskRecord struct {
	ID    int64
	Title string
}

func (r *taskRecord) RecordName() string { return "Task" }

func (r *taskRecord) FieldValue(name string) (tuple.Value, bool) {
	switch name {
	case "id":
		return tuple.Int(r.ID), true
	case "title":
		return tuple.String(r.Title), true
	default:
		return nil, false
	}
}

func (r *taskRecord) Marshal() ([]byte, error) {
	out := make([]byte, 8+len(r.Title))
	binary.BigEndian.PutUint64(out, uint64(r.ID))
	copy(out[8:], r.Title)
	return out, nil
}

func (r *taskRecord) Unmarshal(data []byte) error {
	r.ID = int64(binary.BigEndian.Uint64(data[:8]))
	r.Title = string(data[8:])
	return nil
}

type otherRecord struct{}

func (otherRecord) RecordName() string                   { return "Other" }
func (otherRecord) FieldValue(string) (tuple.Value, bool) { return nil, false }
func (otherRecord) Marshal() ([]byte, error)              { return nil, nil }
func (*otherRecord) Unmarshal([]byte) error               { return nil }

func openTaskStore(t *testing.T) *recordstore.Store {
	t.Helper()
	b := schema.NewBuilder(1)
	if err := b.AddRecordType(schema.RecordType{
		Name: "Task", PrimaryKeyExpression: keyexpr.Field("id"), FieldDescriptors: []string{"id", "title"},
	}); err != nil {
		t.Fatalf("add record type: %v", err)
	}
	sch, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	db := memkv.New()
	store, err := recordstore.Open(db, sch, "Task", tuple.FromBytes([]byte{0x50}),
		func() recordstore.Record { return &taskRecord{} }, recordstore.Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return store
}

func TestSaveFlushesBufferedInsertsAndDeletesAtomically(t *testing.T) {
	store := openTaskStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, &taskRecord{ID: 1, Title: "pre-existing"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	c := New(store, Options{})
	if err := c.Insert(ctx, &taskRecord{ID: 2, Title: "new"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := c.Delete(ctx, &taskRecord{ID: 1}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ins, del := c.Pending(); ins != 1 || del != 1 {
		t.Fatalf("expected 1 pending insert and 1 pending delete, got %d/%d", ins, del)
	}

	if err := c.Save(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}
	if ins, del := c.Pending(); ins != 0 || del != 0 {
		t.Fatalf("expected buffers cleared after a successful save, got %d/%d", ins, del)
	}

	if _, ok, err := store.Fetch(ctx, tuple.Tuple{tuple.Int(1)}); err != nil {
		t.Fatalf("fetch 1: %v", err)
	} else if ok {
		t.Errorf("expected record 1 deleted")
	}
	if _, ok, err := store.Fetch(ctx, tuple.Tuple{tuple.Int(2)}); err != nil {
		t.Fatalf("fetch 2: %v", err)
	} else if !ok {
		t.Errorf("expected record 2 inserted")
	}
}

func TestInsertCancelsPendingDeleteAndViceVersa(t *testing.T) {
	store := openTaskStore(t)
	ctx := context.Background()
	c := New(store, Options{})

	rec := &taskRecord{ID: 5, Title: "x"}
	if err := c.Delete(ctx, rec); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := c.Insert(ctx, rec); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if ins, del := c.Pending(); ins != 0 || del != 0 {
		t.Fatalf("expected insert to cancel the pending delete, got %d/%d", ins, del)
	}

	if err := c.Insert(ctx, rec); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := c.Delete(ctx, rec); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ins, del := c.Pending(); ins != 0 || del != 0 {
		t.Fatalf("expected delete to cancel the pending insert, got %d/%d", ins, del)
	}
}

func TestInsertRejectsWrongRecordType(t *testing.T) {
	store := openTaskStore(t)
	c := New(store, Options{})
	err := c.Insert(context.Background(), &otherRecord{})
	if !recorderr.Is(err, recorderr.KindTypeMismatch) {
		t.Fatalf("expected KindTypeMismatch, got %v", err)
	}
}

func TestRollbackDiscardsBufferedOperations(t *testing.T) {
	store := openTaskStore(t)
	ctx := context.Background()
	c := New(store, Options{})
	if err := c.Insert(ctx, &taskRecord{ID: 9, Title: "x"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	c.Rollback()
	if ins, del := c.Pending(); ins != 0 || del != 0 {
		t.Fatalf("expected rollback to clear buffers, got %d/%d", ins, del)
	}
	if err := c.Save(ctx); err != nil {
		t.Fatalf("save after rollback: %v", err)
	}
	if _, ok, err := store.Fetch(ctx, tuple.Tuple{tuple.Int(9)}); err != nil {
		t.Fatalf("fetch: %v", err)
	} else if ok {
		t.Errorf("expected rolled-back insert to never be written")
	}
}

func TestAutosaveFlushesImmediately(t *testing.T) {
	store := openTaskStore(t)
	ctx := context.Background()
	c := New(store, Options{Autosave: true})
	if err := c.Insert(ctx, &taskRecord{ID: 3, Title: "auto"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if ins, del := c.Pending(); ins != 0 || del != 0 {
		t.Fatalf("expected autosave to flush immediately, got %d/%d pending", ins, del)
	}
	if _, ok, err := store.Fetch(ctx, tuple.Tuple{tuple.Int(3)}); err != nil {
		t.Fatalf("fetch: %v", err)
	} else if !ok {
		t.Errorf("expected autosaved record to be written")
	}
}
