package onlineindex

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/ledgerwatch/recordlayer/index"
	"github.com/ledgerwatch/recordlayer/indexstate"
	"github.com/ledgerwatch/recordlayer/keyexpr"
	"github.com/ledgerwatch/recordlayer/kv"
	"github.com/ledgerwatch/recordlayer/kv/memkv"
	"github.com/ledgerwatch/recordlayer/recordstore"
	"github.com/ledgerwatch/recordlayer/schema"
	"github.com/ledgerwatch/recordlayer/tuple"
)

type cityRecord struct {
	ID   int64
	City string
}

func (c *cityRecord) RecordName() string { return "Place" }

func (c *cityRecord) FieldValue(name string) (tuple.Value, bool) {
	switch name {
	case "id":
		return tuple.Int(c.ID), true
	case "city":
		return tuple.String(c.City), true
	default:
		return nil, false
	}
}

func (c *cityRecord) Marshal() ([]byte, error) {
	out := make([]byte, 8+len(c.City))
	binary.BigEndian.PutUint64(out, uint64(c.ID))
	copy(out[8:], c.City)
	return out, nil
}

func (c *cityRecord) Unmarshal(data []byte) error {
	c.ID = int64(binary.BigEndian.Uint64(data[:8]))
	c.City = string(data[8:])
	return nil
}

func openUnbuiltStore(t *testing.T) *recordstore.Store {
	t.Helper()
	b := schema.NewBuilder(1)
	if err := b.AddRecordType(schema.RecordType{
		Name:                 "Place",
		PrimaryKeyExpression: keyexpr.Field("id"),
		FieldDescriptors:     []string{"id", "city"},
	}); err != nil {
		t.Fatalf("add record type: %v", err)
	}
	if err := b.AddIndex(schema.IndexDefinition{
		Name:                  "count_by_city",
		Kind:                  schema.IndexCount,
		RootExpression:        keyexpr.Field("city"),
		SubspaceKey:           0x01,
		ApplicableRecordTypes: []string{"Place"},
	}); err != nil {
		t.Fatalf("add index: %v", err)
	}
	sch, err := b.Build()
	if err != nil {
		t.Fatalf("build schema: %v", err)
	}
	db := memkv.New()
	store, err := recordstore.Open(db, sch, "Place", tuple.FromBytes([]byte{0x20}), func() recordstore.Record { return &cityRecord{} }, recordstore.Options{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return store
}

func TestBuildDrivesIndexToReadable(t *testing.T) {
	store := openUnbuiltStore(t)
	ctx := context.Background()

	for i := int64(1); i <= 7; i++ {
		city := "Tokyo"
		if i%2 == 0 {
			city = "Osaka"
		}
		if err := store.Save(ctx, &cityRecord{ID: i, City: city}); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	idx := New(store, "count_by_city", Options{BatchSize: 2})
	if err := idx.Build(ctx); err != nil {
		t.Fatalf("build: %v", err)
	}

	if err := store.DB().View(ctx, func(tx kv.Tx) error {
		state, err := store.States().Get(tx, "count_by_city")
		if err != nil {
			return err
		}
		if state != indexstate.StateReadable {
			t.Errorf("expected READABLE after build, got %s", state)
		}
		def, err := store.Schema().Index("count_by_city")
		if err != nil {
			return err
		}
		c, err := index.ReadCount(tx, store.Subspace(), def, []tuple.Value{tuple.String("Tokyo")})
		if err != nil {
			return err
		}
		if c != 4 {
			t.Errorf("expected 4 Tokyo records (1,3,5,7), got %d", c)
		}
		c, err = index.ReadCount(tx, store.Subspace(), def, []tuple.Value{tuple.String("Osaka")})
		if err != nil {
			return err
		}
		if c != 3 {
			t.Errorf("expected 3 Osaka records (2,4,6), got %d", c)
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestBuildRejectsAlreadyReadableIndex(t *testing.T) {
	store := openUnbuiltStore(t)
	ctx := context.Background()
	for i := int64(1); i <= 4; i++ {
		if err := store.Save(ctx, &cityRecord{ID: i, City: "Kyoto"}); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	idx := New(store, "count_by_city", Options{BatchSize: 1})
	if err := idx.Build(ctx); err != nil {
		t.Fatalf("first build: %v", err)
	}

	// Building an already-READABLE index is rejected, not silently
	// re-counted (AlreadyInProgress): spec.md §4.H has no "rebuild"
	// operation, only DISABLED->READABLE.
	if err := idx.Build(ctx); err == nil {
		t.Errorf("expected building an already-READABLE index to fail")
	}
}
