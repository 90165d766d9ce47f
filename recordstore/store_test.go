package recordstore

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/ledgerwatch/recordlayer/keyexpr"
	"github.com/ledgerwatch/recordlayer/kv"
	"github.com/ledgerwatch/recordlayer/kv/memkv"
	"github.com/ledgerwatch/recordlayer/recorderr"
	"github.com/ledgerwatch/recordlayer/schema"
	"github.com/ledgerwatch/recordlayer/tuple"
)

// userRecord is a minimal Record implementation used only by this
// package's tests.
type userRecord struct {
	ID    int64
	Email string
}

func (u *userRecord) RecordName() string { return "User" }

func (u *userRecord) FieldValue(name string) (tuple.Value, bool) {
	switch name {
	case "user_id":
		return tuple.Int(u.ID), true
	case "email":
		return tuple.String(u.Email), true
	default:
		return nil, false
	}
}

func (u *userRecord) Marshal() ([]byte, error) {
	out := make([]byte, 8+len(u.Email))
	binary.BigEndian.PutUint64(out, uint64(u.ID))
	copy(out[8:], u.Email)
	return out, nil
}

func (u *userRecord) Unmarshal(data []byte) error {
	u.ID = int64(binary.BigEndian.Uint64(data[:8]))
	u.Email = string(data[8:])
	return nil
}

func buildUserSchema(t *testing.T) *schema.Schema {
	t.Helper()
	b := schema.NewBuilder(1)
	if err := b.AddRecordType(schema.RecordType{
		Name:                 "User",
		PrimaryKeyExpression: keyexpr.Field("user_id"),
		FieldDescriptors:     []string{"user_id", "email"},
	}); err != nil {
		t.Fatalf("add record type: %v", err)
	}
	if err := b.AddIndex(schema.IndexDefinition{
		Name:                  "by_email",
		Kind:                  schema.IndexValue,
		RootExpression:        keyexpr.Field("email"),
		SubspaceKey:           0x01,
		ApplicableRecordTypes: []string{"User"},
		Options:               schema.IndexOptions{Unique: true},
	}); err != nil {
		t.Fatalf("add index: %v", err)
	}
	sch, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return sch
}

func openUserStore(t *testing.T) *Store {
	t.Helper()
	db := memkv.New()
	sch := buildUserSchema(t)
	subspace := tuple.FromBytes([]byte{0x10})
	s, err := Open(db, sch, "User", subspace, func() Record { return &userRecord{} }, Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.Update(context.Background(), func(tx kv.RwTx) error {
		return s.states.Enable(tx, "by_email")
	}); err != nil {
		t.Fatalf("enable index: %v", err)
	}
	if err := db.Update(context.Background(), func(tx kv.RwTx) error {
		return s.states.MakeReadable(tx, "by_email")
	}); err != nil {
		t.Fatalf("make readable: %v", err)
	}
	return s
}

func TestSaveFetchDeleteRoundTrip(t *testing.T) {
	s := openUserStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, &userRecord{ID: 1, Email: "a"}); err != nil {
		t.Fatalf("save 1: %v", err)
	}
	if err := s.Save(ctx, &userRecord{ID: 2, Email: "b"}); err != nil {
		t.Fatalf("save 2: %v", err)
	}
	err := s.Save(ctx, &userRecord{ID: 3, Email: "a"})
	if err == nil {
		t.Fatalf("expected UniquenessViolation saving duplicate email")
	}
	if !recorderr.Is(err, recorderr.KindUniquenessViolation) {
		t.Fatalf("expected KindUniquenessViolation, got %v", err)
	}

	if err := s.Save(ctx, &userRecord{ID: 1, Email: "c"}); err != nil {
		t.Fatalf("update 1: %v", err)
	}

	rec, ok, err := s.Fetch(ctx, tuple.Tuple{tuple.Int(1)})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !ok {
		t.Fatalf("expected record 1 to exist")
	}
	if rec.(*userRecord).Email != "c" {
		t.Errorf("expected updated email %q, got %q", "c", rec.(*userRecord).Email)
	}

	if err := s.Delete(ctx, tuple.Tuple{tuple.Int(2)}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, err := s.Fetch(ctx, tuple.Tuple{tuple.Int(2)}); err != nil {
		t.Fatalf("fetch after delete: %v", err)
	} else if ok {
		t.Errorf("expected record 2 to be gone after delete")
	}
}

func TestScanYieldsAllRecordsOrderedByPrimaryKey(t *testing.T) {
	s := openUserStore(t)
	ctx := context.Background()
	for i := int64(1); i <= 5; i++ {
		if err := s.Save(ctx, &userRecord{ID: i, Email: "user"}); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	it := s.Scan(ctx)
	defer it.Close()
	var ids []int64
	for it.Next() {
		ids = append(ids, it.Record().(*userRecord).ID)
	}
	if err := it.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(ids) != 5 {
		t.Fatalf("expected 5 records, got %d", len(ids))
	}
	for i, id := range ids {
		if id != int64(i+1) {
			t.Errorf("expected ascending primary key order, got %v", ids)
		}
	}
}

func TestScanEarlyBreakDoesNotLeakTransaction(t *testing.T) {
	s := openUserStore(t)
	ctx := context.Background()
	for i := int64(1); i <= 10; i++ {
		if err := s.Save(ctx, &userRecord{ID: i, Email: "user"}); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	for n := 0; n < 100; n++ {
		it := s.Scan(ctx)
		it.Next()
		it.Close()
	}

	// If the loop above leaked a transaction per iteration, a fresh
	// write would still succeed under memkv's optimistic concurrency
	// (writes don't block on stale readers), but Save itself would
	// hang were a real connection-pooled engine exhausted; this is a
	// best-effort regression guard that the iterator's Close path
	// runs cleanly under repeated early termination.
	if err := s.Save(ctx, &userRecord{ID: 99, Email: "fresh"}); err != nil {
		t.Fatalf("save after repeated early scan breaks: %v", err)
	}
}
