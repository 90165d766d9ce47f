package schema

import (
	"testing"

	"github.com/ledgerwatch/recordlayer/keyexpr"
)

func buildBasicSchema(t *testing.T) *Schema {
	t.Helper()
	b := NewBuilder(1)
	if err := b.AddRecordType(RecordType{
		Name:                 "User",
		PrimaryKeyExpression: keyexpr.Field("id"),
		FieldDescriptors:     []string{"id", "name", "email"},
	}); err != nil {
		t.Fatalf("AddRecordType: %v", err)
	}
	if err := b.AddIndex(IndexDefinition{
		Name:           "by_email",
		Kind:           IndexValue,
		RootExpression: keyexpr.Field("email"),
		SubspaceKey:    0x01,
		Options:        IndexOptions{Unique: true},
	}); err != nil {
		t.Fatalf("AddIndex: %v", err)
	}
	s, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return s
}

func TestSchemaLookups(t *testing.T) {
	s := buildBasicSchema(t)
	if _, err := s.RecordType("User"); err != nil {
		t.Errorf("RecordType(User): %v", err)
	}
	if _, err := s.RecordType("Nope"); err == nil {
		t.Errorf("expected NotFound for unknown record type")
	}
	if _, err := s.Index("by_email"); err != nil {
		t.Errorf("Index(by_email): %v", err)
	}
	if _, err := s.Index("nope"); err == nil {
		t.Errorf("expected NotFound for unknown index")
	}
}

func TestIndexesForRecordType(t *testing.T) {
	s := buildBasicSchema(t)
	idxs := s.IndexesForRecordType("User")
	if len(idxs) != 1 || idxs[0].Name != "by_email" {
		t.Errorf("unexpected indexes for User: %v", idxs)
	}
	rts, err := s.RecordTypesForIndex("by_email")
	if err != nil {
		t.Fatalf("RecordTypesForIndex: %v", err)
	}
	if len(rts) != 1 || rts[0] != "User" {
		t.Errorf("unexpected record types for by_email: %v", rts)
	}
}

func TestUniversalIndexAppliesToAllRecordTypes(t *testing.T) {
	b := NewBuilder(1)
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	must(b.AddRecordType(RecordType{Name: "A", PrimaryKeyExpression: keyexpr.Field("id")}))
	must(b.AddRecordType(RecordType{Name: "B", PrimaryKeyExpression: keyexpr.Field("id")}))
	must(b.AddIndex(IndexDefinition{Name: "count_all", Kind: IndexCount, RootExpression: keyexpr.Empty(), SubspaceKey: 0x02}))
	s, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for _, rt := range []string{"A", "B"} {
		idxs := s.IndexesForRecordType(rt)
		if len(idxs) != 1 || idxs[0].Name != "count_all" {
			t.Errorf("expected universal index for %s, got %v", rt, idxs)
		}
	}
}

func TestDuplicateRecordTypeFails(t *testing.T) {
	b := NewBuilder(1)
	rt := RecordType{Name: "User", PrimaryKeyExpression: keyexpr.Field("id")}
	if err := b.AddRecordType(rt); err != nil {
		t.Fatalf("first AddRecordType: %v", err)
	}
	if err := b.AddRecordType(rt); err == nil {
		t.Errorf("expected DuplicateName on second AddRecordType")
	}
}

func TestFormerIndexNameReservedPermanently(t *testing.T) {
	b := NewBuilder(2)
	if err := b.AddFormerIndex(FormerIndex{Name: "old_idx", AddedVersion: 1, RemovedVersion: 2}); err != nil {
		t.Fatalf("AddFormerIndex: %v", err)
	}
	if err := b.AddIndex(IndexDefinition{Name: "old_idx", Kind: IndexValue, RootExpression: keyexpr.Field("x")}); err == nil {
		t.Errorf("expected DuplicateName reusing a former index name")
	}
}

func TestPrimaryKeyFieldCount(t *testing.T) {
	b := NewBuilder(1)
	if err := b.AddRecordType(RecordType{
		Name:                 "Composite",
		PrimaryKeyExpression: keyexpr.Concat(keyexpr.Field("a"), keyexpr.Field("b")),
	}); err != nil {
		t.Fatalf("AddRecordType: %v", err)
	}
	s, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	n, err := s.PrimaryKeyFieldCount("Composite")
	if err != nil {
		t.Fatalf("PrimaryKeyFieldCount: %v", err)
	}
	if n != 2 {
		t.Errorf("PrimaryKeyFieldCount: got %d, want 2", n)
	}
}
