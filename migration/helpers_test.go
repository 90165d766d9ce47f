package migration

import (
	"testing"

	"github.com/ledgerwatch/recordlayer/evolution"
	"github.com/ledgerwatch/recordlayer/keyexpr"
	"github.com/ledgerwatch/recordlayer/schema"
)

func buildPair(t *testing.T, mutate func(b *schema.Builder)) (*schema.Schema, *schema.Schema) {
	t.Helper()
	oldB := schema.NewBuilder(1)
	if err := oldB.AddRecordType(schema.RecordType{
		Name: "Widget", PrimaryKeyExpression: keyexpr.Field("id"), FieldDescriptors: []string{"id", "category"},
	}); err != nil {
		t.Fatalf("old record type: %v", err)
	}
	oldSchema, err := oldB.Build()
	if err != nil {
		t.Fatalf("build old: %v", err)
	}

	newB := schema.NewBuilder(2)
	if err := newB.AddRecordType(schema.RecordType{
		Name: "Widget", PrimaryKeyExpression: keyexpr.Field("id"), FieldDescriptors: []string{"id", "category"},
	}); err != nil {
		t.Fatalf("new record type: %v", err)
	}
	mutate(newB)
	newSchema, err := newB.Build()
	if err != nil {
		t.Fatalf("build new: %v", err)
	}
	return oldSchema, newSchema
}

func TestLightweightMigrationAcceptsSafeEvolution(t *testing.T) {
	oldSchema, newSchema := buildPair(t, func(b *schema.Builder) {})
	mig, err := LightweightMigration("v1_to_v2", Version{1, 0, 0}, Version{2, 0, 0}, oldSchema, newSchema, evolution.Options{})
	if err != nil {
		t.Fatalf("expected a safe evolution to produce a migration, got: %v", err)
	}
	if mig.Name != "v1_to_v2" {
		t.Errorf("expected migration name preserved, got %q", mig.Name)
	}
}

func TestLightweightMigrationRejectsUnsafeEvolution(t *testing.T) {
	oldB := schema.NewBuilder(1)
	_ = oldB.AddRecordType(schema.RecordType{Name: "Widget", PrimaryKeyExpression: keyexpr.Field("id")})
	_ = oldB.AddRecordType(schema.RecordType{Name: "Gadget", PrimaryKeyExpression: keyexpr.Field("id")})
	oldSchema, err := oldB.Build()
	if err != nil {
		t.Fatalf("build old: %v", err)
	}

	newB := schema.NewBuilder(2)
	_ = newB.AddRecordType(schema.RecordType{Name: "Widget", PrimaryKeyExpression: keyexpr.Field("id")})
	newSchema, err := newB.Build()
	if err != nil {
		t.Fatalf("build new: %v", err)
	}

	if _, err := LightweightMigration("drop_gadget", Version{1, 0, 0}, Version{2, 0, 0}, oldSchema, newSchema, evolution.Options{}); err == nil {
		t.Fatalf("expected LightweightMigration to reject a schema that removes a record type")
	}
}
