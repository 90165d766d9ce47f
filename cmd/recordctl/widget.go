package main

import (
	"context"
	"encoding/binary"

	"github.com/ledgerwatch/recordlayer/keyexpr"
	"github.com/ledgerwatch/recordlayer/kv/memkv"
	"github.com/ledgerwatch/recordlayer/recordstore"
	"github.com/ledgerwatch/recordlayer/schema"
	"github.com/ledgerwatch/recordlayer/tuple"
)

// widget is the record type every recordctl subcommand operates
// against. recordctl has no schema-file format of its own (spec.md
// doesn't define one), so it plays the same fixed-purpose role
// cmd/state/generate/regenerate_index.go plays for the teacher: a
// thin CLI wrapping one concrete use of the library, not a generic
// schema-driven tool.
type widget struct {
	ID       int64
	Name     string
	Category string
}

func (w *widget) RecordName() string { return "Widget" }

func (w *widget) FieldValue(name string) (tuple.Value, bool) {
	switch name {
	case "id":
		return tuple.Int(w.ID), true
	case "name":
		return tuple.String(w.Name), true
	case "category":
		return tuple.String(w.Category), true
	default:
		return nil, false
	}
}

func (w *widget) Marshal() ([]byte, error) {
	out := make([]byte, 8+2+len(w.Name)+len(w.Category))
	binary.BigEndian.PutUint64(out, uint64(w.ID))
	binary.BigEndian.PutUint16(out[8:], uint16(len(w.Name)))
	copy(out[10:], w.Name)
	copy(out[10+len(w.Name):], w.Category)
	return out, nil
}

func (w *widget) Unmarshal(data []byte) error {
	w.ID = int64(binary.BigEndian.Uint64(data[:8]))
	nameLen := int(binary.BigEndian.Uint16(data[8:10]))
	w.Name = string(data[10 : 10+nameLen])
	w.Category = string(data[10+nameLen:])
	return nil
}

// byCategoryIndex is the demo value index recordctl's build-index and
// plan subcommands exercise.
const byCategoryIndex = "by_category"

var widgetSubspace = tuple.FromBytes([]byte{0x70})

// buildWidgetSchema constructs the schema version passed: version 1
// has no indexes, version 2 adds by_category. migrateCmd builds
// version 2 and migrates its store from 0.0.0 to 2.0.0.
func buildWidgetSchema(version int) (*schema.Schema, error) {
	b := schema.NewBuilder(version)
	if err := b.AddRecordType(schema.RecordType{
		Name:                 "Widget",
		PrimaryKeyExpression: keyexpr.Field("id"),
		FieldDescriptors:     []string{"id", "name", "category"},
		FieldTypes:           map[string]string{"id": "int64", "name": "string", "category": "string"},
	}); err != nil {
		return nil, err
	}
	if version >= 2 {
		if err := b.AddIndex(schema.IndexDefinition{
			Name:           byCategoryIndex,
			Kind:           schema.IndexValue,
			RootExpression: keyexpr.Field("category"),
			SubspaceKey:    0x01,
		}); err != nil {
			return nil, err
		}
	}
	return b.Build()
}

// openWidgetStore opens an in-memory widget store against sch. recordctl
// has no persistent KV engine to open (this module carries no embedded
// ordered-KV library — see kv/memkv's own doc comment), so every
// invocation starts from an empty store; useful for exercising the
// operational commands, not for standing up a long-lived deployment.
func openWidgetStore(sch *schema.Schema) (*recordstore.Store, error) {
	db := memkv.New()
	return recordstore.Open(db, sch, "Widget", widgetSubspace, func() recordstore.Record { return &widget{} }, recordstore.Options{})
}

// seedWidgets writes a handful of demo rows so build-index and plan
// have something to operate over.
func seedWidgets(store *recordstore.Store) error {
	rows := []*widget{
		{ID: 1, Name: "bolt", Category: "hardware"},
		{ID: 2, Name: "nut", Category: "hardware"},
		{ID: 3, Name: "widget", Category: "toy"},
		{ID: 4, Name: "gear", Category: "hardware"},
		{ID: 5, Name: "kite", Category: "toy"},
	}
	ctx := context.Background()
	for _, w := range rows {
		if err := store.Save(ctx, w); err != nil {
			return err
		}
	}
	return nil
}
