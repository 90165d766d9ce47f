package schema

import (
	"github.com/ledgerwatch/recordlayer/recorderr"
)

// Builder accumulates record types, indexes, and former indexes before
// producing an immutable Schema. Grounded on the teacher's pattern of a
// package-level var block populating a static registry
// (dbutils.BucketsConfigs), generalized into an explicit, reusable
// builder so callers can construct more than one schema per process
// (e.g. a pre- and post-migration pair, per spec.md §4.K).
type Builder struct {
	version       int
	recordTypes   map[string]RecordType
	indexes       map[string]IndexDefinition
	formerIndexes []FormerIndex
	order         []string // record type insertion order, for deterministic byRecordType building
}

// NewBuilder starts a builder for the given schema version.
func NewBuilder(version int) *Builder {
	return &Builder{
		version:     version,
		recordTypes: make(map[string]RecordType),
		indexes:     make(map[string]IndexDefinition),
	}
}

// AddRecordType registers a record type. Fails with DuplicateName if
// the name collides with one already added.
func (b *Builder) AddRecordType(rt RecordType) error {
	if _, exists := b.recordTypes[rt.Name]; exists {
		return recorderr.Wrap(recorderr.KindDuplicateName, recorderr.ErrDuplicateName, "record type %q already registered", rt.Name)
	}
	b.recordTypes[rt.Name] = rt
	b.order = append(b.order, rt.Name)
	return nil
}

// AddIndex registers an index definition. Fails with DuplicateName if
// the name collides with an existing index OR a former index (former
// index names are reserved permanently, per spec.md §3).
func (b *Builder) AddIndex(def IndexDefinition) error {
	if _, exists := b.indexes[def.Name]; exists {
		return recorderr.Wrap(recorderr.KindDuplicateName, recorderr.ErrDuplicateName, "index %q already registered", def.Name)
	}
	for _, f := range b.formerIndexes {
		if f.Name == def.Name {
			return recorderr.Wrap(recorderr.KindDuplicateName, recorderr.ErrDuplicateName, "index %q collides with a former index name", def.Name)
		}
	}
	b.indexes[def.Name] = def
	return nil
}

// AddFormerIndex records a removed index's name and version span.
// Fails with DuplicateName if the name collides with a current index
// or another former index.
func (b *Builder) AddFormerIndex(f FormerIndex) error {
	if _, exists := b.indexes[f.Name]; exists {
		return recorderr.Wrap(recorderr.KindDuplicateName, recorderr.ErrDuplicateName, "former index %q collides with a current index", f.Name)
	}
	for _, existing := range b.formerIndexes {
		if existing.Name == f.Name {
			return recorderr.Wrap(recorderr.KindDuplicateName, recorderr.ErrDuplicateName, "former index %q already recorded", f.Name)
		}
	}
	b.formerIndexes = append(b.formerIndexes, f)
	return nil
}

// Build produces the immutable Schema. The builder remains usable
// afterward (e.g. to Build again after further additions), but callers
// should treat the returned Schema as a point-in-time snapshot.
func (b *Builder) Build() (*Schema, error) {
	byRecordType := make(map[string][]string, len(b.recordTypes))
	for _, rtName := range b.order {
		byRecordType[rtName] = nil
	}
	for _, rtName := range b.order {
		for _, idx := range b.indexes {
			if idx.appliesTo(rtName) {
				byRecordType[rtName] = append(byRecordType[rtName], idx.Name)
			}
		}
	}

	recordTypes := make(map[string]RecordType, len(b.recordTypes))
	for k, v := range b.recordTypes {
		recordTypes[k] = v
	}
	indexes := make(map[string]IndexDefinition, len(b.indexes))
	for k, v := range b.indexes {
		indexes[k] = v
	}
	formerIndexes := make([]FormerIndex, len(b.formerIndexes))
	copy(formerIndexes, b.formerIndexes)

	return &Schema{
		version:       b.version,
		recordTypes:   recordTypes,
		indexes:       indexes,
		formerIndexes: formerIndexes,
		byRecordType:  byRecordType,
	}, nil
}
