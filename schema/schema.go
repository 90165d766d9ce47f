// Package schema implements the registry of record types, indexes, and
// former indexes that make up an immutable Schema, per spec.md §3/§4.B.
// Grounded on the teacher's static bucket registry
// (common/dbutils.Buckets/BucketsConfigs): a fixed, name-keyed set of
// keyspace-carrying declarations built once and consulted everywhere
// afterward, generalized here into a builder that produces an
// immutable value instead of package-level vars.
package schema

import (
	"github.com/ledgerwatch/recordlayer/keyexpr"
	"github.com/ledgerwatch/recordlayer/recorderr"
)

// IndexKind enumerates the maintainer kinds of spec.md §4.G.
type IndexKind uint8

const (
	IndexValue IndexKind = iota
	IndexCount
	IndexSum
	IndexMin
	IndexMax
	IndexRank
	IndexSpatial
	IndexVector
)

func (k IndexKind) String() string {
	switch k {
	case IndexValue:
		return "value"
	case IndexCount:
		return "count"
	case IndexSum:
		return "sum"
	case IndexMin:
		return "min"
	case IndexMax:
		return "max"
	case IndexRank:
		return "rank"
	case IndexSpatial:
		return "spatial"
	case IndexVector:
		return "vector"
	default:
		return "unknown"
	}
}

// IndexOptions carries the per-kind knobs named across spec.md §4.G.
type IndexOptions struct {
	Unique            bool // value
	ReplaceOnDuplicate bool // value
	GroupingExpr      *keyexpr.Expr // count/sum/min/max/rank: optional grouping prefix
	SumField          string        // sum
	ExtremumField     string        // min/max
	RankGroupExpr     *keyexpr.Expr // rank
	SpatialDimensions int           // spatial: 2 or 3
	SpatialLevel      int           // spatial: bits per dimension, default 18 (2D) / 16 (3D)
	AltitudeMin       float64       // spatial 3D
	AltitudeMax       float64       // spatial 3D
	VectorDimensions  int           // vector
	VectorStrategy    string        // vector: "hnsw_batch" | "flat_scan"
}

// IndexDefinition is the immutable description of one index, per
// spec.md §3.
type IndexDefinition struct {
	Name                   string
	Kind                   IndexKind
	RootExpression         keyexpr.Expr
	SubspaceKey            byte
	ApplicableRecordTypes  []string // empty means universal
	Options                IndexOptions
}

func (d IndexDefinition) appliesTo(recordType string) bool {
	if len(d.ApplicableRecordTypes) == 0 {
		return true
	}
	for _, rt := range d.ApplicableRecordTypes {
		if rt == recordType {
			return true
		}
	}
	return false
}

// FormerIndex records a removed index's name, subspace key, and
// version span. Once added it can never be mutated or deleted (spec.md
// §3): the name — and its subspace key, so a new index can't silently
// reuse an un-cleaned-up physical key range — stay reserved
// permanently.
type FormerIndex struct {
	Name           string
	SubspaceKey    byte
	AddedVersion   int
	RemovedVersion int
}

// RecordType is the immutable description of one record type, per
// spec.md §3.
type RecordType struct {
	Name                 string
	PrimaryKeyExpression keyexpr.Expr
	FieldDescriptors     []string
	// FieldTypes optionally names each field's declared type (e.g.
	// "int64", "string"); used by the schema-evolution validator
	// (component K) to detect FieldTypeChanged. A field absent from
	// this map is untyped and skipped by that check.
	FieldTypes map[string]string
}

// Schema is the immutable, versioned collection of record types,
// indexes, and former indexes produced by a Builder. Per spec.md §3 it
// cannot be mutated after construction; schema evolution (component K)
// always produces a new Schema value.
type Schema struct {
	version        int
	recordTypes    map[string]RecordType
	indexes        map[string]IndexDefinition
	formerIndexes  []FormerIndex
	byRecordType   map[string][]string // record type name -> index names
}

// Version returns the schema's version number.
func (s *Schema) Version() int { return s.version }

// RecordType looks up a record type by name.
func (s *Schema) RecordType(name string) (RecordType, error) {
	rt, ok := s.recordTypes[name]
	if !ok {
		return RecordType{}, recorderr.Wrap(recorderr.KindRecordTypeNotFound, recorderr.ErrRecordTypeNotFound, "record type %q not found", name)
	}
	return rt, nil
}

// Index looks up an index definition by name.
func (s *Schema) Index(name string) (IndexDefinition, error) {
	idx, ok := s.indexes[name]
	if !ok {
		return IndexDefinition{}, recorderr.Wrap(recorderr.KindIndexNotFound, recorderr.ErrIndexNotFound, "index %q not found", name)
	}
	return idx, nil
}

// IndexesForRecordType returns every index applicable to recordType,
// universal or explicitly scoped to it.
func (s *Schema) IndexesForRecordType(recordType string) []IndexDefinition {
	names := s.byRecordType[recordType]
	out := make([]IndexDefinition, 0, len(names))
	for _, n := range names {
		out = append(out, s.indexes[n])
	}
	return out
}

// RecordTypesForIndex returns every record type name an index applies
// to — the inverse of IndexesForRecordType. A universal index returns
// every known record type name.
func (s *Schema) RecordTypesForIndex(indexName string) ([]string, error) {
	idx, err := s.Index(indexName)
	if err != nil {
		return nil, err
	}
	if len(idx.ApplicableRecordTypes) > 0 {
		out := make([]string, len(idx.ApplicableRecordTypes))
		copy(out, idx.ApplicableRecordTypes)
		return out, nil
	}
	out := make([]string, 0, len(s.recordTypes))
	for name := range s.recordTypes {
		out = append(out, name)
	}
	return out, nil
}

// PrimaryKeyFieldCount walks the record type's primary-key expression
// tree, summing column_count per spec.md §4.B.
func (s *Schema) PrimaryKeyFieldCount(recordType string) (int, error) {
	rt, err := s.RecordType(recordType)
	if err != nil {
		return 0, err
	}
	return rt.PrimaryKeyExpression.ColumnCount(), nil
}

// FormerIndexes returns the schema's append-only list of former
// indexes.
func (s *Schema) FormerIndexes() []FormerIndex {
	out := make([]FormerIndex, len(s.formerIndexes))
	copy(out, s.formerIndexes)
	return out
}

// RecordTypeNames returns every declared record type name.
func (s *Schema) RecordTypeNames() []string {
	out := make([]string, 0, len(s.recordTypes))
	for name := range s.recordTypes {
		out = append(out, name)
	}
	return out
}

// IndexNames returns every declared index name.
func (s *Schema) IndexNames() []string {
	out := make([]string, 0, len(s.indexes))
	for name := range s.indexes {
		out = append(out, name)
	}
	return out
}
