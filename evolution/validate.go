// Package evolution implements the schema-evolution validator of
// spec.md §4.K: diffing two Schema values and rejecting unsafe changes.
// Grounded on the teacher's dbutils.DeprecatedBuckets pattern — once a
// bucket (here, an index) is deprecated its name is tracked forever and
// never silently reused — generalized into a full compatibility check
// between two Schema snapshots.
package evolution

import (
	"fmt"

	mapset "github.com/deckarep/golang-set"
	"github.com/ledgerwatch/recordlayer/keyexpr"
	"github.com/ledgerwatch/recordlayer/schema"
)

// Category tags one kind of evolution violation named in spec.md §4.K.
type Category uint8

const (
	RecordTypeRemoved Category = iota
	FieldRemoved
	FieldTypeChanged
	PrimaryKeyChanged
	IndexFormatChanged
	IndexRemovedWithoutFormer
	FormerIndexConflict
	FormerIndexRemoved
	IndexSubspaceConflict
)

func (c Category) String() string {
	switch c {
	case RecordTypeRemoved:
		return "RecordTypeRemoved"
	case FieldRemoved:
		return "FieldRemoved"
	case FieldTypeChanged:
		return "FieldTypeChanged"
	case PrimaryKeyChanged:
		return "PrimaryKeyChanged"
	case IndexFormatChanged:
		return "IndexFormatChanged"
	case IndexRemovedWithoutFormer:
		return "IndexRemovedWithoutFormer"
	case FormerIndexConflict:
		return "FormerIndexConflict"
	case FormerIndexRemoved:
		return "FormerIndexRemoved"
	case IndexSubspaceConflict:
		return "IndexSubspaceConflict"
	default:
		return "Unknown"
	}
}

// Diagnostic is one rejected change found while diffing two schemas.
type Diagnostic struct {
	Category Category
	Subject  string // record type or index name the diagnostic concerns
	Detail   string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s(%s): %s", d.Category, d.Subject, d.Detail)
}

// Options configures the diff's permissiveness.
type Options struct {
	// AllowIndexRebuilds permits IndexFormatChanged diffs to pass
	// (index key expression or subspace key changed shape), per
	// spec.md §4.K.
	AllowIndexRebuilds bool
}

// Validate diffs oldSchema against newSchema and returns every
// violation found, per spec.md §4.K's policy. An empty result means
// newSchema is a safe evolution of oldSchema.
func Validate(oldSchema, newSchema *schema.Schema, opts Options) []Diagnostic {
	var diags []Diagnostic

	diags = append(diags, checkRecordTypes(oldSchema, newSchema)...)
	diags = append(diags, checkIndexes(oldSchema, newSchema, opts)...)
	diags = append(diags, checkFormerIndexes(oldSchema, newSchema)...)

	return diags
}

func checkRecordTypes(oldSchema, newSchema *schema.Schema) []Diagnostic {
	var diags []Diagnostic
	for _, name := range oldSchema.RecordTypeNames() {
		oldRT, err := oldSchema.RecordType(name)
		if err != nil {
			continue
		}
		newRT, err := newSchema.RecordType(name)
		if err != nil {
			diags = append(diags, Diagnostic{Category: RecordTypeRemoved, Subject: name,
				Detail: "record type may not be removed"})
			continue
		}

		diags = append(diags, checkFields(name, oldRT, newRT)...)
		diags = append(diags, checkPrimaryKey(name, oldRT, newRT)...)
	}
	return diags
}

func checkFields(recordType string, oldRT, newRT schema.RecordType) []Diagnostic {
	var diags []Diagnostic
	newFields := make(map[string]bool, len(newRT.FieldDescriptors))
	for _, f := range newRT.FieldDescriptors {
		newFields[f] = true
	}
	for _, f := range oldRT.FieldDescriptors {
		if !newFields[f] {
			diags = append(diags, Diagnostic{Category: FieldRemoved, Subject: recordType,
				Detail: fmt.Sprintf("field %q removed", f)})
			continue
		}
		oldType, oldHas := oldRT.FieldTypes[f]
		newType, newHas := newRT.FieldTypes[f]
		if oldHas && newHas && oldType != newType {
			diags = append(diags, Diagnostic{Category: FieldTypeChanged, Subject: recordType,
				Detail: fmt.Sprintf("field %q changed type from %q to %q", f, oldType, newType)})
		}
	}
	return diags
}

// checkPrimaryKey compares the field-name sets the primary-key
// expression reads; renaming or restructuring either set is rejected,
// per spec.md §4.K.
func checkPrimaryKey(recordType string, oldRT, newRT schema.RecordType) []Diagnostic {
	oldFields := fieldSet(keyexpr.FieldNames(oldRT.PrimaryKeyExpression))
	newFields := fieldSet(keyexpr.FieldNames(newRT.PrimaryKeyExpression))
	if oldFields.Equal(newFields) {
		return nil
	}
	return []Diagnostic{{Category: PrimaryKeyChanged, Subject: recordType,
		Detail: "primary key field set changed"}}
}

func checkIndexes(oldSchema, newSchema *schema.Schema, opts Options) []Diagnostic {
	var diags []Diagnostic
	newFormer := make(map[string]bool, len(newSchema.FormerIndexes()))
	for _, f := range newSchema.FormerIndexes() {
		newFormer[f.Name] = true
	}

	for _, name := range oldSchema.IndexNames() {
		oldIdx, err := oldSchema.Index(name)
		if err != nil {
			continue
		}
		newIdx, err := newSchema.Index(name)
		if err != nil {
			if !newFormer[name] {
				diags = append(diags, Diagnostic{Category: IndexRemovedWithoutFormer, Subject: name,
					Detail: "index removed without adding a matching former_index"})
			}
			continue
		}

		if !opts.AllowIndexRebuilds && !sameIndexFormat(oldIdx, newIdx) {
			diags = append(diags, Diagnostic{Category: IndexFormatChanged, Subject: name,
				Detail: "index key expression or subspace key changed without allow_index_rebuilds"})
		}
	}

	diags = append(diags, checkSubspaceConflicts(newSchema)...)
	return diags
}

// checkSubspaceConflicts rejects a current index that reuses the
// subspace key of a former index under a different name: the former
// index's physical key range may still hold un-cleaned-up entries, so
// reusing its key would corrupt reads against the new index.
func checkSubspaceConflicts(newSchema *schema.Schema) []Diagnostic {
	var diags []Diagnostic
	formerByKey := make(map[byte]string, len(newSchema.FormerIndexes()))
	for _, f := range newSchema.FormerIndexes() {
		formerByKey[f.SubspaceKey] = f.Name
	}
	for _, name := range newSchema.IndexNames() {
		idx, err := newSchema.Index(name)
		if err != nil {
			continue
		}
		if formerName, ok := formerByKey[idx.SubspaceKey]; ok && formerName != name {
			diags = append(diags, Diagnostic{Category: IndexSubspaceConflict, Subject: name,
				Detail: fmt.Sprintf("subspace key %d reuses former index %q's key range", idx.SubspaceKey, formerName)})
		}
	}
	return diags
}

func sameIndexFormat(oldIdx, newIdx schema.IndexDefinition) bool {
	return oldIdx.Kind == newIdx.Kind &&
		oldIdx.SubspaceKey == newIdx.SubspaceKey &&
		keyexpr.Equal(oldIdx.RootExpression, newIdx.RootExpression)
}

// checkFormerIndexes enforces spec.md §4.K's permanence rule: every
// former index in oldSchema must still be present, unchanged, in
// newSchema.
func checkFormerIndexes(oldSchema, newSchema *schema.Schema) []Diagnostic {
	var diags []Diagnostic
	newByName := make(map[string]schema.FormerIndex, len(newSchema.FormerIndexes()))
	for _, f := range newSchema.FormerIndexes() {
		newByName[f.Name] = f
	}
	for _, oldFormer := range oldSchema.FormerIndexes() {
		newFormer, ok := newByName[oldFormer.Name]
		if !ok {
			diags = append(diags, Diagnostic{Category: FormerIndexRemoved, Subject: oldFormer.Name,
				Detail: "former index entry removed"})
			continue
		}
		if newFormer != oldFormer {
			diags = append(diags, Diagnostic{Category: FormerIndexConflict, Subject: oldFormer.Name,
				Detail: "former index entry was mutated"})
		}
	}
	return diags
}

// fieldSet builds the set-membership/equality comparison checkPrimaryKey
// needs via the teacher's own set dependency, rather than a hand-rolled
// map[string]bool, per the teacher's go.mod direct require of
// github.com/deckarep/golang-set.
func fieldSet(names []string) mapset.Set {
	s := mapset.NewSet()
	for _, n := range names {
		s.Add(n)
	}
	return s
}
