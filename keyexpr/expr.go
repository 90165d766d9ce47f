// Package keyexpr implements the key-expression tree of spec.md §3/§4.C:
// an algebraic tree of field-extraction expressions evaluated against
// a record to produce an ordered list of tuple elements. Per spec.md
// §9's redesign note, this replaces visitor-pattern polymorphism with
// a tagged variant plus a Visitor interface — no dynamic dispatch
// beyond the variant switch in Accept.
package keyexpr

import (
	"github.com/ledgerwatch/recordlayer/recorderr"
	"github.com/ledgerwatch/recordlayer/tuple"
)

// FieldAccessor extracts a named field's value from a record. Record
// descriptors (schema.RecordType) supply one; it is the only point
// where a key expression touches a concrete record type.
type FieldAccessor func(fieldName string) (tuple.Value, bool)

// Kind tags the Expr variant.
type Kind uint8

const (
	KindField Kind = iota
	KindConcat
	KindNest
	KindLiteral
	KindEmpty
	KindRangeBoundary
)

// Bound selects which end of a range a RangeBoundary expression
// represents.
type Bound uint8

const (
	BoundLower Bound = iota
	BoundUpper
)

// Expr is the tagged key-expression node. Exactly the fields relevant
// to Kind are populated.
type Expr struct {
	kind Kind

	field string // Field, RangeBoundary
	bound Bound  // RangeBoundary

	children []Expr // Concat

	parentField string // Nest
	child       *Expr  // Nest

	literal tuple.Tuple // Literal
}

func Field(name string) Expr           { return Expr{kind: KindField, field: name} }
func Concat(children ...Expr) Expr     { return Expr{kind: KindConcat, children: children} }
func Nest(parentField string, child Expr) Expr {
	return Expr{kind: KindNest, parentField: parentField, child: &child}
}
func Literal(values ...tuple.Value) Expr { return Expr{kind: KindLiteral, literal: tuple.Tuple(values)} }
func Empty() Expr                        { return Expr{kind: KindEmpty} }
func RangeBoundary(field string, bound Bound) Expr {
	return Expr{kind: KindRangeBoundary, field: field, bound: bound}
}

func (e Expr) Kind() Kind { return e.kind }

// ColumnCount reports how many tuple elements Evaluate produces for
// this expression, without evaluating it against a record.
func (e Expr) ColumnCount() int {
	switch e.kind {
	case KindField, KindRangeBoundary:
		return 1
	case KindConcat:
		n := 0
		for _, c := range e.children {
			n += c.ColumnCount()
		}
		return n
	case KindNest:
		return e.child.ColumnCount()
	case KindLiteral:
		return len(e.literal)
	case KindEmpty:
		return 0
	default:
		return 0
	}
}

// Evaluate walks the expression against a record (via accessor),
// producing an ordered list of tuple elements. A missing field
// evaluates to an empty string (tuple.String("")) rather than erroring,
// to preserve column count per spec.md §4.C.
func Evaluate(e Expr, accessor FieldAccessor) ([]tuple.Value, error) {
	switch e.kind {
	case KindField:
		v, ok := accessor(e.field)
		if !ok {
			return []tuple.Value{tuple.String("")}, nil
		}
		return []tuple.Value{v}, nil
	case KindConcat:
		out := make([]tuple.Value, 0, e.ColumnCount())
		for _, c := range e.children {
			vs, err := Evaluate(c, accessor)
			if err != nil {
				return nil, err
			}
			out = append(out, vs...)
		}
		return out, nil
	case KindNest:
		parent, ok := accessor(e.parentField)
		if !ok || parent.Tag() != tuple.TagTuple {
			// Missing or non-nested parent: pad with empties matching
			// the child's column count.
			out := make([]tuple.Value, e.child.ColumnCount())
			for i := range out {
				out[i] = tuple.String("")
			}
			return out, nil
		}
		nestedAccessor := func(name string) (tuple.Value, bool) {
			// Nested field access by positional name "0","1",... is not
			// meaningful here; Nest evaluates its child against the
			// parent's own nested tuple by re-dispatching Literal/Field
			// semantics is out of scope for a plain tuple payload, so a
			// Nest child must itself resolve via the same accessor
			// contract the caller supplied for nested record fields.
			return accessor(e.parentField + "." + name)
		}
		return Evaluate(*e.child, nestedAccessor)
	case KindLiteral:
		out := make([]tuple.Value, len(e.literal))
		copy(out, e.literal)
		return out, nil
	case KindEmpty:
		return nil, nil
	case KindRangeBoundary:
		v, ok := accessor(e.field)
		if !ok {
			return []tuple.Value{tuple.String("")}, nil
		}
		return []tuple.Value{v}, nil
	default:
		return nil, recorderr.ErrUnsupportedExpression
	}
}

// FieldNames returns the set of leaf field names this expression
// reads, used by the schema-evolution validator (component K) to
// check whether primary-key fields were renamed or restructured.
func FieldNames(e Expr) []string {
	switch e.kind {
	case KindField, KindRangeBoundary:
		return []string{e.field}
	case KindConcat:
		var out []string
		for _, c := range e.children {
			out = append(out, FieldNames(c)...)
		}
		return out
	case KindNest:
		var out []string
		for _, n := range FieldNames(*e.child) {
			out = append(out, e.parentField+"."+n)
		}
		return out
	default:
		return nil
	}
}

// Visitor lets callers traverse an expression tree without
// downcasting, per spec.md §4.C / §9. Embed DefaultVisitor to get a
// fallthrough that returns UnsupportedExpression for any variant not
// explicitly overridden.
type Visitor interface {
	VisitField(e Expr) error
	VisitConcat(e Expr) error
	VisitNest(e Expr) error
	VisitLiteral(e Expr) error
	VisitEmpty(e Expr) error
	VisitRangeBoundary(e Expr) error
}

// DefaultVisitor implements Visitor with every method returning
// ErrUnsupportedExpression; embed it and override only the variants a
// caller cares about.
type DefaultVisitor struct{}

func (DefaultVisitor) VisitField(Expr) error         { return recorderr.ErrUnsupportedExpression }
func (DefaultVisitor) VisitConcat(Expr) error        { return recorderr.ErrUnsupportedExpression }
func (DefaultVisitor) VisitNest(Expr) error          { return recorderr.ErrUnsupportedExpression }
func (DefaultVisitor) VisitLiteral(Expr) error       { return recorderr.ErrUnsupportedExpression }
func (DefaultVisitor) VisitEmpty(Expr) error         { return recorderr.ErrUnsupportedExpression }
func (DefaultVisitor) VisitRangeBoundary(Expr) error { return recorderr.ErrUnsupportedExpression }

// Accept dispatches e to the matching Visitor method.
func Accept(e Expr, v Visitor) error {
	switch e.kind {
	case KindField:
		return v.VisitField(e)
	case KindConcat:
		return v.VisitConcat(e)
	case KindNest:
		return v.VisitNest(e)
	case KindLiteral:
		return v.VisitLiteral(e)
	case KindEmpty:
		return v.VisitEmpty(e)
	case KindRangeBoundary:
		return v.VisitRangeBoundary(e)
	default:
		return recorderr.ErrUnsupportedExpression
	}
}

// Field returns the field name for Field/RangeBoundary nodes.
func (e Expr) Field() string { return e.field }

// Bound returns the bound selector for RangeBoundary nodes.
func (e Expr) Bound() Bound { return e.bound }

// Children returns the child list for Concat nodes.
func (e Expr) Children() []Expr { return e.children }

// NestedChild returns the child expression for Nest nodes.
func (e Expr) NestedChild() Expr { return *e.child }

// ParentField returns the parent field name for Nest nodes.
func (e Expr) ParentField() string { return e.parentField }

// LiteralValues returns the literal tuple for Literal nodes.
func (e Expr) LiteralValues() tuple.Tuple { return e.literal }

// Equal reports whether a and b are structurally identical
// expressions, used by the schema-evolution validator (component K)
// to detect whether an index's key expression changed shape across
// schema versions.
func Equal(a, b Expr) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindField:
		return a.field == b.field
	case KindRangeBoundary:
		return a.field == b.field && a.bound == b.bound
	case KindConcat:
		if len(a.children) != len(b.children) {
			return false
		}
		for i := range a.children {
			if !Equal(a.children[i], b.children[i]) {
				return false
			}
		}
		return true
	case KindNest:
		return a.parentField == b.parentField && Equal(*a.child, *b.child)
	case KindLiteral:
		if len(a.literal) != len(b.literal) {
			return false
		}
		for i := range a.literal {
			if a.literal[i].Compare(b.literal[i]) != 0 {
				return false
			}
		}
		return true
	case KindEmpty:
		return true
	default:
		return false
	}
}
