package keyexpr

import (
	"testing"

	"github.com/ledgerwatch/recordlayer/tuple"
)

func fieldsOf(m map[string]tuple.Value) FieldAccessor {
	return func(name string) (tuple.Value, bool) {
		v, ok := m[name]
		return v, ok
	}
}

func TestFieldEvaluate(t *testing.T) {
	acc := fieldsOf(map[string]tuple.Value{"id": tuple.Int(42)})
	vs, err := Evaluate(Field("id"), acc)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(vs) != 1 || vs[0].AsInt() != 42 {
		t.Errorf("unexpected result: %v", vs)
	}
}

func TestFieldMissingYieldsEmptyString(t *testing.T) {
	acc := fieldsOf(map[string]tuple.Value{})
	vs, err := Evaluate(Field("missing"), acc)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(vs) != 1 || vs[0].Tag() != tuple.TagString || vs[0].AsString() != "" {
		t.Errorf("expected single empty string, got %v", vs)
	}
}

func TestConcatColumnCount(t *testing.T) {
	e := Concat(Field("a"), Field("b"), Literal(tuple.Int(1), tuple.Int(2)))
	if got := e.ColumnCount(); got != 4 {
		t.Errorf("ColumnCount: got %d, want 4", got)
	}
	acc := fieldsOf(map[string]tuple.Value{"a": tuple.Int(1), "b": tuple.Int(2)})
	vs, err := Evaluate(e, acc)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(vs) != 4 {
		t.Errorf("expected 4 values, got %d", len(vs))
	}
}

func TestEmptyColumnCount(t *testing.T) {
	if got := Empty().ColumnCount(); got != 0 {
		t.Errorf("Empty ColumnCount: got %d, want 0", got)
	}
	vs, err := Evaluate(Empty(), fieldsOf(nil))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(vs) != 0 {
		t.Errorf("expected no values from Empty, got %v", vs)
	}
}

func TestNestColumnCountMatchesChild(t *testing.T) {
	e := Nest("addr", Concat(Field("street"), Field("city")))
	if got := e.ColumnCount(); got != 2 {
		t.Errorf("Nest ColumnCount: got %d, want 2", got)
	}
}

func TestNestMissingParentPadsWithEmpties(t *testing.T) {
	e := Nest("addr", Concat(Field("street"), Field("city")))
	vs, err := Evaluate(e, fieldsOf(nil))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(vs) != 2 {
		t.Fatalf("expected 2 padded values, got %d", len(vs))
	}
	for _, v := range vs {
		if v.Tag() != tuple.TagString || v.AsString() != "" {
			t.Errorf("expected empty string padding, got %v", v)
		}
	}
}

// unsupportedVisitor overrides nothing, so every Accept call falls
// through DefaultVisitor's UnsupportedExpression.
type unsupportedVisitor struct{ DefaultVisitor }

func TestDefaultVisitorFallthrough(t *testing.T) {
	v := unsupportedVisitor{}
	exprs := []Expr{Field("x"), Concat(), Nest("p", Empty()), Literal(tuple.Int(1)), Empty(), RangeBoundary("x", BoundLower)}
	for _, e := range exprs {
		if err := Accept(e, v); err == nil {
			t.Errorf("expected UnsupportedExpression for kind %v", e.Kind())
		}
	}
}

func TestFieldNames(t *testing.T) {
	e := Concat(Field("a"), Nest("p", Field("b")))
	names := FieldNames(e)
	if len(names) != 2 || names[0] != "a" || names[1] != "p.b" {
		t.Errorf("unexpected field names: %v", names)
	}
}
