// Package planner implements the query planner and cost estimator of
// spec.md §4.I: a filter/sort/limit AST, safety-bounded rewriting, a
// cost model grounded on component J's statistics, and a canonical
// plan cache. New code — turbo-geth has no query planner to ground
// this on — built directly from spec.md §4.I's fully specified
// algorithm; the plan cache uses `hashicorp/golang-lru` the way the
// teacher uses it for `txpool`'s bounded caches (same dependency,
// same bounded-cache role, applied to plans instead of transactions).
package planner

import "github.com/ledgerwatch/recordlayer/tuple"

// Op enumerates the comparison operators spec.md §4.I names.
type Op uint8

const (
	OpEq Op = iota
	OpLt
	OpLe
	OpGt
	OpGe
	OpStartsWith
	OpContains
	OpIn
)

// Filter is the query predicate AST. Exactly one constructor's fields
// are meaningful, selected by Kind, mirroring keyexpr.Expr's tagged
// variant shape.
type Filter struct {
	Kind FilterKind

	// FieldCompare
	Field string
	Cmp   Op
	Value tuple.Value
	Set   []tuple.Value // OpIn operand

	// And / Or / Not
	Children []Filter

	// Range
	RangeField          string
	Lower, Upper         *tuple.Value
	LowerIncl, UpperIncl bool
}

// FilterKind tags a Filter's variant.
type FilterKind uint8

const (
	FilterField FilterKind = iota
	FilterAnd
	FilterOr
	FilterNot
	FilterRange
	FilterTrue  // constant-folded always-true
	FilterFalse // constant-folded always-false
)

func FieldCompare(field string, cmp Op, value tuple.Value) Filter {
	return Filter{Kind: FilterField, Field: field, Cmp: cmp, Value: value}
}

func FieldIn(field string, set []tuple.Value) Filter {
	return Filter{Kind: FilterField, Field: field, Cmp: OpIn, Set: set}
}

func And(children ...Filter) Filter { return Filter{Kind: FilterAnd, Children: children} }
func Or(children ...Filter) Filter  { return Filter{Kind: FilterOr, Children: children} }
func Not(child Filter) Filter       { return Filter{Kind: FilterNot, Children: []Filter{child}} }

func Range(field string, lower, upper *tuple.Value, lowerIncl, upperIncl bool) Filter {
	return Filter{Kind: FilterRange, RangeField: field, Lower: lower, Upper: upper, LowerIncl: lowerIncl, UpperIncl: upperIncl}
}

var True = Filter{Kind: FilterTrue}
var False = Filter{Kind: FilterFalse}

// SortKey is one element of a query's sort list.
type SortKey struct {
	Field     string
	Ascending bool
}

// Query is the typed filter/sort/limit request of spec.md §4.I. Filter
// has no implicit "match all" default: its Go zero value is a
// FilterField node (empty field, OpEq), not True. Callers that want an
// unconditional scan must set Filter to True explicitly.
type Query struct {
	RecordType string
	Filter     Filter
	Sort       []SortKey
	Limit      int // 0 means unbounded
}
