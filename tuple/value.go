// Package tuple implements the order-preserving tuple codec and
// subspace abstraction of spec.md §3/§4.A. A Value is a tagged variant
// over the supported element types (component A's "type-erased tuple
// elements" redesign note, §9): Null, Bool, Int, Float, String, Bytes,
// UUID, Timestamp, and nested Tuple.
package tuple

import (
	"time"

	"github.com/pborman/uuid"
)

// Tag orders the variants for comparison purposes. The numeric order
// here *is* the cross-type sort order the codec must preserve: a Bool
// always sorts below an Int, regardless of value, because its Tag is
// smaller. Null sorts lowest of all, matching spec.md §4.I's typed
// comparable value ordering ("null sorts lowest").
type Tag uint8

const (
	TagNull Tag = iota
	TagBool
	TagInt
	TagFloat
	TagString
	TagBytes
	TagUUID
	TagTimestamp
	TagTuple
)

// Value is one element of a Tuple. Exactly one of the typed fields is
// meaningful, selected by Tag.
type Value struct {
	tag   Tag
	b     bool
	i     int64
	f     float64
	s     string
	bs    []byte
	u     uuid.UUID
	ts    time.Time
	tuple Tuple
}

// Tuple is an ordered sequence of Values.
type Tuple []Value

func Null() Value                  { return Value{tag: TagNull} }
func Bool(v bool) Value            { return Value{tag: TagBool, b: v} }
func Int(v int64) Value            { return Value{tag: TagInt, i: v} }
func Float(v float64) Value        { return Value{tag: TagFloat, f: v} }
func String(v string) Value        { return Value{tag: TagString, s: v} }
func Bytes(v []byte) Value         { return Value{tag: TagBytes, bs: v} }
func UUID(v uuid.UUID) Value       { return Value{tag: TagUUID, u: v} }
func Timestamp(v time.Time) Value  { return Value{tag: TagTimestamp, ts: v.UTC()} }
func Nested(t Tuple) Value         { return Value{tag: TagTuple, tuple: t} }

func (v Value) Tag() Tag { return v.tag }

func (v Value) AsBool() bool           { return v.b }
func (v Value) AsInt() int64           { return v.i }
func (v Value) AsFloat() float64       { return v.f }
func (v Value) AsString() string       { return v.s }
func (v Value) AsBytes() []byte        { return v.bs }
func (v Value) AsUUID() uuid.UUID      { return v.u }
func (v Value) AsTimestamp() time.Time { return v.ts }
func (v Value) AsTuple() Tuple         { return v.tuple }

func (v Value) IsNull() bool { return v.tag == TagNull }

// Compare returns -1, 0, 1 the way bytes.Compare does, implementing
// the total order over supported types spec.md §3 requires: Null
// lowest, then a fixed cross-type tag order, then within-type natural
// order. This must stay consistent with Encode/Decode's byte ordering
// (the testable property in spec.md §8: a ≤ b ⇔ encode(a) ≤ encode(b)).
func (v Value) Compare(other Value) int {
	if v.tag != other.tag {
		if v.tag < other.tag {
			return -1
		}
		return 1
	}
	switch v.tag {
	case TagNull:
		return 0
	case TagBool:
		if v.b == other.b {
			return 0
		}
		if !v.b {
			return -1
		}
		return 1
	case TagInt:
		switch {
		case v.i < other.i:
			return -1
		case v.i > other.i:
			return 1
		default:
			return 0
		}
	case TagFloat:
		switch {
		case v.f < other.f:
			return -1
		case v.f > other.f:
			return 1
		default:
			return 0
		}
	case TagString:
		return compareBytes([]byte(v.s), []byte(other.s))
	case TagBytes:
		return compareBytes(v.bs, other.bs)
	case TagUUID:
		return compareBytes(v.u, other.u)
	case TagTimestamp:
		switch {
		case v.ts.Before(other.ts):
			return -1
		case v.ts.After(other.ts):
			return 1
		default:
			return 0
		}
	case TagTuple:
		return v.tuple.Compare(other.tuple)
	default:
		return 0
	}
}

func compareBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// Compare lexicographically compares two tuples element by element,
// then by length (a prefix sorts before its extension).
func (t Tuple) Compare(other Tuple) int {
	n := len(t)
	if len(other) < n {
		n = len(other)
	}
	for i := 0; i < n; i++ {
		if c := t[i].Compare(other[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(t) < len(other):
		return -1
	case len(t) > len(other):
		return 1
	default:
		return 0
	}
}

// Equal reports whether t and other compare equal element-wise.
func (t Tuple) Equal(other Tuple) bool { return t.Compare(other) == 0 }
