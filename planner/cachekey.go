package planner

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"

	"github.com/ledgerwatch/recordlayer/tuple"
)

// CacheKey is a canonical, order-independent digest of a Query, per
// spec.md §4.I: composite filter children are sorted before hashing so
// logically identical queries built in a different child order collide
// in the cache instead of each taking their own slot.
type CacheKey [32]byte

// CanonicalKey computes q's cache key.
func CanonicalKey(q Query) CacheKey {
	h := sha256.New()
	h.Write([]byte(q.RecordType))
	writeFilter(h, canonicalizeFilter(q.Filter))
	for _, s := range q.Sort {
		h.Write([]byte(s.Field))
		writeBool(h, s.Ascending)
	}
	writeInt(h, int64(q.Limit))
	var out CacheKey
	copy(out[:], h.Sum(nil))
	return out
}

// canonicalizeFilter sorts And/Or children by their own canonical
// digest so structurally identical filters hash identically regardless
// of the order they were constructed in.
func canonicalizeFilter(f Filter) Filter {
	switch f.Kind {
	case FilterAnd, FilterOr:
		children := make([]Filter, len(f.Children))
		for i, c := range f.Children {
			children[i] = canonicalizeFilter(c)
		}
		sort.Slice(children, func(i, j int) bool {
			return filterDigest(children[i]) < filterDigest(children[j])
		})
		return Filter{Kind: f.Kind, Children: children}
	case FilterNot:
		return Filter{Kind: FilterNot, Children: []Filter{canonicalizeFilter(f.Children[0])}}
	default:
		return f
	}
}

func filterDigest(f Filter) string {
	h := sha256.New()
	writeFilter(h, f)
	return string(h.Sum(nil))
}

func writeFilter(h interface{ Write([]byte) (int, error) }, f Filter) {
	writeInt(h, int64(f.Kind))
	switch f.Kind {
	case FilterField:
		h.Write([]byte(f.Field))
		writeInt(h, int64(f.Cmp))
		h.Write(tuple.Encode(tuple.Tuple{f.Value}))
		for _, v := range f.Set {
			h.Write(tuple.Encode(tuple.Tuple{v}))
		}
	case FilterRange:
		h.Write([]byte(f.RangeField))
		writeOptionalValue(h, f.Lower)
		writeOptionalValue(h, f.Upper)
		writeBool(h, f.LowerIncl)
		writeBool(h, f.UpperIncl)
	case FilterAnd, FilterOr, FilterNot:
		for _, c := range f.Children {
			writeFilter(h, c)
		}
	}
}

func writeOptionalValue(h interface{ Write([]byte) (int, error) }, v *tuple.Value) {
	if v == nil {
		writeBool(h, false)
		return
	}
	writeBool(h, true)
	h.Write(tuple.Encode(tuple.Tuple{*v}))
}

func writeInt(h interface{ Write([]byte) (int, error) }, v int64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	h.Write(buf[:])
}

func writeBool(h interface{ Write([]byte) (int, error) }, v bool) {
	if v {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
}
