package tuple

import (
	"bytes"

	"github.com/ledgerwatch/recordlayer/recorderr"
)

// Subspace is an opaque byte prefix defining a contiguous keyspace
// region, per spec.md §3/§4.A. Grounded on the teacher's prefix-style
// bucket keyspace partitioning (common/dbutils.Buckets), generalized
// into a composable, packable type.
type Subspace struct {
	prefix []byte
}

// FromBytes wraps an existing byte prefix as a Subspace.
func FromBytes(prefix []byte) Subspace {
	cp := make([]byte, len(prefix))
	copy(cp, prefix)
	return Subspace{prefix: cp}
}

// Sub returns a child subspace nesting additional tuple elements under
// this one's prefix (e.g. a record store's keyspace tags §3: `1` for
// records, `3` for index entries, ...).
func (s Subspace) Sub(elems ...Value) Subspace {
	return Subspace{prefix: append(append([]byte{}, s.prefix...), Encode(elems)...)}
}

// Bytes returns the subspace's raw prefix.
func (s Subspace) Bytes() []byte {
	cp := make([]byte, len(s.prefix))
	copy(cp, s.prefix)
	return cp
}

// Pack encodes t and prepends the subspace prefix, producing a key
// that lives inside this subspace's range.
func (s Subspace) Pack(t Tuple) []byte {
	encoded := Encode(t)
	out := make([]byte, 0, len(s.prefix)+len(encoded))
	out = append(out, s.prefix...)
	out = append(out, encoded...)
	return out
}

// Unpack strips the subspace prefix from key and decodes the
// remainder as a Tuple. Fails with InvalidKey if key does not start
// with the subspace's prefix.
func (s Subspace) Unpack(key []byte) (Tuple, error) {
	if !bytes.HasPrefix(key, s.prefix) {
		return nil, recorderr.New(recorderr.KindInvalidKey, "key does not start with subspace prefix")
	}
	return Decode(key[len(s.prefix):])
}

// Contains reports whether key falls within this subspace's range.
func (s Subspace) Contains(key []byte) bool {
	return bytes.HasPrefix(key, s.prefix)
}

// Range returns the half-open byte range [begin, end) covering every
// key in this subspace, per spec.md §4.A: end = strinc(prefix).
func (s Subspace) Range() (begin, end []byte) {
	begin = s.Bytes()
	end = Strinc(s.prefix)
	return begin, end
}

// Strinc returns the lexicographic successor of prefix: the smallest
// byte string that is strictly greater than every string having
// prefix as a prefix. It increments the last byte that is not 0xFF,
// truncating any trailing 0xFF bytes; an all-0xFF (or empty) prefix
// strinc's to a single 0x00 byte appended, per spec.md §4.A and the
// boundary behavior named in §8 ("prefix ending in 0xFF must append
// 0x00").
func Strinc(prefix []byte) []byte {
	// Trim trailing 0xFF bytes: they cannot be incremented in place.
	end := len(prefix)
	for end > 0 && prefix[end-1] == 0xFF {
		end--
	}
	if end == 0 {
		// prefix was empty or all 0xFF: successor is a single 0x00 byte
		// appended to the full, untrimmed prefix.
		out := make([]byte, len(prefix)+1)
		copy(out, prefix)
		out[len(prefix)] = 0x00
		return out
	}
	out := make([]byte, end)
	copy(out, prefix[:end])
	out[end-1]++
	return out
}
