package tuple

import (
	"bytes"
	"math/rand"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/pborman/uuid"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Tuple{
		{Null()},
		{Bool(true), Bool(false)},
		{Int(0), Int(-1), Int(1), Int(1 << 62)},
		{Float(0.0), Float(-1.5), Float(3.14159)},
		{String(""), String("hello"), String("a\x00b")},
		{Bytes(nil), Bytes([]byte{0x00, 0xFF, 0x00})},
		{UUID(uuid.NewRandom())},
		{Timestamp(time.Unix(1000, 0).UTC())},
		{Nested(Tuple{Int(1), String("x")})},
	}
	for i, c := range cases {
		enc := Encode(c)
		dec, err := Decode(enc)
		require.NoErrorf(t, err, "case %d: decode error", i)
		require.Truef(t, c.Equal(dec), "case %d: round trip mismatch:\nwant %s\ngot  %s", i, spew.Sdump(c), spew.Sdump(dec))
	}
}

func TestEncodeOrderPreserving(t *testing.T) {
	pairs := []struct {
		a, b Tuple
	}{
		{Tuple{Int(-5)}, Tuple{Int(5)}},
		{Tuple{Int(0)}, Tuple{Int(1)}},
		{Tuple{Float(-1.0)}, Tuple{Float(1.0)}},
		{Tuple{Float(1.0)}, Tuple{Float(2.0)}},
		{Tuple{String("a")}, Tuple{String("b")}},
		{Tuple{String("a")}, Tuple{String("aa")}},
		{Tuple{String("a\x00")}, Tuple{String("a\x01")}},
		{Tuple{Bytes([]byte{1, 2})}, Tuple{Bytes([]byte{1, 3})}},
		{Tuple{Null()}, Tuple{Bool(false)}},
		{Tuple{Bool(false)}, Tuple{Int(-1 << 62)}},
		{Tuple{Int(1)}, Tuple{String("")}},
		{Tuple{Int(1), String("a")}, Tuple{Int(1), String("b")}},
		{Tuple{Int(1)}, Tuple{Int(1), Int(0)}},
	}
	for i, p := range pairs {
		if p.a.Compare(p.b) >= 0 {
			t.Errorf("case %d: expected a < b by Compare", i)
		}
		ea, eb := Encode(p.a), Encode(p.b)
		if bytes.Compare(ea, eb) >= 0 {
			t.Errorf("case %d: expected encode(a) < encode(b), got %x >= %x", i, ea, eb)
		}
	}
}

func TestEncodeOrderPreservingRandomized(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		a := Int(r.Int63() - (1 << 62))
		b := Int(r.Int63() - (1 << 62))
		ta, tb := Tuple{a}, Tuple{b}
		cmpVal := ta.Compare(tb)
		cmpBytes := bytes.Compare(Encode(ta), Encode(tb))
		if sign(cmpVal) != sign(cmpBytes) {
			t.Fatalf("mismatch at i=%d: a=%d b=%d value-cmp=%d byte-cmp=%d", i, a.AsInt(), b.AsInt(), cmpVal, cmpBytes)
		}
	}
}

func sign(x int) int {
	switch {
	case x < 0:
		return -1
	case x > 0:
		return 1
	default:
		return 0
	}
}

func TestDecodeTruncatedFails(t *testing.T) {
	enc := Encode(Tuple{Int(42)})
	if _, err := Decode(enc[:len(enc)-1]); err == nil {
		t.Errorf("expected error decoding truncated int")
	}
}

func TestNestedTupleTerminator(t *testing.T) {
	inner := Tuple{Int(1), Nested(Tuple{String("deep")})}
	outer := Tuple{Nested(inner), Int(2)}
	enc := Encode(outer)
	dec, err := Decode(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !dec.Equal(outer) {
		t.Errorf("nested round trip mismatch: got %v want %v", dec, outer)
	}
}
