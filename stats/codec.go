package stats

import (
	"fmt"

	"github.com/ledgerwatch/recordlayer/tuple"
	"google.golang.org/protobuf/encoding/protowire"
)

// encodeStats/decodeStats serialize a TableStats for storage as a KV
// value. Unlike tuple keys, values carry no ordering requirement, so
// this uses protowire's varint/length-delimited primitives directly
// (without a generated .proto message) rather than the order-preserving
// tuple codec — the same "value side, no ordering requirement" role
// spec.md carves out for protowire framing on count/sum index payloads
// and RangeSet end keys.
func encodeStats(st TableStats) []byte {
	var buf []byte
	buf = protowire.AppendVarint(buf, uint64(st.RowCount))
	buf = protowire.AppendVarint(buf, uint64(len(st.Histograms)))

	for col, h := range st.Histograms {
		buf = protowire.AppendString(buf, col)
		buf = protowire.AppendVarint(buf, uint64(len(h.Buckets)))
		for _, b := range h.Buckets {
			buf = protowire.AppendBytes(buf, tuple.Encode(tuple.Tuple{b.Lower}))
			buf = protowire.AppendBytes(buf, tuple.Encode(tuple.Tuple{b.Upper}))
			buf = protowire.AppendVarint(buf, uint64(b.Count))
			buf = protowire.AppendVarint(buf, uint64(b.DistinctCount))
		}
	}
	return buf
}

type byteReader struct {
	b []byte
}

func (r *byteReader) varint() (uint64, error) {
	v, n := protowire.ConsumeVarint(r.b)
	if n < 0 {
		return 0, fmt.Errorf("stats: truncated varint")
	}
	r.b = r.b[n:]
	return v, nil
}

func (r *byteReader) bytes() ([]byte, error) {
	v, n := protowire.ConsumeBytes(r.b)
	if n < 0 {
		return nil, fmt.Errorf("stats: truncated length-delimited field")
	}
	r.b = r.b[n:]
	return v, nil
}

func decodeStats(data []byte) (TableStats, error) {
	r := &byteReader{b: data}
	rowCount, err := r.varint()
	if err != nil {
		return TableStats{}, err
	}
	numCols, err := r.varint()
	if err != nil {
		return TableStats{}, err
	}
	histograms := make(map[string]Histogram, numCols)
	for i := uint64(0); i < numCols; i++ {
		colBytes, err := r.bytes()
		if err != nil {
			return TableStats{}, err
		}
		numBuckets, err := r.varint()
		if err != nil {
			return TableStats{}, err
		}
		buckets := make([]Bucket, 0, numBuckets)
		for j := uint64(0); j < numBuckets; j++ {
			lowerBytes, err := r.bytes()
			if err != nil {
				return TableStats{}, err
			}
			upperBytes, err := r.bytes()
			if err != nil {
				return TableStats{}, err
			}
			lowerTuple, err := tuple.Decode(lowerBytes)
			if err != nil {
				return TableStats{}, err
			}
			upperTuple, err := tuple.Decode(upperBytes)
			if err != nil {
				return TableStats{}, err
			}
			count, err := r.varint()
			if err != nil {
				return TableStats{}, err
			}
			distinct, err := r.varint()
			if err != nil {
				return TableStats{}, err
			}
			buckets = append(buckets, Bucket{
				Lower:         lowerTuple[0],
				Upper:         upperTuple[0],
				Count:         int64(count),
				DistinctCount: int64(distinct),
			})
		}
		histograms[string(colBytes)] = Histogram{Buckets: buckets}
	}
	return TableStats{RowCount: int64(rowCount), Histograms: histograms}, nil
}
