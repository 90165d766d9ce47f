// Package stats implements the statistics manager of spec.md §4.J:
// per-record-type row counts and per-column histograms, persisted so
// the query planner's cost model (component I) can read them without
// a live sampling pass. Grounded on spec.md §4.I/§4.J directly — no
// teacher analog (turbo-geth has no cost-based planner) — but reuses
// `tuple.Value`'s existing tagged total order as the "typed comparable
// value" abstraction spec.md §4.I names, and `RoaringBitmap/roaring`
// for the sampled-row-ordinal set, the same compact-integer-set role
// the teacher gives roaring over block numbers in `ethdb/bitmapdb`.
package stats

import (
	"math/rand"
	"sort"

	"github.com/RoaringBitmap/roaring"
	"github.com/ledgerwatch/recordlayer/kv"
	"github.com/ledgerwatch/recordlayer/recorderr"
	"github.com/ledgerwatch/recordlayer/tuple"
)

// Bucket is one histogram bucket over a column's typed comparable
// values, per spec.md §4.I's `(lower, upper, count, distinct_count)`.
type Bucket struct {
	Lower, Upper   tuple.Value
	Count          int64
	DistinctCount  int64
}

// Histogram is an ascending, non-overlapping sequence of buckets for
// one column.
type Histogram struct {
	Buckets []Bucket
}

// TableStats is the persisted `{row_count, per_column_histogram}`
// record of spec.md §4.J for one record type.
type TableStats struct {
	RowCount   int64
	Histograms map[string]Histogram
}

// Manager persists TableStats at keyspace 8 of a record store's
// subspace, one entry per record type.
type Manager struct {
	subspace tuple.Subspace
	table    string
}

// New returns a statistics manager scoped to recordStoreSubspace.
func New(recordStoreSubspace tuple.Subspace, table string) *Manager {
	return &Manager{subspace: recordStoreSubspace.Sub(tuple.Int(8)), table: table}
}

func (m *Manager) key(recordType string) []byte {
	return m.subspace.Pack(tuple.Tuple{tuple.String(recordType)})
}

// Get returns the persisted stats for recordType, or ok=false if none
// have been collected yet.
func (m *Manager) Get(tx kv.Tx, recordType string) (TableStats, bool, error) {
	v, ok, err := tx.Get(m.table, m.key(recordType))
	if err != nil || !ok {
		return TableStats{}, false, err
	}
	st, derr := decodeStats(v)
	if derr != nil {
		return TableStats{}, false, recorderr.Wrap(recorderr.KindDeserializationFailed, derr, "decode statistics for %q", recordType)
	}
	return st, true, nil
}

// Put persists stats for recordType, overwriting any prior value.
func (m *Manager) Put(tx kv.RwTx, recordType string, st TableStats) error {
	return tx.Put(m.table, m.key(recordType), encodeStats(st))
}

// FieldAccessor extracts a named field's value from a record, the same
// contract recordstore.Record.FieldValue satisfies — declared here
// independently so this package has no import-cycle dependency on
// recordstore.
type FieldAccessor func(fieldName string) (tuple.Value, bool)

// Sample builds fresh TableStats by walking rows, reading each field
// named in columns. sampleRate in (0,1] controls what fraction of rows
// contribute to the histogram; 1.0 samples every row. Row counting is
// always exact (every row increments RowCount); only histogram
// construction is sampled, per spec.md §4.J's "sampling rate
// configurable".
func Sample(rows func(yield func(FieldAccessor) bool), columns []string, sampleRate float64, maxBucketsPerColumn int, rng *rand.Rand) TableStats {
	if sampleRate <= 0 {
		sampleRate = 1.0
	}
	if maxBucketsPerColumn <= 0 {
		maxBucketsPerColumn = 20
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	sampled := roaring.New()
	values := make(map[string][]tuple.Value, len(columns))
	for _, c := range columns {
		values[c] = nil
	}

	var rowCount int64
	var ordinal uint32
	rows(func(accessor FieldAccessor) bool {
		rowCount++
		take := sampleRate >= 1.0 || rng.Float64() < sampleRate
		if take {
			sampled.Add(ordinal)
			for _, c := range columns {
				if v, ok := accessor(c); ok {
					values[c] = append(values[c], v)
				}
			}
		}
		ordinal++
		return true
	})

	histograms := make(map[string]Histogram, len(columns))
	for _, c := range columns {
		histograms[c] = buildHistogram(values[c], maxBucketsPerColumn)
	}
	return TableStats{RowCount: rowCount, Histograms: histograms}
}

// buildHistogram sorts vs by the typed comparable order and splits it
// into at most maxBuckets equal-depth buckets, recording each bucket's
// count and distinct-value count.
func buildHistogram(vs []tuple.Value, maxBuckets int) Histogram {
	if len(vs) == 0 {
		return Histogram{}
	}
	sorted := append([]tuple.Value(nil), vs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Compare(sorted[j]) < 0 })

	bucketSize := (len(sorted) + maxBuckets - 1) / maxBuckets
	if bucketSize < 1 {
		bucketSize = 1
	}

	var buckets []Bucket
	for i := 0; i < len(sorted); i += bucketSize {
		end := i + bucketSize
		if end > len(sorted) {
			end = len(sorted)
		}
		chunk := sorted[i:end]
		distinct := make(map[string]struct{}, len(chunk))
		for _, v := range chunk {
			distinct[distinctKey(v)] = struct{}{}
		}
		buckets = append(buckets, Bucket{
			Lower:         chunk[0],
			Upper:         chunk[len(chunk)-1],
			Count:         int64(len(chunk)),
			DistinctCount: int64(len(distinct)),
		})
	}
	return Histogram{Buckets: buckets}
}

func distinctKey(v tuple.Value) string {
	return string(tuple.Encode(tuple.Tuple{v}))
}
