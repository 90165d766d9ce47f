package index

import (
	"hash/crc32"

	"github.com/RoaringBitmap/roaring"
	"github.com/ledgerwatch/recordlayer/kv"
	"github.com/ledgerwatch/recordlayer/schema"
	"github.com/ledgerwatch/recordlayer/tuple"
)

// VectorMaintainer implements spec.md §4.G's vector (HNSW) index.
// Inline maintenance only ever writes the dense-array sidecar entry
// for a record; the approximate nearest-neighbor graph itself is built
// out-of-band by the online indexer's hnsw_batch strategy (package
// onlineindex). ApplyInsert/Update/Delete here never touch the graph.
type VectorMaintainer struct{}

func sidecarKey(subspace tuple.Subspace, subspaceKey byte, pk tuple.Tuple) []byte {
	t := make(tuple.Tuple, 0, 2+len(pk))
	t = append(t, tuple.Int(3), tuple.Int(int64(subspaceKey)))
	t = append(t, pk...)
	return subspace.Pack(t)
}

func encodeVector(v []float64) []byte {
	out := make([]byte, 0, len(v)*8)
	for _, f := range v {
		bits := tuple.Encode(tuple.Tuple{tuple.Float(f)})
		out = append(out, bits...)
	}
	return out
}

func (VectorMaintainer) vectorFromValues(values []tuple.Value) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = v.AsFloat()
	}
	return out
}

func (v VectorMaintainer) ApplyInsert(tx kv.RwTx, subspace tuple.Subspace, def schema.IndexDefinition, d Delta) error {
	key := sidecarKey(subspace, def.SubspaceKey, d.PrimaryKey)
	return tx.Put(tableName(subspace), key, encodeVector(v.vectorFromValues(d.NewValues)))
}

func (v VectorMaintainer) ApplyUpdate(tx kv.RwTx, subspace tuple.Subspace, def schema.IndexDefinition, d Delta) error {
	return v.ApplyInsert(tx, subspace, def, d)
}

func (v VectorMaintainer) ApplyDelete(tx kv.RwTx, subspace tuple.Subspace, def schema.IndexDefinition, d Delta) error {
	key := sidecarKey(subspace, def.SubspaceKey, d.PrimaryKey)
	return tx.Delete(tableName(subspace), key)
}

type scoredPK struct {
	pk   tuple.Tuple
	dist float64
}

// FlatScanCursor carries a flat_scan across batch boundaries: the key
// to resume the range scan from, the running top-k found so far, and a
// roaring bitmap of the CRC32 of every sidecar key already folded into
// that top-k. The resume key is inclusive of the last key the prior
// batch processed rather than its strict successor, so a scan that
// gets checkpointed and resumed after a concurrent record near that
// boundary was inserted or deleted still re-reads that boundary row —
// visited is what keeps that deliberate one-row overlap from being
// scored twice.
type FlatScanCursor struct {
	resumeKey []byte
	visited   *roaring.Bitmap
	best      []scoredPK
}

// NewFlatScanCursor returns a cursor starting a fresh flat_scan.
func NewFlatScanCursor() *FlatScanCursor {
	return &FlatScanCursor{visited: roaring.New()}
}

// FlatScanNearest implements the flat_scan fallback strategy: an O(n)
// scan over sidecar entries, scoring each by squared Euclidean distance
// to query and folding it into cur's running k-nearest. It processes at
// most batchSize rows per call; pass the returned cursor back in to
// resume, the way onlineindex.Indexer.buildBatch checkpoints an index
// build across transactions. done reports whether the whole keyspace
// has been scanned, at which point results holds the final k nearest
// primary keys (nil until done).
func FlatScanNearest(tx kv.RwTx, subspace tuple.Subspace, def schema.IndexDefinition, query []float64, k, batchSize int, cur *FlatScanCursor) (results []tuple.Tuple, next *FlatScanCursor, done bool, err error) {
	if cur == nil {
		cur = NewFlatScanCursor()
	}
	prefix := tuple.Tuple{tuple.Int(3), tuple.Int(int64(def.SubspaceKey))}
	begin := subspace.Pack(prefix)
	end := tuple.Strinc(begin)
	if cur.resumeKey != nil {
		begin = cur.resumeKey
	}

	it, rerr := tx.Range(tableName(subspace), begin, end)
	if rerr != nil {
		return nil, nil, false, rerr
	}
	defer it.Close()

	n := 0
	for n < batchSize && it.Next() {
		key := it.Key()
		ordinal := crc32.ChecksumIEEE(key)
		if cur.visited.Contains(ordinal) {
			continue
		}
		cur.visited.Add(ordinal)
		full, uerr := subspace.Unpack(key)
		if uerr != nil {
			return nil, nil, false, uerr
		}
		pk := full[2:]
		vec := decodeVector(it.Value())
		cur.best = append(cur.best, scoredPK{pk: pk, dist: squaredDistance(query, vec)})
		cur.resumeKey = append([]byte{}, key...)
		n++
	}
	if ierr := it.Err(); ierr != nil {
		return nil, nil, false, ierr
	}

	keepTopK(cur.best, k)
	if len(cur.best) > k {
		cur.best = cur.best[:k]
	}

	done = n < batchSize
	if !done {
		return nil, cur, false, nil
	}
	out := make([]tuple.Tuple, len(cur.best))
	for i, s := range cur.best {
		out[i] = s.pk
	}
	return out, cur, true, nil
}

// keepTopK partially selection-sorts best's first k entries by
// ascending distance in place; n is expected to be small for the
// flat_scan fallback (spec.md §4.G documents it as O(n), not an
// index-scale primary strategy), so a selection sort over the
// accumulated candidates suffices.
func keepTopK(best []scoredPK, k int) {
	limit := k
	if limit > len(best) {
		limit = len(best)
	}
	for i := 0; i < limit; i++ {
		minIdx := i
		for j := i + 1; j < len(best); j++ {
			if best[j].dist < best[minIdx].dist {
				minIdx = j
			}
		}
		best[i], best[minIdx] = best[minIdx], best[i]
	}
}

// decodeVector reverses encodeVector: each element is a fixed 9-byte
// tuple-float encoding (1 tag byte + 8 ordered-float bytes).
func decodeVector(b []byte) []float64 {
	var out []float64
	const elemSize = 9
	for i := 0; i+elemSize <= len(b); i += elemSize {
		vals, err := tuple.Decode(b[i : i+elemSize])
		if err != nil || len(vals) == 0 {
			continue
		}
		out = append(out, vals[0].AsFloat())
	}
	return out
}

func squaredDistance(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
