package index

import (
	"github.com/ledgerwatch/recordlayer/kv"
	"github.com/ledgerwatch/recordlayer/schema"
	"github.com/ledgerwatch/recordlayer/tuple"
)

// SpatialMaintainer implements spec.md §4.G's spatial index: each
// coordinate is normalized to [0,1] and interleaved into a Morton
// (Z-order) code, keyed by that code. The maintainer writes a single
// point per record; this package does not decompose a bounding box
// into covering Morton ranges, so it offers no spatial range query.
type SpatialMaintainer struct{}

const (
	defaultLevel2D = 18 // bits per dimension for 2D -> 36 bits total
	defaultLevel3D = 16 // bits per dimension for 3D -> 48 bits total
)

func levelFor(def schema.IndexDefinition) int {
	if def.Options.SpatialLevel > 0 {
		return def.Options.SpatialLevel
	}
	if def.Options.SpatialDimensions == 3 {
		return defaultLevel3D
	}
	return defaultLevel2D
}

// MortonEncode2D interleaves two [0,1]-normalized coordinates into a
// single Morton code at the given per-dimension bit level.
func MortonEncode2D(x, y float64, level int) uint64 {
	return interleave2(quantize(x, level), quantize(y, level))
}

// MortonDecode2D recovers the normalized (x, y) coordinates a Morton
// code was built from, accurate to within 2^-level per spec.md §8.
func MortonDecode2D(code uint64, level int) (x, y float64) {
	xi, yi := deinterleave2(code)
	return dequantize(xi, level), dequantize(yi, level)
}

// MortonEncode3D interleaves three [0,1]-normalized coordinates
// (longitude, latitude, altitude-fraction) into a single Morton code.
func MortonEncode3D(x, y, z float64, level int) uint64 {
	return interleave3(quantize(x, level), quantize(y, level), quantize(z, level))
}

func quantize(v float64, level int) uint64 {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	max := uint64(1)<<uint(level) - 1
	return uint64(v * float64(max))
}

func dequantize(q uint64, level int) float64 {
	max := uint64(1)<<uint(level) - 1
	if max == 0 {
		return 0
	}
	return float64(q) / float64(max)
}

func interleave2(x, y uint64) uint64 {
	var code uint64
	for i := 0; i < 32; i++ {
		code |= ((x >> uint(i)) & 1) << uint(2*i)
		code |= ((y >> uint(i)) & 1) << uint(2*i+1)
	}
	return code
}

func deinterleave2(code uint64) (x, y uint64) {
	for i := 0; i < 32; i++ {
		x |= ((code >> uint(2*i)) & 1) << uint(i)
		y |= ((code >> uint(2*i+1)) & 1) << uint(i)
	}
	return x, y
}

func interleave3(x, y, z uint64) uint64 {
	var code uint64
	for i := 0; i < 21; i++ {
		code |= ((x >> uint(i)) & 1) << uint(3*i)
		code |= ((y >> uint(i)) & 1) << uint(3*i+1)
		code |= ((z >> uint(i)) & 1) << uint(3*i+2)
	}
	return code
}

// SpatialRepresentable is the record-side contract a spatial index's
// root expression must ultimately resolve to: normalized coordinate
// values ready for Morton encoding.
type SpatialRepresentable struct {
	X, Y, Z float64
	Is3D    bool
}

func (SpatialMaintainer) mortonValue(def schema.IndexDefinition, values []tuple.Value) tuple.Value {
	level := levelFor(def)
	if def.Options.SpatialDimensions == 3 && len(values) >= 3 {
		code := MortonEncode3D(values[0].AsFloat(), values[1].AsFloat(), values[2].AsFloat(), level)
		return tuple.Int(int64(code))
	}
	if len(values) >= 2 {
		code := MortonEncode2D(values[0].AsFloat(), values[1].AsFloat(), level)
		return tuple.Int(int64(code))
	}
	return tuple.Int(0)
}

func (s SpatialMaintainer) ApplyInsert(tx kv.RwTx, subspace tuple.Subspace, def schema.IndexDefinition, d Delta) error {
	key := entryKey(subspace, def.SubspaceKey, []tuple.Value{s.mortonValue(def, d.NewValues)}, d.PrimaryKey)
	return tx.Put(tableName(subspace), key, []byte{})
}

func (s SpatialMaintainer) ApplyUpdate(tx kv.RwTx, subspace tuple.Subspace, def schema.IndexDefinition, d Delta) error {
	oldCode := s.mortonValue(def, d.OldValues)
	newCode := s.mortonValue(def, d.NewValues)
	if oldCode.Compare(newCode) == 0 {
		return nil
	}
	oldKey := entryKey(subspace, def.SubspaceKey, []tuple.Value{oldCode}, d.PrimaryKey)
	if err := tx.Delete(tableName(subspace), oldKey); err != nil {
		return err
	}
	newKey := entryKey(subspace, def.SubspaceKey, []tuple.Value{newCode}, d.PrimaryKey)
	return tx.Put(tableName(subspace), newKey, []byte{})
}

func (s SpatialMaintainer) ApplyDelete(tx kv.RwTx, subspace tuple.Subspace, def schema.IndexDefinition, d Delta) error {
	key := entryKey(subspace, def.SubspaceKey, []tuple.Value{s.mortonValue(def, d.OldValues)}, d.PrimaryKey)
	return tx.Delete(tableName(subspace), key)
}
