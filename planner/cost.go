package planner

import (
	"sort"

	"github.com/ledgerwatch/recordlayer/stats"
	"github.com/ledgerwatch/recordlayer/tuple"
)

// CostParams are the per-operation unit costs the cost model scales
// row counts by; callers tune these to their storage engine's observed
// characteristics.
type CostParams struct {
	IORead     float64
	Deserialize float64
	FilterCPU  float64
}

// DefaultCostParams are conservative, storage-engine-agnostic unit
// costs used when the caller supplies none.
var DefaultCostParams = CostParams{IORead: 1.0, Deserialize: 0.5, FilterCPU: 0.1}

// epsilonGuard mirrors stats' division guard: any denominator whose
// absolute value is below 1e-10 yields fallback, per spec.md §4.I.
func epsilonGuard(den, fallback float64, compute func() float64) float64 {
	d := den
	if d < 0 {
		d = -d
	}
	if d < 1e-10 {
		return fallback
	}
	return compute()
}

// Selectivity estimates the fraction of rows matching f, given the
// pre-fetched TableStats (spec.md §4.I requires statistics be fetched
// once up front so cost functions stay synchronous and recursive).
func Selectivity(f Filter, st stats.TableStats, rowCount int64) float64 {
	switch f.Kind {
	case FilterTrue:
		return 1.0
	case FilterFalse:
		return 0.0
	case FilterField:
		h, ok := st.Histograms[f.Field]
		if !ok {
			return 0.1
		}
		if f.Cmp == OpEq {
			return h.EqualitySelectivity(f.Value, rowCount)
		}
		if f.Cmp == OpIn {
			var sum float64
			for _, v := range f.Set {
				sum += h.EqualitySelectivity(v, rowCount)
			}
			if sum > 1.0 {
				sum = 1.0
			}
			return sum
		}
		lower, upper := boundsFromCmp(f.Cmp, f.Value)
		return h.RangeSelectivity(lower, upper, rowCount)
	case FilterRange:
		h, ok := st.Histograms[f.RangeField]
		if !ok {
			return 0.1
		}
		return h.RangeSelectivity(f.Lower, f.Upper, rowCount)
	case FilterAnd:
		sel := 1.0
		for _, c := range f.Children {
			sel *= Selectivity(c, st, rowCount)
		}
		return sel
	case FilterOr:
		// Independence assumption: P(A or B) = 1 - Π(1 - P(child)).
		product := 1.0
		for _, c := range f.Children {
			product *= (1.0 - Selectivity(c, st, rowCount))
		}
		return 1.0 - product
	case FilterNot:
		return 1.0 - Selectivity(f.Children[0], st, rowCount)
	default:
		return 0.1
	}
}

func boundsFromCmp(op Op, v tuple.Value) (lower, upper *tuple.Value) {
	switch op {
	case OpLt, OpLe:
		return nil, &v
	case OpGt, OpGe:
		return &v, nil
	default:
		return nil, nil
	}
}

// CostFullScan implements spec.md §4.I's FullScan cost formula.
func CostFullScan(rowCount int64, filter Filter, st stats.TableStats, params CostParams) Cost {
	rows := float64(rowCount)
	sel := Selectivity(filter, st, rowCount)
	return Cost{
		IO:            rows * params.IORead,
		CPU:           rows * (params.Deserialize + params.FilterCPU),
		EstimatedRows: rows * sel,
	}
}

// CostIndexScan implements spec.md §4.I's IndexScan cost formula.
func CostIndexScan(keyRangeRows int64, params CostParams) Cost {
	rows := float64(keyRangeRows)
	return Cost{
		IO:            rows * params.IORead,
		CPU:           rows * params.FilterCPU,
		EstimatedRows: rows,
	}
}

// CostIntersection implements spec.md §4.I's Intersection cost
// formula: children sorted ascending by estimated rows, IO is the
// sum, selectivity multiplies across children, CPU is dominated by the
// largest child.
func CostIntersection(children []Cost, totalRows int64) Cost {
	sorted := append([]Cost(nil), children...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].EstimatedRows < sorted[j].EstimatedRows })

	var io, maxCPU, selTotal float64
	selTotal = 1.0
	for _, c := range sorted {
		io += c.IO
		if c.CPU > maxCPU {
			maxCPU = c.CPU
		}
		selTotal *= epsilonGuard(float64(totalRows), 0.1, func() float64 { return c.EstimatedRows / float64(totalRows) })
	}
	return Cost{
		IO:            io,
		CPU:           maxCPU,
		EstimatedRows: float64(totalRows) * selTotal,
	}
}

// CostLimit implements spec.md §4.I's Limit cost formula.
func CostLimit(child Cost, n int) Cost {
	if child.EstimatedRows <= 0 {
		return Cost{}
	}
	limitFactor := float64(n) / child.EstimatedRows
	if limitFactor > 1 {
		limitFactor = 1
	}
	return Cost{
		IO:            child.IO * limitFactor,
		CPU:           child.CPU * limitFactor,
		EstimatedRows: child.EstimatedRows * limitFactor,
	}
}
