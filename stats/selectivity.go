package stats

import "github.com/ledgerwatch/recordlayer/tuple"

// defaultSelectivity is spec.md §4.I's conservative fallback when no
// histogram is available for a column.
const defaultSelectivity = 0.1

// epsilon guards every division in this package per spec.md §4.I: any
// denominator with |x| < epsilon returns the default rather than
// dividing.
const epsilon = 1e-10

func safeDiv(num, den, fallback float64) float64 {
	if den < 0 {
		den = -den
	}
	if den < epsilon {
		return fallback
	}
	return num / den
}

// EqualitySelectivity estimates the fraction of rows equal to value,
// per spec.md §4.I: `bucket.count / (bucket.distinct_count * total)`
// for the bucket containing value, or the default if no bucket
// contains it.
func (h Histogram) EqualitySelectivity(value tuple.Value, total int64) float64 {
	for _, b := range h.Buckets {
		if value.Compare(b.Lower) >= 0 && value.Compare(b.Upper) <= 0 {
			return safeDiv(float64(b.Count), float64(b.DistinctCount)*float64(total), defaultSelectivity)
		}
	}
	return defaultSelectivity
}

// RangeSelectivity estimates the fraction of rows within [lower, upper]
// (either bound may be absent — an open range), per spec.md §4.I's sum
// over overlapping buckets of `bucket.count * overlap_fraction`.
func (h Histogram) RangeSelectivity(lower, upper *tuple.Value, total int64) float64 {
	if len(h.Buckets) == 0 || total <= 0 {
		return defaultSelectivity
	}
	var matched float64
	for _, b := range h.Buckets {
		if lower != nil && b.Upper.Compare(*lower) < 0 {
			continue
		}
		if upper != nil && b.Lower.Compare(*upper) > 0 {
			continue
		}
		matched += float64(b.Count) * overlapFraction(b, lower, upper)
	}
	return safeDiv(matched, float64(total), defaultSelectivity)
}

// overlapFraction estimates what portion of bucket b falls within
// [lower, upper], assuming a uniform distribution of values across the
// bucket's span — the same simplifying assumption spec.md §4.I's
// one-line range formula implies. Non-numeric bucket spans (equal
// Lower/Upper) are treated as fully or not-at-all overlapping.
func overlapFraction(b Bucket, lower, upper *tuple.Value) float64 {
	bucketLowerIncluded := lower == nil || b.Lower.Compare(*lower) >= 0
	bucketUpperIncluded := upper == nil || b.Upper.Compare(*upper) <= 0
	if bucketLowerIncluded && bucketUpperIncluded {
		return 1.0
	}
	if b.Lower.Tag() != tuple.TagInt && b.Lower.Tag() != tuple.TagFloat {
		// Non-numeric span: partial overlap can't be fractionally
		// estimated, so treat any overlap as half the bucket.
		return 0.5
	}
	span := numericSpan(b.Upper) - numericSpan(b.Lower)
	if span <= epsilon {
		return 1.0
	}
	effLower := numericSpan(b.Lower)
	if lower != nil && numericSpan(*lower) > effLower {
		effLower = numericSpan(*lower)
	}
	effUpper := numericSpan(b.Upper)
	if upper != nil && numericSpan(*upper) < effUpper {
		effUpper = numericSpan(*upper)
	}
	overlap := effUpper - effLower
	if overlap <= 0 {
		return 0
	}
	return safeDiv(overlap, span, 0.5)
}

func numericSpan(v tuple.Value) float64 {
	if v.Tag() == tuple.TagInt {
		return float64(v.AsInt())
	}
	return v.AsFloat()
}
