package planner

// PushNotDown applies De Morgan's laws recursively, eliminating Not
// nodes in favor of negated children, per spec.md §4.I's rewriting
// step 1.
func PushNotDown(f Filter) Filter {
	switch f.Kind {
	case FilterNot:
		child := f.Children[0]
		switch child.Kind {
		case FilterAnd:
			negated := make([]Filter, len(child.Children))
			for i, c := range child.Children {
				negated[i] = PushNotDown(Not(c))
			}
			return Filter{Kind: FilterOr, Children: negated}
		case FilterOr:
			negated := make([]Filter, len(child.Children))
			for i, c := range child.Children {
				negated[i] = PushNotDown(Not(c))
			}
			return Filter{Kind: FilterAnd, Children: negated}
		case FilterNot:
			return PushNotDown(child.Children[0])
		case FilterTrue:
			return False
		case FilterFalse:
			return True
		default:
			return Filter{Kind: FilterNot, Children: []Filter{PushNotDown(child)}}
		}
	case FilterAnd, FilterOr:
		out := make([]Filter, len(f.Children))
		for i, c := range f.Children {
			out[i] = PushNotDown(c)
		}
		return Filter{Kind: f.Kind, Children: out}
	default:
		return f
	}
}

// Flatten collapses nested And-of-And and Or-of-Or into a single
// level, per spec.md §4.I's rewriting step 2.
func Flatten(f Filter) Filter {
	switch f.Kind {
	case FilterAnd, FilterOr:
		var out []Filter
		for _, c := range f.Children {
			flat := Flatten(c)
			if flat.Kind == f.Kind {
				out = append(out, flat.Children...)
			} else {
				out = append(out, flat)
			}
		}
		return Filter{Kind: f.Kind, Children: out}
	case FilterNot:
		return Filter{Kind: FilterNot, Children: []Filter{Flatten(f.Children[0])}}
	default:
		return f
	}
}

// ConstantFold eliminates trivially decidable subtrees — And/Or nodes
// containing a False/True child respectively, empty And/Or, and
// double negation — per spec.md §4.I's rewriting step 3.
func ConstantFold(f Filter) Filter {
	switch f.Kind {
	case FilterAnd:
		var out []Filter
		for _, c := range f.Children {
			folded := ConstantFold(c)
			if folded.Kind == FilterFalse {
				return False
			}
			if folded.Kind == FilterTrue {
				continue
			}
			out = append(out, folded)
		}
		if len(out) == 0 {
			return True
		}
		if len(out) == 1 {
			return out[0]
		}
		return Filter{Kind: FilterAnd, Children: out}
	case FilterOr:
		var out []Filter
		for _, c := range f.Children {
			folded := ConstantFold(c)
			if folded.Kind == FilterTrue {
				return True
			}
			if folded.Kind == FilterFalse {
				continue
			}
			out = append(out, folded)
		}
		if len(out) == 0 {
			return False
		}
		if len(out) == 1 {
			return out[0]
		}
		return Filter{Kind: FilterOr, Children: out}
	case FilterNot:
		child := ConstantFold(f.Children[0])
		if child.Kind == FilterTrue {
			return False
		}
		if child.Kind == FilterFalse {
			return True
		}
		return Filter{Kind: FilterNot, Children: []Filter{child}}
	default:
		return f
	}
}

// EstimateDNFTerms counts the disjunctive-normal-form term count a
// conversion of f would produce, without performing the conversion:
// And multiplies children's counts, Or sums them, a leaf is 1. Per
// spec.md §4.I, this bounds DNF conversion before attempting it.
func EstimateDNFTerms(f Filter) int {
	switch f.Kind {
	case FilterAnd:
		product := 1
		for _, c := range f.Children {
			product *= EstimateDNFTerms(c)
		}
		return product
	case FilterOr:
		sum := 0
		for _, c := range f.Children {
			sum += EstimateDNFTerms(c)
		}
		return sum
	default:
		return 1
	}
}

// ToDNF converts f to disjunctive normal form — an Or of Ands — only if
// EstimateDNFTerms(f) <= maxTerms, per spec.md §4.I's exponential-
// blow-up guard. ok is false (f returned unconverted) when the bound
// is exceeded.
func ToDNF(f Filter, maxTerms int) (Filter, bool) {
	if EstimateDNFTerms(f) > maxTerms {
		return f, false
	}
	return toDNF(f), true
}

func toDNF(f Filter) Filter {
	switch f.Kind {
	case FilterAnd:
		// Distribute: start with a single empty conjunction and cross
		// each child's disjuncts into it.
		terms := [][]Filter{{}}
		for _, c := range f.Children {
			childDNF := toDNF(c)
			childTerms := disjuncts(childDNF)
			var next [][]Filter
			for _, existing := range terms {
				for _, ct := range childTerms {
					combined := append(append([]Filter{}, existing...), conjuncts(ct)...)
					next = append(next, combined)
				}
			}
			terms = next
		}
		return orOfAnds(terms)
	case FilterOr:
		var terms [][]Filter
		for _, c := range f.Children {
			childDNF := toDNF(c)
			for _, ct := range disjuncts(childDNF) {
				terms = append(terms, conjuncts(ct))
			}
		}
		return orOfAnds(terms)
	default:
		return f
	}
}

func disjuncts(f Filter) []Filter {
	if f.Kind == FilterOr {
		return f.Children
	}
	return []Filter{f}
}

func conjuncts(f Filter) []Filter {
	if f.Kind == FilterAnd {
		return f.Children
	}
	return []Filter{f}
}

func orOfAnds(terms [][]Filter) Filter {
	if len(terms) == 0 {
		return False
	}
	clauses := make([]Filter, 0, len(terms))
	for _, t := range terms {
		switch len(t) {
		case 0:
			clauses = append(clauses, True)
		case 1:
			clauses = append(clauses, t[0])
		default:
			clauses = append(clauses, Filter{Kind: FilterAnd, Children: t})
		}
	}
	if len(clauses) == 1 {
		return clauses[0]
	}
	return Filter{Kind: FilterOr, Children: clauses}
}

// Rewrite applies the full, correctness-preserving rewrite pipeline:
// push-not-down, flatten, constant-fold. DNF conversion is a separate,
// bounded step (ToDNF) that Rewrite does not perform; Planner.Plan does
// not call ToDNF either, and Options.MaxDNFTerms is not consulted.
func Rewrite(f Filter) Filter {
	return ConstantFold(Flatten(PushNotDown(f)))
}
