package planner

// PlanKind tags a Plan's variant, per spec.md §4.I's "Plan variants".
type PlanKind uint8

const (
	PlanFullScan PlanKind = iota
	PlanIndexScan
	PlanIntersection
	PlanLimit
	PlanSort
)

// KeyRange bounds an IndexScan to the index entries whose root-
// expression value falls within [Lower, Upper).
type KeyRange struct {
	Lower, Upper []byte
}

// Plan is the execution plan AST of spec.md §4.I.
type Plan struct {
	Kind PlanKind

	// FullScan / IndexScan
	Filter *Filter

	// IndexScan
	IndexName string
	Range     KeyRange

	// Intersection / Limit / Sort
	Children []Plan
	N        int
	Keys     []SortKey
}

func FullScan(filter *Filter) Plan { return Plan{Kind: PlanFullScan, Filter: filter} }

func IndexScan(indexName string, r KeyRange, filter *Filter) Plan {
	return Plan{Kind: PlanIndexScan, IndexName: indexName, Range: r, Filter: filter}
}

func Intersection(children ...Plan) Plan { return Plan{Kind: PlanIntersection, Children: children} }

func LimitPlan(child Plan, n int) Plan {
	return Plan{Kind: PlanLimit, Children: []Plan{child}, N: n}
}

func SortPlan(child Plan, keys []SortKey) Plan {
	return Plan{Kind: PlanSort, Children: []Plan{child}, Keys: keys}
}

// Cost is the three-dimensional cost estimate of spec.md §4.I.
type Cost struct {
	IO            float64
	CPU           float64
	EstimatedRows float64
}
