package planner

import (
	"github.com/ledgerwatch/recordlayer/index"
	"github.com/ledgerwatch/recordlayer/indexstate"
	"github.com/ledgerwatch/recordlayer/keyexpr"
	"github.com/ledgerwatch/recordlayer/kv"
	"github.com/ledgerwatch/recordlayer/schema"
	"github.com/ledgerwatch/recordlayer/stats"
	"github.com/ledgerwatch/recordlayer/tuple"
)

// defaultMaxDNFTerms is spec.md §4.I's conservative default for the
// DNF-conversion guard.
const defaultMaxDNFTerms = 50

// defaultUnknownRowCount is used when no statistics have been
// collected yet for a record type, per spec.md §4.I's "unavailable
// stats case uses conservative defaults" — chosen high enough that an
// available equality index still beats a full scan by default.
const defaultUnknownRowCount = 10000

// Options configure one Plan call.
type Options struct {
	MaxDNFTerms int
	CostParams  CostParams
}

// Planner builds and caches execution plans for one record store,
// reading index applicability from sch, index readiness from states,
// and cost input from statsManager.
type Planner struct {
	sch          *schema.Schema
	states       *indexstate.Manager
	statsManager *stats.Manager
	subspace     tuple.Subspace
	cache        *Cache
	opts         Options
}

// New returns a Planner over sch/states/statsManager, scoped to a
// record store's subspace (where index entries physically live).
func New(sch *schema.Schema, states *indexstate.Manager, statsManager *stats.Manager, subspace tuple.Subspace, opts Options) *Planner {
	if opts.MaxDNFTerms <= 0 {
		opts.MaxDNFTerms = defaultMaxDNFTerms
	}
	if opts.CostParams == (CostParams{}) {
		opts.CostParams = DefaultCostParams
	}
	return &Planner{sch: sch, states: states, statsManager: statsManager, subspace: subspace, cache: NewCache(0), opts: opts}
}

// Plan chooses and returns the cheapest execution plan for q, per
// spec.md §4.I. Equal queries (by canonical key) hit the plan cache.
func (p *Planner) Plan(tx kv.Tx, q Query) (Plan, Cost, error) {
	if plan, cost, ok := p.cache.Get(q); ok {
		return plan, cost, nil
	}

	st, _, err := p.statsManager.Get(tx, q.RecordType)
	if err != nil {
		return Plan{}, Cost{}, err
	}
	rowCount := defaultUnknownRowCount
	if st.RowCount > 0 {
		rowCount = int(st.RowCount)
	}

	filter := Rewrite(q.Filter)
	fullScanCost := CostFullScan(int64(rowCount), filter, st, p.opts.CostParams)
	bestPlan := FullScan(&filter)
	bestCost := fullScanCost

	if candidatePlan, candidateCost, ok, err := p.indexCandidate(tx, q.RecordType, filter, st, int64(rowCount)); err != nil {
		return Plan{}, Cost{}, err
	} else if ok && total(candidateCost) < total(bestCost) {
		bestPlan, bestCost = candidatePlan, candidateCost
	}

	if len(q.Sort) > 0 {
		bestPlan = SortPlan(bestPlan, q.Sort)
	}
	if q.Limit > 0 {
		limited := CostLimit(bestCost, q.Limit)
		bestPlan = LimitPlan(bestPlan, q.Limit)
		bestCost = limited
	}

	p.cache.Put(q, bestPlan, bestCost)
	return bestPlan, bestCost, nil
}

func total(c Cost) float64 { return c.IO + c.CPU }

// indexCandidate looks for top-level equality conjuncts matching a
// READABLE value index and builds an IndexScan (single match) or
// Intersection-of-IndexScans (multiple matches) candidate plan. Only
// equality predicates against IndexValue indexes are considered: this
// planner's scope decision (recorded in DESIGN.md) limits index-scan
// candidates to the value-index/equality case spec.md §8's scenario 4
// exercises, leaving range-bounded and other-index-kind scans to a
// future extension.
func (p *Planner) indexCandidate(tx kv.Tx, recordType string, filter Filter, st stats.TableStats, rowCount int64) (Plan, Cost, bool, error) {
	conjuncts := topLevelConjuncts(filter)
	var scans []Plan
	var costs []Cost
	matched := make(map[string]bool)

	for _, idx := range p.sch.IndexesForRecordType(recordType) {
		if idx.Kind != schema.IndexValue {
			continue
		}
		state, err := p.states.Get(tx, idx.Name)
		if err != nil {
			return Plan{}, Cost{}, false, err
		}
		if !indexstate.ReadableForQueries(state) {
			continue
		}
		field, value, found := equalityOn(conjuncts, rootFieldName(idx))
		if !found {
			continue
		}
		sel := Selectivity(FieldCompare(field, OpEq, value), st, rowCount)
		keyRangeRows := int64(float64(rowCount) * sel)
		if keyRangeRows < 1 {
			keyRangeRows = 1
		}
		begin := index.Prefix(p.subspace, idx.SubspaceKey, []tuple.Value{value})
		end := tuple.Strinc(begin)
		scans = append(scans, IndexScan(idx.Name, KeyRange{Lower: begin, Upper: end}, &filter))
		costs = append(costs, CostIndexScan(keyRangeRows, p.opts.CostParams))
		matched[field] = true
	}

	if len(scans) == 0 {
		return Plan{}, Cost{}, false, nil
	}
	if len(scans) == 1 {
		return scans[0], costs[0], true, nil
	}
	return Intersection(scans...), CostIntersection(costs, rowCount), true, nil
}

// rootFieldName returns the single field name an index's root
// expression reads, if it is a plain Field expression — the only shape
// this planner's equality matcher understands.
func rootFieldName(idx schema.IndexDefinition) string {
	if idx.RootExpression.Kind() != keyexpr.KindField {
		return ""
	}
	return idx.RootExpression.Field()
}

func topLevelConjuncts(f Filter) []Filter {
	if f.Kind == FilterAnd {
		return f.Children
	}
	return []Filter{f}
}

func equalityOn(conjuncts []Filter, field string) (string, tuple.Value, bool) {
	if field == "" {
		return "", tuple.Value{}, false
	}
	for _, c := range conjuncts {
		if c.Kind == FilterField && c.Cmp == OpEq && c.Field == field {
			return field, c.Value, true
		}
	}
	return "", tuple.Value{}, false
}
