package planner

import (
	"context"
	"testing"

	"github.com/ledgerwatch/recordlayer/indexstate"
	"github.com/ledgerwatch/recordlayer/keyexpr"
	"github.com/ledgerwatch/recordlayer/kv"
	"github.com/ledgerwatch/recordlayer/kv/memkv"
	"github.com/ledgerwatch/recordlayer/schema"
	"github.com/ledgerwatch/recordlayer/stats"
	"github.com/ledgerwatch/recordlayer/tuple"
)

func buildSchemaWithTwoIndexes(t *testing.T) *schema.Schema {
	t.Helper()
	b := schema.NewBuilder(1)
	if err := b.AddRecordType(schema.RecordType{
		Name:                 "Visit",
		PrimaryKeyExpression: keyexpr.Field("id"),
	}); err != nil {
		t.Fatalf("add record type: %v", err)
	}
	if err := b.AddIndex(schema.IndexDefinition{
		Name: "by_city", Kind: schema.IndexValue, RootExpression: keyexpr.Field("city"), SubspaceKey: 0x01,
		ApplicableRecordTypes: []string{"Visit"},
	}); err != nil {
		t.Fatalf("add by_city: %v", err)
	}
	if err := b.AddIndex(schema.IndexDefinition{
		Name: "by_age", Kind: schema.IndexValue, RootExpression: keyexpr.Field("age"), SubspaceKey: 0x02,
		ApplicableRecordTypes: []string{"Visit"},
	}); err != nil {
		t.Fatalf("add by_age: %v", err)
	}
	sch, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return sch
}

func TestPlanChoosesIndexScanOverFullScanWithStats(t *testing.T) {
	db := memkv.New()
	sch := buildSchemaWithTwoIndexes(t)
	subspace := tuple.FromBytes([]byte{0x30})
	states := indexstate.New(subspace, "visits")
	statsManager := stats.New(subspace, "visits")

	if err := db.Update(context.Background(), func(tx kv.RwTx) error {
		if err := states.Enable(tx, "by_city"); err != nil {
			return err
		}
		if err := states.MakeReadable(tx, "by_city"); err != nil {
			return err
		}
		return statsManager.Put(tx, "Visit", stats.TableStats{
			RowCount: 10000,
			Histograms: map[string]stats.Histogram{
				"city": {Buckets: []stats.Bucket{
					{Lower: tuple.String("Osaka"), Upper: tuple.String("Tokyo"), Count: 10000, DistinctCount: 50},
				}},
			},
		})
	}); err != nil {
		t.Fatalf("setup: %v", err)
	}

	p := New(sch, states, statsManager, subspace, Options{})
	q := Query{RecordType: "Visit", Filter: FieldCompare("city", OpEq, tuple.String("Tokyo"))}

	if err := db.View(context.Background(), func(tx kv.Tx) error {
		plan, _, err := p.Plan(tx, q)
		if err != nil {
			return err
		}
		if plan.Kind != PlanIndexScan {
			t.Errorf("expected IndexScan for a selective equality on an indexed, readable field, got %v", plan.Kind)
		}
		if plan.IndexName != "by_city" {
			t.Errorf("expected by_city index chosen, got %q", plan.IndexName)
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestPlanFallsBackToFullScanWithoutStats(t *testing.T) {
	db := memkv.New()
	sch := buildSchemaWithTwoIndexes(t)
	subspace := tuple.FromBytes([]byte{0x31})
	states := indexstate.New(subspace, "visits")
	statsManager := stats.New(subspace, "visits")

	p := New(sch, states, statsManager, subspace, Options{})
	q := Query{RecordType: "Visit", Filter: FieldCompare("age", OpEq, tuple.Int(30))}

	if err := db.View(context.Background(), func(tx kv.Tx) error {
		plan, _, err := p.Plan(tx, q)
		if err != nil {
			return err
		}
		if plan.Kind != PlanFullScan {
			t.Errorf("expected FullScan when the index is not READABLE, got %v", plan.Kind)
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestPlanCacheHitReturnsSamePlanKind(t *testing.T) {
	db := memkv.New()
	sch := buildSchemaWithTwoIndexes(t)
	subspace := tuple.FromBytes([]byte{0x32})
	states := indexstate.New(subspace, "visits")
	statsManager := stats.New(subspace, "visits")
	p := New(sch, states, statsManager, subspace, Options{})
	q := Query{RecordType: "Visit", Filter: FieldCompare("age", OpEq, tuple.Int(5))}

	if err := db.View(context.Background(), func(tx kv.Tx) error {
		plan1, _, err := p.Plan(tx, q)
		if err != nil {
			return err
		}
		plan2, _, err := p.Plan(tx, q)
		if err != nil {
			return err
		}
		if plan1.Kind != plan2.Kind {
			t.Errorf("expected cache hit to return the same plan kind")
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}
