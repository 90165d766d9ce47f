package main

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/ledgerwatch/recordlayer/kv"
	"github.com/ledgerwatch/recordlayer/planner"
	"github.com/ledgerwatch/recordlayer/recordstore"
	"github.com/ledgerwatch/recordlayer/stats"
	"github.com/ledgerwatch/recordlayer/tuple"
	"github.com/spf13/cobra"
)

var planCategory string

func init() {
	planCmd.Flags().StringVar(&planCategory, "category", "hardware", "category value to filter Widget.category on")
	rootCmd.AddCommand(planCmd)
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the chosen execution plan and cost estimate for category = <value>",
	RunE: func(cmd *cobra.Command, args []string) error {
		sch, err := buildWidgetSchema(2)
		if err != nil {
			return err
		}
		store, err := openWidgetStore(sch)
		if err != nil {
			return err
		}
		if err := seedWidgets(store); err != nil {
			return err
		}
		if err := makeByCategoryReadable(cmd.Context(), store); err != nil {
			return err
		}
		if err := collectStats(cmd.Context(), store); err != nil {
			return err
		}

		p := planner.New(sch, store.States(), stats.New(store.Subspace(), store.Table()), store.Subspace(), planner.Options{})
		q := planner.Query{
			RecordType: "Widget",
			Filter:     planner.FieldCompare("category", planner.OpEq, tuple.String(planCategory)),
		}

		var plan planner.Plan
		var cost planner.Cost
		err = store.DB().View(cmd.Context(), func(tx kv.Tx) error {
			var perr error
			plan, cost, perr = p.Plan(tx, q)
			return perr
		})
		if err != nil {
			return err
		}

		fmt.Printf("plan: kind=%d index=%q io=%.2f cpu=%.2f rows=%.1f\n",
			plan.Kind, plan.IndexName, cost.IO, cost.CPU, cost.EstimatedRows)
		return nil
	},
}

// makeByCategoryReadable drives the demo index straight to READABLE so
// plan has something to choose between a full scan and an index scan.
func makeByCategoryReadable(ctx context.Context, store *recordstore.Store) error {
	return store.DB().Update(ctx, func(tx kv.RwTx) error {
		if err := store.States().Enable(tx, byCategoryIndex); err != nil {
			return err
		}
		return store.States().MakeReadable(tx, byCategoryIndex)
	})
}

// collectStats samples the seeded rows into the store's stats table so
// the planner has a histogram to estimate selectivity from.
func collectStats(ctx context.Context, store *recordstore.Store) error {
	statsManager := stats.New(store.Subspace(), store.Table())
	it := store.Scan(ctx)
	defer it.Close()
	var accessors []stats.FieldAccessor
	for it.Next() {
		accessors = append(accessors, stats.FieldAccessor(recordstore.FieldAccessor(it.Record())))
	}
	if err := it.Err(); err != nil {
		return err
	}

	i := 0
	st := stats.Sample(func(yield func(stats.FieldAccessor) bool) {
		for i < len(accessors) {
			if !yield(accessors[i]) {
				return
			}
			i++
		}
	}, []string{"category"}, 1.0, 16, rand.New(rand.NewSource(1)))
	st.RowCount = int64(len(accessors))

	return store.DB().Update(ctx, func(tx kv.RwTx) error {
		return statsManager.Put(tx, "Widget", st)
	})
}
