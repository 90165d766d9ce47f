package main

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ledgerwatch/recordlayer/kv/memkv"
	"github.com/ledgerwatch/recordlayer/migration"
	"github.com/ledgerwatch/recordlayer/onlineindex"
	"github.com/ledgerwatch/recordlayer/tuple"
	"github.com/spf13/cobra"
)

var migrationsSubspace = tuple.FromBytes([]byte{0x71})

func init() {
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Walk the demo store from version 0.0.0 to version 2.0.0, adding by_category",
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

		mgr := migration.New(memkv.New(), migrationsSubspace, "migrations", []migration.Migration{
			{
				Name:        "add_by_category_index",
				FromVersion: migration.Version{},
				ToVersion:   migration.Version{Major: 2},
				Up: func(ctx context.Context, mctx *migration.MigrationContext) error {
					return mctx.AddIndex(ctx, "widgets", byCategoryIndex, onlineindex.Options{})
				},
			},
		}, migration.StoreRegistry{"widgets": store})

		if err := mgr.MigrateTo(cmd.Context(), migration.Version{Major: 2}, time.Now()); err != nil {
			return err
		}
		log.Info("Migration complete", "version", "2.0.0")
		return nil
	},
}
