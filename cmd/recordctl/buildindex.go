package main

import (
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ledgerwatch/recordlayer/onlineindex"
	"github.com/spf13/cobra"
)

var (
	buildIndexBatchSize int
	buildIndexThrottle  time.Duration
)

func init() {
	buildIndexCmd.Flags().IntVar(&buildIndexBatchSize, "batchsize", 0, "records per build batch (0 = default)")
	buildIndexCmd.Flags().DurationVar(&buildIndexThrottle, "throttle", 0, "delay between build batches")
	rootCmd.AddCommand(buildIndexCmd)
}

var buildIndexCmd = &cobra.Command{
	Use:   "build-index",
	Short: "Build the demo by_category index from DISABLED to READABLE",
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

		indexer := onlineindex.New(store, byCategoryIndex, onlineindex.Options{
			BatchSize:     buildIndexBatchSize,
			ThrottleDelay: buildIndexThrottle,
		})
		if err := indexer.Build(cmd.Context()); err != nil {
			return err
		}
		log.Info("Index build complete", "index", byCategoryIndex)
		return nil
	},
}
