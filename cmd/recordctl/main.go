// Command recordctl is the operational CLI for the record layer:
// running migrations, kicking off online index builds, and printing
// query-plan cost estimates, the way cmd/state/generate/regenerate_index.go
// drives core.NewIndexGenerator from a thin cobra wrapper and
// cmd/rpcdaemon/main.go wires ExecuteContext around a root command.
package main

import (
	"context"
	"os"

	"github.com/ethereum/go-ethereum/log"
)

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}
