package main

import "github.com/spf13/cobra"

var rootCmd = &cobra.Command{
	Use:   "recordctl",
	Short: "Operate a record layer store: migrate, build-index, plan",
}
