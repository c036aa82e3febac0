package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "scriptquest",
	Short: "Scripted console challenge runner",
	Long:  "Scriptquest runs player scripts against an emulated console, one frame per step, and judges them against challenge goals.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(challengesCmd)
}
