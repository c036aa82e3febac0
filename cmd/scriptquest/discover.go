package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"scriptquest/internal/config"
	"scriptquest/internal/emu"
	"scriptquest/internal/logging"
	"scriptquest/internal/memscan"
)

var (
	discoverConfigPath string
	discoverSchemaPath string
	discoverSeed       int64
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Locate the relocatable memory region",
	Long:  "discover boots the console and runs the marker scan to find the base address of the game state region.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := config.Load(discoverConfigPath, discoverSchemaPath)
		if err != nil {
			return err
		}

		seed := discoverSeed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		console := emu.NewSidescroller(seed)
		ctx := logging.NewContext(context.Background(), logging.New())

		base, err := memscan.New(console, cat.ScanProbe()).Discover(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("seed:  %d\n", seed)
		fmt.Printf("base:  0x%X\n", base)
		fmt.Printf("ticks: %d\n", console.CurrentTick())
		return nil
	},
}

func init() {
	discoverCmd.Flags().StringVar(&discoverConfigPath, "config", "config/challenges.yaml", "Path to challenge catalog YAML")
	discoverCmd.Flags().StringVar(&discoverSchemaPath, "schema", "config/schema.cue", "Path to CUE schema file")
	discoverCmd.Flags().Int64Var(&discoverSeed, "seed", 0, "Console seed (0 picks a random seed)")
}
