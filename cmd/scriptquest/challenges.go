package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"scriptquest/internal/config"
)

var (
	challengesConfigPath string
	challengesSchemaPath string
)

var challengesCmd = &cobra.Command{
	Use:   "challenges",
	Short: "List the challenges in the catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := config.Load(challengesConfigPath, challengesSchemaPath)
		if err != nil {
			return err
		}
		fmt.Printf("%s\n\n", cat.Title)
		for _, ch := range cat.Challenges {
			fmt.Printf("%s: %s\n", ch.ID, ch.Name)
			fmt.Printf("  %s\n", ch.Description)
			fmt.Printf("  goal: %s %s %d within %d frames\n", ch.Goal.Variable, ch.Goal.Op, ch.Goal.Value, ch.Budget)
		}
		return nil
	},
}

func init() {
	challengesCmd.Flags().StringVar(&challengesConfigPath, "config", "config/challenges.yaml", "Path to challenge catalog YAML")
	challengesCmd.Flags().StringVar(&challengesSchemaPath, "schema", "config/schema.cue", "Path to CUE schema file")
}
