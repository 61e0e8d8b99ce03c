package main

import (
	"fmt"

	"github.com/aretw0/anima/internal/cli"
	"github.com/aretw0/anima/pkg/domain"
	"github.com/spf13/cobra"
)

var factsCmd = &cobra.Command{
	Use:   "facts",
	Short: "Inspect and edit what the soul remembers",
	Long:  `Reads and writes the soul's long-term facts in the configured store.`,
}

var factsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print every fact",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		facts, stores, err := cli.OpenFacts(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer stores.Close()

		format, _ := cmd.Flags().GetString("output")
		return cli.Print(cmd.OutOrStdout(), format, facts.Snapshot())
	},
}

var factsGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one fact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		facts, stores, err := cli.OpenFacts(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer stores.Close()

		value, ok := facts.Get(args[0])
		if !ok {
			return fmt.Errorf("fact '%s': %w", args[0], domain.ErrFactNotFound)
		}
		format, _ := cmd.Flags().GetString("output")
		return cli.Print(cmd.OutOrStdout(), format, map[string]any{args[0]: value})
	},
}

var factsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Store a fact; JSON values are decoded, anything else is a string",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		facts, stores, err := cli.OpenFacts(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer stores.Close()

		if err := facts.Set(cmd.Context(), args[0], cli.ParseValue(args[1])); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Stored '%s' for %s\n", args[0], facts.SoulID())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(factsCmd)
	factsCmd.AddCommand(factsListCmd)
	factsCmd.AddCommand(factsGetCmd)
	factsCmd.AddCommand(factsSetCmd)

	factsCmd.PersistentFlags().StringP("output", "o", cli.FormatJSON, "Output format: json, yaml or toml")
}
