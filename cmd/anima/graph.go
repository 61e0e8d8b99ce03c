package main

import (
	"fmt"

	"github.com/aretw0/anima/internal/cli"
	"github.com/aretw0/anima/internal/presentation/graph"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Export the mental process as a diagram",
	Long: `Outputs a Mermaid diagram (graph TD) of the soul's mental process.
With --session, the branch taken by the latest perception is highlighted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mind, err := cli.Minds().New(cfg.Soul.Mind)
		if err != nil {
			return err
		}

		var overlay *graph.Overlay
		if cfg.Session.ID != "" {
			stores, err := cli.OpenStores(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer stores.Close()

			memory, err := stores.Transcripts.Load(cmd.Context(), cfg.Session.ID)
			if err != nil {
				return fmt.Errorf("error loading session '%s': %w", cfg.Session.ID, err)
			}
			overlay = graph.LastRun(mind, memory)
		}

		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(mind, overlay))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
