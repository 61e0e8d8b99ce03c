package main

import (
	"fmt"

	"github.com/aretw0/anima/internal/cli"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage persisted conversations",
	Long:  `List, inspect, and remove the transcripts kept in the configured store.`,
}

var sessionLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all stored sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		stores, err := cli.OpenStores(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer stores.Close()

		sessions, err := stores.Transcripts.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("error listing sessions: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(sessions) == 0 {
			fmt.Fprintln(out, "No sessions found.")
			return nil
		}
		fmt.Fprintln(out, "Sessions:")
		for _, s := range sessions {
			fmt.Fprintln(out, "- "+s)
		}
		return nil
	},
}

var sessionInspectCmd = &cobra.Command{
	Use:   "inspect <session-id>",
	Short: "Print the working memory of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stores, err := cli.OpenStores(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer stores.Close()

		memory, err := stores.Transcripts.Load(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("error loading session '%s': %w", args[0], err)
		}

		recent, _ := cmd.Flags().GetInt("recent")
		entries := memory.Entries()
		if recent > 0 {
			entries = memory.Recent(recent)
		}
		format, _ := cmd.Flags().GetString("output")
		return cli.Print(cmd.OutOrStdout(), format, map[string]any{
			"soul_name": memory.SoulName(),
			"total":     memory.Len(),
			"entries":   entries,
		})
	},
}

var sessionRmCmd = &cobra.Command{
	Use:   "rm <session-id>...",
	Short: "Remove one or more sessions",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stores, err := cli.OpenStores(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer stores.Close()

		failed := 0
		for _, sessionID := range args {
			if err := stores.Transcripts.Delete(cmd.Context(), sessionID); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error removing '%s': %v\n", sessionID, err)
				failed++
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed session '%s'\n", sessionID)
		}
		if failed > 0 {
			return fmt.Errorf("%d session(s) could not be removed", failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionLsCmd)
	sessionCmd.AddCommand(sessionInspectCmd)
	sessionCmd.AddCommand(sessionRmCmd)

	sessionInspectCmd.Flags().Int("recent", 0, "Only print the last n entries")
	sessionInspectCmd.Flags().StringP("output", "o", cli.FormatJSON, "Output format: json, yaml or toml")
}
