package main

import (
	"github.com/aretw0/anima/internal/cli"
	"github.com/aretw0/anima/internal/config"
	"github.com/aretw0/anima/internal/presentation/tui"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the soul in the terminal",
	Long: `Starts an interactive conversation with the configured soul.
Type /reset to start over, /memory to inspect the working memory and /exit to leave.
Ctrl+C while the soul is thinking abandons that reply; at the prompt it ends the chat.`,
	RunE: runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	jsonMode, _ := cmd.Flags().GetBool("json")
	plain, _ := cmd.Flags().GetBool("plain")
	speaker, _ := cmd.Flags().GetString("speaker")
	blocklist, _ := cmd.Flags().GetStringSlice("block")
	showLogs, _ := cmd.Flags().GetBool("logs")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	dryRun, _ := cmd.Flags().GetString("dry-run")

	if dryRun != "" {
		cfg.Processor.Kind = config.ProcessorScripted
		cfg.Processor.Script = dryRun
	}

	return cli.Chat(cmd.Context(), cfg, cli.ChatOptions{
		In:          cmd.InOrStdin(),
		Out:         cmd.OutOrStdout(),
		JSON:        jsonMode,
		Interactive: !plain && tui.IsInteractive(),
		Speaker:     speaker,
		Blocklist:   blocklist,
		ShowLogs:    showLogs,
		TurnTimeout: timeout,
		Logger:      logger,
	})
}

func chatFlags(flags *pflag.FlagSet) {
	flags.Bool("json", false, "Read and write one JSON document per line")
	flags.Bool("plain", false, "Disable the banner, markdown rendering and colors")
	flags.String("speaker", "", "Name recorded on your messages")
	flags.StringSlice("block", nil, "Words that keep a message from reaching the soul")
	flags.Bool("logs", false, "Show the soul's log actions")
	flags.Duration("timeout", 0, "Abandon a reply after this long (0 waits forever)")
	flags.String("dry-run", "", "Answer from a scripted reply file instead of a model")
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatFlags(chatCmd.Flags())

	// Chatting is the default when no subcommand is given.
	chatFlags(rootCmd.Flags())
	rootCmd.RunE = runChat
}
