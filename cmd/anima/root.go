package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/anima/internal/cli"
	"github.com/aretw0/anima/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	v      = config.New()
	cfg    config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "anima",
	Short: "Anima runs souls: language-model agents with a memory and a mind",
	Long: `Anima gives a language model a persona, a working memory and a mental process.
Without a subcommand it starts a chat with the soul configured in anima.yaml.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		loaded, err := config.Load(v, path)
		if err != nil {
			return err
		}
		cfg = loaded
		debug, _ := cmd.Flags().GetBool("debug")
		logger = cli.NewLogger(cfg.Log, debug)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// skipConfig is used by commands that must work without a valid project.
func skipConfig(cmd *cobra.Command, args []string) error {
	debug, _ := cmd.Flags().GetBool("debug")
	logger = cli.NewLogger(config.Default().Log, debug)
	return nil
}

func init() {
	// Persistent flags (available to all commands)
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Config file (default ./anima.yaml)")
	flags.String("dir", "", "Directory containing the blueprints")
	flags.String("blueprint", "", "Blueprint id inside the blueprint directory")
	flags.String("session", "", "Persist the conversation under this transcript id")
	flags.String("store", "", "Storage backend: memory, file, sqlite or redis")
	flags.Bool("debug", false, "Write debug logs to stderr")

	for key, name := range map[string]string{
		"soul.dir":       "dir",
		"soul.blueprint": "blueprint",
		"session.id":     "session",
		"store.kind":     "store",
	} {
		mustBind(key, flags.Lookup(name))
	}
}

// mustBind lets flag override the config key when the flag is set.
func mustBind(key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}
