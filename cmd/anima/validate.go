package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aretw0/anima/internal/cli"
	"github.com/aretw0/anima/internal/config"
	"github.com/aretw0/anima/internal/validator"
	"github.com/aretw0/anima/pkg/adapters/loam"
	"github.com/aretw0/anima/pkg/adapters/ollama"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the soul and its processor for consistency",
	Long: `Loads the configured blueprint, validates the mental process and, for the
ollama processor, checks that the server answers and the configured models exist.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		offline, _ := cmd.Flags().GetBool("offline")
		if err := runValidate(cmd.Context(), offline); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Soul is valid! ✅")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().Bool("offline", false, "Skip the processor checks")
}

func runValidate(ctx context.Context, offline bool) error {
	loader, err := loam.Open(cfg.Soul.Dir)
	if err != nil {
		return err
	}
	ids, err := loader.ListBlueprints(ctx)
	if err != nil {
		return err
	}
	logger.Debug("blueprints found", "dir", cfg.Soul.Dir, "ids", ids)

	if _, err := cli.LoadBlueprint(ctx, cfg); err != nil {
		return fmt.Errorf("%w (available: %s)", err, strings.Join(ids, ", "))
	}
	mind, err := cli.Minds().New(cfg.Soul.Mind)
	if err != nil {
		return err
	}
	if err := validator.ValidateMind(mind); err != nil {
		return err
	}

	if offline || cfg.Processor.Kind != config.ProcessorOllama {
		return nil
	}
	return checkOllama(ctx, ollama.New(cfg.Processor.URL, ollama.WithLogger(logger)), cfg.Processor)
}

// checkOllama verifies the server is reachable and has every configured model.
func checkOllama(ctx context.Context, client *ollama.Client, pc config.ProcessorConfig) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := client.Ping(ctx); err != nil {
		return fmt.Errorf("ollama is not reachable at %s: %w", pc.URL, err)
	}
	available, err := client.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("failed to list ollama models: %w", err)
	}

	var missing []string
	for _, model := range []string{pc.Model, pc.Speed, pc.Quality} {
		if model == "" {
			continue
		}
		_, exact := available[model]
		_, tagged := available[model+":latest"]
		if !exact && !tagged {
			missing = append(missing, model)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("models not pulled: %s (run 'ollama pull')", strings.Join(missing, ", "))
	}
	return nil
}
