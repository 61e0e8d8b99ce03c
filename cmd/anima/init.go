package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/anima/internal/config"
	"github.com/spf13/cobra"
)

const blueprintTemplate = `---
name: %s
---
You are %s, a patient and curious tutor. You speak plainly, ask one question
at a time and remember what the user tells you about themselves.
`

// dryRunScript answers one tutor turn without a model.
const dryRunScript = `replies:
  - step: extractName
    value: {userName: friend}
  - step: reflect
    text: The user wants to learn something.
  - step: tutor.decision
    value: {decision: learning}
  - step: learning.reply
    fragments: ["Hello! ", "What would you like to learn today?"]
  - step: learning.topic
    value: {topic: anything}
`

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Create a new soul project",
	Long: `Writes anima.yaml, a blueprint under souls/ and a scripted reply file
(dry-run.yaml) that lets 'anima chat --dry-run dry-run.yaml' work without a model.
Existing files are never overwritten.`,
	Args:              cobra.MaximumNArgs(1),
	PersistentPreRunE: skipConfig,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) > 0 {
			dir = args[0]
		}
		name, _ := cmd.Flags().GetString("name")
		if err := scaffold(dir, name); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created %s in %s. Run 'anima chat' to talk to it.\n", name, dir)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().String("name", "Samantha", "Name of the soul")
}

func scaffold(dir, name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("soul name cannot be empty")
	}

	project := config.Default()
	blueprint := filepath.Join(dir, project.Soul.Dir, project.Soul.Blueprint+".md")
	files := map[string]string{
		filepath.Join(dir, "dry-run.yaml"): dryRunScript,
		blueprint:                          fmt.Sprintf(blueprintTemplate, name, name),
	}
	for path := range files {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(blueprint), 0o755); err != nil {
		return fmt.Errorf("failed to create blueprint directory: %w", err)
	}
	if err := config.Write(filepath.Join(dir, config.FileName), project); err != nil {
		return err
	}
	for path, content := range files {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return nil
}
