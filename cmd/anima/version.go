package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/anima"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:               "version",
	Short:             "Print the version number of anima",
	PersistentPreRunE: skipConfig,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "anima version %s\n", strings.TrimSpace(anima.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
