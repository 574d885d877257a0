package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/dispatch"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "dispatch version %s\n", strings.TrimSpace(dispatch.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
