package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cardlink-dev/cardlink/internal/buildinfo"
)

// NewRootCommand creates the root CLI command with all subcommands
// registered.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "cardlink",
		Short:   "Credit card statement reconciliation for the ledger",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", buildinfo.Version, buildinfo.Commit, buildinfo.Date),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("config", "cardlink.yaml", "path to the configuration file")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newPreviewCommand())

	return rootCmd
}
