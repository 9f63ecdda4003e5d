// Package cmd provides the CLI commands for repoindex.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/repoindex/pkg/version"
)

// Global flags.
var (
	debugMode   bool
	configDir   string
	metricsFile string
)

// NewRootCmd creates the root command for the repoindex CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repoindex",
		Short: "Index and search Maven repository metadata",
		Long: `repoindex keeps a searchable index of a Maven-2 repository.

Group, artifact and snapshot metadata go into the "metadata" collection,
artifact files into the "artifact" collection. Both can be searched with
term and range queries combined with AND/OR.

Run 'repoindex index' in a repository to build the index.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("repoindex version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Log at debug level to the log file")
	cmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Project directory holding .repoindex.yaml (default: nearest project root)")
	cmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics in text format to this file on exit")

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newOptimizeCmd())
	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newVerifyChecksumsCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
