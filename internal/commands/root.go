package commands

import (
	"github.com/spf13/cobra"

	"github.com/remitlab/sheetrelay/internal/buildinfo"
	"github.com/remitlab/sheetrelay/internal/config"
)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:     "sheetrelay",
		Short:   "Spreadsheet-backed analytics relay",
		Version: buildinfo.String(),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			opts.configSet = cmd.Flags().Changed("config")
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", config.DefaultFile, "config file (.yaml or .toml)")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	pf.BoolVar(&opts.logJSON, "log-json", false, "log as JSON")

	rootCmd.AddCommand(
		newInitCommand(),
		newServeCommand(opts),
		newProxyCommand(opts),
		newExportCommand(opts),
		newImportCommand(opts),
		newSnapshotCommand(opts),
	)

	return rootCmd
}
