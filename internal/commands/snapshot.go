package commands

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/remitlab/sheetrelay/internal/config"
	"github.com/remitlab/sheetrelay/internal/gitops"
)

func newSnapshotCommand(opts *rootOptions) *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Commit the current workbook state to git",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if err := checkSecretNotCommitted(opts); err != nil {
				return err
			}
			return runSnapshot(cmd, cfg, opts.baseDir, message, time.Now)
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message")

	return cmd
}

// checkSecretNotCommitted refuses a snapshot that would put auth.token from
// the config file into git history.
func checkSecretNotCommitted(opts *rootOptions) error {
	if !opts.fileHasToken || !gitops.IsRepo(opts.baseDir) {
		return nil
	}
	ignored, err := gitops.IsIgnored(opts.baseDir, opts.configFile)
	if err != nil {
		return err
	}
	if ignored {
		return nil
	}
	return fmt.Errorf("refusing to snapshot: %s holds auth.token; remove it and set %s instead",
		filepath.Base(opts.configFile), config.EnvAuthToken)
}

func runSnapshot(cmd *cobra.Command, cfg *config.Config, dir, message string, now func() time.Time) error {
	if !gitops.IsRepo(dir) {
		return fmt.Errorf("%s is not a git repository (run sheetrelay init)", dir)
	}
	changed, err := gitops.HasChanges(dir)
	if err != nil {
		return err
	}
	if !changed {
		fmt.Fprintln(cmd.OutOrStdout(), "Nothing to snapshot")
		return nil
	}

	if message == "" {
		message = "snapshot: " + now().UTC().Format(time.RFC3339)
	}
	hash, err := gitops.CommitAll(dir, message, cfg.Git.AuthorName, cfg.Git.AuthorEmail)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Snapshot %s\n", hash)
	return nil
}
