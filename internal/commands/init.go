package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/remitlab/sheetrelay/internal/config"
	"github.com/remitlab/sheetrelay/internal/gitops"
)

func newInitCommand() *cobra.Command {
	var format string
	var noGit bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new sheetrelay data directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			absDir, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}

			return runInit(cmd.OutOrStdout(), absDir, format, !noGit)
		},
	}

	cmd.Flags().StringVar(&format, "format", "yaml", "config file format (yaml or toml)")
	cmd.Flags().BoolVar(&noGit, "no-git", false, "skip git init and the initial commit")

	return cmd
}

func runInit(out io.Writer, dir, format string, withGit bool) error {
	var configName string
	switch format {
	case "yaml":
		configName = config.DefaultFile
	case "toml":
		configName = "sheetrelay.toml"
	default:
		return fmt.Errorf("unknown config format %q", format)
	}

	dirs := []string{
		"sheets",
		"logs",
		"import",
		filepath.Join("import", "processed"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(dir, d), 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}

	// Paths stay relative so the directory can move.
	cfg := config.Default()
	if err := config.Save(filepath.Join(dir, configName), cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	gitignore := "ratelimit.db*\n*.db-wal\n*.db-shm\nlogs/\n"
	if err := os.WriteFile(filepath.Join(dir, ".gitignore"), []byte(gitignore), 0o644); err != nil {
		return fmt.Errorf("writing .gitignore: %w", err)
	}

	for _, d := range []string{"sheets", "import"} {
		if err := os.WriteFile(filepath.Join(dir, d, ".gitkeep"), []byte{}, 0o644); err != nil {
			return fmt.Errorf("writing .gitkeep: %w", err)
		}
	}

	if !withGit {
		fmt.Fprintf(out, "Initialized sheetrelay data directory at %s\n", dir)
		fmt.Fprintf(out, "Set %s before running serve.\n", config.EnvAuthToken)
		return nil
	}

	if err := gitops.Init(dir); err != nil {
		return fmt.Errorf("git init: %w", err)
	}
	hash, err := gitops.CommitAll(dir, "init: sheetrelay data directory", cfg.Git.AuthorName, cfg.Git.AuthorEmail)
	if err != nil {
		return fmt.Errorf("initial commit: %w", err)
	}

	fmt.Fprintf(out, "Initialized sheetrelay data directory at %s (%s)\n", dir, hash)
	fmt.Fprintf(out, "Set %s before running serve.\n", config.EnvAuthToken)
	return nil
}
