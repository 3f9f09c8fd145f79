package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/remitlab/sheetrelay/internal/importer"
	"github.com/remitlab/sheetrelay/internal/logging"
	"github.com/remitlab/sheetrelay/internal/records"
)

func newImportCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [file...]",
		Short: "Replay exported payloads (.jsonl or .csv) into the workbook",
		Long: `Replay payloads into the workbook, bypassing authentication and rate limiting.

With no arguments, every importable file in <data dir>/import/ is applied and
then moved to import/processed/.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			book, err := openBook(cfg)
			if err != nil {
				return fmt.Errorf("opening workbook: %w", err)
			}
			defer book.Close()

			return runImport(cmd, records.NewService(book), opts.baseDir, args)
		},
	}

	return cmd
}

func runImport(cmd *cobra.Command, svc *records.Service, dataDir string, files []string) error {
	reg := importer.DefaultRegistry()
	out := cmd.OutOrStdout()

	scanned := len(files) == 0
	if scanned {
		found, err := reg.Scan(dataDir)
		if err != nil {
			return err
		}
		if len(found) == 0 {
			fmt.Fprintln(out, "No files to import")
			return nil
		}
		for _, f := range found {
			files = append(files, f.Path)
		}
	}

	for _, path := range files {
		payloads, err := reg.ParseFile(path)
		if err != nil {
			return err
		}
		res, err := importer.Apply(cmd.Context(), svc, payloads)
		if err != nil {
			return fmt.Errorf("importing %s: %w", filepath.Base(path), err)
		}
		logging.Info("imported", "file", path, "saved", res.Saved, "deleted", res.Deleted, "missed", res.Missed)
		fmt.Fprintf(out, "%s: %d saved, %d deleted, %d missed\n", filepath.Base(path), res.Saved, res.Deleted, res.Missed)

		if scanned {
			if err := importer.MarkProcessed(dataDir, filepath.Base(path)); err != nil {
				return err
			}
		}
	}
	return nil
}
