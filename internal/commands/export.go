package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/remitlab/sheetrelay/internal/records"
)

func newExportCommand(opts *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every stored record to stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			book, err := openBook(cfg)
			if err != nil {
				return fmt.Errorf("opening workbook: %w", err)
			}
			defer book.Close()

			return runExport(cmd, records.NewService(book), format)
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "output format (json or jsonl)")

	return cmd
}

// runExport streams records, Funnel rows first, without collecting them.
func runExport(cmd *cobra.Command, svc *records.Service, format string) error {
	out := cmd.OutOrStdout()
	switch format {
	case "json":
		if _, err := io.WriteString(out, "["); err != nil {
			return err
		}
		n := 0
		for rec, err := range svc.ReadAll(cmd.Context()) {
			if err != nil {
				return err
			}
			data, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("encoding record: %w", err)
			}
			sep := "\n  "
			if n > 0 {
				sep = ",\n  "
			}
			if _, err := io.WriteString(out, sep); err != nil {
				return err
			}
			if _, err := out.Write(data); err != nil {
				return err
			}
			n++
		}
		end := "]\n"
		if n > 0 {
			end = "\n]\n"
		}
		_, err := io.WriteString(out, end)
		return err
	case "jsonl":
		enc := json.NewEncoder(out)
		for rec, err := range svc.ReadAll(cmd.Context()) {
			if err != nil {
				return err
			}
			if err := enc.Encode(rec); err != nil {
				return fmt.Errorf("encoding record: %w", err)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}
