package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/remitlab/sheetrelay/internal/model"
)

// CSVParser reads a sheet exported as CSV: a header row of column names,
// then one record per row, routed by its type column. Cells that parse as
// in-range numbers become numbers and anything else stays text. Empty fields
// are empty cells.
type CSVParser struct{}

// Format returns the parser name.
func (p *CSVParser) Format() string { return "csv" }

// Parse reads a header-first CSV.
func (p *CSVParser) Parse(r io.Reader) ([]model.Payload, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading CSV: %w", err)
	}
	if len(records) <= 1 {
		return nil, nil
	}

	header := records[0]
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	out := make([]model.Payload, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) > len(header) {
			return nil, fmt.Errorf("row %d: %d fields, header has %d", i+2, len(rec), len(header))
		}
		fields := make(map[string]model.Cell, len(rec))
		for j, v := range rec {
			fields[header[j]] = textCell(v)
		}
		out = append(out, model.PayloadFromFields(fields))
	}
	return out, nil
}

func textCell(s string) model.Cell {
	if s == "" {
		return model.Cell{}
	}
	if d, err := model.ParseNumber(s); err == nil {
		return model.NumberCell(d)
	}
	return model.StringCell(s)
}
