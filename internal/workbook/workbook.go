// Package workbook abstracts the spreadsheet behind the relay: a set of named
// sheets, each an ordered list of rows whose first row is the header.
//
// Positions are 1-based and include the header, the way spreadsheet rows are
// addressed: the header is row 1 and the first data row is row 2.
//
// Backends make each call atomic on its own but nothing more. A caller that
// scans Values and then calls DeleteRow can race with a concurrent writer that
// shifts row positions in between.
package workbook

import (
	"context"
	"errors"

	"github.com/remitlab/sheetrelay/internal/model"
)

// ErrRowOutOfRange is returned by DeleteRow for a position with no data row.
var ErrRowOutOfRange = errors.New("row out of range")

// Book is a collection of named sheets.
type Book interface {
	// Sheet returns the named sheet; ok is false when it does not exist.
	Sheet(ctx context.Context, name string) (s Sheet, ok bool, err error)
	// InsertSheet creates a sheet whose first row is header. When the sheet
	// already exists it is returned unchanged and no second header is written.
	InsertSheet(ctx context.Context, name string, header []string) (Sheet, error)
	Close() error
}

// Sheet is one table inside a Book.
type Sheet interface {
	Name() string
	// AppendRow adds row as the new last row.
	AppendRow(ctx context.Context, row []model.Cell) error
	// Values returns every row, header first.
	Values(ctx context.Context) ([][]model.Cell, error)
	// DeleteRow removes the data row at pos (pos >= 2).
	DeleteRow(ctx context.Context, pos int) error
}

// HeaderCells converts column names to a header row.
func HeaderCells(header []string) []model.Cell {
	row := make([]model.Cell, len(header))
	for i, h := range header {
		row[i] = model.StringCell(h)
	}
	return row
}
