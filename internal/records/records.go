// Package records implements append, delete-by-id and read-all over the
// Funnel and Currency tables of a workbook.
package records

import (
	"context"
	"fmt"
	"iter"

	"github.com/remitlab/sheetrelay/internal/logging"
	"github.com/remitlab/sheetrelay/internal/model"
	"github.com/remitlab/sheetrelay/internal/tables"
	"github.com/remitlab/sheetrelay/internal/workbook"
)

// NotFoundError is returned when a delete matches no row.
type NotFoundError struct {
	Table string
	ID    model.Cell
}

func (e *NotFoundError) Error() string {
	return "no record found with id: " + e.ID.Text()
}

// TableNotFoundError is returned when a delete targets a table that was never created.
type TableNotFoundError struct {
	Table string
}

func (e *TableNotFoundError) Error() string {
	return "table not found: " + e.Table
}

// Service stores records in a workbook.
type Service struct {
	router *tables.Router
}

// NewService creates a Service over book.
func NewService(book workbook.Book) *Service {
	return &Service{router: tables.NewRouter(book)}
}

// Append adds rec as the last row of its table, creating the table first if
// needed. Duplicate ids are accepted. Returns the table written to.
func (s *Service) Append(ctx context.Context, rec model.Record) (tables.Schema, error) {
	schema := tables.ForKind(rec.Kind())

	sh, err := s.router.Ensure(ctx, schema)
	if err != nil {
		return schema, err
	}

	row := rec.Row()
	if schema.Kind == model.KindFunnel && !row[typeColumn].Truthy() {
		row[typeColumn] = model.StringCell(string(model.KindFunnel))
	}
	if err := sh.AppendRow(ctx, row); err != nil {
		return schema, fmt.Errorf("saving record: %w", err)
	}

	logging.FromContext(ctx).Debug("appended record", "table", schema.Name, "id", rec.RecordID().Text())
	return schema, nil
}

// typeColumn is the position of "type" in both tables.
const typeColumn = 1

// Delete removes the first row, top to bottom, whose id strictly equals
// req.ID. Only one row is removed even when ids repeat.
func (s *Service) Delete(ctx context.Context, req *model.DeleteRequest) (tables.Schema, error) {
	schema := tables.Route(req.Type)

	sh, ok, err := s.router.Lookup(ctx, schema)
	if err != nil {
		return schema, err
	}
	if !ok {
		return schema, &TableNotFoundError{Table: schema.Name}
	}
	if !req.ID.Truthy() {
		return schema, &NotFoundError{Table: schema.Name, ID: req.ID}
	}

	values, err := sh.Values(ctx)
	if err != nil {
		return schema, fmt.Errorf("reading %s: %w", schema.Name, err)
	}

	// Row positions are 1-based and row 1 is the header.
	for i := 1; i < len(values); i++ {
		if len(values[i]) > 0 && values[i][0].Equal(req.ID) {
			if err := sh.DeleteRow(ctx, i+1); err != nil {
				return schema, fmt.Errorf("deleting record: %w", err)
			}
			logging.FromContext(ctx).Debug("deleted record", "table", schema.Name, "id", req.ID.Text(), "row", i+1)
			return schema, nil
		}
	}
	return schema, &NotFoundError{Table: schema.Name, ID: req.ID}
}

// ReadAll yields every Funnel row and then every Currency row in physical
// order. Tables that do not exist contribute nothing. Iteration stops after
// the first error.
func (s *Service) ReadAll(ctx context.Context) iter.Seq2[model.Record, error] {
	return func(yield func(model.Record, error) bool) {
		for _, schema := range tables.All() {
			sh, ok, err := s.router.Lookup(ctx, schema)
			if err != nil {
				yield(nil, err)
				return
			}
			if !ok {
				continue
			}

			values, err := sh.Values(ctx)
			if err != nil {
				yield(nil, fmt.Errorf("reading %s: %w", schema.Name, err))
				return
			}
			for i := 1; i < len(values); i++ {
				if !yield(fromRow(schema, values[i]), nil) {
					return
				}
			}
		}
	}
}

// Collect drains ReadAll into a slice.
func (s *Service) Collect(ctx context.Context) ([]model.Record, error) {
	out := []model.Record{}
	for rec, err := range s.ReadAll(ctx) {
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func fromRow(schema tables.Schema, row []model.Cell) model.Record {
	if schema.Kind == model.KindCurrency {
		return model.CurrencyFromRow(row)
	}
	rec := model.FunnelFromRow(row)
	if !rec.Type.Truthy() {
		rec.Type = model.StringCell(string(model.KindFunnel))
	}
	return rec
}
