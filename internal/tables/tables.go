// Package tables maps record kinds to the two fixed sheets and provisions them.
package tables

import (
	"context"
	"fmt"

	"github.com/remitlab/sheetrelay/internal/logging"
	"github.com/remitlab/sheetrelay/internal/model"
	"github.com/remitlab/sheetrelay/internal/workbook"
)

// Schema describes one logical table.
type Schema struct {
	Name    string
	Kind    model.Kind
	Columns []string
}

var (
	Funnel   = Schema{Name: "Funnel", Kind: model.KindFunnel, Columns: model.FunnelColumns}
	Currency = Schema{Name: "Currency", Kind: model.KindCurrency, Columns: model.CurrencyColumns}
)

// All returns the schemas in read order.
func All() []Schema {
	return []Schema{Funnel, Currency}
}

// ForKind returns the schema storing records of kind k.
func ForKind(k model.Kind) Schema {
	if k == model.KindCurrency {
		return Currency
	}
	return Funnel
}

// Route picks the table for a record's type discriminator. Only the exact
// string "currency" routes to Currency.
func Route(typ model.Cell) Schema {
	return ForKind(model.KindOf(typ))
}

// Router resolves schemas to sheets inside a workbook.
type Router struct {
	book workbook.Book
}

// NewRouter creates a Router over book.
func NewRouter(book workbook.Book) *Router {
	return &Router{book: book}
}

// Lookup returns the sheet for s without creating it.
func (r *Router) Lookup(ctx context.Context, s Schema) (workbook.Sheet, bool, error) {
	sh, ok, err := r.book.Sheet(ctx, s.Name)
	if err != nil {
		return nil, false, fmt.Errorf("looking up table %s: %w", s.Name, err)
	}
	return sh, ok, nil
}

// Ensure returns the sheet for s, creating it with its header row first if
// it does not exist yet. Safe to call repeatedly.
func (r *Router) Ensure(ctx context.Context, s Schema) (workbook.Sheet, error) {
	sh, ok, err := r.Lookup(ctx, s)
	if err != nil {
		return nil, err
	}
	if ok {
		return sh, nil
	}

	sh, err = r.book.InsertSheet(ctx, s.Name, s.Columns)
	if err != nil {
		return nil, fmt.Errorf("creating table %s: %w", s.Name, err)
	}
	logging.FromContext(ctx).Info("created table", "table", s.Name, "columns", len(s.Columns))
	return sh, nil
}
