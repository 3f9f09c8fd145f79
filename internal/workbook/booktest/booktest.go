// Package booktest is a conformance suite every workbook backend must pass.
package booktest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remitlab/sheetrelay/internal/model"
	"github.com/remitlab/sheetrelay/internal/workbook"
)

// Run exercises a backend; open must return a fresh, empty Book.
func Run(t *testing.T, open func(t *testing.T) workbook.Book) {
	t.Run("MissingSheet", func(t *testing.T) {
		b := open(t)
		_, ok, err := b.Sheet(context.Background(), "Funnel")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("InsertWritesHeader", func(t *testing.T) {
		ctx := context.Background()
		b := open(t)
		s, err := b.InsertSheet(ctx, "Funnel", []string{"id", "type"})
		require.NoError(t, err)
		assert.Equal(t, "Funnel", s.Name())

		values, err := s.Values(ctx)
		require.NoError(t, err)
		require.Len(t, values, 1)
		assert.Equal(t, workbook.HeaderCells([]string{"id", "type"}), values[0])

		_, ok, err := b.Sheet(ctx, "Funnel")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("InsertIsIdempotent", func(t *testing.T) {
		ctx := context.Background()
		b := open(t)
		s, err := b.InsertSheet(ctx, "Funnel", []string{"id"})
		require.NoError(t, err)
		require.NoError(t, s.AppendRow(ctx, row("a")))

		again, err := b.InsertSheet(ctx, "Funnel", []string{"id"})
		require.NoError(t, err)
		values, err := again.Values(ctx)
		require.NoError(t, err)
		assert.Len(t, values, 2, "second insert must not add a header or drop rows")
	})

	t.Run("AppendPreservesOrderAndTypes", func(t *testing.T) {
		ctx := context.Background()
		b := open(t)
		s, err := b.InsertSheet(ctx, "Currency", []string{"id", "n", "empty"})
		require.NoError(t, err)

		num, err := model.ParseCell([]byte("0.25"))
		require.NoError(t, err)
		first := []model.Cell{model.StringCell("c1"), num, {}}
		second := []model.Cell{model.StringCell(`quote "and" comma,`), model.StringCell("0.25"), {}}
		require.NoError(t, s.AppendRow(ctx, first))
		require.NoError(t, s.AppendRow(ctx, second))

		values, err := s.Values(ctx)
		require.NoError(t, err)
		require.Len(t, values, 3)
		assert.Equal(t, first, values[1])
		assert.Equal(t, second, values[2])
		assert.False(t, values[1][1].Equal(values[2][1]), "number and string must stay distinct")
	})

	t.Run("DeleteRow", func(t *testing.T) {
		ctx := context.Background()
		b := open(t)
		s, err := b.InsertSheet(ctx, "Funnel", []string{"id"})
		require.NoError(t, err)
		for _, id := range []string{"a", "b", "c"} {
			require.NoError(t, s.AppendRow(ctx, row(id)))
		}

		require.NoError(t, s.DeleteRow(ctx, 3))
		values, err := s.Values(ctx)
		require.NoError(t, err)
		require.Len(t, values, 3)
		assert.Equal(t, "a", values[1][0].Text())
		assert.Equal(t, "c", values[2][0].Text())
	})

	t.Run("DeleteRowOutOfRange", func(t *testing.T) {
		ctx := context.Background()
		b := open(t)
		s, err := b.InsertSheet(ctx, "Funnel", []string{"id"})
		require.NoError(t, err)
		require.NoError(t, s.AppendRow(ctx, row("a")))

		assert.ErrorIs(t, s.DeleteRow(ctx, 1), workbook.ErrRowOutOfRange, "header cannot be deleted")
		assert.ErrorIs(t, s.DeleteRow(ctx, 3), workbook.ErrRowOutOfRange)

		values, err := s.Values(ctx)
		require.NoError(t, err)
		assert.Len(t, values, 2)
	})

	t.Run("SheetsAreIndependent", func(t *testing.T) {
		ctx := context.Background()
		b := open(t)
		f, err := b.InsertSheet(ctx, "Funnel", []string{"id"})
		require.NoError(t, err)
		c, err := b.InsertSheet(ctx, "Currency", []string{"id"})
		require.NoError(t, err)
		require.NoError(t, f.AppendRow(ctx, row("f")))
		require.NoError(t, c.AppendRow(ctx, row("c")))

		require.NoError(t, c.DeleteRow(ctx, 2))
		fv, err := f.Values(ctx)
		require.NoError(t, err)
		assert.Len(t, fv, 2)
	})
}

func row(id string) []model.Cell {
	return []model.Cell{model.StringCell(id)}
}
