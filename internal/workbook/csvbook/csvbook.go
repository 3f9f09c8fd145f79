// Package csvbook stores a workbook as a directory of CSV files, one per sheet.
//
// The first line of each file is the plain-text header. Data cells hold the
// canonical JSON text of their value ("f1" is written as "\"f1\"", 100 as
// "100") so types survive a round trip; an empty field is an empty cell.
package csvbook

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/remitlab/sheetrelay/internal/model"
	"github.com/remitlab/sheetrelay/internal/workbook"
)

const ext = ".csv"

// Book is a directory-backed workbook. A single mutex serializes file access
// within the process.
type Book struct {
	dir string
	mu  sync.Mutex
}

var _ workbook.Book = (*Book)(nil)

// Open returns a Book rooted at dir, creating the directory if needed.
func Open(dir string) (*Book, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating workbook dir: %w", err)
	}
	return &Book{dir: dir}, nil
}

// Dir returns the workbook directory.
func (b *Book) Dir() string { return b.dir }

// Close implements workbook.Book.
func (b *Book) Close() error { return nil }

func (b *Book) path(name string) (string, error) {
	p, err := securejoin.SecureJoin(b.dir, name+ext)
	if err != nil {
		return "", fmt.Errorf("resolving sheet %q: %w", name, err)
	}
	return p, nil
}

// Sheet implements workbook.Book.
func (b *Book) Sheet(_ context.Context, name string) (workbook.Sheet, bool, error) {
	p, err := b.path(name)
	if err != nil {
		return nil, false, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, fmt.Errorf("stat sheet %s: %w", name, err)
	}
	return &sheet{book: b, name: name, path: p}, true, nil
}

// InsertSheet implements workbook.Book.
func (b *Book) InsertSheet(_ context.Context, name string, header []string) (workbook.Sheet, error) {
	p, err := b.path(name)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return &sheet{book: b, name: name, path: p}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("creating sheet %s: %w", name, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(header); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}
	return &sheet{book: b, name: name, path: p}, nil
}

type sheet struct {
	book *Book
	name string
	path string
}

func (s *sheet) Name() string { return s.name }

func (s *sheet) AppendRow(_ context.Context, row []model.Cell) error {
	s.book.mu.Lock()
	defer s.book.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening sheet %s: %w", s.name, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(MarshalRow(row)); err != nil {
		return fmt.Errorf("appending to %s: %w", s.name, err)
	}
	cw.Flush()
	return cw.Error()
}

func (s *sheet) Values(_ context.Context) ([][]model.Cell, error) {
	s.book.mu.Lock()
	defer s.book.mu.Unlock()

	records, err := s.readAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	rows := make([][]model.Cell, 0, len(records))
	rows = append(rows, workbook.HeaderCells(records[0]))
	for i, rec := range records[1:] {
		row, err := UnmarshalRow(rec)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", s.name, i+2, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *sheet) DeleteRow(_ context.Context, pos int) error {
	s.book.mu.Lock()
	defer s.book.mu.Unlock()

	records, err := s.readAll()
	if err != nil {
		return err
	}
	if pos < 2 || pos > len(records) {
		return fmt.Errorf("deleting %s row %d: %w", s.name, pos, workbook.ErrRowOutOfRange)
	}

	kept := append(records[:pos-1:pos-1], records[pos:]...)
	return s.rewrite(kept)
}

func (s *sheet) readAll() ([][]string, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("opening sheet %s: %w", s.name, err)
	}
	defer f.Close()
	return readRecords(f)
}

// rewrite replaces the sheet file via a temp file and rename.
func (s *sheet) rewrite(records [][]string) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+"-*")
	if err != nil {
		return fmt.Errorf("creating temp sheet: %w", err)
	}
	defer os.Remove(tmp.Name())

	cw := csv.NewWriter(tmp)
	if err := cw.WriteAll(records); err != nil {
		tmp.Close()
		return fmt.Errorf("rewriting %s: %w", s.name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp sheet: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing sheet %s: %w", s.name, err)
	}
	return nil
}

func readRecords(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading sheet CSV: %w", err)
	}
	return records, nil
}

// MarshalRow converts cells to CSV fields.
func MarshalRow(row []model.Cell) []string {
	fields := make([]string, len(row))
	for i, c := range row {
		fields[i] = c.Raw()
	}
	return fields
}

// UnmarshalRow converts CSV fields back to cells.
func UnmarshalRow(fields []string) ([]model.Cell, error) {
	row := make([]model.Cell, len(fields))
	for i, f := range fields {
		c, err := model.ParseCell([]byte(f))
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i+1, err)
		}
		row[i] = c
	}
	return row, nil
}
