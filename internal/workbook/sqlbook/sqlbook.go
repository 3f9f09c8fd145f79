// Package sqlbook stores a workbook in a SQL database (SQLite or PostgreSQL).
//
// Sheets live in one table and rows in another, ordered by an auto-increment
// id. A row position is resolved at delete time ("the Nth row of the sheet"),
// so a concurrent insert or delete between a caller's scan and its DeleteRow
// can shift the target, the same as a spreadsheet.
package sqlbook

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/remitlab/sheetrelay/internal/model"
	"github.com/remitlab/sheetrelay/internal/workbook"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

//go:embed schema_postgres.sql
var postgresSchema string

// Supported driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Book is a SQL-backed workbook.
type Book struct {
	db     *sql.DB
	driver string
}

var _ workbook.Book = (*Book)(nil)

// Open connects to the database and applies the schema.
// For SQLite, dsn is a file path; for PostgreSQL, a connection URL.
func Open(driver, dsn string) (*Book, error) {
	var schema string
	switch driver {
	case DriverSQLite:
		schema = sqliteSchema
	case DriverPostgres:
		schema = postgresSchema
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == DriverSQLite {
		// SQLite only supports one writer at a time.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		if err := applyPragmas(db); err != nil {
			db.Close()
			return nil, err
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Book{db: db, driver: driver}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Close implements workbook.Book.
func (b *Book) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

// DB returns the underlying connection pool.
func (b *Book) DB() *sql.DB { return b.db }

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (b *Book) rebind(query string) string {
	if b.driver != DriverPostgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// Sheet implements workbook.Book.
func (b *Book) Sheet(ctx context.Context, name string) (workbook.Sheet, bool, error) {
	var header string
	err := b.db.QueryRowContext(ctx, b.rebind(`SELECT header FROM sheets WHERE name = ?`), name).Scan(&header)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("looking up sheet %s: %w", name, err)
	}
	return &sheet{book: b, name: name}, true, nil
}

// InsertSheet implements workbook.Book.
func (b *Book) InsertSheet(ctx context.Context, name string, header []string) (workbook.Sheet, error) {
	data, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("encoding header: %w", err)
	}
	_, err = b.db.ExecContext(ctx,
		b.rebind(`INSERT INTO sheets (name, header) VALUES (?, ?) ON CONFLICT (name) DO NOTHING`),
		name, string(data))
	if err != nil {
		return nil, fmt.Errorf("creating sheet %s: %w", name, err)
	}
	return &sheet{book: b, name: name}, nil
}

type sheet struct {
	book *Book
	name string
}

func (s *sheet) Name() string { return s.name }

func (s *sheet) AppendRow(ctx context.Context, row []model.Cell) error {
	data, err := encodeRow(row)
	if err != nil {
		return err
	}
	_, err = s.book.db.ExecContext(ctx,
		s.book.rebind(`INSERT INTO sheet_rows (sheet, cells) VALUES (?, ?)`),
		s.name, data)
	if err != nil {
		return fmt.Errorf("appending to %s: %w", s.name, err)
	}
	return nil
}

func (s *sheet) Values(ctx context.Context) ([][]model.Cell, error) {
	var headerJSON string
	err := s.book.db.QueryRowContext(ctx,
		s.book.rebind(`SELECT header FROM sheets WHERE name = ?`), s.name).Scan(&headerJSON)
	if err != nil {
		return nil, fmt.Errorf("reading %s header: %w", s.name, err)
	}
	var header []string
	if err := json.Unmarshal([]byte(headerJSON), &header); err != nil {
		return nil, fmt.Errorf("decoding %s header: %w", s.name, err)
	}

	rows, err := s.book.db.QueryContext(ctx,
		s.book.rebind(`SELECT cells FROM sheet_rows WHERE sheet = ? ORDER BY id ASC`), s.name)
	if err != nil {
		return nil, fmt.Errorf("reading %s rows: %w", s.name, err)
	}
	defer rows.Close()

	values := [][]model.Cell{workbook.HeaderCells(header)}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", s.name, err)
		}
		row, err := decodeRow(data)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", s.name, len(values)+1, err)
		}
		values = append(values, row)
	}
	return values, rows.Err()
}

func (s *sheet) DeleteRow(ctx context.Context, pos int) error {
	if pos < 2 {
		return fmt.Errorf("deleting %s row %d: %w", s.name, pos, workbook.ErrRowOutOfRange)
	}
	res, err := s.book.db.ExecContext(ctx, s.book.rebind(`
		DELETE FROM sheet_rows WHERE id = (
			SELECT id FROM sheet_rows WHERE sheet = ? ORDER BY id ASC LIMIT 1 OFFSET ?
		)`), s.name, pos-2)
	if err != nil {
		return fmt.Errorf("deleting %s row %d: %w", s.name, pos, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting %s row %d: %w", s.name, pos, err)
	}
	if n == 0 {
		return fmt.Errorf("deleting %s row %d: %w", s.name, pos, workbook.ErrRowOutOfRange)
	}
	return nil
}

func encodeRow(row []model.Cell) (string, error) {
	raw := make([]string, len(row))
	for i, c := range row {
		raw[i] = c.Raw()
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return "", fmt.Errorf("encoding row: %w", err)
	}
	return string(data), nil
}

func decodeRow(data string) ([]model.Cell, error) {
	var raw []string
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil, fmt.Errorf("decoding row: %w", err)
	}
	row := make([]model.Cell, len(raw))
	for i, r := range raw {
		c, err := model.ParseCell([]byte(r))
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i+1, err)
		}
		row[i] = c
	}
	return row, nil
}
