package commands

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remitlab/sheetrelay/internal/config"
	"github.com/remitlab/sheetrelay/internal/model"
	"github.com/remitlab/sheetrelay/internal/ratelimit"
	"github.com/remitlab/sheetrelay/internal/records"
	"github.com/remitlab/sheetrelay/internal/workbook/csvbook"
	"github.com/remitlab/sheetrelay/internal/workbook/sqlbook"
)

func TestOpenBook(t *testing.T) {
	dir := t.TempDir()

	cfg := config.Default()
	cfg.ResolvePaths(dir)
	book, err := openBook(cfg)
	require.NoError(t, err)
	assert.IsType(t, &csvbook.Book{}, book)
	require.NoError(t, book.Close())

	cfg.Store.Backend = config.BackendSQLite
	cfg.Store.DSN = filepath.Join(dir, "book.db")
	book, err = openBook(cfg)
	require.NoError(t, err)
	assert.IsType(t, &sqlbook.Book{}, book)
	require.NoError(t, book.Close())

	cfg.Store.Backend = "excel"
	_, err = openBook(cfg)
	assert.ErrorContains(t, err, "unknown store backend")
}

func TestOpenCounter(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.ResolvePaths(dir)

	c, closer, err := openCounter(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &ratelimit.MemoryCounter{}, c)
	assert.Nil(t, closer)

	cfg.RateLimit.Backend = config.BackendSQLite
	c, closer, err = openCounter(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &ratelimit.SQLiteCounter{}, c)
	require.NotNil(t, closer)
	require.NoError(t, closer.Close())
}

func TestOpenCounter_SharesSQLiteBook(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Store.Backend = config.BackendSQLite
	cfg.Store.DSN = filepath.Join(dir, "relay.db")
	cfg.RateLimit.Backend = config.BackendSQLite
	cfg.RateLimit.Path = cfg.Store.DSN

	book, err := openBook(cfg)
	require.NoError(t, err)
	defer book.Close()

	c, closer, err := openCounter(cfg, book)
	require.NoError(t, err)
	assert.Nil(t, closer, "shared connection is closed with the book")
	require.NoError(t, c.Put(t.Context(), "ratelimit_2024-05-01T10:00", 3, ratelimit.DefaultWindow))
	n, ok, err := c.Get(t.Context(), "ratelimit_2024-05-01T10:00")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, n)
}

func TestNewStack(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.ResolvePaths(dir)
	cfg.Auth.Token = "T"

	st, err := newStack(cfg)
	require.NoError(t, err)
	require.NotNil(t, st.handler)

	resp := st.handler.Post(t.Context(), []byte(`{"auth_token":"T","id":"f1","type":"funnel"}`))
	assert.True(t, resp.OK(), resp.Message)
	assert.FileExists(t, filepath.Join(dir, "logs", "audit.csv"))
	assert.FileExists(t, filepath.Join(dir, "sheets", "Funnel.csv"))
	require.NoError(t, st.Close())
}

func TestNewStack_BadCounterClosesBook(t *testing.T) {
	cfg := config.Default()
	cfg.ResolvePaths(t.TempDir())
	cfg.RateLimit.Backend = "redis"

	_, err := newStack(cfg)
	assert.ErrorContains(t, err, "unknown rate limit backend")
}

type failingWriter struct{ after int }

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.after <= 0 {
		return 0, errors.New("disk full")
	}
	w.after--
	return len(p), nil
}

func TestRunExport_WriteErrors(t *testing.T) {
	book, err := csvbook.Open(t.TempDir())
	require.NoError(t, err)
	svc := records.NewService(book)
	_, err = svc.Append(t.Context(), &model.FunnelRecord{ID: model.StringCell("f1")})
	require.NoError(t, err)

	// json makes four writes for one record: "[", separator, record, "]".
	for after := range 4 {
		cmd := &cobra.Command{}
		cmd.SetContext(t.Context())
		cmd.SetOut(&failingWriter{after: after})
		assert.ErrorContains(t, runExport(cmd, svc, "json"), "disk full", "failing write %d", after)
	}

	cmd := &cobra.Command{}
	cmd.SetContext(t.Context())
	cmd.SetOut(&failingWriter{})
	assert.ErrorContains(t, runExport(cmd, svc, "jsonl"), "disk full")
}
