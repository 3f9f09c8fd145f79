package commands

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/remitlab/sheetrelay/internal/auditlog"
	"github.com/remitlab/sheetrelay/internal/auth"
	"github.com/remitlab/sheetrelay/internal/config"
	"github.com/remitlab/sheetrelay/internal/handler"
	"github.com/remitlab/sheetrelay/internal/logging"
	"github.com/remitlab/sheetrelay/internal/ratelimit"
	"github.com/remitlab/sheetrelay/internal/records"
	"github.com/remitlab/sheetrelay/internal/workbook"
	"github.com/remitlab/sheetrelay/internal/workbook/csvbook"
	"github.com/remitlab/sheetrelay/internal/workbook/sqlbook"
)

type rootOptions struct {
	configPath string
	configSet  bool
	verbose    bool
	logJSON    bool

	// baseDir is the directory holding the config file, or the working
	// directory when running on defaults.
	baseDir string
	// configFile is the loaded file's absolute path; empty on defaults.
	configFile string
	// fileHasToken is set when the file itself, not the environment, holds
	// auth.token.
	fileHasToken bool
}

// load reads the config file (or defaults when the default file is absent),
// overlays the environment and configures logging.
func (o *rootOptions) load(cmd *cobra.Command) (*config.Config, error) {
	var cfg *config.Config

	_, err := os.Stat(o.configPath)
	switch {
	case err == nil:
		abs, err := filepath.Abs(o.configPath)
		if err != nil {
			return nil, fmt.Errorf("resolving config path: %w", err)
		}
		cfg, err = config.Load(abs)
		if err != nil {
			return nil, err
		}
		o.baseDir = filepath.Dir(abs)
		o.configFile = abs
		o.fileHasToken = cfg.Auth.Token != ""
	case errors.Is(err, fs.ErrNotExist) && !o.configSet:
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getting working directory: %w", err)
		}
		cfg = config.Default()
		cfg.ResolvePaths(wd)
		o.baseDir = wd
	default:
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := cfg.ApplyEnv(nil); err != nil {
		return nil, err
	}
	cfg.Log.Verbose = cfg.Log.Verbose || o.verbose
	cfg.Log.JSON = cfg.Log.JSON || o.logJSON
	logging.Setup(cfg.Log.Verbose, cfg.Log.JSON, cmd.ErrOrStderr())
	return cfg, nil
}

func openBook(cfg *config.Config) (workbook.Book, error) {
	switch cfg.Store.Backend {
	case config.BackendCSV:
		return csvbook.Open(cfg.Store.Dir)
	case config.BackendSQLite:
		return sqlbook.Open(sqlbook.DriverSQLite, cfg.Store.DSN)
	case config.BackendPostgres:
		return sqlbook.Open(sqlbook.DriverPostgres, cfg.Store.DSN)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// openCounter returns the rate-limit counter. A SQLite counter pointed at
// the SQLite workbook file reuses the workbook's connection.
func openCounter(cfg *config.Config, book workbook.Book) (ratelimit.Counter, io.Closer, error) {
	switch cfg.RateLimit.Backend {
	case config.BackendMemory:
		return ratelimit.NewMemoryCounter(nil), nil, nil
	case config.BackendSQLite:
		if sb, ok := book.(*sqlbook.Book); ok && cfg.Store.Backend == config.BackendSQLite && cfg.RateLimit.Path == cfg.Store.DSN {
			c, err := ratelimit.NewSQLiteCounter(sb.DB(), nil)
			return c, nil, err
		}
		c, err := ratelimit.OpenSQLiteCounter(cfg.RateLimit.Path, nil)
		if err != nil {
			return nil, nil, err
		}
		return c, c, nil
	default:
		return nil, nil, fmt.Errorf("unknown rate limit backend %q", cfg.RateLimit.Backend)
	}
}

// stack is the fully wired handler and the resources behind it.
type stack struct {
	book    workbook.Book
	records *records.Service
	handler *handler.Handler
	closers []io.Closer
}

func newStack(cfg *config.Config) (*stack, error) {
	book, err := openBook(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	s := &stack{book: book, records: records.NewService(book), closers: []io.Closer{book}}

	counter, closer, err := openCounter(cfg, book)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("opening rate limit counter: %w", err)
	}
	if closer != nil {
		s.closers = append(s.closers, closer)
	}

	limiter := ratelimit.New(counter,
		ratelimit.WithLimit(cfg.RateLimit.Limit),
		ratelimit.WithWindow(cfg.RateLimit.Window()))

	var opts []handler.Option
	if cfg.Audit.Enabled && cfg.Audit.Path != "" {
		opts = append(opts, handler.WithAudit(auditlog.New(cfg.Audit.Path)))
	}
	s.handler = handler.New(auth.NewGate(cfg.Auth.Token), limiter, s.records, opts...)
	return s, nil
}

// Close releases resources in reverse order of acquisition.
func (s *stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
