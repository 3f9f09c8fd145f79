package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/remitlab/sheetrelay/internal/model"
	"github.com/remitlab/sheetrelay/internal/records"
	"github.com/remitlab/sheetrelay/internal/tables"
)

// Parser converts an export file into payloads.
type Parser interface {
	Parse(r io.Reader) ([]model.Payload, error)
	Format() string
}

// Registry holds named parsers.
type Registry struct {
	parsers map[string]Parser
}

// FileInfo describes a file in the import directory.
type FileInfo struct {
	Name   string
	Path   string
	Format string
	Size   int64
}

// NewRegistry creates an empty parser registry.
func NewRegistry() *Registry {
	return &Registry{parsers: make(map[string]Parser)}
}

// Register adds a parser. Panics on duplicate format.
func (r *Registry) Register(p Parser) {
	key := strings.ToLower(p.Format())
	if _, ok := r.parsers[key]; ok {
		panic("duplicate parser format: " + key)
	}
	r.parsers[key] = p
}

// Get returns the parser for format, or nil.
func (r *Registry) Get(format string) Parser {
	return r.parsers[strings.ToLower(format)]
}

// ForFile returns the parser matching a file extension, or nil.
func (r *Registry) ForFile(name string) Parser {
	return r.Get(strings.TrimPrefix(filepath.Ext(name), "."))
}

// DefaultRegistry returns a registry with all built-in parsers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&JSONLParser{})
	r.Register(&CSVParser{})
	return r
}

// Store is the subset of records.Service an import writes through.
type Store interface {
	Append(ctx context.Context, rec model.Record) (tables.Schema, error)
	Delete(ctx context.Context, req *model.DeleteRequest) (tables.Schema, error)
}

var _ Store = (*records.Service)(nil)

// Result counts what an import did.
type Result struct {
	Saved   int
	Deleted int
	Missed  int
}

// Apply runs payloads in order. A delete that matches nothing is counted as
// missed and the import continues; any other error stops it.
func Apply(ctx context.Context, store Store, payloads []model.Payload) (Result, error) {
	var res Result
	for i, p := range payloads {
		switch p := p.(type) {
		case *model.DeleteRequest:
			_, err := store.Delete(ctx, p)
			var (
				nf  *records.NotFoundError
				tnf *records.TableNotFoundError
			)
			switch {
			case errors.As(err, &nf), errors.As(err, &tnf):
				res.Missed++
			case err != nil:
				return res, fmt.Errorf("payload %d: %w", i+1, err)
			default:
				res.Deleted++
			}
		case model.Record:
			if _, err := store.Append(ctx, p); err != nil {
				return res, fmt.Errorf("payload %d: %w", i+1, err)
			}
			res.Saved++
		}
	}
	return res, nil
}

// importDir is the subdirectory for pending imports.
const importDir = "import"

// processedDir is the subdirectory for imported files.
const processedDir = "import/processed"

// Scan returns importable files in <dataDir>/import/, in name order.
func (r *Registry) Scan(dataDir string) ([]FileInfo, error) {
	dir := filepath.Join(dataDir, importDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading import dir: %w", err)
	}

	var files []FileInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		p := r.ForFile(e.Name())
		if p == nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		files = append(files, FileInfo{
			Name:   e.Name(),
			Path:   filepath.Join(dir, e.Name()),
			Format: p.Format(),
			Size:   info.Size(),
		})
	}
	return files, nil
}

// MarkProcessed moves a file from import/ to import/processed/.
func MarkProcessed(dataDir, fileName string) error {
	src := filepath.Join(dataDir, importDir, fileName)
	dstDir := filepath.Join(dataDir, processedDir)

	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return fmt.Errorf("creating processed dir: %w", err)
	}

	dst := filepath.Join(dstDir, fileName)
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("moving %s to processed: %w", fileName, err)
	}
	return nil
}

// ParseFile parses path with the parser matching its extension.
func (r *Registry) ParseFile(path string) ([]model.Payload, error) {
	p := r.ForFile(path)
	if p == nil {
		return nil, fmt.Errorf("no parser for %s", filepath.Base(path))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	payloads, err := p.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return payloads, nil
}
