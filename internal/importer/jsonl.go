package importer

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/remitlab/sheetrelay/internal/model"
)

// JSONLParser reads one request body per line, the same shape the handler
// accepts. Blank lines are skipped and auth_token is ignored.
type JSONLParser struct{}

// Format returns the parser name.
func (p *JSONLParser) Format() string { return "jsonl" }

// Parse reads JSON lines.
func (p *JSONLParser) Parse(r io.Reader) ([]model.Payload, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var out []model.Payload
	line := 0
	for sc.Scan() {
		line++
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		req, err := model.DecodeRequest(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, req.Payload)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading JSONL: %w", err)
	}
	return out, nil
}
