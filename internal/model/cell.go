package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Cell is a single table cell holding one JSON value exactly as the client sent it.
// The zero Cell is empty, which is how absent and null fields are stored.
type Cell struct {
	raw string // canonical compact JSON; "" = empty
}

// ParseCell canonicalizes one JSON value into a Cell.
// Numbers go through decimal so 1, 1.0 and 1e0 are the same cell.
func ParseCell(data []byte) (Cell, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Cell{}, nil
	}
	if !json.Valid(data) {
		return Cell{}, fmt.Errorf("invalid JSON value %q", data)
	}

	switch data[0] {
	case 'n':
		return Cell{}, nil
	case 't', 'f':
		return Cell{raw: string(data)}, nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return Cell{}, fmt.Errorf("parsing string %s: %w", data, err)
		}
		return StringCell(s), nil
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, data); err != nil {
			return Cell{}, fmt.Errorf("compacting %s: %w", data, err)
		}
		return Cell{raw: buf.String()}, nil
	default:
		d, err := ParseNumber(string(data))
		if err != nil {
			return Cell{}, err
		}
		return NumberCell(d), nil
	}
}

// MaxExponent bounds the decimal exponent of a number cell, about the range
// of a float64. Formatting a decimal writes out every digit of its exponent,
// so 1e10000000 would otherwise expand to a 10 MB string.
const MaxExponent = 400

// maxNumberLen bounds the text of a number before it reaches the big-integer
// parser.
const maxNumberLen = 1024

// ErrNumberRange is returned for numbers outside ±1e±MaxExponent or longer
// than maxNumberLen characters.
var ErrNumberRange = errors.New("number out of range")

// ParseNumber parses a JSON or plain-text number. Zero is normalized before
// its exponent is looked at, so 0e99999999 is just 0.
func ParseNumber(s string) (decimal.Decimal, error) {
	if len(s) > maxNumberLen {
		return decimal.Decimal{}, fmt.Errorf("parsing number %.32s...: %w", s, ErrNumberRange)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parsing number %s: %w", s, err)
	}
	if d.IsZero() {
		return decimal.Zero, nil
	}
	// adjusted is the power of ten of the leading digit.
	adjusted := int64(d.Exponent()) + int64(d.NumDigits()) - 1
	if adjusted > MaxExponent || adjusted < -MaxExponent {
		return decimal.Decimal{}, fmt.Errorf("parsing number %s: %w", s, ErrNumberRange)
	}
	return d, nil
}

// StringCell returns a cell holding a JSON string.
func StringCell(s string) Cell {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return Cell{raw: strings.TrimSuffix(buf.String(), "\n")}
}

// NumberCell returns a cell holding a JSON number.
func NumberCell(d decimal.Decimal) Cell {
	return Cell{raw: d.String()}
}

// IsEmpty reports whether the cell holds no value.
func (c Cell) IsEmpty() bool { return c.raw == "" }

// Raw returns the canonical JSON text, or "" for an empty cell.
func (c Cell) Raw() string { return c.raw }

// Equal is strict equality: the string "1" never equals the number 1.
func (c Cell) Equal(other Cell) bool { return c.raw == other.raw }

// IsString reports whether the cell holds a JSON string.
func (c Cell) IsString() bool { return strings.HasPrefix(c.raw, `"`) }

// Str returns the string value and true for string cells.
func (c Cell) Str() (string, bool) {
	if !c.IsString() {
		return "", false
	}
	var s string
	if err := json.Unmarshal([]byte(c.raw), &s); err != nil {
		return "", false
	}
	return s, true
}

// Text renders the cell for messages: strings unquoted, everything else as JSON.
func (c Cell) Text() string {
	if s, ok := c.Str(); ok {
		return s
	}
	return c.raw
}

// Truthy mirrors a loose truthiness check: empty, "", 0 and false are falsy.
func (c Cell) Truthy() bool {
	switch {
	case c.raw == "", c.raw == `""`, c.raw == "false":
		return false
	case c.IsString(), c.raw == "true", c.raw[0] == '{', c.raw[0] == '[':
		return true
	}
	d, err := decimal.NewFromString(c.raw)
	if err != nil {
		return true
	}
	return !d.IsZero()
}

// MarshalJSON writes empty cells as "" so every column is present on read.
func (c Cell) MarshalJSON() ([]byte, error) {
	if c.raw == "" {
		return []byte(`""`), nil
	}
	return []byte(c.raw), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Cell) UnmarshalJSON(data []byte) error {
	parsed, err := ParseCell(data)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
