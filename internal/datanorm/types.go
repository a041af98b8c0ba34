package datanorm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Decode errors surfaced to the uploader before any mapping starts.
var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrEmptyFile         = errors.New("file contains no columns")
	ErrUnknownField      = errors.New("unknown target field")
)

// Format is the physical encoding of an uploaded file.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// Cell is one header/value pair of a row.
type Cell struct {
	Key   string
	Value string
}

// Row is an ordered record of one source line. Duplicate keys are allowed
// and kept by position; lookups by key return the right-most cell.
type Row struct {
	cells []Cell
	index map[string]int
}

// NewRow builds a row from alternating key/value pairs.
func NewRow(kv ...string) Row {
	var r Row
	for i := 0; i+1 < len(kv); i += 2 {
		r.Append(kv[i], kv[i+1])
	}
	return r
}

// Append adds a cell at the end of the row.
func (r *Row) Append(key, value string) {
	if r.index == nil {
		r.index = make(map[string]int)
	}
	r.index[key] = len(r.cells)
	r.cells = append(r.cells, Cell{Key: key, Value: value})
}

// Get returns the value of the right-most cell named key.
func (r Row) Get(key string) (string, bool) {
	i, ok := r.index[key]
	if !ok {
		return "", false
	}
	return r.cells[i].Value, true
}

// Cells returns the cells in position order.
func (r Row) Cells() []Cell {
	out := make([]Cell, len(r.cells))
	copy(out, r.cells)
	return out
}

// Len returns the number of cells.
func (r Row) Len() int { return len(r.cells) }

// IsBlank reports whether every cell is empty after trimming.
func (r Row) IsBlank() bool {
	for _, c := range r.cells {
		if trimmed(c.Value) != "" {
			return false
		}
	}
	return true
}

// MarshalJSON writes the row as a JSON object in position order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.cells {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(c.Key)
		v, _ := json.Marshal(c.Value)
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object keeping key order and duplicates.
// Numbers and booleans keep their literal text; null becomes "".
func (r *Row) UnmarshalJSON(data []byte) error {
	*r = Row{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("row must be a JSON object")
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		value, err := cellText(raw)
		if err != nil {
			return fmt.Errorf("column %q: %w", key, err)
		}
		r.Append(key, value)
	}
	_, err = dec.Token()
	return err
}

func cellText(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	switch {
	case len(raw) == 0, bytes.Equal(raw, []byte("null")):
		return "", nil
	case raw[0] == '"':
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	case raw[0] == '{', raw[0] == '[':
		return "", fmt.Errorf("nested values are not supported")
	default:
		return string(raw), nil
	}
}

// RawTable is the decoder's output: headers in source order and one Row per
// data line. Every row carries exactly one cell per header.
type RawTable struct {
	Headers []string
	Rows    []Row
}
