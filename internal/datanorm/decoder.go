package datanorm

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}
	zipMagic      = []byte{'P', 'K', 0x03, 0x04}
	oleMagic      = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// DetectFormat resolves the format of an upload from its file name, falling
// back to the leading bytes when the extension is missing or unfamiliar.
// Legacy binary .xls workbooks are not supported.
func DetectFormat(fileName string, data []byte) (Format, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".xls":
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}

	switch {
	case bytes.HasPrefix(data, zipMagic):
		return FormatXLSX, nil
	case bytes.HasPrefix(data, oleMagic):
		return "", fmt.Errorf("%w: legacy excel workbook", ErrUnsupportedFormat)
	case ext == "" && looksLikeText(data):
		return FormatCSV, nil
	}
	if ext == "" {
		ext = "(none)"
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
}

// looksLikeText rejects payloads carrying NUL bytes in their first block.
func looksLikeText(data []byte) bool {
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	return len(head) > 0 && bytes.IndexByte(head, 0) < 0
}

// Decode turns an uploaded file into a RawTable.
func Decode(data []byte, format Format) (*RawTable, error) {
	switch format {
	case FormatCSV:
		return decodeCSV(data)
	case FormatXLSX:
		return decodeXLSX(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// DecodeFile detects the format of a named upload and decodes it.
func DecodeFile(fileName string, data []byte) (*RawTable, Format, error) {
	format, err := DetectFormat(fileName, data)
	if err != nil {
		return nil, "", err
	}
	table, err := Decode(data, format)
	if err != nil {
		return nil, format, err
	}
	return table, format, nil
}

// decodeCSV reads delimited text. Blank lines are skipped by the reader;
// lines made only of delimiters are kept as all-empty rows.
func decodeCSV(data []byte) (*RawTable, error) {
	reader := bufio.NewReader(bytes.NewReader(data))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	r := csv.NewReader(reader)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	headers := trimAll(header)
	if !anyNonBlank(headers) {
		return nil, ErrEmptyFile
	}

	table := &RawTable{Headers: headers}
	line := 1
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		table.Rows = append(table.Rows, buildRow(headers, record))
	}
	return table, nil
}

// decodeXLSX reads the first worksheet. Row 1 is the header; data rows
// with no non-blank cell under a header position are dropped.
func decodeXLSX(data []byte) (*RawTable, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: open xlsx: %v", ErrUnsupportedFormat, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, ErrEmptyFile
	}

	headers := trimAll(rows[0])
	if !anyNonBlank(headers) {
		return nil, ErrEmptyFile
	}

	table := &RawTable{Headers: headers}
	for _, cells := range rows[1:] {
		row := buildRow(headers, cells)
		if row.IsBlank() {
			continue
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// buildRow pairs record values with headers by position. Missing trailing
// values become "" and values past the header width are discarded.
func buildRow(headers, record []string) Row {
	var row Row
	for i, h := range headers {
		v := ""
		if i < len(record) {
			v = record[i]
		}
		row.Append(h, v)
	}
	return row
}

func trimAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = trimmed(v)
	}
	return out
}

func anyNonBlank(values []string) bool {
	for _, v := range values {
		if v != "" {
			return true
		}
	}
	return false
}

func trimmed(s string) string { return strings.TrimSpace(s) }
