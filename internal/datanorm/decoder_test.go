package datanorm

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// createCSVWithHeaders generates a lead CSV with the given number of rows.
func createCSVWithHeaders(numRows int) []byte {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	writer.Write([]string{"First Name", "Last Name", "Email", "Phone"})
	for i := 0; i < numRows; i++ {
		writer.Write([]string{
			fmt.Sprintf("First%d", i),
			fmt.Sprintf("Last%d", i),
			fmt.Sprintf("user%d@example.com", i),
			fmt.Sprintf("555-010-%04d", i),
		})
	}
	writer.Flush()
	return buf.Bytes()
}

// createXLSX builds a workbook whose first sheet holds rows. A nil cell is
// left unset.
func createXLSX(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for r, row := range rows {
		for c, v := range row {
			if v == nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue(sheet, cell, v))
		}
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func rowValues(r Row) []string {
	var out []string
	for _, c := range r.Cells() {
		out = append(out, c.Value)
	}
	return out
}

// =============================================================================
// DELIMITED TEXT
// =============================================================================

func TestDecodeCSV_RowCountAndOrder(t *testing.T) {
	for _, n := range []int{0, 1, 7, 250} {
		t.Run(fmt.Sprintf("%d rows", n), func(t *testing.T) {
			table, err := Decode(createCSVWithHeaders(n), FormatCSV)
			require.NoError(t, err)
			assert.Equal(t, []string{"First Name", "Last Name", "Email", "Phone"}, table.Headers)
			require.Len(t, table.Rows, n)
			for i, row := range table.Rows {
				v, _ := row.Get("Email")
				assert.Equal(t, fmt.Sprintf("user%d@example.com", i), v)
			}
		})
	}
}

func TestDecodeCSV_TrimsHeadersAndStripsBOM(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte(" firstName ,lastName,  email\nJohn,Doe,john@x.com\n")...)

	table, err := Decode(data, FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, []string{"firstName", "lastName", "email"}, table.Headers)

	v, ok := table.Rows[0].Get("firstName")
	assert.True(t, ok)
	assert.Equal(t, "John", v)
}

func TestDecodeCSV_SkipsBlankLinesKeepsEmptyRows(t *testing.T) {
	data := []byte("firstName,lastName,email\n\nJohn,Doe,john@x.com\n,,\n\nBob,,\n")

	table, err := Decode(data, FormatCSV)
	require.NoError(t, err)
	require.Len(t, table.Rows, 3)
	assert.Equal(t, []string{"", "", ""}, rowValues(table.Rows[1]))
	assert.True(t, table.Rows[1].IsBlank())
}

func TestDecodeCSV_PadsAndTruncatesToHeaderWidth(t *testing.T) {
	data := []byte("a,b,c\n1\n1,2,3,4\n")

	table, err := Decode(data, FormatCSV)
	require.NoError(t, err)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, []string{"1", "", ""}, rowValues(table.Rows[0]))
	assert.Equal(t, []string{"1", "2", "3"}, rowValues(table.Rows[1]))
}

func TestDecodeCSV_DuplicateHeadersLastWins(t *testing.T) {
	data := []byte("email,email\nold@x.com,new@x.com\n")

	table, err := Decode(data, FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, []string{"email", "email"}, table.Headers)
	assert.Equal(t, 2, table.Rows[0].Len())

	v, _ := table.Rows[0].Get("email")
	assert.Equal(t, "new@x.com", v)
}

func TestDecodeCSV_EmptyFile(t *testing.T) {
	tests := map[string][]byte{
		"zero bytes":   {},
		"blank lines":  []byte("\n\n\n"),
		"blank header": []byte(" , ,\nJohn,Doe,x\n"),
		"bom only":     {0xEF, 0xBB, 0xBF},
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(data, FormatCSV)
			assert.True(t, errors.Is(err, ErrEmptyFile), "got %v", err)
		})
	}
}

// =============================================================================
// SPREADSHEET
// =============================================================================

func TestDecodeXLSX_FirstSheetOnly(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	f.SetCellValue(sheet, "A1", "First Name")
	f.SetCellValue(sheet, "A2", "Ann")
	f.NewSheet("Other")
	f.SetCellValue("Other", "A1", "Ignored")
	f.SetCellValue("Other", "A2", "nope")
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	f.Close()

	table, err := Decode(buf.Bytes(), FormatXLSX)
	require.NoError(t, err)
	assert.Equal(t, []string{"First Name"}, table.Headers)
	require.Len(t, table.Rows, 1)
	v, _ := table.Rows[0].Get("First Name")
	assert.Equal(t, "Ann", v)
}

func TestDecodeXLSX_DropsBlankRowsOnly(t *testing.T) {
	data := createXLSX(t, [][]any{
		{"firstName", "lastName", "email"},
		{"John", "Doe", "john@x.com"},
		{nil, nil, nil},
		{nil, nil, "only@x.com"},
		{"   ", nil, nil},
		{"Bob", nil, nil},
	})

	table, err := Decode(data, FormatXLSX)
	require.NoError(t, err)
	require.Len(t, table.Rows, 3)
	assert.Equal(t, []string{"John", "Doe", "john@x.com"}, rowValues(table.Rows[0]))
	assert.Equal(t, []string{"", "", "only@x.com"}, rowValues(table.Rows[1]))
	assert.Equal(t, []string{"Bob", "", ""}, rowValues(table.Rows[2]))
}

func TestDecodeXLSX_MissingHeaderCellKeepsPosition(t *testing.T) {
	data := createXLSX(t, [][]any{
		{" Email ", nil, "Phone"},
		{"a@x.com", "orphan", "555"},
	})

	table, err := Decode(data, FormatXLSX)
	require.NoError(t, err)
	assert.Equal(t, []string{"Email", "", "Phone"}, table.Headers)
	assert.Equal(t, []string{"a@x.com", "orphan", "555"}, rowValues(table.Rows[0]))
}

func TestDecodeXLSX_IgnoresCellsPastHeaderWidth(t *testing.T) {
	data := createXLSX(t, [][]any{
		{"Email"},
		{nil, "stray"},
	})

	table, err := Decode(data, FormatXLSX)
	require.NoError(t, err)
	assert.Empty(t, table.Rows)
}

func TestDecodeXLSX_EmptyWorkbook(t *testing.T) {
	data := createXLSX(t, nil)
	_, err := Decode(data, FormatXLSX)
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestDecodeXLSX_CorruptPayload(t *testing.T) {
	_, err := Decode([]byte("PK\x03\x04 definitely not a workbook"), FormatXLSX)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

// =============================================================================
// FORMAT DETECTION
// =============================================================================

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		data     []byte
		want     Format
		wantErr  bool
	}{
		{"csv extension", "leads.CSV", []byte("a,b"), FormatCSV, false},
		{"txt extension", "leads.txt", []byte("a,b"), FormatCSV, false},
		{"xlsx extension", "leads.xlsx", nil, FormatXLSX, false},
		{"legacy xls", "leads.xls", nil, "", true},
		{"zip signature", "upload", []byte("PK\x03\x04rest"), FormatXLSX, false},
		{"ole signature", "upload", []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, "", true},
		{"bare text", "upload", []byte("first,last\nA,B"), FormatCSV, false},
		{"unknown extension", "leads.pdf", []byte("%PDF-1.4"), "", true},
		{"binary without extension", "upload", []byte{0x00, 0x01, 0x02}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectFormat(tt.fileName, tt.data)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode_UnknownFormat(t *testing.T) {
	_, err := Decode([]byte("x"), Format("pdf"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestRow_JSONKeepsOrderAndDuplicates(t *testing.T) {
	var r Row
	require.NoError(t, r.UnmarshalJSON([]byte(`{"b":"1","a":2,"b":"3","n":null}`)))

	assert.Equal(t, 4, r.Len())
	v, _ := r.Get("b")
	assert.Equal(t, "3", v)
	v, _ = r.Get("a")
	assert.Equal(t, "2", v)

	out, err := r.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"b":"1","a":"2","b":"3","n":""}`, string(out))

	assert.Error(t, r.UnmarshalJSON([]byte(`{"a":{"nested":true}}`)))
}
