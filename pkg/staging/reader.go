package staging

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/tinusleroux/crowdbiz-graph/pkg/importerror"
	"github.com/tinusleroux/crowdbiz-graph/pkg/normalizers"
)

const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Table is an uploaded file read into a header row and data rows
type Table struct {
	Format  string
	Headers []string
	Rows    [][]string
}

// Cell returns the value of column i in row, or "" when the row is short.
func (t *Table) Cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

// FormatOf picks the parser from the file extension.
func FormatOf(fileName string) string {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX
	default:
		return FormatCSV
	}
}

// ReadTable parses body as a spreadsheet or delimited text. Any failure is a
// MalformedInputError.
func ReadTable(fileName string, body io.Reader) (*Table, error) {
	if body == nil {
		return nil, importerror.NewMalformedInput("file is empty", 0, nil)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, importerror.NewMalformedInput("file could not be read", 0, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, importerror.NewMalformedInput("file is empty", 0, nil)
	}

	var table *Table
	if FormatOf(fileName) == FormatXLSX {
		table, err = readXLSX(data)
	} else {
		table, err = readCSV(data)
	}
	if err != nil {
		return nil, err
	}
	if err := checkHeaders(table); err != nil {
		return nil, err
	}
	return table, nil
}

func readCSV(data []byte) (*Table, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return nil, importerror.NewMalformedInput("file is not valid UTF-8 text", 0, nil)
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = sniffDelimiter(data)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		line := 0
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			line = parseErr.Line
		}
		return nil, importerror.NewMalformedInput("file could not be parsed as delimited text", line, err)
	}
	if len(records) == 0 {
		return nil, importerror.NewMalformedInput("no header row", 0, nil)
	}
	return &Table{Format: FormatCSV, Headers: records[0], Rows: records[1:]}, nil
}

// sniffDelimiter looks at the header line and picks the most frequent of
// comma, semicolon and tab. Comma wins ties.
func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	best, bestCount := ',', bytes.Count(line, []byte{','})
	for _, d := range []rune{';', '\t'} {
		if n := bytes.Count(line, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

func readXLSX(data []byte) (*Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, importerror.NewMalformedInput("file could not be opened as a spreadsheet", 0, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, importerror.NewMalformedInput("spreadsheet has no sheets", 0, nil)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, importerror.NewMalformedInput(fmt.Sprintf("sheet %q could not be read", sheets[0]), 0, err)
	}
	if len(rows) == 0 {
		return nil, importerror.NewMalformedInput("no header row", 0, nil)
	}
	for _, row := range rows {
		for _, cell := range row {
			if !utf8.ValidString(cell) {
				return nil, importerror.NewMalformedInput("spreadsheet holds text that is not valid UTF-8", 0, nil)
			}
		}
	}
	return &Table{Format: FormatXLSX, Headers: rows[0], Rows: rows[1:]}, nil
}

// checkHeaders trims the header row, drops trailing blank columns and rejects
// blank or duplicate column names.
func checkHeaders(t *Table) error {
	headers := make([]string, len(t.Headers))
	for i, h := range t.Headers {
		headers[i] = strings.TrimSpace(h)
	}
	for len(headers) > 0 && headers[len(headers)-1] == "" {
		headers = headers[:len(headers)-1]
	}
	if len(headers) == 0 {
		return importerror.NewMalformedInput("no header row", 1, nil)
	}

	seen := make(map[string]int, len(headers))
	for i, h := range headers {
		if h == "" {
			return importerror.NewMalformedInput(fmt.Sprintf("header column %d is blank", i+1), 1, nil)
		}
		key := normalizers.NormalizeHeader(h)
		if prev, ok := seen[key]; ok {
			return importerror.NewMalformedInput(fmt.Sprintf("duplicate column %q (also column %d)", h, prev+1), 1, nil)
		}
		seen[key] = i
	}
	t.Headers = headers
	return nil
}
