// Package tabular decodes spreadsheet uploads into header keyed rows and
// writes workbooks for export.
package tabular

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Format is a supported payload encoding.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ErrUnknownFormat is returned when a payload format cannot be determined.
var ErrUnknownFormat = errors.New("unknown tabular format")

// Row maps a header label, as written in the source, to its raw cell value.
// Values are strings for xlsx and csv, and JSON scalars (string, float64,
// bool, nil) for json.
type Row map[string]any

// Record is a decoded row and its data line number: 1 for the line after the
// header, counting blank lines, so messages point at the line a reader sees.
// JSON rows are numbered by array position.
type Record struct {
	Number int
	Row    Row
}

// Rows drops the line numbers.
func Rows(records []Record) []Row {
	out := make([]Row, len(records))
	for i, rec := range records {
		out[i] = rec.Row
	}
	return out
}

// Number assigns consecutive line numbers to rows decoded elsewhere.
func Number(rows []Row) []Record {
	out := make([]Record, len(rows))
	for i, row := range rows {
		out[i] = Record{Number: i + 1, Row: row}
	}
	return out
}

// ParseFormat accepts a format name case-insensitively.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), ".")) {
	case "xlsx", "xlsm", "excel":
		return FormatXLSX, nil
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}

// DetectFormat picks a format from the file extension, then the content type.
func DetectFormat(filename, contentType string) (Format, error) {
	if ext := filepath.Ext(filename); ext != "" {
		if f, err := ParseFormat(ext); err == nil {
			return f, nil
		}
	}
	ct := strings.ToLower(contentType)
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch ct {
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "application/vnd.ms-excel.sheet.macroenabled.12":
		return FormatXLSX, nil
	case "text/csv", "application/csv":
		return FormatCSV, nil
	case "application/json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%w: file %q content type %q", ErrUnknownFormat, filename, contentType)
}

// Parse decodes data according to format. Entirely blank rows are dropped.
func Parse(format Format, data []byte) ([]Row, error) {
	records, err := ParseRecords(format, data)
	if err != nil {
		return nil, err
	}
	return Rows(records), nil
}

// ParseRecords is Parse keeping each row's line number.
func ParseRecords(format Format, data []byte) ([]Record, error) {
	switch format {
	case FormatXLSX:
		return parseXLSX(data)
	case FormatCSV:
		return parseCSV(data)
	case FormatJSON:
		return parseJSON(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// rowsFromGrid turns a header line plus records into rows. lines holds the
// physical line of each grid entry; nil means the grid has no gaps. Cells
// beyond the header are ignored and missing trailing cells are absent.
func rowsFromGrid(grid [][]string, lines []int) []Record {
	if len(grid) == 0 {
		return nil
	}
	line := func(i int) int {
		if lines == nil {
			return i + 1
		}
		return lines[i]
	}
	headers := make([]string, len(grid[0]))
	for i, h := range grid[0] {
		headers[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	out := make([]Record, 0, len(grid)-1)
	for i, record := range grid[1:] {
		row := make(Row, len(headers))
		blank := true
		for c, header := range headers {
			if header == "" || c >= len(record) {
				continue
			}
			cell := strings.TrimSpace(record[c])
			if cell == "" {
				continue
			}
			row[header] = cell
			blank = false
		}
		if !blank {
			out = append(out, Record{Number: line(i+1) - line(0), Row: row})
		}
	}
	return out
}
