package tabular

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// parseCSV keeps the line each record starts on; the reader skips empty
// lines, which would otherwise shift the numbering.
func parseCSV(data []byte) ([]Record, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	var (
		grid  [][]string
		lines []int
	)
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		line, _ := r.FieldPos(0)
		grid = append(grid, record)
		lines = append(lines, line)
	}
	return rowsFromGrid(grid, lines), nil
}

// parseJSON accepts an array of objects or an object holding one under "rows".
func parseJSON(data []byte) ([]Record, error) {
	trimmed := bytes.TrimSpace(data)
	var objects []map[string]any
	if bytes.HasPrefix(trimmed, []byte("{")) {
		var wrapped struct {
			Rows []map[string]any `json:"rows"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
		objects = wrapped.Rows
	} else if err := json.Unmarshal(trimmed, &objects); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}

	out := make([]Record, 0, len(objects))
	for i, obj := range objects {
		row := make(Row, len(obj))
		for k, v := range obj {
			switch val := v.(type) {
			case map[string]any, []any:
				return nil, fmt.Errorf("decode json: row %d field %q is not a scalar", i, k)
			case nil:
				continue
			case string:
				if strings.TrimSpace(val) == "" {
					continue
				}
			}
			row[strings.TrimSpace(k)] = v
		}
		if len(row) > 0 {
			out = append(out, Record{Number: i + 1, Row: row})
		}
	}
	return out, nil
}
