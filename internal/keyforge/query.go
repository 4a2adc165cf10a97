package keyforge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// QueryShape names the envelope an executeQuery response arrived in.
type QueryShape string

const (
	ShapeEmpty     QueryShape = "empty"
	ShapeRows      QueryShape = "rows"
	ShapeResultSet QueryShape = "resultSet"
	ShapeData      QueryShape = "data"
	ShapeResults   QueryShape = "results"
	ShapeObject    QueryShape = "object"
)

// QueryResult is the normalized form of an executeQuery response. The backend answers with a bare
// array, an object wrapping the array under resultSet, data or results, or a single row object;
// ParseQueryResult decides which once so callers only ever see Rows.
type QueryResult struct {
	Shape   QueryShape
	rows    []map[string]any
	columns []string
}

// Rows returns the result rows. Scalar array elements are exposed under the "value" column.
func (r QueryResult) Rows() []map[string]any {
	return r.rows
}

// Columns returns every column name in the order it first appears across rows.
func (r QueryResult) Columns() []string {
	return r.columns
}

// Len is the number of rows.
func (r QueryResult) Len() int {
	return len(r.rows)
}

// Column collects the string values of one column, skipping rows where it is absent or empty.
// Column names are matched exactly first, then case-insensitively.
func (r QueryResult) Column(name string) []string {
	out := make([]string, 0, len(r.rows))
	for _, row := range r.rows {
		v, ok := lookupColumn(row, name)
		if !ok || v == nil {
			continue
		}
		s := fmt.Sprint(v)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

func lookupColumn(row map[string]any, name string) (any, bool) {
	if v, ok := row[name]; ok {
		return v, true
	}
	for k, v := range row {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return nil, false
}

var wrapperKeys = []struct {
	key   string
	shape QueryShape
}{
	{key: "resultSet", shape: ShapeResultSet},
	{key: "data", shape: ShapeData},
	{key: "results", shape: ShapeResults},
}

// ParseQueryResult classifies and decodes an executeQuery body. Shapes it does not recognize
// decode to an empty result instead of an error.
func ParseQueryResult(body []byte) (QueryResult, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return QueryResult{Shape: ShapeEmpty}, nil
	}

	switch trimmed[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return QueryResult{}, fmt.Errorf("decode query result: %w", err)
		}
		return rowsResult(ShapeRows, items)
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return QueryResult{}, fmt.Errorf("decode query result: %w", err)
		}
		for _, w := range wrapperKeys {
			inner := bytes.TrimSpace(obj[w.key])
			if len(inner) == 0 || inner[0] != '[' {
				continue
			}
			var items []json.RawMessage
			if err := json.Unmarshal(inner, &items); err != nil {
				return QueryResult{}, fmt.Errorf("decode query result: %w", err)
			}
			return rowsResult(w.shape, items)
		}
		if len(obj) == 0 {
			return QueryResult{Shape: ShapeEmpty}, nil
		}
		row, cols, err := decodeObject(trimmed)
		if err != nil {
			return QueryResult{}, err
		}
		return QueryResult{Shape: ShapeObject, rows: []map[string]any{row}, columns: cols}, nil
	default:
		if !json.Valid(trimmed) {
			return QueryResult{}, fmt.Errorf("decode query result: invalid JSON")
		}
		return QueryResult{Shape: ShapeEmpty}, nil
	}
}

func rowsResult(shape QueryShape, items []json.RawMessage) (QueryResult, error) {
	res := QueryResult{Shape: shape, rows: make([]map[string]any, 0, len(items))}
	seen := map[string]struct{}{}
	addColumns := func(cols []string) {
		for _, c := range cols {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			res.columns = append(res.columns, c)
		}
	}
	for _, item := range items {
		item = bytes.TrimSpace(item)
		switch {
		case len(item) == 0 || bytes.Equal(item, []byte("null")):
		case item[0] == '{':
			row, cols, err := decodeObject(item)
			if err != nil {
				return QueryResult{}, err
			}
			res.rows = append(res.rows, row)
			addColumns(cols)
		default:
			v, err := decodeValue(item)
			if err != nil {
				return QueryResult{}, err
			}
			res.rows = append(res.rows, map[string]any{"value": v})
			addColumns([]string{"value"})
		}
	}
	return res, nil
}

// decodeObject decodes one JSON object and reports its keys in document order.
func decodeObject(raw []byte) (map[string]any, []string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if _, err := dec.Token(); err != nil {
		return nil, nil, fmt.Errorf("decode query row: %w", err)
	}
	row := map[string]any{}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, fmt.Errorf("decode query row: %w", err)
		}
		key, _ := tok.(string)
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, nil, fmt.Errorf("decode query row %q: %w", key, err)
		}
		if _, dup := row[key]; !dup {
			keys = append(keys, key)
		}
		row[key] = v
	}
	return row, keys, nil
}

func decodeValue(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode query value: %w", err)
	}
	return v, nil
}
