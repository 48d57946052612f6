package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Record is one row returned by the query service. Its shape is owned by
// the service; only the identifier field is ever read.
type Record map[string]any

// ID returns the record identifier stored under field.
func (r Record) ID(field string) (string, bool) {
	raw, ok := r[field]
	if !ok || raw == nil {
		return "", false
	}

	switch v := raw.(type) {
	case string:
		return v, v != ""
	case json.Number:
		return v.String(), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	default:
		return fmt.Sprint(v), true
	}
}

// DecodeRecords parses a query service row response.
func DecodeRecords(data []byte) ([]Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var records []Record
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("parse JSON: %w", err)
	}

	return records, nil
}

type countRow struct {
	Count int64 `json:"count"`
}

// DecodeCount parses a count response shaped [{"count": N}].
func DecodeCount(data []byte) (int64, error) {
	var rows []countRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return 0, fmt.Errorf("parse JSON: %w", err)
	}

	if len(rows) != 1 {
		return 0, fmt.Errorf("count response must hold exactly one row, got %d", len(rows))
	}

	return rows[0].Count, nil
}
