package query

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_ID(t *testing.T) {
	tests := []struct {
		name     string
		record   Record
		expected string
		found    bool
	}{
		{name: "string id", record: Record{"id": "gene:BRCA1"}, expected: "gene:BRCA1", found: true},
		{name: "json number id", record: Record{"id": json.Number("42")}, expected: "42", found: true},
		{name: "float id", record: Record{"id": float64(7)}, expected: "7", found: true},
		{name: "int id", record: Record{"id": 9}, expected: "9", found: true},
		{name: "missing id", record: Record{"name": "x"}},
		{name: "null id", record: Record{"id": nil}},
		{name: "empty string id", record: Record{"id": ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := tt.record.ID("id")

			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.expected, id)
		})
	}
}

func TestDecodeRecords(t *testing.T) {
	records, err := DecodeRecords([]byte(`[{"id": 12345678901234567890, "name": "a"}, {"id": "b"}]`))
	require.NoError(t, err)
	require.Len(t, records, 2)

	id, ok := records[0].ID("id")
	require.True(t, ok)
	assert.Equal(t, "12345678901234567890", id, "large ids must survive decoding")

	_, err = DecodeRecords([]byte(`{"not": "an array"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse JSON")
}

func TestDecodeCount(t *testing.T) {
	count, err := DecodeCount([]byte(`[{"count": 1234}]`))
	require.NoError(t, err)
	assert.Equal(t, int64(1234), count)

	_, err = DecodeCount([]byte(`[]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one row")

	_, err = DecodeCount([]byte(`nope`))
	require.Error(t, err)
}
