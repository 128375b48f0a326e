package types

import (
	"sort"

	"github.com/goccy/go-json"
)

// Row is a schemaless record: column name to string-encoded value. An absent
// key and an empty value both mean NULL.
type Row map[string]string

// NullValue is written into null-padded outer join columns.
const NullValue = "NULL"

// Clone returns a shallow copy.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// IsNull reports whether the column is absent or empty.
func (r Row) IsNull(col string) bool {
	v, ok := r[col]
	return !ok || v == ""
}

// Keys returns the column names in sorted order.
func (r Row) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// EncodeRow serializes a row as a JSON object.
func EncodeRow(r Row) ([]byte, error) {
	return json.Marshal(r)
}

// DecodeRow parses a JSON object row.
func DecodeRow(data []byte) (Row, error) {
	var r Row
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	if r == nil {
		r = Row{}
	}
	return r, nil
}
