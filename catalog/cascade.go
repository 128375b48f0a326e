package catalog

import (
	"context"
	"strings"

	"github.com/guileen/docsql/catalog/errors"
	"github.com/guileen/docsql/types"
)

// CascadeKind is the change a delete forces on referencing rows.
type CascadeKind string

const (
	CascadeDeleteRows CascadeKind = "delete"
	CascadeSetNull    CascadeKind = "set_null"
	CascadeSetDefault CascadeKind = "set_default"
)

// CascadeAction names the referencing rows of Table (by key) and what to do
// with them. Values holds the replacement column values for SetNull and
// SetDefault.
type CascadeAction struct {
	Kind   CascadeKind
	Table  string
	Keys   []string
	Values map[string]string
}

// CascadeDelete plans the referential actions triggered by deleting row (stored
// under key) from table. A RESTRICT or NO ACTION key with matching rows fails
// with ErrReferentialViolation before anything is returned.
func (m *SchemaManager) CascadeDelete(ctx context.Context, table, key string, row types.Row) ([]CascadeAction, error) {
	var actions []CascadeAction

	for _, fk := range m.ReferencingForeignKeys(table) {
		complete := true
		for _, c := range fk.ReferencedColumns {
			if row.IsNull(c) {
				complete = false
				break
			}
		}
		if !complete {
			continue
		}

		tree, err := m.dataTree(fk.Table)
		if err != nil {
			continue
		}

		var keys []string
		err = tree.Scan(func(childKey string, value []byte) error {
			if fk.Table == table && childKey == key {
				return nil
			}
			child, err := types.DecodeRow(value)
			if err != nil {
				return err
			}
			if sameValues(child, row, fk.Columns, fk.ReferencedColumns) {
				keys = append(keys, childKey)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		if len(keys) == 0 {
			continue
		}

		switch fk.OnDelete {
		case types.Cascade:
			actions = append(actions, CascadeAction{Kind: CascadeDeleteRows, Table: fk.Table, Keys: keys})
		case types.SetNull:
			values := make(map[string]string, len(fk.Columns))
			for _, c := range fk.Columns {
				values[c] = ""
			}
			actions = append(actions, CascadeAction{Kind: CascadeSetNull, Table: fk.Table, Keys: keys, Values: values})
		case types.SetDefault:
			values := make(map[string]string, len(fk.Columns))
			child, _ := m.cache.Get(fk.Table)
			for _, c := range fk.Columns {
				values[c] = ""
				if child == nil {
					continue
				}
				if col, ok := child.Column(c); ok {
					if def, ok := col.Default(); ok {
						values[c] = StripQuotes(def)
					}
				}
			}
			actions = append(actions, CascadeAction{Kind: CascadeSetDefault, Table: fk.Table, Keys: keys, Values: values})
		default:
			return nil, errors.Newf(errors.ErrReferentialViolation, "cannot delete from %s: %d row(s) of %s reference it via (%s)",
				table, len(keys), fk.Table, strings.Join(fk.Columns, ", "))
		}
	}
	return actions, nil
}

// StripQuotes removes one pair of surrounding single or double quotes.
func StripQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return strings.ReplaceAll(s[1:len(s)-1], "''", "'")
		}
	}
	return s
}
