package catalog

import (
	"context"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/guileen/docsql/catalog/errors"
	"github.com/guileen/docsql/storage"
	"github.com/guileen/docsql/types"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02T15:04:05",
}

// ValidateRow applies NOT NULL, type and foreign key validation.
func (m *SchemaManager) ValidateRow(ctx context.Context, table string, row types.Row) error {
	if err := m.ValidateSchema(ctx, table, row); err != nil {
		return err
	}
	return m.ValidateForeignKeys(ctx, table, row)
}

// ValidateSchema checks NOT NULL constraints, unknown columns and that every
// present value parses as its column type.
func (m *SchemaManager) ValidateSchema(ctx context.Context, table string, row types.Row) error {
	schema, ok := m.cache.Get(table)
	if !ok {
		return errors.Newf(errors.ErrTableNotFound, "table %s does not exist", table)
	}

	for name := range row {
		if _, ok := schema.Column(name); !ok {
			return errors.Newf(errors.ErrColumnNotFound, "column %s does not exist in %s", name, table)
		}
	}

	for _, col := range schema.Columns {
		if row.IsNull(col.Name) {
			notNull := col.Has(types.ConstraintNotNull) || (col.IsPrimaryKey() && col.Name != "id")
			if notNull {
				return errors.Newf(errors.ErrNotNullViolation, "column %s.%s cannot be null", table, col.Name)
			}
			continue
		}
		if err := checkType(col, row[col.Name]); err != nil {
			return errors.Newf(errors.ErrTypeMismatch, "column %s.%s: %v", table, col.Name, err)
		}
	}
	return nil
}

type typeError string

func (e typeError) Error() string { return string(e) }

func checkType(col types.Column, v string) error {
	switch col.Type.Kind {
	case types.Integer, types.BigInteger:
		// INTEGER is int4, BIGINT int8.
		bits := 64
		if col.Type.Kind == types.Integer {
			bits = 32
		}
		if _, err := strconv.ParseInt(v, 10, bits); err != nil {
			return typeError("invalid " + string(col.Type.Kind) + " value " + strconv.Quote(v))
		}
	case types.Real, types.Double:
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return typeError("invalid numeric value " + strconv.Quote(v))
		}
	case types.Boolean:
		if _, ok := parseBool(v); !ok {
			return typeError("invalid boolean value " + strconv.Quote(v))
		}
	case types.UUID:
		if _, err := uuid.Parse(v); err != nil {
			return typeError("invalid uuid value " + strconv.Quote(v))
		}
	case types.JSON:
		if !json.Valid([]byte(v)) {
			return typeError("invalid json value")
		}
	case types.VarChar:
		if n := utf8.RuneCountInString(v); n > col.Type.Length {
			return typeError("value of length " + strconv.Itoa(n) + " exceeds " + col.Type.String())
		}
	case types.Timestamp:
		for _, layout := range timestampLayouts {
			if _, err := time.Parse(layout, v); err == nil {
				return nil
			}
		}
		return typeError("invalid timestamp value " + strconv.Quote(v))
	case types.Date:
		if _, err := time.Parse("2006-01-02", v); err != nil {
			return typeError("invalid date value " + strconv.Quote(v))
		}
	}
	return nil
}

func parseBool(v string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes":
		return true, true
	case "false", "0", "no":
		return false, true
	}
	return false, false
}

// ValidateUnique rejects row when a UNIQUE or PRIMARY KEY column, or a
// unique index, repeats a value already stored under a key other than excludeKey.
func (m *SchemaManager) ValidateUnique(ctx context.Context, table string, row types.Row, excludeKey string) error {
	schema, ok := m.cache.Get(table)
	if !ok {
		return errors.Newf(errors.ErrTableNotFound, "table %s does not exist", table)
	}

	var groups [][]string
	for _, col := range schema.Columns {
		if col.IsUnique() && col.Name != "id" {
			groups = append(groups, []string{col.Name})
		}
	}
	for _, idx := range schema.Indexes {
		if idx.Unique {
			groups = append(groups, idx.Columns)
		}
	}
	if len(groups) == 0 {
		return nil
	}

	tree, err := m.store.Tree(table)
	if err != nil {
		return nil
	}

	return tree.Scan(func(key string, value []byte) error {
		if key == excludeKey {
			return nil
		}
		existing, err := types.DecodeRow(value)
		if err != nil {
			return err
		}
		for _, cols := range groups {
			if sameValues(row, existing, cols, cols) {
				return errors.Newf(errors.ErrUniqueConstraintViolation, "duplicate value for %s(%s)",
					table, strings.Join(cols, ", "))
			}
		}
		return nil
	})
}

// sameValues compares a's columns ac with b's columns bc; NULLs never match.
func sameValues(a, b types.Row, ac, bc []string) bool {
	for i := range ac {
		if a.IsNull(ac[i]) || b.IsNull(bc[i]) || a[ac[i]] != b[bc[i]] {
			return false
		}
	}
	return true
}

// ValidateForeignKeys checks that every fully populated foreign key of row
// matches an existing row of the referenced table. A key with any NULL
// column is not checked.
func (m *SchemaManager) ValidateForeignKeys(ctx context.Context, table string, row types.Row) error {
	for _, fk := range m.GetForeignKeys(table) {
		complete := true
		for _, c := range fk.Columns {
			if row.IsNull(c) {
				complete = false
				break
			}
		}
		if !complete {
			continue
		}

		found, err := m.referencedRowExists(fk, row)
		if err != nil {
			return err
		}
		if !found {
			return errors.Newf(errors.ErrForeignKeyViolation, "%s(%s) references missing %s(%s)",
				table, strings.Join(fk.Columns, ", "), fk.ReferencedTable, strings.Join(fk.ReferencedColumns, ", "))
		}
	}
	return nil
}

func (m *SchemaManager) referencedRowExists(fk types.ForeignKey, row types.Row) (bool, error) {
	tree, err := m.store.Tree(fk.ReferencedTable)
	if err != nil {
		return false, nil
	}

	// rows are keyed by id, so an id reference is a point lookup
	if len(fk.ReferencedColumns) == 1 && fk.ReferencedColumns[0] == "id" {
		_, err := tree.Get(row[fk.Columns[0]])
		if storage.IsNotFound(err) {
			return false, nil
		}
		return err == nil, err
	}

	found := false
	err = tree.Scan(func(_ string, value []byte) error {
		parent, err := types.DecodeRow(value)
		if err != nil {
			return err
		}
		if sameValues(row, parent, fk.Columns, fk.ReferencedColumns) {
			found = true
			return storage.ErrStopScan
		}
		return nil
	})
	return found, err
}

// ValidateChecks evaluates every CHECK constraint of table against row.
func (m *SchemaManager) ValidateChecks(ctx context.Context, table string, row types.Row) error {
	schema, ok := m.cache.Get(table)
	if !ok {
		return errors.Newf(errors.ErrTableNotFound, "table %s does not exist", table)
	}
	for _, col := range schema.Columns {
		for _, expr := range col.Checks() {
			ok, err := m.checks.Evaluate(schema, expr, row)
			if err != nil {
				return errors.Wrap(err, "check_constraint_violation", "CHECK (%s) on %s", expr, table)
			}
			if !ok {
				return errors.Newf(errors.ErrCheckConstraintViolation, "CHECK (%s) failed on %s", expr, table)
			}
		}
	}
	return nil
}
