package types

import (
	"time"
)

// ConstraintKind enumerates column constraints.
type ConstraintKind string

const (
	ConstraintNotNull    ConstraintKind = "NotNull"
	ConstraintUnique     ConstraintKind = "Unique"
	ConstraintPrimaryKey ConstraintKind = "PrimaryKey"
	ConstraintCheck      ConstraintKind = "Check"
	ConstraintDefault    ConstraintKind = "Default"
)

// Constraint is a column constraint. Expr carries the expression text of
// Check and Default constraints.
type Constraint struct {
	Kind ConstraintKind `json:"kind"`
	Expr string         `json:"expr,omitempty"`
}

// Column defines a table column
type Column struct {
	Name        string       `json:"name"`
	Type        DataType     `json:"data_type"`
	Constraints []Constraint `json:"constraints,omitempty"`
}

// Has reports whether the column carries a constraint of the given kind.
func (c *Column) Has(kind ConstraintKind) bool {
	for _, con := range c.Constraints {
		if con.Kind == kind {
			return true
		}
	}
	return false
}

func (c *Column) IsPrimaryKey() bool { return c.Has(ConstraintPrimaryKey) }

// IsUnique is true for UNIQUE and PRIMARY KEY columns.
func (c *Column) IsUnique() bool { return c.Has(ConstraintUnique) || c.Has(ConstraintPrimaryKey) }

// Default returns the DEFAULT expression, if any.
func (c *Column) Default() (string, bool) {
	for _, con := range c.Constraints {
		if con.Kind == ConstraintDefault {
			return con.Expr, true
		}
	}
	return "", false
}

// Checks returns the CHECK expressions attached to the column.
func (c *Column) Checks() []string {
	var out []string
	for _, con := range c.Constraints {
		if con.Kind == ConstraintCheck {
			out = append(out, con.Expr)
		}
	}
	return out
}

// ReferentialAction is the action taken on referencing rows.
type ReferentialAction string

const (
	Cascade    ReferentialAction = "CASCADE"
	SetNull    ReferentialAction = "SET NULL"
	SetDefault ReferentialAction = "SET DEFAULT"
	Restrict   ReferentialAction = "RESTRICT"
	NoAction   ReferentialAction = "NO ACTION"
)

// ForeignKey links Columns of Table to ReferencedColumns of ReferencedTable.
type ForeignKey struct {
	Name              string            `json:"name,omitempty"`
	Table             string            `json:"table"`
	Columns           []string          `json:"columns"`
	ReferencedTable   string            `json:"referenced_table"`
	ReferencedColumns []string          `json:"referenced_columns"`
	OnDelete          ReferentialAction `json:"on_delete"`
	OnUpdate          ReferentialAction `json:"on_update"`
}

// Index describes a secondary index. Indexes are metadata used by the planner.
type Index struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Unique  bool     `json:"unique"`
}

// Trigger is stored with the schema and executed by an external trigger engine.
type Trigger struct {
	Name     string `json:"name"`
	Event    string `json:"event"`
	Timing   string `json:"timing"`
	Function string `json:"function"`
}

// TableSchema defines the structure of a table
type TableSchema struct {
	Name        string       `json:"name"`
	Columns     []Column     `json:"columns"`
	Indexes     []Index      `json:"indexes,omitempty"`
	ForeignKeys []ForeignKey `json:"foreign_keys,omitempty"`
	Triggers    []Trigger    `json:"triggers,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	Version     int          `json:"version"`
}

// Column looks up a column by name.
func (s *TableSchema) Column(name string) (*Column, bool) {
	for i := range s.Columns {
		if s.Columns[i].Name == name {
			return &s.Columns[i], true
		}
	}
	return nil, false
}

// ColumnNames returns column names in declaration order.
func (s *TableSchema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// PrimaryKey returns the names of the primary key columns.
func (s *TableSchema) PrimaryKey() []string {
	var pk []string
	for _, c := range s.Columns {
		if c.IsPrimaryKey() {
			pk = append(pk, c.Name)
		}
	}
	return pk
}

// KeyColumn returns the column whose value is the storage key of a row: the
// single primary key column, else id.
func (s *TableSchema) KeyColumn() string {
	if pk := s.PrimaryKey(); len(pk) == 1 {
		return pk[0]
	}
	return "id"
}

// Clone returns a deep copy so callers can mutate without racing readers.
func (s *TableSchema) Clone() *TableSchema {
	out := *s
	out.Columns = make([]Column, len(s.Columns))
	for i, c := range s.Columns {
		c.Constraints = append([]Constraint(nil), c.Constraints...)
		out.Columns[i] = c
	}
	out.Indexes = append([]Index(nil), s.Indexes...)
	out.ForeignKeys = append([]ForeignKey(nil), s.ForeignKeys...)
	out.Triggers = append([]Trigger(nil), s.Triggers...)
	return &out
}
