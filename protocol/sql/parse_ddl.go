package sql

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/guileen/docsql/catalog"
	dberrors "github.com/guileen/docsql/engine/errors"
	"github.com/guileen/docsql/types"
)

var sqlTypes = map[string]types.DataTypeKind{
	"int2": types.Integer, "int4": types.Integer, "int": types.Integer, "integer": types.Integer,
	"smallint": types.Integer, "serial": types.Integer, "serial4": types.Integer, "smallserial": types.Integer,
	"int8": types.BigInteger, "bigint": types.BigInteger, "bigserial": types.BigInteger, "serial8": types.BigInteger,
	"text": types.Text, "bpchar": types.Text, "char": types.Text, "string": types.Text,
	"varchar": types.VarChar, "float4": types.Real, "real": types.Real,
	"float8": types.Double, "numeric": types.Double, "decimal": types.Double, "double": types.Double,
	"bool": types.Boolean, "boolean": types.Boolean,
	"timestamp": types.Timestamp, "timestamptz": types.Timestamp, "datetime": types.Timestamp,
	"date": types.Date,
	"uuid": types.UUID,
	"json": types.JSON, "jsonb": types.JSON,
	"bytea": types.Binary, "blob": types.Binary,
}

func parseTypeName(tn *pg_query.TypeName) (types.DataType, error) {
	names := stringNodes(tn.GetNames())
	if len(names) == 0 {
		return types.DataType{}, dberrors.NewParseErrorf("missing column type")
	}
	name := strings.ToLower(names[len(names)-1])
	kind, ok := sqlTypes[name]
	if !ok {
		return types.DataType{}, dberrors.NewParseErrorf("unsupported column type %s", name)
	}
	if kind != types.VarChar {
		return types.DataType{Kind: kind}, nil
	}
	mods := tn.GetTypmods()
	if len(mods) == 0 || mods[0].GetAConst() == nil || mods[0].GetAConst().GetIval() == nil {
		return types.DataType{Kind: types.Text}, nil
	}
	return types.NewVarChar(int(mods[0].GetAConst().GetIval().GetIval())), nil
}

func referentialAction(code string) types.ReferentialAction {
	switch code {
	case "c":
		return types.Cascade
	case "n":
		return types.SetNull
	case "d":
		return types.SetDefault
	case "r":
		return types.Restrict
	}
	return types.NoAction
}

func foreignKeyFromConstraint(table string, cols []string, con *pg_query.Constraint) types.ForeignKey {
	fk := types.ForeignKey{
		Name:              con.GetConname(),
		Table:             table,
		Columns:           cols,
		ReferencedTable:   con.GetPktable().GetRelname(),
		ReferencedColumns: stringNodes(con.GetPkAttrs()),
		OnDelete:          referentialAction(con.GetFkDelAction()),
		OnUpdate:          referentialAction(con.GetFkUpdAction()),
	}
	if len(fk.ReferencedColumns) == 0 {
		fk.ReferencedColumns = []string{"id"}
	}
	if fk.Name == "" {
		fk.Name = fmt.Sprintf("%s_%s_fkey", table, strings.Join(cols, "_"))
	}
	return fk
}

// parseColumnDef converts a column definition; REFERENCES clauses become
// foreign keys of table.
func parseColumnDef(table string, cd *pg_query.ColumnDef) (types.Column, []types.ForeignKey, error) {
	dt, err := parseTypeName(cd.GetTypeName())
	if err != nil {
		return types.Column{}, nil, err
	}
	col := types.Column{Name: cd.GetColname(), Type: dt}
	if cd.GetIsNotNull() {
		col.Constraints = append(col.Constraints, types.Constraint{Kind: types.ConstraintNotNull})
	}
	var fks []types.ForeignKey

	for _, n := range cd.GetConstraints() {
		con := n.GetConstraint()
		if con == nil {
			continue
		}
		switch con.GetContype() {
		case pg_query.ConstrType_CONSTR_NOTNULL:
			col.Constraints = append(col.Constraints, types.Constraint{Kind: types.ConstraintNotNull})
		case pg_query.ConstrType_CONSTR_NULL:
		case pg_query.ConstrType_CONSTR_PRIMARY:
			col.Constraints = append(col.Constraints, types.Constraint{Kind: types.ConstraintPrimaryKey})
		case pg_query.ConstrType_CONSTR_UNIQUE:
			col.Constraints = append(col.Constraints, types.Constraint{Kind: types.ConstraintUnique})
		case pg_query.ConstrType_CONSTR_DEFAULT:
			expr, err := defaultExpr(con.GetRawExpr())
			if err != nil {
				return types.Column{}, nil, err
			}
			col.Constraints = append(col.Constraints, types.Constraint{Kind: types.ConstraintDefault, Expr: expr})
		case pg_query.ConstrType_CONSTR_CHECK:
			expr, err := renderExpr(con.GetRawExpr())
			if err != nil {
				return types.Column{}, nil, err
			}
			col.Constraints = append(col.Constraints, types.Constraint{Kind: types.ConstraintCheck, Expr: expr})
		case pg_query.ConstrType_CONSTR_FOREIGN:
			fks = append(fks, foreignKeyFromConstraint(table, []string{col.Name}, con))
		default:
			return types.Column{}, nil, dberrors.NewParseErrorf("unsupported constraint %s on column %s", con.GetContype(), col.Name)
		}
	}
	return col, fks, nil
}

// defaultExpr keeps string literals quoted; the executor strips the quotes
// when it applies the default.
func defaultExpr(n *pg_query.Node) (string, error) {
	if c := n.GetAConst(); c != nil {
		if c.GetIsnull() {
			return "", nil
		}
		if c.GetSval() != nil {
			return "'" + strings.ReplaceAll(c.GetSval().GetSval(), "'", "''") + "'", nil
		}
		return constValue(c), nil
	}
	if tc := n.GetTypeCast(); tc != nil {
		return defaultExpr(tc.GetArg())
	}
	if n.GetSqlvalueFunction() != nil {
		return CurrentTimestamp, nil
	}
	if fc := n.GetFuncCall(); fc != nil {
		if fn := funcName(fc); fn == "NOW" || fn == "CURRENT_TIMESTAMP" {
			return CurrentTimestamp, nil
		}
	}
	return renderExpr(n)
}

func markColumns(schema *types.TableSchema, names []string, kind types.ConstraintKind) error {
	for _, name := range names {
		col, ok := schema.Column(name)
		if !ok {
			return dberrors.NewParseErrorf("constraint names unknown column %s", name)
		}
		if !col.Has(kind) {
			col.Constraints = append(col.Constraints, types.Constraint{Kind: kind})
		}
	}
	return nil
}

func parseCreateTable(stmt *pg_query.CreateStmt) (*CreateTable, error) {
	schema := &types.TableSchema{Name: stmt.GetRelation().GetRelname()}
	var tableConstraints []*pg_query.Constraint

	for _, elt := range stmt.GetTableElts() {
		switch {
		case elt.GetColumnDef() != nil:
			col, fks, err := parseColumnDef(schema.Name, elt.GetColumnDef())
			if err != nil {
				return nil, err
			}
			schema.Columns = append(schema.Columns, col)
			schema.ForeignKeys = append(schema.ForeignKeys, fks...)
		case elt.GetConstraint() != nil:
			tableConstraints = append(tableConstraints, elt.GetConstraint())
		default:
			return nil, dberrors.NewParseErrorf("unsupported table element in CREATE TABLE %s", schema.Name)
		}
	}

	for _, con := range tableConstraints {
		keys := stringNodes(con.GetKeys())
		switch con.GetContype() {
		case pg_query.ConstrType_CONSTR_PRIMARY:
			if err := markColumns(schema, keys, types.ConstraintPrimaryKey); err != nil {
				return nil, err
			}
		case pg_query.ConstrType_CONSTR_UNIQUE:
			if len(keys) == 1 {
				if err := markColumns(schema, keys, types.ConstraintUnique); err != nil {
					return nil, err
				}
				continue
			}
			name := con.GetConname()
			if name == "" {
				name = fmt.Sprintf("%s_%s_key", schema.Name, strings.Join(keys, "_"))
			}
			schema.Indexes = append(schema.Indexes, types.Index{Name: name, Columns: keys, Unique: true})
		case pg_query.ConstrType_CONSTR_CHECK:
			expr, err := renderExpr(con.GetRawExpr())
			if err != nil {
				return nil, err
			}
			if len(schema.Columns) == 0 {
				return nil, dberrors.NewParseErrorf("CHECK on a table without columns")
			}
			schema.Columns[0].Constraints = append(schema.Columns[0].Constraints,
				types.Constraint{Kind: types.ConstraintCheck, Expr: expr})
		case pg_query.ConstrType_CONSTR_FOREIGN:
			schema.ForeignKeys = append(schema.ForeignKeys,
				foreignKeyFromConstraint(schema.Name, stringNodes(con.GetFkAttrs()), con))
		default:
			return nil, dberrors.NewParseErrorf("unsupported table constraint %s", con.GetContype())
		}
	}

	return &CreateTable{Schema: schema, IfNotExists: stmt.GetIfNotExists()}, nil
}

func parseDropTable(stmt *pg_query.DropStmt) (*DropTable, error) {
	if stmt.GetRemoveType() != pg_query.ObjectType_OBJECT_TABLE {
		return nil, dberrors.NewParseErrorf("unsupported DROP %s", stmt.GetRemoveType())
	}
	drop := &DropTable{IfExists: stmt.GetMissingOk()}
	for _, obj := range stmt.GetObjects() {
		names := stringNodes(obj.GetList().GetItems())
		if len(names) == 0 {
			continue
		}
		drop.Tables = append(drop.Tables, names[len(names)-1])
	}
	return drop, nil
}

func parseAlterTable(stmt *pg_query.AlterTableStmt) (*AlterTable, error) {
	alter := &AlterTable{Table: stmt.GetRelation().GetRelname()}
	for _, n := range stmt.GetCmds() {
		cmd := n.GetAlterTableCmd()
		if cmd == nil {
			continue
		}
		switch cmd.GetSubtype() {
		case pg_query.AlterTableType_AT_AddColumn:
			col, fks, err := parseColumnDef(alter.Table, cmd.GetDef().GetColumnDef())
			if err != nil {
				return nil, err
			}
			alter.Operations = append(alter.Operations, catalog.AlterOperation{Kind: catalog.AlterAddColumn, Column: col})
			for _, fk := range fks {
				alter.Operations = append(alter.Operations, catalog.AlterOperation{Kind: catalog.AlterAddForeignKey, ForeignKey: fk})
			}
		case pg_query.AlterTableType_AT_DropColumn:
			alter.Operations = append(alter.Operations, catalog.AlterOperation{Kind: catalog.AlterDropColumn, Name: cmd.GetName()})
		case pg_query.AlterTableType_AT_AddConstraint:
			con := cmd.GetDef().GetConstraint()
			if con == nil || con.GetContype() != pg_query.ConstrType_CONSTR_FOREIGN {
				return nil, dberrors.NewParseErrorf("only FOREIGN KEY constraints can be added")
			}
			fk := foreignKeyFromConstraint(alter.Table, stringNodes(con.GetFkAttrs()), con)
			alter.Operations = append(alter.Operations, catalog.AlterOperation{Kind: catalog.AlterAddForeignKey, ForeignKey: fk})
		case pg_query.AlterTableType_AT_DropConstraint:
			alter.Operations = append(alter.Operations, catalog.AlterOperation{Kind: catalog.AlterDropForeignKey, Name: cmd.GetName()})
		default:
			return nil, dberrors.NewParseErrorf("unsupported ALTER TABLE action %s", cmd.GetSubtype())
		}
	}
	if len(alter.Operations) == 0 {
		return nil, dberrors.NewParseErrorf("ALTER TABLE %s has no actions", alter.Table)
	}
	return alter, nil
}

// StripDefault removes literal quotes from a DEFAULT expression.
func StripDefault(expr string) string {
	if v, ok := unquoteLiteral(expr); ok {
		return v
	}
	return catalog.StripQuotes(expr)
}
