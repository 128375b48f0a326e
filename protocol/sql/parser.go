package sql

import (
	"regexp"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	dberrors "github.com/guileen/docsql/engine/errors"
	"github.com/guileen/docsql/types"
)

var (
	wasmExecPattern    = regexp.MustCompile(`(?i)\bWASM_EXEC\s*\(`)
	createIndexPattern = regexp.MustCompile(`(?is)^CREATE\s+(UNIQUE\s+)?INDEX\s+(?:IF\s+NOT\s+EXISTS\s+)?(\w+)\s+ON\s+(\w+)\s*\(([^)]*)\)$`)
	loadModulePattern  = regexp.MustCompile(`(?is)^LOAD\s+MODULE\s+(\w+)\s+(?:FROM\s+)?(.+)$`)
	groupByAllPattern  = regexp.MustCompile(`(?i)\bGROUP\s+BY\s+ALL\b`)
)

// Parse parses a single statement. Custom commands are matched first, then
// the PostgreSQL grammar handles the rest.
func Parse(text string) (Statement, error) {
	text = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), ";"))
	if text == "" {
		return nil, dberrors.NewParseErrorf("empty statement")
	}

	if stmt, ok, err := parseCustom(text); ok || err != nil {
		return stmt, err
	}
	return parseSQL(text)
}

// ParseAll splits text on semicolons outside quotes and parses each
// non-empty statement.
func ParseAll(text string) ([]Statement, error) {
	var stmts []Statement
	for _, part := range SplitStatements(text) {
		stmt, err := Parse(part)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	if len(stmts) == 0 {
		return nil, dberrors.NewParseErrorf("empty statement")
	}
	return stmts, nil
}

// SplitStatements splits text on semicolons outside quotes, dropping blanks.
func SplitStatements(text string) []string {
	var out []string
	for _, part := range splitTopLevel(text, ";") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseCustom(text string) (Statement, bool, error) {
	if loc := wasmExecPattern.FindStringIndex(text); loc != nil {
		open := loc[1] - 1
		end := closingParen(text[open:])
		if end < 0 {
			return nil, true, dberrors.NewParseErrorf("unterminated WASM_EXEC call")
		}
		args := splitArgs(text[open+1 : open+end])
		if len(args) < 2 {
			return nil, true, dberrors.NewParseErrorf("WASM_EXEC needs a module and a function")
		}
		return &WasmExec{Module: args[0], Function: args[1], Args: args[2:]}, true, nil
	}

	fields := strings.Fields(text)
	upper := make([]string, len(fields))
	for i, f := range fields {
		upper[i] = strings.ToUpper(f)
	}
	word := func(i int) string {
		if i < len(upper) {
			return upper[i]
		}
		return ""
	}
	name := func(i int) (string, error) {
		if i >= len(fields) || i != len(fields)-1 {
			return "", dberrors.NewParseErrorf("expected a single name in %q", text)
		}
		return strings.Trim(fields[i], "`\""), nil
	}

	switch {
	case word(0) == "CREATE" && word(1) == "DATABASE":
		n, err := name(2)
		return &CreateDatabase{Name: n}, true, err

	case word(0) == "CREATE" && (word(1) == "INDEX" || (word(1) == "UNIQUE" && word(2) == "INDEX")):
		m := createIndexPattern.FindStringSubmatch(text)
		if m == nil {
			return nil, true, dberrors.NewParseErrorf("invalid CREATE INDEX: %q", text)
		}
		var cols []string
		for _, c := range strings.Split(m[4], ",") {
			if c = strings.TrimSpace(c); c != "" {
				cols = append(cols, c)
			}
		}
		if len(cols) == 0 {
			return nil, true, dberrors.NewParseErrorf("CREATE INDEX %s has no columns", m[2])
		}
		return &CreateIndex{Table: m[3], Index: types.Index{Name: m[2], Columns: cols, Unique: m[1] != ""}}, true, nil

	case word(0) == "USE":
		i := 1
		if word(1) == "DATABASE" {
			i = 2
		}
		n, err := name(i)
		return &UseDatabase{Name: n}, true, err

	case word(0) == "SHOW" && len(fields) == 2:
		switch word(1) {
		case "DATABASES":
			return &ShowDatabases{}, true, nil
		case "TABLES":
			return &ShowTables{}, true, nil
		case "USERS":
			return &ShowUsers{}, true, nil
		case "STATUS":
			return &ShowStatus{}, true, nil
		}
		return nil, true, dberrors.NewParseErrorf("unknown SHOW target %q", fields[1])

	case word(0) == "DESCRIBE" || word(0) == "DESC":
		n, err := name(1)
		return &DescribeTable{Table: n}, true, err

	case word(0) == "DROP" && word(1) == "DATABASE":
		i := 2
		if word(2) == "IF" && word(3) == "EXISTS" {
			i = 4
		}
		n, err := name(i)
		return &DropDatabase{Name: n, IfExists: i == 4}, true, err

	case word(0) == "SUBSCRIBE":
		i := 1
		if word(1) == "TO" {
			i = 2
		}
		n, err := name(i)
		return &Subscribe{Table: n}, true, err

	case word(0) == "UNSUBSCRIBE":
		i := 1
		if word(1) == "FROM" {
			i = 2
		}
		n, err := name(i)
		return &Unsubscribe{Table: n}, true, err

	case word(0) == "AUTH":
		if len(fields) != 3 {
			return nil, true, dberrors.NewParseErrorf("usage: AUTH <user> <password>")
		}
		return &Auth{User: unquoteArg(fields[1]), Password: unquoteArg(fields[2])}, true, nil

	case word(0) == "LOAD" && word(1) == "MODULE":
		m := loadModulePattern.FindStringSubmatch(text)
		if m == nil {
			return nil, true, dberrors.NewParseErrorf("usage: LOAD MODULE <name> FROM '<path>'")
		}
		return &LoadModule{Name: m[1], Path: unquoteArg(strings.TrimSpace(m[2]))}, true, nil
	}
	return nil, false, nil
}

// splitArgs splits a comma separated argument list outside quotes and
// unquotes each argument.
func splitArgs(s string) []string {
	var args []string
	for _, a := range splitTopLevel(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			args = append(args, unquoteArg(a))
		}
	}
	return args
}

func unquoteArg(s string) string {
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		q := string(s[0])
		return strings.ReplaceAll(s[1:len(s)-1], q+q, q)
	}
	return s
}

func parseSQL(text string) (Statement, error) {
	groupAll := false
	if groupByAllPattern.MatchString(text) {
		text = groupByAllPattern.ReplaceAllString(text, "")
		groupAll = true
	}

	result, err := pg_query.Parse(text)
	if err != nil {
		return nil, dberrors.NewParseErrorf("%v", err)
	}
	if len(result.Stmts) != 1 {
		return nil, dberrors.NewParseErrorf("expected one statement, found %d", len(result.Stmts))
	}
	node := result.Stmts[0].Stmt

	switch {
	case node.GetSelectStmt() != nil:
		sel, err := parseSelect(node.GetSelectStmt())
		if err != nil {
			return nil, err
		}
		if groupAll {
			sel.GroupBy = []string{GroupByAll}
		}
		return sel, nil
	case node.GetInsertStmt() != nil:
		return parseInsert(node.GetInsertStmt())
	case node.GetUpdateStmt() != nil:
		return parseUpdate(node.GetUpdateStmt())
	case node.GetDeleteStmt() != nil:
		return parseDelete(node.GetDeleteStmt())
	case node.GetCreateStmt() != nil:
		return parseCreateTable(node.GetCreateStmt())
	case node.GetDropStmt() != nil:
		return parseDropTable(node.GetDropStmt())
	case node.GetAlterTableStmt() != nil:
		return parseAlterTable(node.GetAlterTableStmt())
	case node.GetTransactionStmt() != nil:
		return parseTransaction(node.GetTransactionStmt())
	}
	return nil, dberrors.NewParseErrorf("unsupported statement: %q", text)
}

func parseTransaction(stmt *pg_query.TransactionStmt) (Statement, error) {
	switch stmt.GetKind() {
	case pg_query.TransactionStmtKind_TRANS_STMT_BEGIN, pg_query.TransactionStmtKind_TRANS_STMT_START:
		return &Begin{}, nil
	case pg_query.TransactionStmtKind_TRANS_STMT_COMMIT:
		return &Commit{}, nil
	case pg_query.TransactionStmtKind_TRANS_STMT_ROLLBACK:
		return &Rollback{}, nil
	}
	return nil, dberrors.NewParseErrorf("unsupported transaction statement %s", stmt.GetKind())
}
