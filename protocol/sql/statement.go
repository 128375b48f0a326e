package sql

import (
	"strings"

	"github.com/guileen/docsql/catalog"
	"github.com/guileen/docsql/protocol/sql/operators"
	"github.com/guileen/docsql/types"
)

// StatementKind names the variant of a parsed statement.
type StatementKind string

const (
	KindSelect         StatementKind = "SELECT"
	KindInsert         StatementKind = "INSERT"
	KindUpdate         StatementKind = "UPDATE"
	KindDelete         StatementKind = "DELETE"
	KindCreateTable    StatementKind = "CREATE TABLE"
	KindDropTable      StatementKind = "DROP TABLE"
	KindAlterTable     StatementKind = "ALTER TABLE"
	KindBegin          StatementKind = "BEGIN"
	KindCommit         StatementKind = "COMMIT"
	KindRollback       StatementKind = "ROLLBACK"
	KindCreateDatabase StatementKind = "CREATE DATABASE"
	KindUseDatabase    StatementKind = "USE"
	KindDropDatabase   StatementKind = "DROP DATABASE"
	KindShowTables     StatementKind = "SHOW TABLES"
	KindShowDatabases  StatementKind = "SHOW DATABASES"
	KindShowUsers      StatementKind = "SHOW USERS"
	KindShowStatus     StatementKind = "SHOW STATUS"
	KindDescribeTable  StatementKind = "DESCRIBE"
	KindCreateIndex    StatementKind = "CREATE INDEX"
	KindSubscribe      StatementKind = "SUBSCRIBE"
	KindUnsubscribe    StatementKind = "UNSUBSCRIBE"
	KindAuth           StatementKind = "AUTH"
	KindLoadModule     StatementKind = "LOAD MODULE"
	KindWasmExec       StatementKind = "WASM_EXEC"
)

// Statement is one parsed statement. The set of implementations is closed.
type Statement interface {
	Kind() StatementKind
	statement()
}

// JoinClause joins Table ("name" or "name AS alias") on the ON predicate text.
type JoinClause struct {
	Table string
	Type  operators.JoinType
	On    string
}

// AggregateCall is a COUNT, SUM, AVG, MIN or MAX call in the select list.
// Arg is "*" for COUNT(*). Output is the alias, or FUNC(arg) without one.
type AggregateCall struct {
	Func   string
	Arg    string
	Output string
}

// CTE is a WITH entry: the inner query text materialized under Name.
type CTE struct {
	Name  string
	Query string
}

// WindowFunction is ROW_NUMBER, RANK, DENSE_RANK, LEAD or LAG with its OVER
// clause.
type WindowFunction struct {
	Func        string
	Args        []string
	Over        string
	PartitionBy []string
	OrderBy     []operators.OrderSpec
	Output      string
}

// CaseWhen is one WHEN cond THEN result arm.
type CaseWhen struct {
	Condition string
	Result    string
}

// CaseExpression is a CASE in the select list, with its reconstructed text.
type CaseExpression struct {
	Whens  []CaseWhen
	Else   string
	Output string
	Text   string
}

// GroupByAll is the GroupBy sentinel for GROUP BY ALL.
const GroupByAll = "*"

type Select struct {
	Table           string
	Columns         []string
	Joins           []JoinClause
	Where           string
	OrderBy         []operators.OrderSpec
	Limit           *int
	GroupBy         []string
	Aggregates      []AggregateCall
	Having          string
	CTEs            []CTE
	WindowFunctions []WindowFunction
	CaseExpressions []CaseExpression
}

// Aggregate returns the first aggregate call of function fn.
func (s *Select) Aggregate(fn string) (AggregateCall, bool) {
	for _, a := range s.Aggregates {
		if strings.EqualFold(a.Func, fn) {
			return a, true
		}
	}
	return AggregateCall{}, false
}

// HasGroupByAll reports whether the query used GROUP BY ALL.
func (s *Select) HasGroupByAll() bool {
	return len(s.GroupBy) == 1 && s.GroupBy[0] == GroupByAll
}

// Insert carries one value list per VALUES tuple. SQL NULL is the empty string.
type Insert struct {
	Table   string
	Columns []string
	Rows    [][]string
}

type Update struct {
	Table  string
	Values map[string]string
	Where  string
}

type Delete struct {
	Table string
	Where string
}

type CreateTable struct {
	Schema      *types.TableSchema
	IfNotExists bool
}

type DropTable struct {
	Tables   []string
	IfExists bool
}

type AlterTable struct {
	Table      string
	Operations []catalog.AlterOperation
}

type Begin struct{}
type Commit struct{}
type Rollback struct{}

type CreateDatabase struct{ Name string }
type UseDatabase struct{ Name string }
type DropDatabase struct {
	Name     string
	IfExists bool
}

type ShowTables struct{}
type ShowDatabases struct{}
type ShowUsers struct{}
type ShowStatus struct{}

type DescribeTable struct{ Table string }

type CreateIndex struct {
	Table string
	Index types.Index
}

type Subscribe struct{ Table string }
type Unsubscribe struct{ Table string }

type Auth struct {
	User     string
	Password string
}

type LoadModule struct {
	Name string
	Path string
}

type WasmExec struct {
	Module   string
	Function string
	Args     []string
}

func (*Select) Kind() StatementKind         { return KindSelect }
func (*Insert) Kind() StatementKind         { return KindInsert }
func (*Update) Kind() StatementKind         { return KindUpdate }
func (*Delete) Kind() StatementKind         { return KindDelete }
func (*CreateTable) Kind() StatementKind    { return KindCreateTable }
func (*DropTable) Kind() StatementKind      { return KindDropTable }
func (*AlterTable) Kind() StatementKind     { return KindAlterTable }
func (*Begin) Kind() StatementKind          { return KindBegin }
func (*Commit) Kind() StatementKind         { return KindCommit }
func (*Rollback) Kind() StatementKind       { return KindRollback }
func (*CreateDatabase) Kind() StatementKind { return KindCreateDatabase }
func (*UseDatabase) Kind() StatementKind    { return KindUseDatabase }
func (*DropDatabase) Kind() StatementKind   { return KindDropDatabase }
func (*ShowTables) Kind() StatementKind     { return KindShowTables }
func (*ShowDatabases) Kind() StatementKind  { return KindShowDatabases }
func (*ShowUsers) Kind() StatementKind      { return KindShowUsers }
func (*ShowStatus) Kind() StatementKind     { return KindShowStatus }
func (*DescribeTable) Kind() StatementKind  { return KindDescribeTable }
func (*CreateIndex) Kind() StatementKind    { return KindCreateIndex }
func (*Subscribe) Kind() StatementKind      { return KindSubscribe }
func (*Unsubscribe) Kind() StatementKind    { return KindUnsubscribe }
func (*Auth) Kind() StatementKind           { return KindAuth }
func (*LoadModule) Kind() StatementKind     { return KindLoadModule }
func (*WasmExec) Kind() StatementKind       { return KindWasmExec }

func (*Select) statement()         {}
func (*Insert) statement()         {}
func (*Update) statement()         {}
func (*Delete) statement()         {}
func (*CreateTable) statement()    {}
func (*DropTable) statement()      {}
func (*AlterTable) statement()     {}
func (*Begin) statement()          {}
func (*Commit) statement()         {}
func (*Rollback) statement()       {}
func (*CreateDatabase) statement() {}
func (*UseDatabase) statement()    {}
func (*DropDatabase) statement()   {}
func (*ShowTables) statement()     {}
func (*ShowDatabases) statement()  {}
func (*ShowUsers) statement()      {}
func (*ShowStatus) statement()     {}
func (*DescribeTable) statement()  {}
func (*CreateIndex) statement()    {}
func (*Subscribe) statement()      {}
func (*Unsubscribe) statement()    {}
func (*Auth) statement()           {}
func (*LoadModule) statement()     {}
func (*WasmExec) statement()       {}
