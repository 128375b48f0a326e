package catalog

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/google/cel-go/cel"

	"github.com/guileen/docsql/types"
)

// CheckEvaluator compiles CHECK constraint expressions to CEL programs and
// evaluates them against rows. Programs are cached per table and expression.
type CheckEvaluator struct {
	prgCache sync.Map // map[string]*compiledCheck
}

type compiledCheck struct {
	prg  cel.Program
	refs []string
}

func NewCheckEvaluator() *CheckEvaluator {
	return &CheckEvaluator{}
}

func checkCacheKey(table, expr string) string {
	return table + "\x00" + expr
}

// Compile validates expr against the columns of schema and caches the program.
func (e *CheckEvaluator) Compile(schema *types.TableSchema, expr string) error {
	_, err := e.program(schema, expr)
	return err
}

func (e *CheckEvaluator) program(schema *types.TableSchema, expr string) (*compiledCheck, error) {
	key := checkCacheKey(schema.Name, expr)
	if val, ok := e.prgCache.Load(key); ok {
		return val.(*compiledCheck), nil
	}

	celExpr, idents := sqlToCEL(expr)

	opts := []cel.EnvOption{cel.CrossTypeNumericComparisons(true)}
	var refs []string
	for _, col := range schema.Columns {
		opts = append(opts, cel.Variable(col.Name, cel.DynType))
		if idents[col.Name] {
			refs = append(refs, col.Name)
		}
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("check environment: %w", err)
	}

	ast, issues := env.Compile(celExpr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile CHECK (%s): %s", expr, issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program construction error: %w", err)
	}

	c := &compiledCheck{prg: prg, refs: refs}
	e.prgCache.Store(key, c)
	return c, nil
}

// Evaluate reports whether row satisfies expr. A check that reads a NULL
// column passes, as in SQL where an unknown result does not reject the row.
func (e *CheckEvaluator) Evaluate(schema *types.TableSchema, expr string, row types.Row) (bool, error) {
	c, err := e.program(schema, expr)
	if err != nil {
		return false, err
	}

	for _, ref := range c.refs {
		if row.IsNull(ref) {
			return true, nil
		}
	}

	activation := make(map[string]any, len(schema.Columns))
	for _, col := range schema.Columns {
		if row.IsNull(col.Name) {
			activation[col.Name] = nil
			continue
		}
		activation[col.Name] = typedValue(col.Type, row[col.Name])
	}

	out, _, err := c.prg.Eval(activation)
	if err != nil {
		return false, fmt.Errorf("evaluate CHECK (%s): %w", expr, err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CHECK (%s) must return boolean", expr)
	}
	return result, nil
}

// Forget drops the cached programs of table.
func (e *CheckEvaluator) Forget(table string) {
	prefix := table + "\x00"
	e.prgCache.Range(func(k, _ any) bool {
		if strings.HasPrefix(k.(string), prefix) {
			e.prgCache.Delete(k)
		}
		return true
	})
}

func typedValue(dt types.DataType, v string) any {
	switch dt.Kind {
	case types.Integer, types.BigInteger:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	case types.Real, types.Double:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	case types.Boolean:
		if b, ok := parseBool(v); ok {
			return b
		}
	}
	return v
}

// sqlToCEL rewrites a SQL boolean expression into CEL syntax and returns the
// identifiers it mentions.
func sqlToCEL(expr string) (string, map[string]bool) {
	var out strings.Builder
	idents := make(map[string]bool)
	rs := []rune(expr)

	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case r == '\'':
			j := i + 1
			var lit strings.Builder
			for j < len(rs) {
				if rs[j] == '\'' {
					if j+1 < len(rs) && rs[j+1] == '\'' {
						lit.WriteRune('\'')
						j += 2
						continue
					}
					break
				}
				lit.WriteRune(rs[j])
				j++
			}
			out.WriteString(strconv.Quote(lit.String()))
			i = j + 1
		case unicode.IsLetter(r) || r == '_':
			j := i
			for j < len(rs) && (unicode.IsLetter(rs[j]) || unicode.IsDigit(rs[j]) || rs[j] == '_') {
				j++
			}
			word := string(rs[i:j])
			switch strings.ToUpper(word) {
			case "AND":
				out.WriteString("&&")
			case "OR":
				out.WriteString("||")
			case "NOT":
				out.WriteString("!")
			case "TRUE":
				out.WriteString("true")
			case "FALSE":
				out.WriteString("false")
			case "NULL":
				out.WriteString("null")
			default:
				idents[word] = true
				out.WriteString(word)
			}
			i = j
		case r == '<' && i+1 < len(rs) && rs[i+1] == '>':
			out.WriteString("!=")
			i += 2
		case r == '=':
			prev := rune(0)
			if i > 0 {
				prev = rs[i-1]
			}
			if prev == '<' || prev == '>' || prev == '!' || prev == '=' || (i+1 < len(rs) && rs[i+1] == '=') {
				out.WriteRune(r)
			} else {
				out.WriteString("==")
			}
			i++
		default:
			out.WriteRune(r)
			i++
		}
	}
	return out.String(), idents
}
