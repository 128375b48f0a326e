package operators

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/guileen/docsql/types"
)

// AggFunction accumulates one aggregate over a group.
type AggFunction interface {
	Init()
	Update(value string, present bool)
	Finalize() string
}

type CountAgg struct {
	star  bool
	count int64
}

func (a *CountAgg) Init() { a.count = 0 }

func (a *CountAgg) Update(v string, present bool) {
	if a.star || (present && v != "" && v != types.NullValue) {
		a.count++
	}
}

func (a *CountAgg) Finalize() string { return strconv.FormatInt(a.count, 10) }

type SumAgg struct {
	sum      float64
	isFloat  bool
	hasValue bool
}

func (a *SumAgg) Init() { *a = SumAgg{} }

func (a *SumAgg) Update(v string, present bool) {
	f, isInt, ok := numeric(v, present)
	if !ok {
		return
	}
	a.sum += f
	a.hasValue = true
	if !isInt {
		a.isFloat = true
	}
}

func (a *SumAgg) Finalize() string {
	if !a.hasValue {
		return types.NullValue
	}
	if !a.isFloat && a.sum == math.Trunc(a.sum) {
		return strconv.FormatInt(int64(a.sum), 10)
	}
	return formatFloat(a.sum)
}

type AvgAgg struct {
	sum   float64
	count int64
}

func (a *AvgAgg) Init() { *a = AvgAgg{} }

func (a *AvgAgg) Update(v string, present bool) {
	if f, _, ok := numeric(v, present); ok {
		a.sum += f
		a.count++
	}
}

func (a *AvgAgg) Finalize() string {
	if a.count == 0 {
		return types.NullValue
	}
	return formatFloat(a.sum / float64(a.count))
}

// extremeAgg implements MIN (sign -1) and MAX (sign 1).
type extremeAgg struct {
	sign int
	best string
	set  bool
}

func (a *extremeAgg) Init() { a.best, a.set = "", false }

func (a *extremeAgg) Update(v string, present bool) {
	if !present || v == "" || v == types.NullValue {
		return
	}
	if !a.set || CompareValues(v, a.best)*a.sign > 0 {
		a.best, a.set = v, true
	}
}

func (a *extremeAgg) Finalize() string {
	if !a.set {
		return types.NullValue
	}
	return a.best
}

func numeric(v string, present bool) (float64, bool, bool) {
	if !present || v == "" || v == types.NullValue {
		return 0, false, false
	}
	if i, err := strconv.ParseInt(v, 10, 64); err == nil {
		return float64(i), true, true
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false, false
	}
	return f, false, true
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// AggregateSpec names one aggregate call: Func over Column ("*" for
// COUNT(*)), written to Output.
type AggregateSpec struct {
	Func   string
	Column string
	Output string
}

// NewAggFunction returns the accumulator for a COUNT, SUM, AVG, MIN or MAX call.
func NewAggFunction(spec AggregateSpec) (AggFunction, error) {
	switch strings.ToUpper(spec.Func) {
	case "COUNT":
		return &CountAgg{star: spec.Column == "*"}, nil
	case "SUM":
		return &SumAgg{}, nil
	case "AVG":
		return &AvgAgg{}, nil
	case "MIN":
		return &extremeAgg{sign: -1}, nil
	case "MAX":
		return &extremeAgg{sign: 1}, nil
	}
	return nil, fmt.Errorf("unsupported aggregate function %s", spec.Func)
}

type aggGroup struct {
	first types.Row
	funcs []AggFunction
}

// AggregateOperator buckets rows by the resolved GROUP BY values (the literal
// NULL when a column does not resolve) and emits one row per bucket holding
// the group columns and the aggregate outputs. Without GROUP BY the whole
// input is one bucket, even when empty.
type AggregateOperator struct {
	bufferedOutput
	input   PhysicalOperator
	groupBy []string
	specs   []AggregateSpec
}

func NewAggregate(input PhysicalOperator, groupBy []string, specs []AggregateSpec) *AggregateOperator {
	return &AggregateOperator{input: input, groupBy: groupBy, specs: specs}
}

func (op *AggregateOperator) Open() error {
	op.reset()
	rows, err := Collect(op.input)
	if err != nil {
		return err
	}

	groups := make(map[string]*aggGroup)
	var order []string
	newGroup := func(first types.Row) (*aggGroup, error) {
		g := &aggGroup{first: first}
		for _, s := range op.specs {
			f, err := NewAggFunction(s)
			if err != nil {
				return nil, err
			}
			f.Init()
			g.funcs = append(g.funcs, f)
		}
		return g, nil
	}

	for _, row := range rows {
		key := op.groupKey(row)
		g, ok := groups[key]
		if !ok {
			if g, err = newGroup(row); err != nil {
				return err
			}
			groups[key] = g
			order = append(order, key)
		}
		for i, s := range op.specs {
			v, present := "", true
			if s.Column != "*" {
				v, present = ResolveColumn(row, s.Column)
			}
			g.funcs[i].Update(v, present)
		}
	}

	if len(rows) == 0 && len(op.groupBy) == 0 {
		g, err := newGroup(types.Row{})
		if err != nil {
			return err
		}
		groups[""] = g
		order = append(order, "")
	}

	if len(op.groupBy) > 0 {
		sort.Strings(order)
	}
	for _, key := range order {
		g := groups[key]
		out := make(types.Row, len(op.groupBy)+len(op.specs))
		for _, col := range op.groupBy {
			v, ok := ResolveColumn(g.first, col)
			if !ok {
				v = types.NullValue
			}
			out[col] = v
		}
		for i, s := range op.specs {
			out[s.Output] = g.funcs[i].Finalize()
		}
		op.emit(out)
	}
	return nil
}

func (op *AggregateOperator) groupKey(row types.Row) string {
	parts := make([]string, len(op.groupBy))
	for i, col := range op.groupBy {
		v, ok := ResolveColumn(row, col)
		if !ok {
			v = types.NullValue
		}
		parts[i] = v
	}
	return strings.Join(parts, "\x1f")
}

func (op *AggregateOperator) Close() error { return nil }

func (op *AggregateOperator) Columns() []string {
	cols := append([]string(nil), op.groupBy...)
	for _, s := range op.specs {
		cols = append(cols, s.Output)
	}
	return cols
}
