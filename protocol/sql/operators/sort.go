package operators

import (
	"sort"
	"strings"

	"github.com/guileen/docsql/types"
)

// OrderSpec is one ORDER BY key.
type OrderSpec struct {
	Column string
	Desc   bool
}

func (o OrderSpec) String() string {
	if o.Desc {
		return o.Column + " DESC"
	}
	return o.Column + " ASC"
}

// ParseOrderSpec parses "col", "col ASC" or "col DESC".
func ParseOrderSpec(s string) OrderSpec {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return OrderSpec{}
	}
	spec := OrderSpec{Column: fields[0]}
	if len(fields) > 1 && strings.EqualFold(fields[1], "DESC") {
		spec.Desc = true
	}
	return spec
}

// SortRows orders rows in place by the given keys, stably.
func SortRows(rows []types.Row, order []OrderSpec) {
	if len(order) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, o := range order {
			a, _ := ResolveColumn(rows[i], o.Column)
			b, _ := ResolveColumn(rows[j], o.Column)
			c := CompareValues(a, b)
			if c == 0 {
				continue
			}
			if o.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// SortOperator materializes its input and emits it ordered.
type SortOperator struct {
	bufferedOutput
	input PhysicalOperator
	order []OrderSpec
}

func NewSort(input PhysicalOperator, order []OrderSpec) *SortOperator {
	return &SortOperator{input: input, order: order}
}

func (op *SortOperator) Open() error {
	op.reset()
	rows, err := Collect(op.input)
	if err != nil {
		return err
	}
	SortRows(rows, op.order)
	op.out = rows
	return nil
}

func (op *SortOperator) Close() error { return nil }

func (op *SortOperator) Columns() []string { return op.input.Columns() }

// LimitOperator stops after count rows.
type LimitOperator struct {
	input   PhysicalOperator
	count   int
	emitted int
}

func NewLimit(input PhysicalOperator, count int) *LimitOperator {
	return &LimitOperator{input: input, count: count}
}

func (op *LimitOperator) Open() error {
	op.emitted = 0
	return op.input.Open()
}

func (op *LimitOperator) Next() (types.Row, error) {
	if op.emitted >= op.count {
		return nil, EOF
	}
	row, err := op.input.Next()
	if err != nil {
		return nil, err
	}
	op.emitted++
	return row, nil
}

func (op *LimitOperator) Close() error { return op.input.Close() }

func (op *LimitOperator) Columns() []string { return op.input.Columns() }
