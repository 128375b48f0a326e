package operators

import (
	"github.com/guileen/docsql/types"
)

// FilterOperator keeps rows where every condition key resolves to its value.
type FilterOperator struct {
	input      PhysicalOperator
	conditions map[string]string
}

func NewFilter(input PhysicalOperator, conditions map[string]string) *FilterOperator {
	return &FilterOperator{input: input, conditions: conditions}
}

func (op *FilterOperator) Open() error {
	return op.input.Open()
}

func (op *FilterOperator) Next() (types.Row, error) {
	for {
		row, err := op.input.Next()
		if err != nil {
			return nil, err
		}
		if op.match(row) {
			return row, nil
		}
	}
}

func (op *FilterOperator) match(row types.Row) bool {
	for k, want := range op.conditions {
		got, ok := ResolveColumn(row, k)
		if !ok || got != want {
			return false
		}
	}
	return true
}

func (op *FilterOperator) Close() error {
	return op.input.Close()
}

func (op *FilterOperator) Columns() []string { return op.input.Columns() }
