// Package operators implements the join engine: plan nodes, a cost model and
// Volcano-style physical operators over table rows.
package operators

import (
	"io"

	"github.com/guileen/docsql/types"
)

// PhysicalOperator is an Open/Next/Close iterator over rows. Next returns
// EOF once the input is exhausted.
type PhysicalOperator interface {
	Open() error
	Next() (types.Row, error)
	Close() error
	// Columns lists the output column names. Valid after Open; nil when unknown.
	Columns() []string
}

var EOF = io.EOF

// Collect opens op, drains it and closes it.
func Collect(op PhysicalOperator) ([]types.Row, error) {
	if err := op.Open(); err != nil {
		op.Close()
		return nil, err
	}
	var rows []types.Row
	for {
		row, err := op.Next()
		if err == EOF {
			break
		}
		if err != nil {
			op.Close()
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, op.Close()
}

// RowsOperator serves rows already in memory.
type RowsOperator struct {
	rows    []types.Row
	columns []string
	pos     int
}

func NewRowsOperator(rows []types.Row, columns []string) *RowsOperator {
	return &RowsOperator{rows: rows, columns: columns}
}

func (op *RowsOperator) Open() error {
	op.pos = 0
	return nil
}

func (op *RowsOperator) Next() (types.Row, error) {
	if op.pos >= len(op.rows) {
		return nil, EOF
	}
	row := op.rows[op.pos]
	op.pos++
	return row, nil
}

func (op *RowsOperator) Close() error { return nil }

func (op *RowsOperator) Columns() []string { return op.columns }

// bufferedOutput is embedded by operators that compute their output on Open.
type bufferedOutput struct {
	out []types.Row
	pos int
}

func (b *bufferedOutput) emit(row types.Row) {
	b.out = append(b.out, row)
}

func (b *bufferedOutput) Next() (types.Row, error) {
	if b.pos >= len(b.out) {
		return nil, EOF
	}
	row := b.out[b.pos]
	b.pos++
	return row, nil
}

func (b *bufferedOutput) reset() {
	b.out = nil
	b.pos = 0
}
