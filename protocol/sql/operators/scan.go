package operators

import (
	"github.com/guileen/docsql/storage"
	"github.com/guileen/docsql/types"
)

// TableScanOperator reads every row of a tree and keeps those matching the
// flat equality conditions.
type TableScanOperator struct {
	bufferedOutput
	tree          *storage.Tree
	conditions    map[string]string
	schemaColumns []string
	columns       []string
}

func NewTableScan(tree *storage.Tree, conditions map[string]string, schemaColumns []string) *TableScanOperator {
	return &TableScanOperator{tree: tree, conditions: conditions, schemaColumns: schemaColumns}
}

func (op *TableScanOperator) Open() error {
	op.reset()
	err := op.tree.Scan(func(_ string, value []byte) error {
		row, err := types.DecodeRow(value)
		if err != nil {
			return err
		}
		if MatchConditions(row, op.conditions) {
			op.emit(row)
		}
		return nil
	})
	if err != nil {
		return err
	}
	op.columns = op.schemaColumns
	if len(op.columns) == 0 {
		op.columns = observedColumns(op.out)
	}
	return nil
}

func (op *TableScanOperator) Close() error { return nil }

func (op *TableScanOperator) Columns() []string { return op.columns }

// IndexScanOperator serves keyed lookups. A condition on the row key column
// is a point read; otherwise it scans and, for a unique index, stops at the
// first match.
type IndexScanOperator struct {
	bufferedOutput
	tree          *storage.Tree
	conditions    map[string]string
	keyColumn     string
	unique        bool
	primary       bool
	schemaColumns []string
}

func NewIndexScan(tree *storage.Tree, conditions map[string]string, keyColumn string, unique, primary bool, schemaColumns []string) *IndexScanOperator {
	return &IndexScanOperator{
		tree:          tree,
		conditions:    conditions,
		keyColumn:     keyColumn,
		unique:        unique,
		primary:       primary,
		schemaColumns: schemaColumns,
	}
}

func (op *IndexScanOperator) Open() error {
	op.reset()

	if key, ok := lookupCondition(op.conditions, op.keyColumn); ok && op.primary {
		data, err := op.tree.Get(key)
		if storage.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		row, err := types.DecodeRow(data)
		if err != nil {
			return err
		}
		if MatchConditions(row, op.conditions) {
			op.emit(row)
		}
		return nil
	}

	return op.tree.Scan(func(_ string, value []byte) error {
		row, err := types.DecodeRow(value)
		if err != nil {
			return err
		}
		if !MatchConditions(row, op.conditions) {
			return nil
		}
		op.emit(row)
		if op.unique {
			return storage.ErrStopScan
		}
		return nil
	})
}

func (op *IndexScanOperator) Close() error { return nil }

func (op *IndexScanOperator) Columns() []string {
	if len(op.schemaColumns) > 0 {
		return op.schemaColumns
	}
	return observedColumns(op.out)
}

func lookupCondition(conditions map[string]string, col string) (string, bool) {
	for k, v := range conditions {
		if _, bare := SplitQualified(k); bare == col {
			return v, true
		}
	}
	return "", false
}
