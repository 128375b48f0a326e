package operators

import (
	"context"
	"sort"
	"sync"
	"time"

	dberrors "github.com/guileen/docsql/engine/errors"
	"github.com/guileen/docsql/logger"
	"github.com/guileen/docsql/storage"
	"github.com/guileen/docsql/types"
)

// Join strategies; the values match config.Join.Strategy.
const (
	StrategyHash       = "hash"
	StrategyNestedLoop = "nested_loop"
	StrategyAuto       = "auto"
)

const defaultStatsTTL = 30 * time.Second

// SchemaSource supplies table schemas. Tables without a schema, such as
// materialized CTEs, are still joinable.
type SchemaSource interface {
	GetSchema(name string) (*types.TableSchema, error)
}

// JoinStep joins the next table of the FROM list onto the rows so far.
type JoinStep struct {
	Type JoinType
	On   string
}

type tableStats struct {
	rows      int64
	collected time.Time
}

// JoinEngine plans and runs multi-table reads over one store.
type JoinEngine struct {
	store     *storage.Store
	schemas   SchemaSource
	costModel *CostModel
	strategy  string
	statsTTL  time.Duration

	mu    sync.Mutex
	stats map[string]tableStats
}

func NewJoinEngine(store *storage.Store, schemas SchemaSource, strategy string) *JoinEngine {
	switch strategy {
	case StrategyHash, StrategyNestedLoop, StrategyAuto:
	default:
		strategy = StrategyHash
	}
	return &JoinEngine{
		store:     store,
		schemas:   schemas,
		costModel: NewCostModel(),
		strategy:  strategy,
		statsTTL:  defaultStatsTTL,
		stats:     make(map[string]tableStats),
	}
}

func (e *JoinEngine) Strategy() string { return e.strategy }

// InvalidateStats drops the cached row count of table.
func (e *JoinEngine) InvalidateStats(table string) {
	e.mu.Lock()
	delete(e.stats, table)
	e.mu.Unlock()
}

func (e *JoinEngine) rowCount(table string) (int64, error) {
	e.mu.Lock()
	s, ok := e.stats[table]
	e.mu.Unlock()
	if ok && time.Since(s.collected) < e.statsTTL {
		return s.rows, nil
	}

	tree, err := e.store.Tree(table)
	if err != nil {
		return 0, dberrors.NewNotFoundErrorf("join", "table %s does not exist", table)
	}
	n, err := tree.Len()
	if err != nil {
		return 0, dberrors.Wrapf(err, dberrors.ErrCodeStorage, "join", "count rows of %s", table)
	}

	e.mu.Lock()
	e.stats[table] = tableStats{rows: int64(n), collected: time.Now()}
	e.mu.Unlock()
	return int64(n), nil
}

// ExecuteJoinQuery plans and runs tables[0] joined with tables[i+1] by
// joins[i], filtered by conditions, ordered and limited. A nil limit means
// no limit.
func (e *JoinEngine) ExecuteJoinQuery(ctx context.Context, tables []TableRef, joins []JoinStep, conditions map[string]string, orderBy []OrderSpec, limit *int) ([]types.Row, error) {
	plan, err := e.Plan(ctx, tables, joins, conditions, orderBy, limit)
	if err != nil {
		return nil, err
	}
	return e.Execute(ctx, plan)
}

// Plan builds a left-deep plan: one scan per table, joins folded in FROM
// order, a Filter for conditions no single scan can take, then Sort and Limit.
func (e *JoinEngine) Plan(ctx context.Context, tables []TableRef, joins []JoinStep, conditions map[string]string, orderBy []OrderSpec, limit *int) (*QueryExecutionPlan, error) {
	if len(tables) == 0 {
		return nil, dberrors.NewQueryErrorf("join", "no tables to join")
	}
	if len(joins) != len(tables)-1 {
		return nil, dberrors.NewQueryErrorf("join", "%d tables need %d join clauses, got %d", len(tables), len(tables)-1, len(joins))
	}

	pushed, residual := partitionConditions(tables, conditions)

	root, err := e.planScan(tables[0], pushed[0])
	if err != nil {
		return nil, err
	}
	for i, step := range joins {
		ref := tables[i+1]
		right, err := e.planScan(ref, pushed[i+1])
		if err != nil {
			return nil, err
		}
		cond, err := ParseJoinCondition(step.On)
		if err != nil {
			return nil, dberrors.Wrap(err, dberrors.ErrCodeParse, "join")
		}
		root = e.planJoin(root, right, JoinNode{
			Type:       step.Type,
			Condition:  cond.Orient(ref),
			LeftLabel:  tables[0].Label,
			RightLabel: ref.Label,
		})
	}

	if len(residual) > 0 {
		root = &Filter{Input: root, Conditions: residual, Estimate: e.costModel.FilterCost(root.Cost(), len(residual))}
	}
	if len(orderBy) > 0 {
		root = &Sort{Input: root, OrderBy: orderBy, Estimate: e.costModel.SortCost(root.Cost())}
	}
	if limit != nil {
		root = &Limit{Input: root, Count: *limit, Estimate: e.costModel.LimitCost(root.Cost(), *limit)}
	}

	plan := &QueryExecutionPlan{Root: root, EstimatedCost: root.Cost().TotalCost, EstimatedRows: root.Cost().Rows}
	logger.DebugContext(ctx, "join planned", logger.Component("join"),
		logger.Int("tables", len(tables)), logger.String("strategy", e.strategy),
		logger.Float64("estimated_cost", plan.EstimatedCost))
	return plan, nil
}

// partitionConditions assigns each qualified condition to the scan of the
// table it names, stripped to the bare column. Unqualified conditions go to
// the only scan of a single-table query, otherwise to the residual filter.
func partitionConditions(tables []TableRef, conditions map[string]string) ([]map[string]string, map[string]string) {
	pushed := make([]map[string]string, len(tables))
	residual := make(map[string]string)
	for k, v := range conditions {
		q, col := SplitQualified(k)
		idx := -1
		switch {
		case q != "":
			for i, t := range tables {
				if t.Label == q || t.Name == q {
					idx = i
					break
				}
			}
		case len(tables) == 1:
			idx = 0
		}
		if idx < 0 {
			residual[k] = v
			continue
		}
		if pushed[idx] == nil {
			pushed[idx] = make(map[string]string)
		}
		pushed[idx][col] = v
	}
	return pushed, residual
}

func (e *JoinEngine) planScan(ref TableRef, conds map[string]string) (ExecutionOperation, error) {
	rows, err := e.rowCount(ref.Name)
	if err != nil {
		return nil, err
	}

	var schema *types.TableSchema
	if e.schemas != nil {
		schema, _ = e.schemas.GetSchema(ref.Name)
	}
	// Trees without a schema are not keyed by any column.
	if schema != nil {
		if kc := schema.KeyColumn(); conds[kc] != "" {
			return &IndexScan{Table: ref, Index: "primary", Column: kc, Unique: true, Primary: true,
				Conditions: conds, Estimate: e.costModel.IndexScanCost(1)}, nil
		}
	}
	if schema != nil && len(conds) > 0 {
		cols := make([]string, 0, len(conds))
		for c := range conds {
			cols = append(cols, c)
		}
		sort.Strings(cols)
		for _, c := range cols {
			if col, ok := schema.Column(c); ok && col.IsUnique() {
				return &IndexScan{Table: ref, Index: ref.Name + "_" + c + "_key", Column: c, Unique: true,
					Conditions: conds, Estimate: e.costModel.IndexScanCost(1)}, nil
			}
			for _, idx := range schema.Indexes {
				if len(idx.Columns) == 1 && idx.Columns[0] == c {
					est := int64(1)
					if !idx.Unique {
						est = rows/10 + 1
					}
					return &IndexScan{Table: ref, Index: idx.Name, Column: c, Unique: idx.Unique,
						Conditions: conds, Estimate: e.costModel.IndexScanCost(est)}, nil
				}
			}
		}
	}

	est := e.costModel.SeqScanCost(rows)
	if len(conds) > 0 {
		est = e.costModel.FilterCost(est, len(conds))
	}
	return &TableScan{Table: ref, Conditions: conds, Estimate: est}, nil
}

func (e *JoinEngine) planJoin(left, right ExecutionOperation, node JoinNode) ExecutionOperation {
	node.Left, node.Right = left, right
	sel := JoinSelectivity(left.Cost(), right.Cost())
	nl := e.costModel.NestedLoopJoinCost(left.Cost(), right.Cost(), sel)
	hj := e.costModel.HashJoinCost(left.Cost(), right.Cost(), sel)

	useHash := true
	switch e.strategy {
	case StrategyNestedLoop:
		useHash = false
	case StrategyAuto:
		useHash = hj.TotalCost <= nl.TotalCost
	}
	if useHash {
		node.Estimate = hj
		return &HashJoin{JoinNode: node}
	}
	node.Estimate = nl
	return &NestedLoopJoin{JoinNode: node}
}

// Execute runs plan and returns its rows.
func (e *JoinEngine) Execute(ctx context.Context, plan *QueryExecutionPlan) ([]types.Row, error) {
	op, err := e.build(plan.Root)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	rows, err := Collect(op)
	if err != nil {
		return nil, dberrors.Wrap(err, dberrors.ErrCodeQuery, "join")
	}
	logger.DebugContext(ctx, "join executed", logger.Component("join"),
		logger.Int("rows", len(rows)), logger.Duration("elapsed", time.Since(start)))
	return rows, nil
}

func (e *JoinEngine) build(node ExecutionOperation) (PhysicalOperator, error) {
	switch n := node.(type) {
	case *TableScan:
		tree, cols, err := e.source(n.Table)
		if err != nil {
			return nil, err
		}
		return NewTableScan(tree, n.Conditions, cols), nil
	case *IndexScan:
		tree, cols, err := e.source(n.Table)
		if err != nil {
			return nil, err
		}
		return NewIndexScan(tree, n.Conditions, n.Column, n.Unique, n.Primary, cols), nil
	case *HashJoin:
		left, right, err := e.buildChildren(&n.JoinNode)
		if err != nil {
			return nil, err
		}
		return NewHashJoin(left, right, n.LeftLabel, n.RightLabel, n.Condition, n.Type), nil
	case *NestedLoopJoin:
		left, right, err := e.buildChildren(&n.JoinNode)
		if err != nil {
			return nil, err
		}
		return NewNestedLoopJoin(left, right, n.LeftLabel, n.RightLabel, n.Condition, n.Type), nil
	case *Filter:
		in, err := e.build(n.Input)
		if err != nil {
			return nil, err
		}
		return NewFilter(in, n.Conditions), nil
	case *Sort:
		in, err := e.build(n.Input)
		if err != nil {
			return nil, err
		}
		return NewSort(in, n.OrderBy), nil
	case *Limit:
		in, err := e.build(n.Input)
		if err != nil {
			return nil, err
		}
		return NewLimit(in, n.Count), nil
	}
	return nil, dberrors.Errorf(dberrors.ErrCodeInternal, "unknown plan node %T", node)
}

func (e *JoinEngine) buildChildren(n *JoinNode) (PhysicalOperator, PhysicalOperator, error) {
	left, err := e.build(n.Left)
	if err != nil {
		return nil, nil, err
	}
	right, err := e.build(n.Right)
	if err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

func (e *JoinEngine) source(ref TableRef) (*storage.Tree, []string, error) {
	tree, err := e.store.Tree(ref.Name)
	if err != nil {
		return nil, nil, dberrors.NewNotFoundErrorf("join", "table %s does not exist", ref.Name)
	}
	var cols []string
	if e.schemas != nil {
		if schema, err := e.schemas.GetSchema(ref.Name); err == nil {
			cols = schema.ColumnNames()
		}
	}
	return tree, cols, nil
}
