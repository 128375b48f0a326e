package sql

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	dberrors "github.com/guileen/docsql/engine/errors"
	"github.com/guileen/docsql/modules"
	"github.com/guileen/docsql/types"
)

func (e *Executor) executeBegin(ctx context.Context, txID string) (*types.Response, error) {
	id, err := e.txns.Begin(ctx, txID)
	if err != nil {
		return nil, err
	}
	e.metrics.TxBegin()
	resp := types.OK("Transaction started")
	resp.Results = []types.Row{{"tx_id": id}}
	return resp, nil
}

func (e *Executor) executeCommit(ctx context.Context, txID string) (*types.Response, error) {
	if txID == "" {
		return nil, dberrors.NewTransactionErrorf("commit", "no active transaction")
	}
	if err := e.txns.Commit(ctx, txID); err != nil {
		return nil, err
	}
	e.metrics.TxEnd(true)
	return types.OK("Transaction committed"), nil
}

func (e *Executor) executeRollback(ctx context.Context, txID string) (*types.Response, error) {
	if txID == "" {
		return nil, dberrors.NewTransactionErrorf("rollback", "no active transaction")
	}
	if err := e.txns.Rollback(ctx, txID); err != nil {
		return nil, err
	}
	e.metrics.TxEnd(false)
	return types.OK("Transaction rolled back"), nil
}

func (e *Executor) executeShowTables() (*types.Response, error) {
	tables := e.schemas.ListTables()
	rows := make([]types.Row, len(tables))
	for i, t := range tables {
		rows[i] = types.Row{"table": t}
	}
	return listing(rows), nil
}

func (e *Executor) executeShowUsers() (*types.Response, error) {
	if e.users == nil {
		return nil, dberrors.NewAuthErrorf("show users", "user directory not configured")
	}
	users, err := e.users.Users()
	if err != nil {
		return nil, err
	}
	rows := make([]types.Row, len(users))
	for i, u := range users {
		rows[i] = types.Row{"user": u}
	}
	return listing(rows), nil
}

func (e *Executor) executeShowStatus() (*types.Response, error) {
	status := types.Row{
		"database":            e.database,
		"tables":              strconv.Itoa(len(e.schemas.ListTables())),
		"active_transactions": strconv.Itoa(e.txns.ActiveCount()),
		"join_strategy":       e.joins.Strategy(),
	}
	if e.cache != nil {
		hits, misses := e.cache.Stats()
		status["cache_entries"] = strconv.Itoa(e.cache.Len())
		status["cache_hits"] = strconv.FormatInt(hits, 10)
		status["cache_misses"] = strconv.FormatInt(misses, 10)
	}
	return listing([]types.Row{status}), nil
}

func (e *Executor) executeDescribe(s *DescribeTable) (*types.Response, error) {
	schema, err := e.schemas.GetSchema(s.Table)
	if err != nil {
		return nil, err
	}
	refs := make(map[string]string)
	for _, fk := range schema.ForeignKeys {
		for i, c := range fk.Columns {
			refs[c] = fmt.Sprintf("%s(%s)", fk.ReferencedTable, fk.ReferencedColumns[i])
		}
	}

	rows := make([]types.Row, 0, len(schema.Columns))
	for _, col := range schema.Columns {
		kinds := make([]string, 0, len(col.Constraints))
		for _, c := range col.Constraints {
			if c.Kind != types.ConstraintDefault {
				kinds = append(kinds, string(c.Kind))
			}
		}
		row := types.Row{
			"column":      col.Name,
			"type":        col.Type.String(),
			"constraints": strings.Join(kinds, ","),
		}
		if def, ok := col.Default(); ok {
			row["default"] = def
		}
		if ref, ok := refs[col.Name]; ok {
			row["references"] = ref
		}
		rows = append(rows, row)
	}
	return types.ResultSet(s.Table, rows), nil
}

func (e *Executor) executeSubscribe(ctx context.Context, s *Subscribe) (*types.Response, error) {
	sub, ok := modules.SubscriberFromContext(ctx)
	if !ok || e.modules == nil || e.modules.Broker() == nil {
		return nil, dberrors.NewQueryErrorf("subscribe", "subscriptions need a streaming session")
	}
	if !e.schemas.HasTable(s.Table) {
		return nil, dberrors.NewNotFoundErrorf("subscribe", "table %s does not exist", s.Table)
	}
	e.modules.Broker().Subscribe(modules.Topic(e.database, s.Table), sub.ID, sub.Subscriber)
	return types.OK(fmt.Sprintf("Subscribed to %s", s.Table)), nil
}

func (e *Executor) executeUnsubscribe(ctx context.Context, s *Unsubscribe) (*types.Response, error) {
	sub, ok := modules.SubscriberFromContext(ctx)
	if !ok || e.modules == nil || e.modules.Broker() == nil {
		return nil, dberrors.NewQueryErrorf("unsubscribe", "subscriptions need a streaming session")
	}
	if !e.modules.Broker().Unsubscribe(modules.Topic(e.database, s.Table), sub.ID) {
		return nil, dberrors.NewNotFoundErrorf("unsubscribe", "not subscribed to %s", s.Table)
	}
	return types.OK(fmt.Sprintf("Unsubscribed from %s", s.Table)), nil
}

func (e *Executor) executeAuth(ctx context.Context, s *Auth) (*types.Response, error) {
	if e.users == nil {
		return nil, dberrors.NewAuthErrorf("auth", "user directory not configured")
	}
	if err := e.users.Authenticate(ctx, s.User, s.Password); err != nil {
		return nil, err
	}
	return types.OK(fmt.Sprintf("Authenticated as %s", s.User)), nil
}

func (e *Executor) host() modules.Host {
	if e.modules == nil {
		return modules.DisabledHost()
	}
	return e.modules.Host()
}

func (e *Executor) executeLoadModule(ctx context.Context, s *LoadModule) (*types.Response, error) {
	if err := e.host().LoadModule(ctx, s.Name, s.Path); err != nil {
		return nil, dberrors.Wrapf(err, dberrors.ErrCodeQuery, "load module", "module %s", s.Name)
	}
	return types.OK(fmt.Sprintf("Module %s loaded", s.Name)), nil
}

func (e *Executor) executeWasm(ctx context.Context, s *WasmExec) (*types.Response, error) {
	out, err := e.host().Call(ctx, s.Module, s.Function, s.Args)
	if err != nil {
		return nil, dberrors.Wrapf(err, dberrors.ErrCodeQuery, "wasm exec", "%s.%s", s.Module, s.Function)
	}
	resp := types.OK("OK")
	resp.Results = []types.Row{{"result": string(out)}}
	return resp, nil
}
