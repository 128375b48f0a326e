// Package modules hosts change hooks, the reducer module boundary and the
// notification broker that delivers SUBSCRIBE updates.
package modules

import (
	"context"

	"github.com/guileen/docsql/types"
)

// SideEffect is an action a hook asks the manager to perform.
type SideEffect interface {
	sideEffect()
}

// SendNotification publishes Payload on Topic through the broker.
type SendNotification struct {
	Topic   string
	Payload []byte
}

func (SendNotification) sideEffect() {}

// Hook observes applied row changes. Hooks run synchronously in
// registration order; a returned error is logged and otherwise ignored.
type Hook interface {
	Name() string
	OnInsert(ctx context.Context, ev *types.DatabaseEvent) ([]SideEffect, error)
	OnUpdate(ctx context.Context, ev *types.DatabaseEvent) ([]SideEffect, error)
	OnDelete(ctx context.Context, ev *types.DatabaseEvent) ([]SideEffect, error)
	OnTransactionCommit(ctx context.Context, database, txID string, ops []types.Operation) ([]SideEffect, error)
}

// BaseHook implements Hook with no-ops; embed it to override a subset.
type BaseHook struct{}

func (BaseHook) OnInsert(context.Context, *types.DatabaseEvent) ([]SideEffect, error) {
	return nil, nil
}
func (BaseHook) OnUpdate(context.Context, *types.DatabaseEvent) ([]SideEffect, error) {
	return nil, nil
}
func (BaseHook) OnDelete(context.Context, *types.DatabaseEvent) ([]SideEffect, error) {
	return nil, nil
}
func (BaseHook) OnTransactionCommit(context.Context, string, string, []types.Operation) ([]SideEffect, error) {
	return nil, nil
}

// Topic is the broker topic carrying changes of table in database.
func Topic(database, table string) string {
	return database + "/" + table
}

// NotifyHook publishes every change to the table's topic.
type NotifyHook struct {
	BaseHook
}

func (NotifyHook) Name() string { return "notify" }

func (h NotifyHook) OnInsert(_ context.Context, ev *types.DatabaseEvent) ([]SideEffect, error) {
	return h.notify(ev)
}

func (h NotifyHook) OnUpdate(_ context.Context, ev *types.DatabaseEvent) ([]SideEffect, error) {
	return h.notify(ev)
}

func (h NotifyHook) OnDelete(_ context.Context, ev *types.DatabaseEvent) ([]SideEffect, error) {
	return h.notify(ev)
}

// OnTransactionCommit replays the committed operations as change events.
func (h NotifyHook) OnTransactionCommit(_ context.Context, database, txID string, ops []types.Operation) ([]SideEffect, error) {
	var out []SideEffect
	for _, op := range ops {
		ev := types.NewEvent(op.Kind, database, op.Table, op.Key, op.Before, op.After)
		ev.TxID = txID
		effects, err := h.notify(ev)
		if err != nil {
			return out, err
		}
		out = append(out, effects...)
	}
	return out, nil
}

func (NotifyHook) notify(ev *types.DatabaseEvent) ([]SideEffect, error) {
	payload, err := ev.Encode()
	if err != nil {
		return nil, err
	}
	return []SideEffect{SendNotification{Topic: Topic(ev.Database, ev.Table), Payload: payload}}, nil
}
