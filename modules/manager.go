package modules

import (
	"context"
	"sync"

	"github.com/guileen/docsql/logger"
	"github.com/guileen/docsql/types"
)

// Manager dispatches change events to hooks and applies their side effects.
type Manager struct {
	broker *Broker
	host   Host

	mu    sync.RWMutex
	hooks []Hook
}

// NewManager creates a manager publishing through broker. A nil host
// disables module loading and reducer calls.
func NewManager(broker *Broker, host Host) *Manager {
	if host == nil {
		host = DisabledHost()
	}
	return &Manager{broker: broker, host: host}
}

// Register appends a hook.
func (m *Manager) Register(h Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, h)
}

// Host returns the module host.
func (m *Manager) Host() Host { return m.host }

// Broker returns the notification broker.
func (m *Manager) Broker() *Broker { return m.broker }

func (m *Manager) snapshot() []Hook {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Hook(nil), m.hooks...)
}

// Emit runs the hooks for ev.
func (m *Manager) Emit(ctx context.Context, ev *types.DatabaseEvent) {
	for _, h := range m.snapshot() {
		var (
			effects []SideEffect
			err     error
		)
		switch ev.Kind {
		case types.EventInsert:
			effects, err = h.OnInsert(ctx, ev)
		case types.EventUpdate:
			effects, err = h.OnUpdate(ctx, ev)
		case types.EventDelete:
			effects, err = h.OnDelete(ctx, ev)
		}
		if err != nil {
			logger.WarnContext(ctx, "hook failed", logger.Component("modules"),
				logger.String("hook", h.Name()), logger.Table(ev.Table), logger.ErrorField(err))
			continue
		}
		m.apply(ctx, effects)
	}
}

// CommitObserver returns a transaction commit observer for database.
func (m *Manager) CommitObserver(database string) func(ctx context.Context, txID string, tables []string, ops []types.Operation) {
	return func(ctx context.Context, txID string, _ []string, ops []types.Operation) {
		m.OnTransactionCommit(ctx, database, txID, ops)
	}
}

// OnTransactionCommit runs the commit hooks.
func (m *Manager) OnTransactionCommit(ctx context.Context, database, txID string, ops []types.Operation) {
	for _, h := range m.snapshot() {
		effects, err := h.OnTransactionCommit(ctx, database, txID, ops)
		if err != nil {
			logger.WarnContext(ctx, "commit hook failed", logger.Component("modules"),
				logger.String("hook", h.Name()), logger.TxID(txID), logger.ErrorField(err))
		}
		m.apply(ctx, effects)
	}
}

func (m *Manager) apply(ctx context.Context, effects []SideEffect) {
	for _, e := range effects {
		switch e := e.(type) {
		case SendNotification:
			if m.broker == nil {
				continue
			}
			n := m.broker.Publish(ctx, e.Topic, e.Payload)
			logger.DebugContext(ctx, "notification published", logger.Component("modules"),
				logger.String("topic", e.Topic), logger.Int("subscribers", n))
		}
	}
}
