package modules

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guileen/docsql/types"
)

func chanSubscriber(buf int) (Subscriber, chan *Message) {
	ch := make(chan *Message, buf)
	return SubscriberFunc(func(m *Message) { ch <- m }), ch
}

func receive(t *testing.T, ch chan *Message) *Message {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no message delivered")
		return nil
	}
}

func TestBrokerPublish(t *testing.T) {
	b, err := NewBroker(4)
	require.NoError(t, err)
	defer b.Close()

	sub, ch := chanSubscriber(1)
	b.Subscribe("main/users", "s1", sub)
	assert.Equal(t, []string{"main/users"}, b.Topics())

	n := b.Publish(context.Background(), "main/users", []byte("hello"))
	assert.Equal(t, 1, n)
	m := receive(t, ch)
	assert.Equal(t, "main/users", m.Topic)
	assert.Equal(t, "hello", string(m.Payload))

	assert.Equal(t, 0, b.Publish(context.Background(), "main/orders", []byte("x")))

	assert.True(t, b.Unsubscribe("main/users", "s1"))
	assert.False(t, b.Unsubscribe("main/users", "s1"))
	assert.Empty(t, b.Topics())
	assert.Equal(t, 0, b.Publish(context.Background(), "main/users", []byte("again")))
}

func TestBrokerUnsubscribeAll(t *testing.T) {
	b, err := NewBroker(1)
	require.NoError(t, err)
	defer b.Close()

	sub, _ := chanSubscriber(1)
	b.Subscribe("a", "s1", sub)
	b.Subscribe("b", "s1", sub)
	b.Subscribe("b", "s2", sub)
	b.UnsubscribeAll("s1")
	assert.Equal(t, []string{"b"}, b.Topics())
}

type failingHook struct{ BaseHook }

func (failingHook) Name() string { return "failing" }

func (failingHook) OnInsert(context.Context, *types.DatabaseEvent) ([]SideEffect, error) {
	return nil, errors.New("boom")
}

func TestManagerEmitNotifies(t *testing.T) {
	b, err := NewBroker(2)
	require.NoError(t, err)
	defer b.Close()

	m := NewManager(b, nil)
	m.Register(failingHook{})
	m.Register(NotifyHook{})

	sub, ch := chanSubscriber(2)
	b.Subscribe(Topic("main", "users"), "s1", sub)

	ev := types.NewEvent(types.EventInsert, "main", "users", "1", nil, types.Row{"id": "1", "name": "Alice"})
	m.Emit(context.Background(), ev)

	msg := receive(t, ch)
	var got types.DatabaseEvent
	require.NoError(t, json.Unmarshal(msg.Payload, &got))
	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, types.EventInsert, got.Kind)
	assert.Equal(t, "Alice", got.After["name"])
}

func TestManagerCommitObserver(t *testing.T) {
	b, err := NewBroker(2)
	require.NoError(t, err)
	defer b.Close()

	m := NewManager(b, nil)
	m.Register(NotifyHook{})
	sub, ch := chanSubscriber(4)
	b.Subscribe(Topic("main", "orders"), "s1", sub)

	obs := m.CommitObserver("main")
	obs(context.Background(), "tx-1", []string{"orders"}, []types.Operation{
		{Kind: types.EventInsert, Table: "orders", Key: "1", After: types.Row{"id": "1"}},
		{Kind: types.EventDelete, Table: "orders", Key: "2", Before: types.Row{"id": "2"}},
	})

	kinds := map[types.EventKind]bool{}
	for i := 0; i < 2; i++ {
		var ev types.DatabaseEvent
		require.NoError(t, json.Unmarshal(receive(t, ch).Payload, &ev))
		assert.Equal(t, "tx-1", ev.TxID)
		kinds[ev.Kind] = true
	}
	assert.True(t, kinds[types.EventInsert])
	assert.True(t, kinds[types.EventDelete])
}

func TestDisabledHost(t *testing.T) {
	m := NewManager(nil, nil)
	err := m.Host().LoadModule(context.Background(), "m", "/tmp/m.wasm")
	assert.ErrorIs(t, err, ErrModuleHostDisabled)
	_, err = m.Host().Call(context.Background(), "m", "f", nil)
	assert.ErrorIs(t, err, ErrModuleHostDisabled)
	assert.Empty(t, m.Host().Modules())
}

func TestValidateEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		args    []string
	}{
		{"array args", `{"module":"bank","function":"transfer","args":["a",1,true]}`, false, []string{"a", "1", "true"}},
		{"object args", `{"module":"bank","function":"transfer","args":{"from":"a"}}`, false, []string{`{"from":"a"}`}},
		{"missing function", `{"module":"bank","args":[]}`, true, nil},
		{"empty module", `{"module":"","function":"f","args":[]}`, true, nil},
		{"scalar args", `{"module":"bank","function":"f","args":3}`, true, nil},
		{"not json", `module=bank`, true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := ValidateEnvelope([]byte(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			args, err := env.Arguments()
			require.NoError(t, err)
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestSubscriberContext(t *testing.T) {
	_, ok := SubscriberFromContext(context.Background())
	assert.False(t, ok)

	sub, _ := chanSubscriber(1)
	ctx := WithSubscriber(context.Background(), "sess-1", sub)
	got, ok := SubscriberFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "sess-1", got.ID)
}
