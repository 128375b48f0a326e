package modules

import (
	"context"
	"sort"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/guileen/docsql/logger"
)

// Message is a published notification.
type Message struct {
	Topic   string
	Payload []byte
}

// Subscriber receives messages of the topics it subscribed to. Send must
// not block for long; it runs on a shared worker pool.
type Subscriber interface {
	Send(msg *Message)
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(msg *Message)

func (f SubscriberFunc) Send(msg *Message) { f(msg) }

// Broker is an in-memory topic broker. Publish fans out to every subscriber
// of the topic through a bounded goroutine pool.
type Broker struct {
	mu     sync.RWMutex
	topics map[string]map[string]Subscriber // topic -> subscriber id -> subscriber
	pool   *ants.Pool
}

func NewBroker(workers int) (*Broker, error) {
	if workers <= 0 {
		workers = 1
	}
	pool, err := ants.NewPool(workers, ants.WithPanicHandler(func(v any) {
		logger.Error("subscriber panic", logger.Component("broker"), logger.Any("panic", v))
	}))
	if err != nil {
		return nil, err
	}
	return &Broker{topics: make(map[string]map[string]Subscriber), pool: pool}, nil
}

// Subscribe registers sub under id for topic, replacing an earlier
// registration with the same id.
func (b *Broker) Subscribe(topic, id string, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[string]Subscriber)
	}
	b.topics[topic][id] = sub
}

// Unsubscribe removes id from topic and reports whether it was subscribed.
func (b *Broker) Unsubscribe(topic, id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.topics[topic]
	if _, ok := subs[id]; !ok {
		return false
	}
	delete(subs, id)
	if len(subs) == 0 {
		delete(b.topics, topic)
	}
	return true
}

// UnsubscribeAll removes id from every topic.
func (b *Broker) UnsubscribeAll(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for topic, subs := range b.topics {
		delete(subs, id)
		if len(subs) == 0 {
			delete(b.topics, topic)
		}
	}
}

// Topics lists topics with at least one subscriber.
func (b *Broker) Topics() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.topics))
	for t := range b.topics {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Publish delivers payload to the subscribers of topic and returns how many
// deliveries were scheduled.
func (b *Broker) Publish(ctx context.Context, topic string, payload []byte) int {
	b.mu.RLock()
	subs := make([]Subscriber, 0, len(b.topics[topic]))
	for _, s := range b.topics[topic] {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	msg := &Message{Topic: topic, Payload: payload}
	n := 0
	for _, sub := range subs {
		sub := sub
		if err := b.pool.Submit(func() { sub.Send(msg) }); err != nil {
			logger.WarnContext(ctx, "notification dropped", logger.Component("broker"),
				logger.String("topic", topic), logger.ErrorField(err))
			continue
		}
		n++
	}
	return n
}

// Close waits for nothing; pending deliveries are abandoned.
func (b *Broker) Close() {
	b.pool.Release()
}
