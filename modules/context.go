package modules

import "context"

type subscriberKey struct{}

// SessionSubscriber is the subscriber bound to a client session.
type SessionSubscriber struct {
	ID         string
	Subscriber Subscriber
}

// WithSubscriber attaches the session's subscriber to ctx.
func WithSubscriber(ctx context.Context, id string, sub Subscriber) context.Context {
	return context.WithValue(ctx, subscriberKey{}, SessionSubscriber{ID: id, Subscriber: sub})
}

// SubscriberFromContext returns the session subscriber, if any.
func SubscriberFromContext(ctx context.Context) (SessionSubscriber, bool) {
	s, ok := ctx.Value(subscriberKey{}).(SessionSubscriber)
	return s, ok
}
