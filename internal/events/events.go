// Package events publishes domain events to the message brokers.
package events

import "context"

// Publisher delivers v, JSON encoded, to topic. key groups related events
// (a ride id, a geohash cell) so brokers can keep them ordered.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, v any) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, string, string, any) error { return nil }
