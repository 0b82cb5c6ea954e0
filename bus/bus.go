// Package bus distributes provider lifecycle events to subscribers. The
// supervisor publishes connect/disconnect/failure transitions here instead of
// broadcasting ambiently, so hosts decide explicitly what to listen to.
package bus

import (
	"time"

	"github.com/google/uuid"
)

// EventKind identifies the type of a provider lifecycle event.
type EventKind string

const (
	// EventProviderConnected is published after a successful handshake.
	EventProviderConnected EventKind = "provider.connected"

	// EventProviderDisconnected is published after an explicit disconnect or
	// an unsolicited process exit.
	EventProviderDisconnected EventKind = "provider.disconnected"

	// EventProviderFailed is published when a connect attempt fails.
	EventProviderFailed EventKind = "provider.failed"

	// EventProviderUnhealthy is published when health checking marks a
	// connected provider unhealthy.
	EventProviderUnhealthy EventKind = "provider.unhealthy"
)

// String returns the string representation of the EventKind.
func (k EventKind) String() string {
	return string(k)
}

// Event is one provider lifecycle transition.
type Event struct {
	// ID uniquely identifies this event.
	ID string

	// Kind identifies the event type.
	Kind EventKind

	// ProviderID names the provider the event concerns.
	ProviderID string

	// Detail is an optional human-readable explanation (failure reason,
	// exit condition).
	Detail string

	// Time is when the transition was observed.
	Time time.Time
}

// NewEvent builds an event with a fresh ID and the current time.
func NewEvent(kind EventKind, providerID, detail string) Event {
	return Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		ProviderID: providerID,
		Detail:     detail,
		Time:       time.Now().UTC(),
	}
}

// EventBus distributes events to subscribers.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(event Event)

	// Subscribe registers a subscriber for a specific provider.
	// Returns a Subscription that must be closed when done.
	Subscribe(providerID string) Subscription

	// SubscribeAll registers a subscriber that receives events from all
	// providers. Returns a Subscription that must be closed when done.
	SubscribeAll() Subscription

	// Close shuts down the bus and all subscriptions.
	Close() error
}

// Subscription receives events.
type Subscription interface {
	// Events returns a channel of events for this subscription.
	Events() <-chan Event

	// Close unsubscribes and releases resources.
	Close() error
}
