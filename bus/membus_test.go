package bus

import (
	"testing"
	"time"
)

func TestMemBusProviderSubscription(t *testing.T) {
	b := NewMemBus(MemBusConfig{})
	defer b.Close()

	sub := b.Subscribe("weather")
	defer sub.Close()

	b.Publish(NewEvent(EventProviderConnected, "weather", ""))
	b.Publish(NewEvent(EventProviderConnected, "search", ""))
	b.Publish(NewEvent(EventProviderDisconnected, "weather", "process exited"))

	first := receiveEvent(t, sub)
	if first.Kind != EventProviderConnected || first.ProviderID != "weather" {
		t.Fatalf("first event = %+v, want weather connected", first)
	}

	second := receiveEvent(t, sub)
	if second.Kind != EventProviderDisconnected {
		t.Fatalf("second event kind = %s, want %s", second.Kind, EventProviderDisconnected)
	}
	if second.Detail != "process exited" {
		t.Fatalf("second event detail = %q", second.Detail)
	}
}

func TestMemBusSubscribeAll(t *testing.T) {
	b := NewMemBus(MemBusConfig{SubscriberBufferSize: 4})
	defer b.Close()

	sub := b.SubscribeAll()
	defer sub.Close()

	b.Publish(NewEvent(EventProviderConnected, "a", ""))
	b.Publish(NewEvent(EventProviderFailed, "b", "handshake failed"))

	if got := receiveEvent(t, sub).ProviderID; got != "a" {
		t.Fatalf("first provider = %q, want a", got)
	}
	if got := receiveEvent(t, sub).ProviderID; got != "b" {
		t.Fatalf("second provider = %q, want b", got)
	}
}

func TestMemBusPublishAfterCloseIsDropped(t *testing.T) {
	b := NewMemBus(MemBusConfig{})
	sub := b.SubscribeAll()

	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	b.Publish(NewEvent(EventProviderConnected, "late", ""))

	if _, ok := <-sub.Events(); ok {
		t.Fatal("subscription channel still open after bus close")
	}
}

func TestMemBusEventIDsAreUnique(t *testing.T) {
	a := NewEvent(EventProviderConnected, "p", "")
	b := NewEvent(EventProviderConnected, "p", "")
	if a.ID == b.ID {
		t.Fatalf("event IDs collide: %q", a.ID)
	}
	if a.Time.IsZero() {
		t.Fatal("event time is zero")
	}
}

func receiveEvent(t *testing.T, sub Subscription) Event {
	t.Helper()
	select {
	case event := <-sub.Events():
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}
