package events

import (
	"fmt"
	"testing"
	"time"

	"github.com/danmuck/sfpctl/internal/testutil/testlog"
)

func recv(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.C():
		if !ok {
			t.Fatalf("subscription %q closed", sub.Name())
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event on %q", sub.Name())
	}
	return Event{}
}

func TestPublishPreservesOrderPerSubscriber(t *testing.T) {
	testlog.Start(t)
	bus := NewBus()
	defer bus.Close()
	a := bus.Subscribe("a")
	b := bus.Subscribe("b")

	const n = 500
	for i := 0; i < n; i++ {
		bus.Publish(Event{Kind: KindMessage, Text: fmt.Sprintf("%d", i)})
	}
	for _, sub := range []*Subscription{a, b} {
		for i := 0; i < n; i++ {
			ev := recv(t, sub)
			if ev.Text != fmt.Sprintf("%d", i) {
				t.Fatalf("%s: event %d out of order: %q", sub.Name(), i, ev.Text)
			}
		}
	}
}

func TestPublishDoesNotBlockOnIdleSubscriber(t *testing.T) {
	testlog.Start(t)
	bus := NewBus()
	defer bus.Close()
	idle := bus.Subscribe("idle")

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			bus.Log("10.0.0.1", "tick")
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("publish blocked on an idle subscriber")
	}
	if idle.Pending() == 0 {
		t.Fatalf("expected queued events for idle subscriber")
	}
}

func TestPublishStampsTime(t *testing.T) {
	testlog.Start(t)
	bus := NewBus()
	defer bus.Close()
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	bus.now = func() time.Time { return fixed }
	sub := bus.Subscribe("clock")

	bus.Publish(Event{Kind: KindLog})
	if ev := recv(t, sub); !ev.At.Equal(fixed) {
		t.Fatalf("at=%v want %v", ev.At, fixed)
	}
	explicit := fixed.Add(time.Hour)
	bus.Publish(Event{Kind: KindLog, At: explicit})
	if ev := recv(t, sub); !ev.At.Equal(explicit) {
		t.Fatalf("explicit timestamp overwritten: %v", ev.At)
	}
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	testlog.Start(t)
	bus := NewBus()
	sub := bus.Subscribe("x")
	bus.Publish(Event{Kind: KindLog})
	sub.Close()
	sub.Close()
	if bus.Subscribers() != 0 {
		t.Fatalf("subscriber still registered")
	}
	for range sub.C() {
	}
	bus.Publish(Event{Kind: KindLog})
	bus.Close()
	bus.Close()
}

func TestSubscribeAfterCloseReturnsClosedChannel(t *testing.T) {
	testlog.Start(t)
	bus := NewBus()
	bus.Close()
	sub := bus.Subscribe("late")
	select {
	case _, ok := <-sub.C():
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatalf("channel not closed")
	}
}
