// Package events carries typed notifications from the network actors to their
// consumers. Publish never blocks: every subscriber owns an unbounded FIFO that
// a dedicated goroutine drains into the subscriber's channel, so a slow consumer
// only delays itself and delivery order equals emission order.
package events

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type Kind string

const (
	KindConnected     Kind = "connected"
	KindDisconnected  Kind = "disconnected"
	KindMessage       Kind = "message"
	KindLog           Kind = "log"
	KindWarning       Kind = "warning"
	KindError         Kind = "error"
	KindRefresh       Kind = "refresh"
	KindDiagnostics   Kind = "diagnostics"
	KindSessionClosed Kind = "session_closed"
)

// Event is one outbound notification. Data holds a kind-specific value
// (for example a diagnostics snapshot) and is nil for plain log events.
type Event struct {
	Kind       Kind      `json:"kind"`
	IP         string    `json:"ip,omitempty"`
	DeviceType string    `json:"device_type,omitempty"`
	Code       string    `json:"code,omitempty"`
	Text       string    `json:"text,omitempty"`
	Err        string    `json:"error,omitempty"`
	Data       any       `json:"data,omitempty"`
	At         time.Time `json:"at"`
}

func (e Event) String() string {
	if e.Err != "" {
		return fmt.Sprintf("%s ip=%s %s: %s", e.Kind, e.IP, e.Text, e.Err)
	}
	return fmt.Sprintf("%s ip=%s %s", e.Kind, e.IP, e.Text)
}

// Publisher is the narrow view the network components depend on.
type Publisher interface {
	Publish(Event)
}

type Bus struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
	now    func() time.Time
}

func NewBus() *Bus {
	return &Bus{
		subs: make(map[*Subscription]struct{}),
		now:  time.Now,
	}
}

// Subscribe registers a new consumer. Events published before Subscribe
// returns are not delivered to it.
func (b *Bus) Subscribe(name string) *Subscription {
	sub := newSubscription(b, name)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.shutdown()
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Publish stamps ev (when At is zero) and appends it to every subscriber queue.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = b.now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for sub := range b.subs {
		sub.push(ev)
	}
}

// Log publishes a KindLog event. Convenience for the one-log-event-per-rejection rule.
func (b *Bus) Log(ip, text string) {
	b.Publish(Event{Kind: KindLog, IP: ip, Text: text})
}

// Close shuts down every subscription. Later Publish calls are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[*Subscription]struct{})
	b.mu.Unlock()
	for sub := range subs {
		sub.shutdown()
	}
}

// Subscribers reports the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, sub)
}

// Subscription is one consumer's ordered view of the bus.
type Subscription struct {
	name string
	bus  *Bus

	mu      sync.Mutex
	queue   []Event
	wake    chan struct{}
	done    chan struct{}
	once    sync.Once
	out     chan Event
	stopped chan struct{}
}

func newSubscription(b *Bus, name string) *Subscription {
	sub := &Subscription{
		name:    name,
		bus:     b,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		out:     make(chan Event),
		stopped: make(chan struct{}),
	}
	go sub.pump()
	return sub
}

func (s *Subscription) Name() string {
	return s.name
}

// C returns the delivery channel. It is closed after Close.
func (s *Subscription) C() <-chan Event {
	return s.out
}

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.bus.remove(s)
	s.shutdown()
}

// Pending reports how many events are queued but not yet received.
func (s *Subscription) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Subscription) shutdown() {
	s.once.Do(func() {
		close(s.done)
	})
	<-s.stopped
}

func (s *Subscription) push(ev Event) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	defer close(s.stopped)
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		ev := s.queue[0]
		s.queue[0] = Event{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- ev:
		case <-s.done:
			s.mu.Lock()
			dropped := len(s.queue) + 1
			s.queue = nil
			s.mu.Unlock()
			log.Debug().Str("subscriber", s.name).Int("dropped", dropped).Msg("events.Subscription.pump closed")
			return
		}
	}
}
