package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/uiwarden/pkg/metrics"
	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventKeysInitialized EventType = "key.initialized"
	EventConfigSigned    EventType = "config.signed"
	EventConfigVerified  EventType = "config.verified"
	EventConfigRejected  EventType = "config.rejected"
	EventBinaryVerified  EventType = "binary.verified"
	EventBinaryRejected  EventType = "binary.rejected"
	EventTokenRejected   EventType = "token.rejected"
	EventPolicyDenied    EventType = "policy.denied"
	EventBypassActive    EventType = "bypass.active"
	EventStartupBlocked  EventType = "startup.blocked"
	EventStartupReady    EventType = "startup.ready"
)

// Event represents a security event
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Message   string
	Metadata  map[string]string
}

// Publisher accepts events. Broker implements it.
type Publisher interface {
	Publish(event *Event)
}

// Emit publishes an event through p. A nil publisher is a no-op.
func Emit(p Publisher, eventType EventType, message string, metadata map[string]string) {
	if p == nil {
		return
	}
	p.Publish(&Event{
		Type:     eventType,
		Message:  message,
		Metadata: metadata,
	})
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// Broker manages event subscriptions and distribution
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
	stopOnce    sync.Once
	dropped     atomic.Uint64
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100), // Buffer up to 100 events
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker
func (b *Broker) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
	})
}

// Subscribe creates a new subscription and returns a channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50) // Buffer per subscriber
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub]; !ok {
		return
	}
	delete(b.subscribers, sub)
	close(sub)
}

// Publish publishes an event to all subscribers.
// Security checks publish on their hot path, so a full buffer drops the event
// instead of blocking the check.
func (b *Broker) Publish(event *Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	default:
		b.drop("queue")
	}
}

func (b *Broker) drop(stage string) {
	b.dropped.Add(1)
	metrics.EventsDropped.WithLabelValues(stage).Inc()
}

// Dropped returns how many events were discarded on a full queue or a full
// subscriber buffer
func (b *Broker) Dropped() uint64 {
	return b.dropped.Load()
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			b.drop("subscriber")
		}
	}
}
