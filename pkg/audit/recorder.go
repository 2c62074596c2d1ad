package audit

import (
	"sync"
	"time"

	"github.com/cuemby/uiwarden/pkg/events"
	"github.com/cuemby/uiwarden/pkg/storage"
	"github.com/cuemby/uiwarden/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Recorder writes security events to the audit store.
// Used directly it is a synchronous events.Publisher; Start attaches it to a
// Broker instead.
type Recorder struct {
	store  storage.Store
	logger zerolog.Logger

	mu      sync.Mutex
	broker  *events.Broker
	sub     events.Subscriber
	done    chan struct{}
	dropped int
}

// NewRecorder creates a recorder writing to store
func NewRecorder(store storage.Store, logger zerolog.Logger) *Recorder {
	return &Recorder{
		store:  store,
		logger: logger,
	}
}

// ToSecurityEvent converts a broker event into its stored form
func ToSecurityEvent(e *events.Event) *types.SecurityEvent {
	id := e.ID
	if id == "" {
		id = uuid.NewString()
	}
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	return &types.SecurityEvent{
		ID:        id,
		Type:      string(e.Type),
		Timestamp: ts.UTC(),
		Message:   e.Message,
		Metadata:  e.Metadata,
	}
}

// Publish stores the event immediately. Storage errors are logged, never
// returned, so auditing cannot fail a security check.
func (r *Recorder) Publish(e *events.Event) {
	r.record(e)
}

func (r *Recorder) record(e *events.Event) {
	se := ToSecurityEvent(e)
	if err := r.store.SaveEvent(se); err != nil {
		r.mu.Lock()
		r.dropped++
		r.mu.Unlock()
		r.logger.Error().Err(err).Str("event", se.Type).Msg("Failed to record audit event")
	}
}

// Dropped returns how many events failed to persist. Events the broker
// discarded before delivery are counted by Broker.Dropped.
func (r *Recorder) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Start subscribes to broker and records events until Stop
func (r *Recorder) Start(broker *events.Broker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sub != nil {
		return
	}

	r.broker = broker
	r.sub = broker.Subscribe()
	r.done = make(chan struct{})

	go func(sub events.Subscriber, done chan struct{}) {
		defer close(done)
		for e := range sub {
			r.record(e)
		}
	}(r.sub, r.done)
}

// Stop unsubscribes and waits until every delivered event is written
func (r *Recorder) Stop() {
	r.mu.Lock()
	broker, sub, done := r.broker, r.sub, r.done
	r.broker, r.sub, r.done = nil, nil, nil
	r.mu.Unlock()

	if sub == nil {
		return
	}
	broker.Unsubscribe(sub)
	<-done
}
