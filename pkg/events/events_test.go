package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrokerDeliversToSubscribers(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub1 := broker.Subscribe()
	sub2 := broker.Subscribe()

	Emit(broker, EventTokenRejected, "token replayed", map[string]string{"code": "TOKEN_REPLAYED"})

	for _, sub := range []Subscriber{sub1, sub2} {
		select {
		case ev := <-sub:
			assert.Equal(t, EventTokenRejected, ev.Type)
			assert.Equal(t, "token replayed", ev.Message)
			assert.Equal(t, "TOKEN_REPLAYED", ev.Metadata["code"])
			assert.NotEmpty(t, ev.ID)
			assert.False(t, ev.Timestamp.IsZero())
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestEmitNilPublisher(t *testing.T) {
	assert.NotPanics(t, func() {
		Emit(nil, EventBypassActive, "ignored", nil)
	})
}

func TestPublishDoesNotBlockWhenBufferFull(t *testing.T) {
	broker := NewBroker() // not started, nothing drains eventCh

	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			broker.Publish(&Event{Type: EventPolicyDenied})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full buffer")
	}

	// The queue holds 100, the rest is counted
	assert.Equal(t, uint64(400), broker.Dropped())
}

func TestSlowSubscriberDropsAreCounted(t *testing.T) {
	broker := NewBroker()
	sub := broker.Subscribe() // never read: buffer of 50
	broker.Start()
	defer broker.Stop()

	for i := 0; i < 60; i++ {
		broker.Publish(&Event{Type: EventBinaryRejected})
	}

	assert.Eventually(t, func() bool {
		return broker.Dropped() == 10
	}, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, sub, 50)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	broker := NewBroker()
	sub := broker.Subscribe()

	broker.Unsubscribe(sub)
	_, ok := <-sub
	require.False(t, ok)

	// Second unsubscribe must not panic on a closed channel
	assert.NotPanics(t, func() { broker.Unsubscribe(sub) })
}

func TestStopIsIdempotent(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	broker.Stop()
	assert.NotPanics(t, broker.Stop)
}
