package storage

import (
	"fmt"
	"testing"
	"time"

	"github.com/cuemby/uiwarden/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func event(id, typ string, ts time.Time) *types.SecurityEvent {
	return &types.SecurityEvent{
		ID:        id,
		Type:      typ,
		Timestamp: ts,
		Message:   "test " + typ,
		Metadata:  map[string]string{"k": "v"},
	}
}

func TestSaveAndGetEvent(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, store.SaveEvent(event("e1", "config.verified", now)))

	got, err := store.GetEvent("e1")
	require.NoError(t, err)
	assert.Equal(t, "config.verified", got.Type)
	assert.True(t, now.Equal(got.Timestamp))
	assert.Equal(t, "v", got.Metadata["k"])

	_, err = store.GetEvent("missing")
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestSaveEventValidation(t *testing.T) {
	store := newTestStore(t)

	assert.Error(t, store.SaveEvent(&types.SecurityEvent{Type: "x"}))

	require.NoError(t, store.SaveEvent(event("dup", "x", time.Now())))
	assert.Error(t, store.SaveEvent(event("dup", "x", time.Now())))
}

func TestListEvents(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 6; i++ {
		typ := "token.rejected"
		if i%2 == 0 {
			typ = "policy.denied"
		}
		require.NoError(t, store.SaveEvent(event(fmt.Sprintf("e%d", i), typ, base.Add(time.Duration(i)*time.Minute))))
	}

	tests := []struct {
		name   string
		filter EventFilter
		want   []string
	}{
		{name: "all in insertion order", filter: EventFilter{}, want: []string{"e0", "e1", "e2", "e3", "e4", "e5"}},
		{name: "by type", filter: EventFilter{Type: "policy.denied"}, want: []string{"e0", "e2", "e4"}},
		{name: "since", filter: EventFilter{Since: base.Add(4 * time.Minute)}, want: []string{"e4", "e5"}},
		{name: "limit keeps newest", filter: EventFilter{Limit: 2}, want: []string{"e4", "e5"}},
		{name: "type and limit", filter: EventFilter{Type: "token.rejected", Limit: 2}, want: []string{"e3", "e5"}},
		{name: "no match", filter: EventFilter{Type: "startup.blocked"}, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := store.ListEvents(tt.filter)
			require.NoError(t, err)

			var ids []string
			for _, e := range events {
				ids = append(ids, e.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestPruneEvents(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		require.NoError(t, store.SaveEvent(event(fmt.Sprintf("e%d", i), "x", base.Add(time.Duration(i)*time.Hour))))
	}

	pruned, err := store.PruneEvents(base.Add(2 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, pruned)

	n, err := store.CountEvents()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = store.GetEvent("e0")
	assert.ErrorIs(t, err, ErrEventNotFound)

	// A pruned ID can be recorded again
	require.NoError(t, store.SaveEvent(event("e0", "x", base.Add(5*time.Hour))))
}

func TestStoreReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := NewBoltStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.SaveEvent(event("persist", "key.initialized", time.Now())))
	require.NoError(t, store.Close())

	store, err = NewBoltStore(dir)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.GetEvent("persist")
	require.NoError(t, err)
	assert.Equal(t, "key.initialized", got.Type)
}
