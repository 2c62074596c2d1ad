package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/uiwarden/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketEvents  = []byte("events")   // sequence -> event JSON
	bucketEventID = []byte("event_ids") // event ID -> sequence
)

// DatabaseFile is the audit database file name inside the data directory
const DatabaseFile = "audit.db"

// ErrEventNotFound is returned by GetEvent
var ErrEventNotFound = errors.New("event not found")

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, DatabaseFile)

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketEvents, bucketEventID} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

// SaveEvent appends an event. Keys are bucket sequence numbers, so a cursor
// walks events in insertion order.
func (s *BoltStore) SaveEvent(event *types.SecurityEvent) error {
	if event.ID == "" {
		return fmt.Errorf("event ID is required")
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		ids := tx.Bucket(bucketEventID)
		if ids.Get([]byte(event.ID)) != nil {
			return fmt.Errorf("event already recorded: %s", event.ID)
		}

		b := tx.Bucket(bucketEvents)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}

		data, err := json.Marshal(event)
		if err != nil {
			return err
		}

		key := seqKey(seq)
		if err := b.Put(key, data); err != nil {
			return err
		}
		return ids.Put([]byte(event.ID), key)
	})
}

func (s *BoltStore) GetEvent(id string) (*types.SecurityEvent, error) {
	var event types.SecurityEvent
	err := s.db.View(func(tx *bolt.Tx) error {
		key := tx.Bucket(bucketEventID).Get([]byte(id))
		if key == nil {
			return fmt.Errorf("%w: %s", ErrEventNotFound, id)
		}
		data := tx.Bucket(bucketEvents).Get(key)
		if data == nil {
			return fmt.Errorf("%w: %s", ErrEventNotFound, id)
		}
		return json.Unmarshal(data, &event)
	})
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// ListEvents returns matching events oldest first
func (s *BoltStore) ListEvents(filter EventFilter) ([]*types.SecurityEvent, error) {
	var events []*types.SecurityEvent
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketEvents).Cursor()

		// Walk backwards so Limit keeps the newest matches
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var event types.SecurityEvent
			if err := json.Unmarshal(v, &event); err != nil {
				return err
			}
			if !filter.matches(&event) {
				continue
			}
			events = append(events, &event)
			if filter.Limit > 0 && len(events) >= filter.Limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

func (s *BoltStore) CountEvents() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketEvents).Stats().KeyN
		return nil
	})
	return n, err
}

// PruneEvents deletes events recorded before the given time
func (s *BoltStore) PruneEvents(before time.Time) (int, error) {
	var pruned int
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEvents)
		ids := tx.Bucket(bucketEventID)

		var stale [][]byte
		var staleIDs [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var event types.SecurityEvent
			if err := json.Unmarshal(v, &event); err != nil {
				return err
			}
			if event.Timestamp.Before(before) {
				stale = append(stale, append([]byte(nil), k...))
				staleIDs = append(staleIDs, []byte(event.ID))
			}
			return nil
		})
		if err != nil {
			return err
		}

		for i, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
			if err := ids.Delete(staleIDs[i]); err != nil {
				return err
			}
		}
		pruned = len(stale)
		return nil
	})
	return pruned, err
}
