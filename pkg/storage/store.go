package storage

import (
	"time"

	"github.com/cuemby/uiwarden/pkg/types"
)

// Store defines the interface for the security audit journal
type Store interface {
	// Events
	SaveEvent(event *types.SecurityEvent) error
	GetEvent(id string) (*types.SecurityEvent, error)
	ListEvents(filter EventFilter) ([]*types.SecurityEvent, error)
	CountEvents() (int, error)
	PruneEvents(before time.Time) (int, error)

	// Utility
	Close() error
}

// EventFilter narrows ListEvents. Zero values match everything.
type EventFilter struct {
	Type  string
	Since time.Time
	Limit int // keep only the newest Limit matches
}

func (f EventFilter) matches(e *types.SecurityEvent) bool {
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	return true
}
