package pin

import (
	"context"
	"time"

	"pinmap/internal/domain/user"
)

// Manager defines the authoritative pin operations. Every call is made on
// behalf of a viewer, which may be nil for anonymous requests.
type Manager interface {
	// ListPins returns all pins, oldest first, with permissions for viewer
	ListPins(ctx context.Context, viewer *user.User) ([]Pin, error)

	// CreatePin stores a new pin owned by viewer
	CreatePin(ctx context.Context, viewer *user.User, draft Draft, sourceIP string) (*Pin, error)

	// UpdateComment replaces the comment of a pin viewer may edit
	UpdateComment(ctx context.Context, viewer *user.User, id, comment string) (*Pin, error)

	// DeletePin removes a pin viewer may delete
	DeletePin(ctx context.Context, viewer *user.User, id string) error

	// DeleteAll removes every pin; administrators only
	DeleteAll(ctx context.Context, viewer *user.User) (int64, error)
}

// EventType names a pin change published on the event bus
type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventDeleted EventType = "deleted"
	EventCleared EventType = "cleared"
)

// Known reports whether t is one of the pin change events
func (t EventType) Known() bool {
	switch t {
	case EventCreated, EventUpdated, EventDeleted, EventCleared:
		return true
	}
	return false
}

// Event is the payload published for every pin change
type Event struct {
	Type  EventType `json:"type"`
	PinID string    `json:"pin_id,omitempty"`
	Count int64     `json:"count,omitempty"`
	Time  time.Time `json:"time"`
}
