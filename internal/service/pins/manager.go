// internal/service/pins/manager.go

package pins

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"pinmap/internal/domain/layer"
	"pinmap/internal/domain/pin"
	"pinmap/internal/domain/user"
	"pinmap/internal/metrics"
)

// MaxSourceIPLength caps the stored client address
const MaxSourceIPLength = 64

// PointStore defines the storage interface for pins
type PointStore interface {
	// ListPoints returns the points of a layer, oldest first
	ListPoints(ctx context.Context, layerKey string) ([]pin.Record, error)

	// GetPoint retrieves one point; pin.ErrNotFound when absent
	GetPoint(ctx context.Context, layerKey, id string) (*pin.Record, error)

	// InsertPoint stores a new point; pin.ErrConflict for a taken id
	InsertPoint(ctx context.Context, rec pin.Record) (*pin.Record, error)

	// UpdateComment replaces the comment of a point
	UpdateComment(ctx context.Context, layerKey, id, comment string) (*pin.Record, error)

	// DeletePoint removes a point and reports whether it existed
	DeletePoint(ctx context.Context, layerKey, id string) (bool, error)

	// DeleteLayerPoints removes every point of a layer
	DeleteLayerPoints(ctx context.Context, layerKey string) (int64, error)
}

// Publisher forwards pin events to the event bus. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// ManagerConfig contains configuration for the pin manager
type ManagerConfig struct {
	// EventsTopic prefixes published subjects; empty disables publishing
	EventsTopic string

	// MaxCommentLength caps stored comments
	MaxCommentLength int
}

// Manager implements the pin.Manager interface
type Manager struct {
	store         PointStore
	eventBus      Publisher
	config        ManagerConfig
	eventHandlers []func(pin.Event)
	logger        *slog.Logger
	mu            sync.RWMutex
}

// NewManager creates a new pin manager. eventBus may be nil.
func NewManager(store PointStore, eventBus Publisher, config ManagerConfig, logger *slog.Logger) *Manager {
	if config.MaxCommentLength <= 0 {
		config.MaxCommentLength = pin.MaxCommentLength
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		store:    store,
		eventBus: eventBus,
		config:   config,
		logger:   logger,
	}
}

// RegisterEventHandler registers a callback for pin changes
func (m *Manager) RegisterEventHandler(handler func(pin.Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.eventHandlers = append(m.eventHandlers, handler)
}

// ListPins returns all pins, oldest first, with permissions for viewer
func (m *Manager) ListPins(ctx context.Context, viewer *user.User) ([]pin.Pin, error) {
	records, err := m.store.ListPoints(ctx, layer.FeelingsKey)
	if err != nil {
		return nil, fmt.Errorf("error listing pins: %w", err)
	}

	pins := make([]pin.Pin, 0, len(records))
	for _, rec := range records {
		pins = append(pins, rec.Pin(viewer))
	}
	return pins, nil
}

// CreatePin stores a new pin owned by viewer
func (m *Manager) CreatePin(ctx context.Context, viewer *user.User, draft pin.Draft, sourceIP string) (*pin.Pin, error) {
	if viewer == nil {
		return nil, user.ErrUnauthorized
	}

	draft = draft.Normalize()
	draft.Comment = pin.Truncate(draft.Comment, m.config.MaxCommentLength)
	switch {
	case draft.ID == "":
		return nil, fmt.Errorf("%w: missing id", pin.ErrInvalid)
	case draft.Category == "":
		return nil, fmt.Errorf("%w: missing type", pin.ErrInvalid)
	case math.IsNaN(draft.Lat) || math.IsInf(draft.Lat, 0) || math.IsNaN(draft.Lng) || math.IsInf(draft.Lng, 0):
		return nil, fmt.Errorf("%w: non-finite position", pin.ErrInvalid)
	}

	rec := pin.Record{
		ID:              draft.ID,
		LayerKey:        layer.FeelingsKey,
		Lat:             draft.Lat,
		Lng:             draft.Lng,
		Type:            draft.Category,
		Comment:         draft.Comment,
		CreatedByUserID: viewer.ID,
		CreatedByName:   pin.Truncate(viewer.Name, user.MaxNameLength),
	}
	if ip := pin.Truncate(strings.TrimSpace(sourceIP), MaxSourceIPLength); ip != "" {
		rec.CreatedFromIP = &ip
	}

	stored, err := m.store.InsertPoint(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("error creating pin: %w", err)
	}

	metrics.PinMutationsTotal.WithLabelValues("create").Inc()
	m.dispatch(pin.Event{Type: pin.EventCreated, PinID: stored.ID, Count: 1})

	p := stored.Pin(viewer)
	return &p, nil
}

// UpdateComment replaces the comment of a pin viewer may edit
func (m *Manager) UpdateComment(ctx context.Context, viewer *user.User, id, comment string) (*pin.Pin, error) {
	if viewer == nil {
		return nil, user.ErrUnauthorized
	}

	rec, err := m.store.GetPoint(ctx, layer.FeelingsKey, id)
	if err != nil {
		return nil, fmt.Errorf("error getting pin: %w", err)
	}
	if !viewer.CanEdit(rec.CreatedByUserID) {
		return nil, user.ErrForbidden
	}

	updated, err := m.store.UpdateComment(ctx, layer.FeelingsKey, id, pin.Truncate(comment, m.config.MaxCommentLength))
	if err != nil {
		return nil, fmt.Errorf("error updating pin: %w", err)
	}

	metrics.PinMutationsTotal.WithLabelValues("update").Inc()
	m.dispatch(pin.Event{Type: pin.EventUpdated, PinID: id, Count: 1})

	p := updated.Pin(viewer)
	return &p, nil
}

// DeletePin removes a pin viewer may delete
func (m *Manager) DeletePin(ctx context.Context, viewer *user.User, id string) error {
	if viewer == nil {
		return user.ErrUnauthorized
	}

	rec, err := m.store.GetPoint(ctx, layer.FeelingsKey, id)
	if err != nil {
		return fmt.Errorf("error getting pin: %w", err)
	}
	if !viewer.CanDelete(rec.CreatedByUserID) {
		return user.ErrForbidden
	}

	deleted, err := m.store.DeletePoint(ctx, layer.FeelingsKey, id)
	if err != nil {
		return fmt.Errorf("error deleting pin: %w", err)
	}
	if !deleted {
		return pin.ErrNotFound
	}

	metrics.PinMutationsTotal.WithLabelValues("delete").Inc()
	m.dispatch(pin.Event{Type: pin.EventDeleted, PinID: id, Count: 1})
	return nil
}

// DeleteAll removes every pin; administrators only
func (m *Manager) DeleteAll(ctx context.Context, viewer *user.User) (int64, error) {
	if !viewer.IsAdmin() {
		return 0, user.ErrForbidden
	}

	n, err := m.store.DeleteLayerPoints(ctx, layer.FeelingsKey)
	if err != nil {
		return 0, fmt.Errorf("error deleting pins: %w", err)
	}

	metrics.PinMutationsTotal.WithLabelValues("clear").Inc()
	m.dispatch(pin.Event{Type: pin.EventCleared, Count: n})
	return n, nil
}

// dispatch publishes an event and calls the registered handlers
func (m *Manager) dispatch(event pin.Event) {
	event.Time = time.Now().UTC()

	if err := m.publishEvent(event); err != nil {
		// the change is stored; only the notification is lost
		m.logger.Error("Error publishing pin event", "type", event.Type, "error", err)
	}

	m.mu.RLock()
	handlers := make([]func(pin.Event), len(m.eventHandlers))
	copy(handlers, m.eventHandlers)
	m.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}

// publishEvent publishes a pin event to <topic>.<type>
func (m *Manager) publishEvent(event pin.Event) error {
	if m.eventBus == nil || m.config.EventsTopic == "" {
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("error marshaling pin event: %w", err)
	}

	topic := fmt.Sprintf("%s.%s", m.config.EventsTopic, event.Type)
	return m.eventBus.Publish(topic, data)
}

var _ pin.Manager = (*Manager)(nil)
