package registry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"pinmap/internal/domain/layer"
	"pinmap/internal/domain/pin"
)

// UnknownCategoryLabel labels categories without a usable type
const UnknownCategoryLabel = "Neznama"

// EventKind names a registry change
type EventKind string

const (
	EventCategoriesChanged EventKind = "categories"
	EventLayersChanged     EventKind = "layers"
)

// Event tells subscribers that filter or layer choices must be rebuilt
type Event struct {
	Kind EventKind `json:"kind"`
	Key  string    `json:"key"`
	Time time.Time `json:"time"`
}

// Publisher forwards registry events to an event bus. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Config contains configuration for the registry
type Config struct {
	// EventsTopic prefixes published subjects; empty disables publishing
	EventsTopic string
}

// Registry holds categories, layers and the user's selections
type Registry struct {
	categories    map[string]pin.Category
	categoryOrder []string
	filters       map[string]bool
	layers        map[string]layer.Layer
	groups        map[string]struct{}
	selected      map[string]bool
	handlers      []func(Event)
	publisher     Publisher
	config        Config
	logger        *slog.Logger
	mu            sync.RWMutex
}

// New creates an empty registry
func New(publisher Publisher, config Config, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		categories: make(map[string]pin.Category),
		filters:    make(map[string]bool),
		layers:     make(map[string]layer.Layer),
		groups:     make(map[string]struct{}),
		selected:   make(map[string]bool),
		publisher:  publisher,
		config:     config,
		logger:     logger,
	}
}

// RegisterHandler registers a callback for registry changes. Handlers run
// after the registry lock is released and may call back into the registry.
func (r *Registry) RegisterHandler(handler func(Event)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers = append(r.handlers, handler)
}

// RegisterDefaults seeds the built-in categories and layers and selects the
// interactive layer
func (r *Registry) RegisterDefaults() {
	r.mu.Lock()
	for _, c := range pin.DefaultCategories() {
		r.putCategory(c)
	}
	r.selected = map[string]bool{layer.FeelingsKey: true}
	for _, l := range layer.ClientDefaults() {
		r.putLayer(l)
	}
	r.mu.Unlock()

	r.emit(
		Event{Kind: EventCategoriesChanged, Time: time.Now()},
		Event{Kind: EventLayersChanged, Time: time.Now()},
	)
}

// putCategory stores a category and activates its filter; caller holds the lock
func (r *Registry) putCategory(c pin.Category) {
	if _, exists := r.categories[c.Type]; !exists {
		r.categoryOrder = append(r.categoryOrder, c.Type)
	}
	r.categories[c.Type] = c
	r.filters[c.Type] = true
}

// putLayer stores a layer and its backing group; caller holds the lock
func (r *Registry) putLayer(l layer.Layer) {
	r.layers[l.Key] = l
	r.groups[l.Key] = struct{}{}
}

// EnsureCategory returns the category for typ, registering a neutral one
// with a derived label if it is unknown. New categories start filtered in.
func (r *Registry) EnsureCategory(typ string) pin.Category {
	r.mu.RLock()
	c, ok := r.categories[typ]
	r.mu.RUnlock()
	if ok {
		return c
	}

	r.mu.Lock()
	if c, ok = r.categories[typ]; ok {
		r.mu.Unlock()
		return c
	}
	c = pin.Category{
		Type:  typ,
		Label: PrettifyLabel(typ),
		Tone:  pin.ToneNeutral,
	}
	r.putCategory(c)
	r.mu.Unlock()

	r.logger.Debug("Registered category", "type", typ, "label", c.Label)
	r.emit(Event{Kind: EventCategoriesChanged, Key: typ, Time: time.Now()})

	return c
}

// Category returns a registered category
func (r *Registry) Category(typ string) (pin.Category, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.categories[typ]
	return c, ok
}

// Categories returns all categories in registration order
func (r *Registry) Categories() []pin.Category {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]pin.Category, 0, len(r.categoryOrder))
	for _, typ := range r.categoryOrder {
		out = append(out, r.categories[typ])
	}
	return out
}

// SetFilter activates or deactivates a category filter. It reports whether
// the selection changed.
func (r *Registry) SetFilter(typ string, active bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.filters[typ] == active {
		return false
	}
	if active {
		r.filters[typ] = true
	} else {
		delete(r.filters, typ)
	}
	return true
}

// FilterActive reports whether pins of category typ are shown
func (r *Registry) FilterActive(typ string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.filters[typ]
}

// RegisterLayer merges a descriptor onto the layer with the same key. Absent
// or blank fields fall back to defaults. Descriptors without a key are ignored.
func (r *Registry) RegisterLayer(d layer.Descriptor) (layer.Layer, bool) {
	if strings.TrimSpace(d.Key) == "" {
		return layer.Layer{}, false
	}

	l := d.Resolve()

	r.mu.Lock()
	r.putLayer(l)
	r.mu.Unlock()

	r.emit(Event{Kind: EventLayersChanged, Key: l.Key, Time: time.Now()})

	return l, true
}

// Layer returns a registered layer
func (r *Registry) Layer(key string) (layer.Layer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.layers[key]
	return l, ok
}

// HasGroup reports whether a backing group exists for key
func (r *Registry) HasGroup(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.groups[key]
	return ok
}

// Layers returns the enabled layers ordered by sort order, then key
func (r *Registry) Layers() []layer.Layer {
	r.mu.RLock()
	out := make([]layer.Layer, 0, len(r.layers))
	for _, l := range r.layers {
		if l.IsEnabled {
			out = append(out, l)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// GroupKeys returns the keys of every backing group, sorted
func (r *Registry) GroupKeys() []string {
	r.mu.RLock()
	keys := make([]string, 0, len(r.groups))
	for key := range r.groups {
		keys = append(keys, key)
	}
	r.mu.RUnlock()

	sort.Strings(keys)
	return keys
}

// SetLayerSelected toggles a layer. It reports whether the selection changed.
func (r *Registry) SetLayerSelected(key string, selected bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.selected[key] == selected {
		return false
	}
	if selected {
		r.selected[key] = true
	} else {
		delete(r.selected, key)
	}
	return true
}

// LayerSelected reports whether the layer is toggled on
func (r *Registry) LayerSelected(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.selected[key]
}

// PruneSelectedLayers deselects layers that are unknown or disabled and
// returns the removed keys
func (r *Registry) PruneSelectedLayers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for key := range r.selected {
		if l, ok := r.layers[key]; !ok || !l.IsEnabled {
			delete(r.selected, key)
			removed = append(removed, key)
		}
	}
	sort.Strings(removed)
	return removed
}

// emit delivers events to handlers and the event bus; never call with the lock held
func (r *Registry) emit(events ...Event) {
	r.mu.RLock()
	handlers := make([]func(Event), len(r.handlers))
	copy(handlers, r.handlers)
	r.mu.RUnlock()

	for _, event := range events {
		for _, handler := range handlers {
			handler(event)
		}

		if err := r.publishEvent(event); err != nil {
			r.logger.Warn("Error publishing registry event", "kind", event.Kind, "error", err)
		}
	}
}

// publishEvent publishes a registry event to the event bus
func (r *Registry) publishEvent(event Event) error {
	if r.publisher == nil || r.config.EventsTopic == "" {
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("error marshaling event: %w", err)
	}

	subject := fmt.Sprintf("%s.registry.%s", r.config.EventsTopic, event.Kind)
	if err := r.publisher.Publish(subject, data); err != nil {
		return fmt.Errorf("error publishing event: %w", err)
	}

	return nil
}

var separators = regexp.MustCompile(`[_-]+`)

// PrettifyLabel derives a display label from a category type: runs of
// underscores and dashes become spaces and the first letter is capitalized.
func PrettifyLabel(typ string) string {
	if strings.TrimSpace(typ) == "" {
		return UnknownCategoryLabel
	}

	normalized := strings.TrimSpace(separators.ReplaceAllString(typ, " "))
	if normalized == "" {
		return ""
	}

	first, size := utf8.DecodeRuneInString(normalized)
	return string(unicode.ToUpper(first)) + normalized[size:]
}
