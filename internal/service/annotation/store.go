package annotation

import (
	"log/slog"
	"sort"
	"sync"

	"pinmap/internal/domain/geo"
	"pinmap/internal/domain/layer"
	"pinmap/internal/domain/mapview"
	"pinmap/internal/domain/pin"
)

// Registry is the part of the category registry the store depends on
type Registry interface {
	EnsureCategory(typ string) pin.Category
	FilterActive(typ string) bool
}

// Autosaver schedules and cancels deferred comment saves
type Autosaver interface {
	Schedule(id, value string) bool
	Cancel(id string) bool
	CancelAll() int
}

// Config contains configuration for the annotation store
type Config struct {
	// LayerKey is the renderer group that holds pin markers
	LayerKey string

	// MarkerStyle picks a marker's look; DefaultMarkerStyle when nil
	MarkerStyle func(p pin.Pin) mapview.MarkerStyle

	// DetailView builds popup content; no detail view is bound when nil
	DetailView func(p pin.Pin) mapview.DetailView
}

type entry struct {
	pin      pin.Pin
	rendered bool
}

// Store is the reconciled client-side pin cache. It is the single writer of
// cached pins and keeps the renderer's markers in line with the filters.
type Store struct {
	entries  map[string]*entry
	registry Registry
	renderer mapview.Renderer
	autosave Autosaver
	config   Config
	logger   *slog.Logger
	mu       sync.RWMutex
}

// NewStore creates an empty store
func NewStore(registry Registry, renderer mapview.Renderer, autosave Autosaver, config Config, logger *slog.Logger) *Store {
	if config.LayerKey == "" {
		config.LayerKey = layer.FeelingsKey
	}
	if config.MarkerStyle == nil {
		config.MarkerStyle = DefaultMarkerStyle
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		entries:  make(map[string]*entry),
		registry: registry,
		renderer: renderer,
		autosave: autosave,
		config:   config,
		logger:   logger,
	}
}

// DefaultMarkerStyle colors markers by built-in category
func DefaultMarkerStyle(p pin.Pin) mapview.MarkerStyle {
	style := mapview.MarkerStyle{Icon: mapview.IconBlue, Own: p.IsOwner}
	switch p.Category {
	case pin.CategoryGood:
		style.Icon = mapview.IconGreen
	case pin.CategoryBad:
		style.Icon = mapview.IconRed
	case pin.CategoryChange:
		style.Icon = mapview.IconGold
	}
	return style
}

// Upsert adds a pin that is not yet cached. Malformed pins and known ids are
// rejected. The pin's category is registered before the pin is shown.
func (s *Store) Upsert(p pin.Pin) bool {
	if err := p.Validate(); err != nil {
		s.logger.Debug("Dropping malformed pin", "pin_id", p.ID, "error", err)
		return false
	}

	s.mu.RLock()
	_, exists := s.entries[p.ID]
	s.mu.RUnlock()
	if exists {
		return false
	}

	s.registry.EnsureCategory(p.Category)

	s.mu.Lock()
	if _, exists := s.entries[p.ID]; exists {
		s.mu.Unlock()
		return false
	}

	e := &entry{pin: p}
	s.entries[p.ID] = e
	if s.Visible(p) {
		s.show(e)
	}
	s.mu.Unlock()

	// the builder takes the read lock when invoked
	if s.config.DetailView != nil {
		id := p.ID
		s.renderer.BindDetailView(id, func() mapview.DetailView {
			current, _ := s.Get(id)
			return s.config.DetailView(current)
		})
	}

	return true
}

// SetComment changes the cached comment of an editable pin and schedules
// its save. Unknown or read-only pins are left alone.
func (s *Store) SetComment(id, text string) bool {
	text = pin.Truncate(text, pin.MaxCommentLength)

	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok || !e.pin.CanEdit {
		s.mu.Unlock()
		return false
	}
	e.pin.Comment = text
	s.mu.Unlock()

	if s.autosave != nil {
		s.autosave.Schedule(id, text)
	}
	return true
}

// Remove drops a pin, its marker and any pending save
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	e, ok := s.entries[id]
	if ok {
		s.hide(e)
		delete(s.entries, id)
	}
	s.mu.Unlock()

	if s.autosave != nil {
		s.autosave.Cancel(id)
	}
	return ok
}

// Clear drops every pin, every marker and every pending save
func (s *Store) Clear() {
	s.mu.Lock()
	for _, e := range s.entries {
		s.hide(e)
	}
	s.entries = make(map[string]*entry)
	s.mu.Unlock()

	if s.autosave != nil {
		s.autosave.CancelAll()
	}
}

// Visible reports whether p passes the active category filters
func (s *Store) Visible(p pin.Pin) bool {
	return s.registry.FilterActive(p.Category)
}

// Reconcile shows pins that became visible and hides pins that became
// hidden. Pins already in the right state are not touched.
func (s *Store) Reconcile() (shown, hidden int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.sortedLocked() {
		want := s.Visible(e.pin)
		switch {
		case want && !e.rendered:
			s.show(e)
			shown++
		case !want && e.rendered:
			s.hide(e)
			hidden++
		}
	}
	return shown, hidden
}

// ApplySaved stores the server's canonical comment and edit permission. It
// reports false, and changes nothing, when the pin is gone.
func (s *Store) ApplySaved(id string, update pin.CommentUpdate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return false
	}
	e.pin.Comment = update.Comment
	e.pin.CanEdit = update.CanEdit
	return true
}

// Get returns a copy of a cached pin
func (s *Store) Get(id string) (pin.Pin, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return pin.Pin{}, false
	}
	return e.pin, true
}

// Rendered reports whether the pin currently has a marker
func (s *Store) Rendered(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	return ok && e.rendered
}

// Len returns the number of cached pins
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}

// Snapshot returns all pins ordered by creation time, then id
func (s *Store) Snapshot() []pin.Pin {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sorted := s.sortedLocked()
	out := make([]pin.Pin, len(sorted))
	for i, e := range sorted {
		out[i] = e.pin
	}
	return out
}

// CategoryCounts counts pins per category regardless of filters
func (s *Store) CategoryCounts() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, e := range s.entries {
		counts[e.pin.Category]++
	}
	return counts
}

func (s *Store) sortedLocked() []*entry {
	out := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].pin, out[j].pin
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out
}

// show and hide are called with the lock held
func (s *Store) show(e *entry) {
	s.renderer.AddMarker(s.config.LayerKey, e.pin.ID,
		geo.LatLng{Lat: e.pin.Lat, Lng: e.pin.Lng}, s.config.MarkerStyle(e.pin))
	e.rendered = true
}

func (s *Store) hide(e *entry) {
	if !e.rendered {
		return
	}
	s.renderer.RemoveMarker(s.config.LayerKey, e.pin.ID)
	e.rendered = false
}
