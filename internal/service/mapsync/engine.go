package mapsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"pinmap/internal/domain/geo"
	"pinmap/internal/domain/layer"
	"pinmap/internal/domain/mapview"
	"pinmap/internal/domain/pin"
	"pinmap/internal/metrics"
	"pinmap/internal/service/annotation"
	"pinmap/internal/service/hexgrid"
	"pinmap/internal/service/registry"
)

// Common errors
var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrLayerHidden      = errors.New("feelings layer is hidden")
)

// Config contains configuration for the sync engine
type Config struct {
	// Bounds is the area covered by the hex overlay
	Bounds geo.Bounds

	// RadiusMeters is the overlay cell radius
	RadiusMeters float64

	Autosave annotation.SchedulerConfig
	Registry registry.Config

	// PointFetchLimit caps concurrent static point requests
	PointFetchLimit int
}

// Engine keeps the local pin cache, the layers and the overlay in sync
// with the remote store and drives the renderer
type Engine struct {
	remote   mapview.RemoteStore
	renderer mapview.Renderer
	session  mapview.Session
	notifier mapview.Notifier

	registry *registry.Registry
	store    *annotation.Store
	autosave *annotation.Scheduler

	points   map[string][]layer.Point
	pointsMu sync.RWMutex

	overlay   *hexgrid.Lattice
	overlayMu sync.Mutex

	config Config
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
}

// New creates an engine with the built-in categories and layers registered.
// publisher may be nil.
func New(
	remote mapview.RemoteStore,
	renderer mapview.Renderer,
	session mapview.Session,
	notifier mapview.Notifier,
	publisher registry.Publisher,
	config Config,
	logger *slog.Logger,
) *Engine {
	if config.RadiusMeters <= 0 {
		config.RadiusMeters = hexgrid.DefaultRadiusMeters
	}
	if config.PointFetchLimit <= 0 {
		config.PointFetchLimit = 4
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		remote:   remote,
		renderer: renderer,
		session:  session,
		notifier: notifier,
		points:   make(map[string][]layer.Point),
		config:   config,
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
	}

	e.registry = registry.New(publisher, config.Registry, logger)
	e.registry.RegisterDefaults()

	e.autosave = annotation.NewScheduler(e.saveComment, config.Autosave, logger)
	e.autosave.RegisterSavedHandler(e.handleSaved)
	e.autosave.RegisterFailedHandler(e.handleSaveFailed)

	e.store = annotation.NewStore(e.registry, renderer, e.autosave, annotation.Config{
		LayerKey:   layer.FeelingsKey,
		DetailView: e.pinDetail,
	}, logger)

	return e
}

// Registry returns the category and layer registry
func (e *Engine) Registry() *registry.Registry { return e.registry }

// Store returns the pin cache
func (e *Engine) Store() *annotation.Store { return e.store }

// Initialize resolves the session user, then loads layers and data
func (e *Engine) Initialize(ctx context.Context) error {
	if err := e.session.Refresh(ctx); err != nil {
		e.logger.Warn("Error refreshing session", "error", err)
	}

	e.LoadLayers(ctx)

	return e.Reload(ctx)
}

// Flush saves pending comment edits now
func (e *Engine) Flush(ctx context.Context) error {
	return e.autosave.Flush(ctx)
}

// Close stops autosaving, waiting for in-flight saves until ctx is done
func (e *Engine) Close(ctx context.Context) error {
	err := e.autosave.Stop(ctx)
	e.cancel()
	return err
}

// LoadLayers merges the server's layers into the registry and drops
// selections of layers that are no longer enabled. Failures leave the
// current layers in place.
func (e *Engine) LoadLayers(ctx context.Context) {
	descriptors, err := e.remote.ListLayers(ctx)
	if err != nil {
		e.fail("Error listing layers", err)
		return
	}

	for _, d := range descriptors {
		e.registry.RegisterLayer(d)
	}

	if removed := e.registry.PruneSelectedLayers(); len(removed) > 0 {
		e.logger.Debug("Deselected disabled layers", "keys", removed)
	}
}

// Reload replaces the cache with the server's pins and static points. A
// failure to list pins leaves everything as it was.
func (e *Engine) Reload(ctx context.Context) error {
	pins, err := e.remote.ListAnnotations(ctx)
	if err != nil {
		e.fail("Error listing pins", err)
		return fmt.Errorf("error listing pins: %w", err)
	}

	e.store.Clear()
	dropped := 0
	for _, p := range pins {
		if !e.store.Upsert(p) {
			dropped++
		}
	}
	if dropped > 0 {
		e.logger.Debug("Dropped pins during reload", "count", dropped)
	}

	e.reloadPoints(ctx)

	e.store.Reconcile()
	e.applyLayerVisibility()
	e.RefreshOverlay()

	return nil
}

// reloadPoints fetches the points of every static layer concurrently. A
// layer whose request fails is shown empty.
func (e *Engine) reloadPoints(ctx context.Context) {
	var keys []string
	for _, key := range e.registry.GroupKeys() {
		if key == layer.FeelingsKey || key == layer.HexOverlayKey {
			continue
		}
		keys = append(keys, key)
	}

	results := make([][]layer.Point, len(keys))
	g := new(errgroup.Group)
	g.SetLimit(e.config.PointFetchLimit)
	for i, key := range keys {
		g.Go(func() error {
			points, err := e.remote.ListLayerPoints(ctx, key)
			if err != nil {
				e.logger.Warn("Error listing layer points", "layer", key, "error", err)
				return nil
			}
			results[i] = points
			return nil
		})
	}
	_ = g.Wait()

	e.pointsMu.Lock()
	defer e.pointsMu.Unlock()

	for key, points := range e.points {
		for _, p := range points {
			e.renderer.RemoveMarker(key, pointMarkerID(key, p.ID))
		}
	}
	e.points = make(map[string][]layer.Point, len(keys))

	for i, key := range keys {
		seen := make(map[string]struct{}, len(results[i]))
		kept := make([]layer.Point, 0, len(results[i]))
		for _, p := range results[i] {
			if !validPoint(p) {
				continue
			}
			if _, dup := seen[p.ID]; dup {
				continue
			}
			seen[p.ID] = struct{}{}
			kept = append(kept, p)

			id := pointMarkerID(key, p.ID)
			e.renderer.AddMarker(key, id, geo.LatLng{Lat: p.Lat, Lng: p.Lng},
				mapview.MarkerStyle{Icon: mapview.IconBlue, Static: true})
			e.renderer.BindDetailView(id, e.pointDetailBuilder(key, p))
		}
		e.points[key] = kept
	}
}

func validPoint(p layer.Point) bool {
	if strings.TrimSpace(p.ID) == "" {
		return false
	}
	for _, v := range []float64{p.Lat, p.Lng} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func pointMarkerID(layerKey, id string) string {
	return layerKey + "/" + id
}

// CreatePin creates a pin at the given position for the signed-in user.
// Nothing is cached until the server acknowledges the pin.
func (e *Engine) CreatePin(ctx context.Context, at geo.LatLng, category string) (pin.Pin, error) {
	if e.session.User() == nil {
		return pin.Pin{}, ErrPermissionDenied
	}
	if !e.registry.LayerSelected(layer.FeelingsKey) {
		return pin.Pin{}, ErrLayerHidden
	}

	category = strings.TrimSpace(category)
	if category == "" || !at.Valid() {
		return pin.Pin{}, fmt.Errorf("%w: missing type or position", pin.ErrInvalid)
	}
	e.registry.EnsureCategory(category)

	draft := pin.Draft{
		ID:       NewPinID(),
		Lat:      at.Lat,
		Lng:      at.Lng,
		Category: category,
	}

	created, err := e.remote.CreateAnnotation(ctx, draft)
	if err != nil {
		e.fail("Error creating pin", err)
		return pin.Pin{}, fmt.Errorf("error creating pin: %w", err)
	}

	if !e.store.Upsert(created) {
		e.logger.Warn("Server returned an unusable pin", "pin_id", created.ID)
	}
	metrics.PinMutationsTotal.WithLabelValues("create").Inc()

	e.RefreshOverlay()

	return created, nil
}

// EditComment updates a pin's comment locally and schedules its save
func (e *Engine) EditComment(id, text string) bool {
	return e.store.SetComment(id, strings.TrimSpace(text))
}

// DeletePin deletes a pin the user may delete
func (e *Engine) DeletePin(ctx context.Context, id string) error {
	p, ok := e.store.Get(id)
	if !ok {
		return pin.ErrNotFound
	}
	if !p.CanDelete {
		return ErrPermissionDenied
	}

	if err := e.remote.DeleteAnnotation(ctx, id); err != nil {
		e.fail("Error deleting pin", err)
		return fmt.Errorf("error deleting pin: %w", err)
	}

	e.store.Remove(id)
	metrics.PinMutationsTotal.WithLabelValues("delete").Inc()

	e.RefreshOverlay()

	return nil
}

// ClearAll deletes every pin; only permitted to administrators
func (e *Engine) ClearAll(ctx context.Context) (int64, error) {
	if !e.session.CanDeleteAll() {
		return 0, ErrPermissionDenied
	}

	deleted, err := e.remote.DeleteAll(ctx)
	if err != nil {
		e.fail("Error deleting all pins", err)
		return 0, fmt.Errorf("error deleting all pins: %w", err)
	}

	e.store.Clear()
	metrics.PinMutationsTotal.WithLabelValues("clear").Inc()

	e.RefreshOverlay()

	return deleted, nil
}

// SetFilter shows or hides a category
func (e *Engine) SetFilter(category string, active bool) {
	if e.registry.SetFilter(category, active) {
		e.store.Reconcile()
	}
}

// SetLayerVisible toggles a layer
func (e *Engine) SetLayerVisible(key string, visible bool) {
	if !e.registry.SetLayerSelected(key, visible) {
		return
	}

	e.store.Reconcile()
	e.applyLayerVisibility()

	if key == layer.HexOverlayKey {
		e.RefreshOverlay()
	}
}

// ViewChanged recomputes the overlay after the map moved
func (e *Engine) ViewChanged() {
	e.RefreshOverlay()
}

// applyLayerVisibility shows the groups of selected, enabled layers
func (e *Engine) applyLayerVisibility() {
	for _, key := range e.registry.GroupKeys() {
		e.renderer.SetGroupVisible(key, e.layerShown(key))
	}
}

func (e *Engine) layerShown(key string) bool {
	l, ok := e.registry.Layer(key)
	return ok && l.IsEnabled && e.registry.LayerSelected(key)
}

// FilterCounts returns the number of pins per category, ignoring filters
func (e *Engine) FilterCounts() map[string]int {
	return e.store.CategoryCounts()
}

// LayerCounts returns the number of items held by each layer
func (e *Engine) LayerCounts() map[string]int {
	counts := make(map[string]int)
	for _, key := range e.registry.GroupKeys() {
		counts[key] = 0
	}
	counts[layer.FeelingsKey] = e.store.Len()

	e.overlayMu.Lock()
	counts[layer.HexOverlayKey] = e.overlay.Len()
	e.overlayMu.Unlock()

	e.pointsMu.RLock()
	for key, points := range e.points {
		counts[key] = len(points)
	}
	e.pointsMu.RUnlock()

	return counts
}

// Points returns the static points of a layer
func (e *Engine) Points(key string) []layer.Point {
	e.pointsMu.RLock()
	defer e.pointsMu.RUnlock()

	return append([]layer.Point(nil), e.points[key]...)
}

// saveComment is the autosave persistence call
func (e *Engine) saveComment(ctx context.Context, id, comment string) (pin.CommentUpdate, error) {
	return e.remote.UpdateComment(ctx, id, comment)
}

func (e *Engine) handleSaved(id string, update pin.CommentUpdate) {
	if !e.store.ApplySaved(id, update) {
		e.logger.Debug("Discarded save for a pin no longer cached", "pin_id", id)
		return
	}
	metrics.PinMutationsTotal.WithLabelValues("comment").Inc()
}

// handleSaveFailed reports the failure and resyncs from the server. Local
// edits that were not saved are lost.
func (e *Engine) handleSaveFailed(id string, err error) {
	e.fail("Error saving comment", err, "pin_id", id)

	ctx, cancel := context.WithTimeout(e.ctx, 30*time.Second)
	defer cancel()

	if err := e.Reload(ctx); err != nil {
		e.logger.Warn("Error reloading after failed save", "error", err)
	}
}

// fail logs err and shows one notification to the user
func (e *Engine) fail(msg string, err error, args ...any) {
	e.logger.Error(msg, append(args, "error", err)...)
	if e.notifier != nil {
		e.notifier.NotifyError(mapview.UserMessage(err))
	}
}
