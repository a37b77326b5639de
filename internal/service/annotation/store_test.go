package annotation

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pinmap/internal/domain/geo"
	"pinmap/internal/domain/layer"
	"pinmap/internal/domain/mapview"
	"pinmap/internal/domain/pin"
	"pinmap/internal/logger"
	"pinmap/internal/service/registry"
)

type markerCall struct {
	op    string
	layer string
	id    string
	style mapview.MarkerStyle
}

type fakeRenderer struct {
	mu      sync.Mutex
	calls   []markerCall
	markers map[string]mapview.MarkerStyle
	views   map[string]func() mapview.DetailView
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{
		markers: make(map[string]mapview.MarkerStyle),
		views:   make(map[string]func() mapview.DetailView),
	}
}

func (r *fakeRenderer) AddMarker(layerKey, id string, _ geo.LatLng, style mapview.MarkerStyle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, markerCall{op: "add", layer: layerKey, id: id, style: style})
	r.markers[id] = style
}

func (r *fakeRenderer) RemoveMarker(layerKey, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, markerCall{op: "remove", layer: layerKey, id: id})
	delete(r.markers, id)
}

func (r *fakeRenderer) AddPolygon(string, string, geo.Ring, mapview.PolygonStyle) {}
func (r *fakeRenderer) RemovePolygon(string, string)                             {}
func (r *fakeRenderer) SetPolygonStyle(string, mapview.PolygonStyle)             {}
func (r *fakeRenderer) SetGroupVisible(string, bool)                             {}

func (r *fakeRenderer) BindDetailView(id string, build func() mapview.DetailView) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views[id] = build
}

func (r *fakeRenderer) callCount(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.op == op {
			n++
		}
	}
	return n
}

type fakeAutosaver struct {
	scheduled map[string]string
	cancelled []string
	cleared   int
}

func newFakeAutosaver() *fakeAutosaver {
	return &fakeAutosaver{scheduled: make(map[string]string)}
}

func (a *fakeAutosaver) Schedule(id, value string) bool {
	a.scheduled[id] = value
	return true
}

func (a *fakeAutosaver) Cancel(id string) bool {
	a.cancelled = append(a.cancelled, id)
	_, ok := a.scheduled[id]
	delete(a.scheduled, id)
	return ok
}

func (a *fakeAutosaver) CancelAll() int {
	n := len(a.scheduled)
	a.scheduled = make(map[string]string)
	a.cleared++
	return n
}

func newTestStore(t *testing.T, config Config) (*Store, *registry.Registry, *fakeRenderer, *fakeAutosaver) {
	t.Helper()

	reg := registry.New(nil, registry.Config{}, logger.Discard())
	reg.RegisterDefaults()
	renderer := newFakeRenderer()
	autosave := newFakeAutosaver()

	return NewStore(reg, renderer, autosave, config, logger.Discard()), reg, renderer, autosave
}

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func makePin(id, category string) pin.Pin {
	return pin.Pin{
		ID:        id,
		Lat:       48.94,
		Lng:       16.74,
		Category:  category,
		Comment:   "",
		CreatedAt: baseTime,
		CanEdit:   true,
		CanDelete: true,
	}
}

func TestUpsert(t *testing.T) {
	t.Run("new pin is stored and drawn", func(t *testing.T) {
		s, _, renderer, _ := newTestStore(t, Config{})

		require.True(t, s.Upsert(makePin("a", pin.CategoryGood)))
		assert.Equal(t, 1, s.Len())
		assert.True(t, s.Rendered("a"))
		require.Len(t, renderer.calls, 1)
		assert.Equal(t, markerCall{op: "add", layer: layer.FeelingsKey, id: "a", style: mapview.MarkerStyle{Icon: mapview.IconGreen}}, renderer.calls[0])
	})

	t.Run("duplicate id is a no-op", func(t *testing.T) {
		s, _, renderer, _ := newTestStore(t, Config{})
		require.True(t, s.Upsert(makePin("a", pin.CategoryGood)))

		dup := makePin("a", pin.CategoryBad)
		dup.Comment = "other"
		assert.False(t, s.Upsert(dup))

		assert.Equal(t, 1, s.Len())
		got, _ := s.Get("a")
		assert.Equal(t, pin.CategoryGood, got.Category)
		assert.Equal(t, 1, renderer.callCount("add"))
	})

	t.Run("malformed pins are rejected", func(t *testing.T) {
		s, _, renderer, _ := newTestStore(t, Config{})

		noID := makePin("", pin.CategoryGood)
		noType := makePin("b", "")
		noTime := makePin("c", pin.CategoryGood)
		noTime.CreatedAt = time.Time{}

		for _, p := range []pin.Pin{noID, noType, noTime} {
			assert.False(t, s.Upsert(p))
		}
		assert.Zero(t, s.Len())
		assert.Empty(t, renderer.calls)
	})

	t.Run("unknown category is registered before drawing", func(t *testing.T) {
		s, reg, renderer, _ := newTestStore(t, Config{})

		require.True(t, s.Upsert(makePin("p", "bike_lane")))

		c, ok := reg.Category("bike_lane")
		require.True(t, ok)
		assert.Equal(t, "Bike lane", c.Label)
		assert.True(t, s.Rendered("p"))
		assert.Equal(t, mapview.IconBlue, renderer.markers["p"].Icon)
	})

	t.Run("filtered-out pin is stored but not drawn", func(t *testing.T) {
		s, reg, renderer, _ := newTestStore(t, Config{})
		reg.SetFilter(pin.CategoryBad, false)

		require.True(t, s.Upsert(makePin("b", pin.CategoryBad)))
		assert.Equal(t, 1, s.Len())
		assert.False(t, s.Rendered("b"))
		assert.Empty(t, renderer.calls)
	})

	t.Run("detail view reads the current pin", func(t *testing.T) {
		s, _, renderer, _ := newTestStore(t, Config{
			DetailView: func(p pin.Pin) mapview.DetailView {
				return mapview.DetailView{Title: p.Category, Comment: p.Comment}
			},
		})
		require.True(t, s.Upsert(makePin("a", pin.CategoryGood)))
		s.SetComment("a", "updated")

		build := renderer.views["a"]
		require.NotNil(t, build)
		assert.Equal(t, "updated", build().Comment)
	})
}

func TestSetComment(t *testing.T) {
	t.Run("editable pin schedules a save with the current text", func(t *testing.T) {
		s, _, _, autosave := newTestStore(t, Config{})
		s.Upsert(makePin("a", pin.CategoryGood))

		assert.True(t, s.SetComment("a", "first"))
		assert.True(t, s.SetComment("a", "second"))

		got, _ := s.Get("a")
		assert.Equal(t, "second", got.Comment)
		assert.Equal(t, "second", autosave.scheduled["a"])
	})

	t.Run("read-only pin is untouched", func(t *testing.T) {
		s, _, _, autosave := newTestStore(t, Config{})
		p := makePin("a", pin.CategoryGood)
		p.CanEdit = false
		p.Comment = "keep"
		s.Upsert(p)

		assert.False(t, s.SetComment("a", "change"))
		got, _ := s.Get("a")
		assert.Equal(t, "keep", got.Comment)
		assert.Empty(t, autosave.scheduled)
	})

	t.Run("unknown id is a no-op", func(t *testing.T) {
		s, _, _, autosave := newTestStore(t, Config{})
		assert.False(t, s.SetComment("missing", "x"))
		assert.Empty(t, autosave.scheduled)
	})

	t.Run("long comments are truncated", func(t *testing.T) {
		s, _, _, autosave := newTestStore(t, Config{})
		s.Upsert(makePin("a", pin.CategoryGood))

		long := make([]rune, pin.MaxCommentLength+20)
		for i := range long {
			long[i] = 'é'
		}
		s.SetComment("a", string(long))

		assert.Len(t, []rune(autosave.scheduled["a"]), pin.MaxCommentLength)
	})
}

func TestRemoveAndClear(t *testing.T) {
	t.Run("remove drops marker and pending save", func(t *testing.T) {
		s, _, renderer, autosave := newTestStore(t, Config{})
		s.Upsert(makePin("a", pin.CategoryGood))
		s.SetComment("a", "pending")

		assert.True(t, s.Remove("a"))
		assert.Zero(t, s.Len())
		assert.Equal(t, 1, renderer.callCount("remove"))
		assert.Equal(t, []string{"a"}, autosave.cancelled)
		assert.Empty(t, autosave.scheduled)
	})

	t.Run("removing a hidden pin does not touch the renderer", func(t *testing.T) {
		s, reg, renderer, _ := newTestStore(t, Config{})
		reg.SetFilter(pin.CategoryGood, false)
		s.Upsert(makePin("a", pin.CategoryGood))

		assert.True(t, s.Remove("a"))
		assert.Zero(t, renderer.callCount("remove"))
	})

	t.Run("clear drops everything", func(t *testing.T) {
		s, _, renderer, autosave := newTestStore(t, Config{})
		s.Upsert(makePin("a", pin.CategoryGood))
		s.Upsert(makePin("b", pin.CategoryBad))
		s.SetComment("a", "x")

		s.Clear()

		assert.Zero(t, s.Len())
		assert.Empty(t, renderer.markers)
		assert.Equal(t, 1, autosave.cleared)
		assert.Empty(t, autosave.scheduled)
	})
}

func TestReconcile(t *testing.T) {
	s, reg, renderer, _ := newTestStore(t, Config{})
	s.Upsert(makePin("g1", pin.CategoryGood))
	s.Upsert(makePin("g2", pin.CategoryGood))
	s.Upsert(makePin("b1", pin.CategoryBad))

	shown, hidden := s.Reconcile()
	assert.Zero(t, shown)
	assert.Zero(t, hidden)
	assert.Equal(t, 3, renderer.callCount("add"))

	reg.SetFilter(pin.CategoryGood, false)
	shown, hidden = s.Reconcile()
	assert.Zero(t, shown)
	assert.Equal(t, 2, hidden)
	assert.False(t, s.Rendered("g1"))
	assert.True(t, s.Rendered("b1"))

	shown, hidden = s.Reconcile()
	assert.Zero(t, shown+hidden)
	assert.Equal(t, 2, renderer.callCount("remove"))

	reg.SetFilter(pin.CategoryGood, true)
	shown, _ = s.Reconcile()
	assert.Equal(t, 2, shown)
	assert.Equal(t, 5, renderer.callCount("add"))
}

func TestApplySaved(t *testing.T) {
	s, _, _, _ := newTestStore(t, Config{})
	s.Upsert(makePin("a", pin.CategoryGood))
	s.SetComment("a", "  local ")

	assert.True(t, s.ApplySaved("a", pin.CommentUpdate{Comment: "server", CanEdit: false}))
	got, _ := s.Get("a")
	assert.Equal(t, "server", got.Comment)
	assert.False(t, got.CanEdit)

	s.Clear()
	assert.False(t, s.ApplySaved("a", pin.CommentUpdate{Comment: "late"}))
	assert.Zero(t, s.Len())
}

func TestQueries(t *testing.T) {
	s, _, _, _ := newTestStore(t, Config{})

	later := makePin("a", pin.CategoryGood)
	later.CreatedAt = baseTime.Add(time.Minute)
	s.Upsert(later)
	s.Upsert(makePin("c", pin.CategoryBad))
	s.Upsert(makePin("b", pin.CategoryBad))

	var ids []string
	for _, p := range s.Snapshot() {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"b", "c", "a"}, ids)
	assert.Equal(t, map[string]int{pin.CategoryGood: 1, pin.CategoryBad: 2}, s.CategoryCounts())
}

func TestDefaultMarkerStyle(t *testing.T) {
	own := makePin("a", pin.CategoryChange)
	own.IsOwner = true

	assert.Equal(t, mapview.MarkerStyle{Icon: mapview.IconGold, Own: true}, DefaultMarkerStyle(own))
	assert.Equal(t, mapview.IconRed, DefaultMarkerStyle(makePin("b", pin.CategoryBad)).Icon)
	assert.Equal(t, mapview.IconBlue, DefaultMarkerStyle(makePin("c", "trees")).Icon)
}
