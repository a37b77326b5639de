package render

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/paulmach/orb/geojson"

	"pinmap/internal/domain/geo"
	"pinmap/internal/domain/mapview"
)

// Marker is a point drawn by the renderer
type Marker struct {
	LayerKey string
	ID       string
	Position geo.LatLng
	Style    mapview.MarkerStyle
}

// Polygon is an area drawn by the renderer
type Polygon struct {
	LayerKey string
	ID       string
	Vertices geo.Ring
	Style    mapview.PolygonStyle
}

type group struct {
	visible  bool
	markers  map[string]Marker
	polygons map[string]Polygon
}

// GeoJSON is an in-memory drawing surface that can be exported as a
// GeoJSON feature collection. Groups start visible.
type GeoJSON struct {
	groups    map[string]*group
	polygonOf map[string]string
	details   map[string]func() mapview.DetailView
	mu        sync.RWMutex
}

// NewGeoJSON creates an empty surface
func NewGeoJSON() *GeoJSON {
	return &GeoJSON{
		groups:    make(map[string]*group),
		polygonOf: make(map[string]string),
		details:   make(map[string]func() mapview.DetailView),
	}
}

func (r *GeoJSON) groupLocked(layerKey string) *group {
	g, ok := r.groups[layerKey]
	if !ok {
		g = &group{
			visible:  true,
			markers:  make(map[string]Marker),
			polygons: make(map[string]Polygon),
		}
		r.groups[layerKey] = g
	}
	return g
}

// AddMarker draws or replaces a marker
func (r *GeoJSON) AddMarker(layerKey, id string, pos geo.LatLng, style mapview.MarkerStyle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.groupLocked(layerKey).markers[id] = Marker{LayerKey: layerKey, ID: id, Position: pos, Style: style}
}

// RemoveMarker erases a marker and its detail view
func (r *GeoJSON) RemoveMarker(layerKey, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if g, ok := r.groups[layerKey]; ok {
		delete(g.markers, id)
	}
	delete(r.details, id)
}

// AddPolygon draws or replaces a polygon
func (r *GeoJSON) AddPolygon(layerKey, id string, vertices geo.Ring, style mapview.PolygonStyle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ring := make(geo.Ring, len(vertices))
	copy(ring, vertices)
	r.groupLocked(layerKey).polygons[id] = Polygon{LayerKey: layerKey, ID: id, Vertices: ring, Style: style}
	r.polygonOf[id] = layerKey
}

// RemovePolygon erases a polygon
func (r *GeoJSON) RemovePolygon(layerKey, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if g, ok := r.groups[layerKey]; ok {
		delete(g.polygons, id)
	}
	if r.polygonOf[id] == layerKey {
		delete(r.polygonOf, id)
	}
}

// SetPolygonStyle restyles a drawn polygon; unknown ids are ignored
func (r *GeoJSON) SetPolygonStyle(id string, style mapview.PolygonStyle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	layerKey, ok := r.polygonOf[id]
	if !ok {
		return
	}
	g := r.groups[layerKey]
	p := g.polygons[id]
	p.Style = style
	g.polygons[id] = p
}

// BindDetailView attaches a lazily built detail view to a marker
func (r *GeoJSON) BindDetailView(id string, build func() mapview.DetailView) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.details[id] = build
}

// SetGroupVisible shows or hides a whole layer group
func (r *GeoJSON) SetGroupVisible(layerKey string, visible bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.groupLocked(layerKey).visible = visible
}

// Visible reports whether a group is shown
func (r *GeoJSON) Visible(layerKey string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.groups[layerKey]
	return !ok || g.visible
}

// Markers returns the markers of a group ordered by id
func (r *GeoJSON) Markers(layerKey string) []Marker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.groups[layerKey]
	if !ok {
		return nil
	}
	markers := make([]Marker, 0, len(g.markers))
	for _, m := range g.markers {
		markers = append(markers, m)
	}
	sort.Slice(markers, func(i, j int) bool { return markers[i].ID < markers[j].ID })
	return markers
}

// Polygons returns the polygons of a group ordered by id
func (r *GeoJSON) Polygons(layerKey string) []Polygon {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.groups[layerKey]
	if !ok {
		return nil
	}
	polygons := make([]Polygon, 0, len(g.polygons))
	for _, p := range g.polygons {
		polygons = append(polygons, p)
	}
	sort.Slice(polygons, func(i, j int) bool { return polygons[i].ID < polygons[j].ID })
	return polygons
}

// Detail builds the detail view bound to id
func (r *GeoJSON) Detail(id string) (mapview.DetailView, bool) {
	r.mu.RLock()
	build, ok := r.details[id]
	r.mu.RUnlock()

	// builders read engine state, so they run without our lock
	if !ok || build == nil {
		return mapview.DetailView{}, false
	}
	return build(), true
}

// FeatureCollection exports the visible groups, layer keys in order, then
// polygons before markers
func (r *GeoJSON) FeatureCollection() *geojson.FeatureCollection {
	r.mu.RLock()
	keys := make([]string, 0, len(r.groups))
	for key, g := range r.groups {
		if g.visible {
			keys = append(keys, key)
		}
	}
	r.mu.RUnlock()
	sort.Strings(keys)

	fc := geojson.NewFeatureCollection()
	for _, key := range keys {
		for _, p := range r.Polygons(key) {
			feature := geojson.NewFeature(p.Vertices.Polygon())
			feature.ID = p.ID
			feature.Properties["layer"] = p.LayerKey
			feature.Properties["color"] = p.Style.Color
			feature.Properties["fillColor"] = p.Style.FillColor
			feature.Properties["weight"] = p.Style.Weight
			feature.Properties["opacity"] = p.Style.Opacity
			feature.Properties["fillOpacity"] = p.Style.FillOpacity
			fc.Append(feature)
		}

		for _, m := range r.Markers(key) {
			feature := geojson.NewFeature(m.Position.Point())
			feature.ID = m.ID
			feature.Properties["layer"] = m.LayerKey
			feature.Properties["icon"] = m.Style.Icon
			if m.Style.Own {
				feature.Properties["own"] = true
			}
			if m.Style.Static {
				feature.Properties["static"] = true
			}
			if view, ok := r.Detail(m.ID); ok {
				feature.Properties["title"] = view.Title
				if len(view.Lines) > 0 {
					feature.Properties["lines"] = view.Lines
				}
				if view.Comment != "" {
					feature.Properties["comment"] = view.Comment
				}
			}
			fc.Append(feature)
		}
	}

	return fc
}

// WriteTo writes the exported collection as indented JSON
func (r *GeoJSON) WriteTo(w io.Writer) (int64, error) {
	data, err := json.MarshalIndent(r.FeatureCollection(), "", "  ")
	if err != nil {
		return 0, fmt.Errorf("error encoding feature collection: %w", err)
	}
	data = append(data, '\n')

	n, err := w.Write(data)
	if err != nil {
		return int64(n), fmt.Errorf("error writing feature collection: %w", err)
	}
	return int64(n), nil
}

var _ mapview.Renderer = (*GeoJSON)(nil)
