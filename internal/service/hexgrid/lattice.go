package hexgrid

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"pinmap/internal/domain/geo"
	"pinmap/internal/domain/mapview"
	geoService "pinmap/internal/service/geo"
)

// Cell is one hexagon of a lattice together with its aggregate
type Cell struct {
	Index    int
	Center   geo.LatLng
	Vertices geo.Ring

	GoodCount   int
	BadCount    int
	ChangeCount int

	PositiveStrength int
	NegativeStrength int
	ChangeStrength   int

	Style mapview.PolygonStyle

	bound orb.Bound
}

// Lattice is an offset hexagonal tiling of a bounding box
type Lattice struct {
	Bounds       geo.Bounds
	RadiusMeters float64
	Cells        []Cell
}

// Len returns the number of cells
func (l *Lattice) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Cells)
}

// steps returns the row and column spacing together with the row and column
// counts, or ok=false for degenerate input
func steps(bounds geo.Bounds, radiusMeters float64) (latStep, lngStep float64, rows, cols int, ok bool) {
	if !bounds.Finite() || bounds.South >= bounds.North || bounds.West > bounds.East {
		return 0, 0, 0, 0, false
	}
	if bounds.South < -90 || bounds.North > 90 || bounds.West < -180 || bounds.East > 180 {
		return 0, 0, 0, 0, false
	}
	if math.IsNaN(radiusMeters) || math.IsInf(radiusMeters, 0) || radiusMeters <= 0 {
		return 0, 0, 0, 0, false
	}

	latStep = geoService.MetersToLatDegrees(math.Sqrt(3) * radiusMeters)
	lngStep = geoService.MetersToLngDegrees(1.5*radiusMeters, (bounds.South+bounds.North)/2)

	for _, step := range []float64{latStep, lngStep} {
		if math.IsNaN(step) || math.IsInf(step, 0) || step <= 0 {
			return 0, 0, 0, 0, false
		}
	}

	c := math.Floor((bounds.East-bounds.West+2*lngStep)/lngStep) + 1
	r := math.Floor((bounds.North-bounds.South+2*latStep)/latStep) + 1
	if c > math.MaxInt32 || r > math.MaxInt32 || c*r > math.MaxInt32 {
		return latStep, lngStep, math.MaxInt32, 1, true
	}

	return latStep, lngStep, int(r), int(c), true
}

// EstimateCells returns how many cells Build would produce, without building them
func EstimateCells(bounds geo.Bounds, radiusMeters float64) int {
	_, _, rows, cols, ok := steps(bounds, radiusMeters)
	if !ok {
		return 0
	}
	return rows * cols
}

// Build covers bounds with vertex-up hexagons of the given radius, leaving a
// one-cell margin on every side. Columns advance west to east; odd columns
// are shifted north by half a row. Degenerate input, including bounds outside
// the valid latitude and longitude ranges, yields an empty lattice.
func Build(bounds geo.Bounds, radiusMeters float64) *Lattice {
	lattice := &Lattice{
		Bounds:       bounds,
		RadiusMeters: radiusMeters,
	}

	latStep, lngStep, rows, cols, ok := steps(bounds, radiusMeters)
	if !ok || rows*cols >= math.MaxInt32 {
		return lattice
	}

	lattice.Cells = make([]Cell, 0, rows*cols)

	for col := 0; col < cols; col++ {
		lng := bounds.West - lngStep + float64(col)*lngStep
		offset := 0.0
		if col%2 == 1 {
			offset = latStep / 2
		}

		for row := 0; row < rows; row++ {
			lat := bounds.South - latStep + float64(row)*latStep
			center := geo.LatLng{Lat: lat + offset, Lng: lng}
			vertices := geoService.BuildHexagon(center, radiusMeters)

			lattice.Cells = append(lattice.Cells, Cell{
				Index:    len(lattice.Cells),
				Center:   center,
				Vertices: vertices,
				Style:    NeutralStyle(),
				bound:    vertices.Polygon().Bound(),
			})
		}
	}

	return lattice
}

// Locate returns the index of the first cell containing p, or -1
func (l *Lattice) Locate(p geo.LatLng) int {
	if l == nil {
		return -1
	}

	point := p.Point()
	for i := range l.Cells {
		cell := &l.Cells[i]
		if !cell.bound.Contains(point) {
			continue
		}
		if geoService.PointInPolygon(p, cell.Vertices) {
			return i
		}
	}
	return -1
}

// FeatureCollection exports the lattice and its aggregate as GeoJSON
func (l *Lattice) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if l == nil {
		return fc
	}

	for _, cell := range l.Cells {
		feature := geojson.NewFeature(cell.Vertices.Polygon())
		feature.ID = cell.Index
		feature.Properties["good"] = cell.GoodCount
		feature.Properties["bad"] = cell.BadCount
		feature.Properties["change"] = cell.ChangeCount
		feature.Properties["positive_strength"] = cell.PositiveStrength
		feature.Properties["negative_strength"] = cell.NegativeStrength
		feature.Properties["change_strength"] = cell.ChangeStrength
		feature.Properties["stroke"] = cell.Style.Color
		feature.Properties["fill"] = cell.Style.FillColor
		feature.Properties["stroke-width"] = cell.Style.Weight
		feature.Properties["stroke-opacity"] = cell.Style.Opacity
		feature.Properties["fill-opacity"] = cell.Style.FillOpacity
		fc.Append(feature)
	}

	return fc
}
