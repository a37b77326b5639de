package geo

import (
	"math"

	"github.com/paulmach/orb"
)

// LatLng is a geographic position in degrees
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether both coordinates are finite numbers
func (p LatLng) Valid() bool {
	return !math.IsNaN(p.Lat) && !math.IsInf(p.Lat, 0) &&
		!math.IsNaN(p.Lng) && !math.IsInf(p.Lng, 0)
}

// Point converts the position to an orb point (lng, lat order)
func (p LatLng) Point() orb.Point {
	return orb.Point{p.Lng, p.Lat}
}

// Ring is an ordered, implicitly closed sequence of vertices
type Ring []LatLng

// Polygon converts the ring to a closed orb polygon
func (r Ring) Polygon() orb.Polygon {
	if len(r) == 0 {
		return orb.Polygon{}
	}

	ring := make(orb.Ring, 0, len(r)+1)
	for _, v := range r {
		ring = append(ring, v.Point())
	}
	ring = append(ring, r[0].Point())

	return orb.Polygon{ring}
}

// Bounds is an axis-aligned bounding box in degrees
type Bounds struct {
	South float64 `json:"south"`
	North float64 `json:"north"`
	West  float64 `json:"west"`
	East  float64 `json:"east"`
}

// Center returns the midpoint of the box
func (b Bounds) Center() LatLng {
	return LatLng{
		Lat: (b.South + b.North) / 2,
		Lng: (b.West + b.East) / 2,
	}
}

// Corners returns the four corners starting south-west, counter-clockwise
func (b Bounds) Corners() []LatLng {
	return []LatLng{
		{Lat: b.South, Lng: b.West},
		{Lat: b.South, Lng: b.East},
		{Lat: b.North, Lng: b.East},
		{Lat: b.North, Lng: b.West},
	}
}

// Bound converts the box to an orb bound
func (b Bounds) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.West, b.South},
		Max: orb.Point{b.East, b.North},
	}
}

// Finite reports whether every edge is a finite number
func (b Bounds) Finite() bool {
	for _, v := range []float64{b.South, b.North, b.West, b.East} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
