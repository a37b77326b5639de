package hexgrid

import (
	"pinmap/internal/domain/mapview"
	geoService "pinmap/internal/service/geo"
)

// CellWeight is the stroke width of every overlay cell
const CellWeight = 0.5

// DefaultRadiusMeters is the cell radius of the shipped overlay
const DefaultRadiusMeters = 56.0

// ramp is a color/opacity gradient for one sentiment
type ramp struct {
	strokeFrom, strokeTo string
	fillFrom, fillTo     string
	opacityBase          float64
	opacityScale         float64
	fillOpacityBase      float64
	fillOpacityScale     float64
}

var (
	positiveRamp = ramp{
		strokeFrom: "#5f8f6a", strokeTo: "#2e9f50",
		fillFrom: "#bcd9c4", fillTo: "#2e9f50",
		opacityBase: 0.14, opacityScale: 0.18,
		fillOpacityBase: 0.22, fillOpacityScale: 0.30,
	}
	negativeRamp = ramp{
		strokeFrom: "#b79590", strokeTo: "#c0392b",
		fillFrom: "#f0d9d6", fillTo: "#c0392b",
		opacityBase: 0.08, opacityScale: 0.16,
		fillOpacityBase: 0.12, fillOpacityScale: 0.34,
	}
	changeRamp = ramp{
		strokeFrom: "#c6b576", strokeTo: "#b08b00",
		fillFrom: "#f6efd1", fillTo: "#d8b21a",
		opacityBase: 0.08, opacityScale: 0.16,
		fillOpacityBase: 0.12, fillOpacityScale: 0.34,
	}
)

// Weak positive cells are lifted onto [positiveFloor, 1] so they stay visible
const (
	positiveFloor = 0.35
	positiveSpan  = 0.65
)

func (r ramp) at(t float64) mapview.PolygonStyle {
	return mapview.PolygonStyle{
		Color:       geoService.InterpolateColor(r.strokeFrom, r.strokeTo, t),
		FillColor:   geoService.InterpolateColor(r.fillFrom, r.fillTo, t),
		Weight:      CellWeight,
		Opacity:     r.opacityBase + r.opacityScale*t,
		FillOpacity: r.fillOpacityBase + r.fillOpacityScale*t,
	}
}

// NeutralStyle is used for cells without sentiment
func NeutralStyle() mapview.PolygonStyle {
	return mapview.PolygonStyle{
		Color:       "#7b7b7b",
		FillColor:   "#8a8a8a",
		Weight:      CellWeight,
		Opacity:     0.08,
		FillOpacity: 0.12,
	}
}

// Maxima are the largest strengths across a lattice
type Maxima struct {
	Positive int
	Negative int
	Change   int
}

// StyleFor picks the cell style. Positive wins ties, then negative, then
// change; cells with nothing to show are neutral.
func StyleFor(c Cell, maxima Maxima) mapview.PolygonStyle {
	pos, neg, chg := c.PositiveStrength, c.NegativeStrength, c.ChangeStrength

	if pos >= neg && pos >= chg && pos > 0 && maxima.Positive > 0 {
		t := float64(pos) / float64(maxima.Positive)
		return positiveRamp.at(positiveFloor + positiveSpan*t)
	}

	if neg >= pos && neg >= chg && neg > 0 && maxima.Negative > 0 {
		return negativeRamp.at(float64(neg) / float64(maxima.Negative))
	}

	if chg > 0 && maxima.Change > 0 {
		return changeRamp.at(float64(chg) / float64(maxima.Change))
	}

	return NeutralStyle()
}
