package geo

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"pinmap/internal/domain/geo"
)

// MetersPerDegree is the length of one degree of latitude
const MetersPerDegree = 111320.0

// poleEpsilon guards the longitude conversion near the poles
const poleEpsilon = 1e-6

// MetersToLatDegrees converts a north-south distance to degrees of latitude
func MetersToLatDegrees(meters float64) float64 {
	return meters / MetersPerDegree
}

// MetersToLngDegrees converts an east-west distance at the given latitude to
// degrees of longitude. Near the poles the conversion degenerates to 0.
func MetersToLngDegrees(meters, lat float64) float64 {
	cosLat := math.Cos(lat * math.Pi / 180)
	if math.Abs(cosLat) < poleEpsilon {
		return 0
	}
	return meters / (MetersPerDegree * cosLat)
}

// PointInPolygon reports whether point lies inside the ring using the
// even-odd rule. Latitude is treated as y and longitude as x. Points exactly
// on an edge may land either way.
func PointInPolygon(point geo.LatLng, ring geo.Ring) bool {
	y := point.Lat
	x := point.Lng
	inside := false

	for i, j := 0, len(ring)-1; i < len(ring); j, i = i, i+1 {
		yi, xi := ring[i].Lat, ring[i].Lng
		yj, xj := ring[j].Lat, ring[j].Lng

		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}

	return inside
}

// BuildHexagon returns the six vertices of a vertex-up hexagon centered at
// center, placed at 60 degree steps starting due east
func BuildHexagon(center geo.LatLng, radiusMeters float64) geo.Ring {
	ring := make(geo.Ring, 0, 6)
	for i := 0; i < 6; i++ {
		angle := float64(60*i) * math.Pi / 180
		dx := radiusMeters * math.Cos(angle)
		dy := radiusMeters * math.Sin(angle)
		ring = append(ring, geo.LatLng{
			Lat: center.Lat + MetersToLatDegrees(dy),
			Lng: center.Lng + MetersToLngDegrees(dx, center.Lat),
		})
	}
	return ring
}

// RGB is an 8-bit color
type RGB struct {
	R, G, B uint8
}

// String renders the color in CSS functional notation
func (c RGB) String() string {
	return fmt.Sprintf("rgb(%d, %d, %d)", c.R, c.G, c.B)
}

// ParseHexColor parses "#rrggbb" (the leading hash is optional).
// Malformed channels read as zero.
func ParseHexColor(hex string) RGB {
	clean := strings.TrimPrefix(strings.TrimSpace(hex), "#")
	channel := func(from int) uint8 {
		if len(clean) < from+2 {
			return 0
		}
		v, err := strconv.ParseUint(clean[from:from+2], 16, 8)
		if err != nil {
			return 0
		}
		return uint8(v)
	}

	return RGB{R: channel(0), G: channel(2), B: channel(4)}
}

// InterpolateColor blends two hex colors channel by channel. t is clamped to
// [0, 1] and each channel is rounded to the nearest integer.
func InterpolateColor(startHex, endHex string, t float64) string {
	return InterpolateRGB(ParseHexColor(startHex), ParseHexColor(endHex), t).String()
}

// InterpolateRGB is InterpolateColor on parsed colors
func InterpolateRGB(start, end RGB, t float64) RGB {
	if math.IsNaN(t) {
		t = 0
	}
	t = math.Max(0, math.Min(1, t))

	lerp := func(a, b uint8) uint8 {
		return uint8(math.Round(float64(a) + (float64(b)-float64(a))*t))
	}

	return RGB{
		R: lerp(start.R, end.R),
		G: lerp(start.G, end.G),
		B: lerp(start.B, end.B),
	}
}

// DistanceMeters returns the great-circle distance between two positions
func DistanceMeters(a, b geo.LatLng) float64 {
	// Haversine on a spherical earth
	const earthRadiusM = 6371000.0

	lat1 := a.Lat * math.Pi / 180.0
	lon1 := a.Lng * math.Pi / 180.0
	lat2 := b.Lat * math.Pi / 180.0
	lon2 := b.Lng * math.Pi / 180.0

	hSin := math.Sin((lat2 - lat1) / 2)
	hSin *= hSin

	vSin := math.Sin((lon2 - lon1) / 2)
	vSin *= vSin

	h := hSin + math.Cos(lat1)*math.Cos(lat2)*vSin

	return 2 * earthRadiusM * math.Asin(math.Sqrt(h))
}
