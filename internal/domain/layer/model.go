package layer

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"pinmap/internal/domain/pin"
)

// Kind determines what a layer hosts
type Kind string

const (
	KindOverlay     Kind = "overlay"
	KindInteractive Kind = "interactive"
	KindStatic      Kind = "static"
)

// Well-known layer keys
const (
	FeelingsKey      = "feelings"
	HexOverlayKey    = "north_hex_grid"
	CityBuildingsKey = "city_buildings"
)

// DefaultSortOrder applies when a descriptor carries no order
const DefaultSortOrder = 100

// Field limits for layer points
const (
	MaxTitleLength       = 120
	MaxDescriptionLength = 500
	MaxTypeLength        = 40
	MaxKindLength        = 40
)

// Common errors
var (
	ErrNotFound         = errors.New("layer not found")
	ErrConflict         = errors.New("point id already exists")
	ErrInvalid          = errors.New("invalid point payload")
	ErrUserPointsClosed = errors.New("layer does not allow user-created points")
)

// Layer is a resolved layer descriptor
type Layer struct {
	Key             string `json:"key" yaml:"key"`
	Name            string `json:"name" yaml:"name"`
	Kind            Kind   `json:"kind" yaml:"kind"`
	AllowUserPoints bool   `json:"allow_user_points" yaml:"allow_user_points"`
	IsEnabled       bool   `json:"is_enabled" yaml:"is_enabled"`
	SortOrder       int    `json:"sort_order" yaml:"sort_order"`
}

// Descriptor is a layer as received from elsewhere; any field may be absent
type Descriptor struct {
	Key             string `json:"key" yaml:"key"`
	Name            string `json:"name" yaml:"name"`
	Kind            string `json:"kind" yaml:"kind"`
	AllowUserPoints *bool  `json:"allow_user_points" yaml:"allow_user_points"`
	IsEnabled       *bool  `json:"is_enabled" yaml:"is_enabled"`
	SortOrder       *int   `json:"sort_order" yaml:"sort_order"`
}

// Resolve fills absent or blank fields with defaults
func (d Descriptor) Resolve() Layer {
	l := Layer{
		Key:       d.Key,
		Name:      d.Name,
		Kind:      Kind(strings.TrimSpace(d.Kind)),
		IsEnabled: true,
		SortOrder: DefaultSortOrder,
	}
	if strings.TrimSpace(l.Name) == "" {
		l.Name = d.Key
	}
	if l.Kind == "" {
		l.Kind = KindStatic
	}
	if d.AllowUserPoints != nil {
		l.AllowUserPoints = *d.AllowUserPoints
	}
	if d.IsEnabled != nil {
		l.IsEnabled = *d.IsEnabled
	}
	if d.SortOrder != nil {
		l.SortOrder = *d.SortOrder
	}
	return l
}

// Describe converts a resolved layer back into a descriptor
func (l Layer) Describe() Descriptor {
	allow, enabled, order := l.AllowUserPoints, l.IsEnabled, l.SortOrder
	return Descriptor{
		Key:             l.Key,
		Name:            l.Name,
		Kind:            string(l.Kind),
		AllowUserPoints: &allow,
		IsEnabled:       &enabled,
		SortOrder:       &order,
	}
}

// Point is a read-only marker belonging to a layer
type Point struct {
	ID            string                 `json:"id"`
	LayerKey      string                 `json:"layer_key"`
	Lat           float64                `json:"lat"`
	Lng           float64                `json:"lng"`
	Title         string                 `json:"title"`
	Description   string                 `json:"description"`
	Data          map[string]interface{} `json:"data"`
	Type          string                 `json:"type"`
	Comment       string                 `json:"comment"`
	CreatedByName string                 `json:"created_by_name"`
	CreatedAt     time.Time              `json:"created_at"`
	IsOwner       bool                   `json:"is_owner"`
	CanEdit       bool                   `json:"can_edit"`
	CanDelete     bool                   `json:"can_delete"`

	OwnerID string `json:"-"`
}

// PointDraft is a layer point creation request
type PointDraft struct {
	ID          string                 `json:"id"`
	Lat         *float64               `json:"lat" validate:"required"`
	Lng         *float64               `json:"lng" validate:"required"`
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Data        map[string]interface{} `json:"data"`
	Type        string                 `json:"type"`
	Comment     string                 `json:"comment"`
}

// Normalize trims the id and truncates free-text fields
func (d PointDraft) Normalize() PointDraft {
	d.ID = strings.TrimSpace(d.ID)
	d.Title = pin.Truncate(d.Title, MaxTitleLength)
	d.Description = pin.Truncate(d.Description, MaxDescriptionLength)
	d.Type = pin.Truncate(d.Type, MaxTypeLength)
	d.Comment = pin.Truncate(d.Comment, pin.MaxCommentLength)
	return d
}

// wirePoint mirrors Point with optional fields
type wirePoint struct {
	ID            *string                `json:"id"`
	LayerKey      string                 `json:"layer_key"`
	Lat           *float64               `json:"lat"`
	Lng           *float64               `json:"lng"`
	Title         string                 `json:"title"`
	Description   string                 `json:"description"`
	Data          map[string]interface{} `json:"data"`
	Type          string                 `json:"type"`
	Comment       string                 `json:"comment"`
	CreatedByName string                 `json:"created_by_name"`
	CreatedAt     string                 `json:"created_at"`
	IsOwner       bool                   `json:"is_owner"`
	CanEdit       bool                   `json:"can_edit"`
	CanDelete     bool                   `json:"can_delete"`
}

// DecodePoint parses a single point payload. Only the id and position are
// required; everything else is optional.
func DecodePoint(raw json.RawMessage) (Point, error) {
	var w wirePoint
	if err := json.Unmarshal(raw, &w); err != nil {
		return Point{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if w.ID == nil || w.Lat == nil || w.Lng == nil {
		return Point{}, fmt.Errorf("%w: missing field", ErrInvalid)
	}
	if math.IsNaN(*w.Lat) || math.IsNaN(*w.Lng) || math.IsInf(*w.Lat, 0) || math.IsInf(*w.Lng, 0) {
		return Point{}, fmt.Errorf("%w: non-finite position", ErrInvalid)
	}

	p := Point{
		ID:            *w.ID,
		LayerKey:      w.LayerKey,
		Lat:           *w.Lat,
		Lng:           *w.Lng,
		Title:         w.Title,
		Description:   w.Description,
		Data:          w.Data,
		Type:          w.Type,
		Comment:       w.Comment,
		CreatedByName: w.CreatedByName,
		IsOwner:       w.IsOwner,
		CanEdit:       w.CanEdit,
		CanDelete:     w.CanDelete,
	}
	if t, err := pin.ParseTimestamp(w.CreatedAt); err == nil {
		p.CreatedAt = t
	}

	return p, nil
}
