package mapview

import (
	"context"
	"errors"
	"strings"

	"pinmap/internal/domain/geo"
	"pinmap/internal/domain/layer"
	"pinmap/internal/domain/pin"
	"pinmap/internal/domain/user"
)

// Marker icons by category tone
const (
	IconGreen = "green"
	IconRed   = "red"
	IconGold  = "gold"
	IconBlue  = "blue"
)

// MarkerStyle describes how a point marker is drawn
type MarkerStyle struct {
	Icon string `json:"icon"`
	// Own marks markers created by the current user
	Own bool `json:"own,omitempty"`
	// Static markers are drawn as circles rather than pins
	Static bool `json:"static,omitempty"`
}

// PolygonStyle describes how an overlay cell is drawn
type PolygonStyle struct {
	Color       string  `json:"color"`
	FillColor   string  `json:"fillColor"`
	Weight      float64 `json:"weight"`
	Opacity     float64 `json:"opacity"`
	FillOpacity float64 `json:"fillOpacity"`
}

// DetailView is the content of a marker's popup
type DetailView struct {
	Title     string   `json:"title"`
	Lines     []string `json:"lines,omitempty"`
	Comment   string   `json:"comment,omitempty"`
	Editable  bool     `json:"editable,omitempty"`
	Deletable bool     `json:"deletable,omitempty"`
}

// Renderer is the drawing surface the engine talks to. Calls are made from
// whichever goroutine mutates engine state; implementations must not call
// back into the engine.
type Renderer interface {
	AddMarker(layerKey, id string, pos geo.LatLng, style MarkerStyle)
	RemoveMarker(layerKey, id string)
	AddPolygon(layerKey, id string, vertices geo.Ring, style PolygonStyle)
	RemovePolygon(layerKey, id string)
	SetPolygonStyle(id string, style PolygonStyle)
	BindDetailView(id string, build func() DetailView)
	SetGroupVisible(layerKey string, visible bool)
}

// RemoteStore is the authoritative pin and layer source
type RemoteStore interface {
	ListAnnotations(ctx context.Context) ([]pin.Pin, error)
	CreateAnnotation(ctx context.Context, draft pin.Draft) (pin.Pin, error)
	UpdateComment(ctx context.Context, id, comment string) (pin.CommentUpdate, error)
	DeleteAnnotation(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) (int64, error)
	ListLayers(ctx context.Context) ([]layer.Descriptor, error)
	ListLayerPoints(ctx context.Context, layerKey string) ([]layer.Point, error)
}

// Session exposes the current actor
type Session interface {
	// User returns the signed-in user or nil
	User() *user.User

	// Token returns the persisted auth token, if any
	Token() string

	// CanDeleteAll reports whether bulk deletion is permitted
	CanDeleteAll() bool

	// Refresh re-resolves the user for the stored token
	Refresh(ctx context.Context) error
}

// Notifier surfaces failures to the user
type Notifier interface {
	NotifyError(message string)
}

// FallbackErrorMessage is shown when a failure carries no message
const FallbackErrorMessage = "Doslo k chybe."

// UserMessage returns the human-readable text carried by err, or the fallback
// when err has none
func UserMessage(err error) string {
	var carrier interface{ UserMessage() string }
	if errors.As(err, &carrier) {
		if msg := strings.TrimSpace(carrier.UserMessage()); msg != "" {
			return msg
		}
	}
	return FallbackErrorMessage
}
