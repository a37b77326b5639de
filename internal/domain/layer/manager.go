package layer

import (
	"context"

	"pinmap/internal/domain/user"
)

// Manager defines the operations on map layers and their points
type Manager interface {
	// ListLayers returns enabled layers ordered by sort order, then key
	ListLayers(ctx context.Context) ([]Layer, error)

	// ListPoints returns the points of an enabled layer, oldest first
	ListPoints(ctx context.Context, viewer *user.User, key string) ([]Point, error)

	// CreatePoint adds a user point to a layer that accepts them
	CreatePoint(ctx context.Context, viewer *user.User, key string, draft PointDraft) (*Point, error)
}

// ServerDefaults are the layers every deployment starts with
func ServerDefaults() []Layer {
	return []Layer{
		{
			Key:             FeelingsKey,
			Name:            "Pocitova mapa",
			Kind:            KindInteractive,
			AllowUserPoints: true,
			IsEnabled:       true,
			SortOrder:       10,
		},
		{
			Key:       CityBuildingsKey,
			Name:      "Mestske budovy",
			Kind:      KindStatic,
			IsEnabled: true,
			SortOrder: 20,
		},
	}
}

// ClientDefaults adds the hex overlay, which exists only on the client
func ClientDefaults() []Layer {
	overlay := Layer{
		Key:       HexOverlayKey,
		Name:      "Hex overlay Hustopece",
		Kind:      KindOverlay,
		IsEnabled: true,
		SortOrder: 5,
	}
	return append([]Layer{overlay}, ServerDefaults()...)
}
