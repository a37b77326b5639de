package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"pinmap/internal/domain/geo"
	"pinmap/internal/domain/pin"
	"pinmap/internal/metrics"
	"pinmap/internal/service/hexgrid"
)

// OverlayConfig contains configuration for server-side overlays
type OverlayConfig struct {
	// DefaultRadius is used when the request omits radius, in meters
	DefaultRadius float64

	// MaxCells rejects viewports that would need a larger lattice
	MaxCells int
}

// DefaultOverlayConfig returns the default overlay configuration
func DefaultOverlayConfig() OverlayConfig {
	return OverlayConfig{
		DefaultRadius: 56,
		MaxCells:      20000,
	}
}

// OverlayHandler serves the aggregated hex overlay as GeoJSON
type OverlayHandler struct {
	pins   pin.Manager
	config OverlayConfig
	logger *slog.Logger
}

// NewOverlayHandler creates a new overlay handler
func NewOverlayHandler(pins pin.Manager, config OverlayConfig, logger *slog.Logger) *OverlayHandler {
	defaults := DefaultOverlayConfig()
	if config.DefaultRadius <= 0 {
		config.DefaultRadius = defaults.DefaultRadius
	}
	if config.MaxCells <= 0 {
		config.MaxCells = defaults.MaxCells
	}

	return &OverlayHandler{
		pins:   pins,
		config: config,
		logger: logger,
	}
}

// GetOverlay builds the lattice for the requested bounds and aggregates
// every pin into it
func (h *OverlayHandler) GetOverlay(w http.ResponseWriter, r *http.Request) {
	bounds, radius, err := h.parseQuery(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error(), err)
		return
	}

	if n := hexgrid.EstimateCells(bounds, radius); n > h.config.MaxCells {
		respondWithError(w, http.StatusBadRequest, "Overlay area too large", nil)
		return
	}

	pins, err := h.pins.ListPins(r.Context(), ViewerFrom(r.Context()))
	if err != nil {
		respondWithDomainError(w, h.logger, err)
		return
	}

	start := time.Now()
	lattice := hexgrid.Build(bounds, radius)
	summary := hexgrid.Aggregate(lattice, pins)
	metrics.ObserveSince(metrics.OverlayRecomputeMs, start)
	metrics.OverlayCells.Set(float64(lattice.Len()))

	h.logger.Debug("Built overlay",
		"cells", lattice.Len(),
		"binned", summary.Binned,
		"dropped", summary.Dropped)

	respondWithJSON(w, http.StatusOK, lattice.FeatureCollection())
}

func (h *OverlayHandler) parseQuery(r *http.Request) (geo.Bounds, float64, error) {
	q := r.URL.Query()

	var bounds geo.Bounds
	fields := []struct {
		name string
		dst  *float64
	}{
		{"south", &bounds.South},
		{"north", &bounds.North},
		{"west", &bounds.West},
		{"east", &bounds.East},
	}
	for _, f := range fields {
		v, err := strconv.ParseFloat(q.Get(f.name), 64)
		if err != nil {
			return bounds, 0, fmt.Errorf("invalid %s", f.name)
		}
		*f.dst = v
	}
	if bounds.South < -90 || bounds.North > 90 || bounds.West < -180 || bounds.East > 180 {
		return bounds, 0, fmt.Errorf("bounds out of range")
	}

	radius := h.config.DefaultRadius
	if raw := q.Get("radius"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			return bounds, 0, fmt.Errorf("invalid radius")
		}
		radius = v
	}

	return bounds, radius, nil
}
