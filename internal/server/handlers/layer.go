package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pinmap/internal/domain/layer"
)

// LayerHandler handles layer-related HTTP requests
type LayerHandler struct {
	manager layer.Manager
	logger  *slog.Logger
}

// NewLayerHandler creates a new layer handler
func NewLayerHandler(manager layer.Manager, logger *slog.Logger) *LayerHandler {
	return &LayerHandler{
		manager: manager,
		logger:  logger,
	}
}

// ListLayers returns the enabled layers
func (h *LayerHandler) ListLayers(w http.ResponseWriter, r *http.Request) {
	layers, err := h.manager.ListLayers(r.Context())
	if err != nil {
		respondWithDomainError(w, h.logger, err)
		return
	}

	if layers == nil {
		layers = []layer.Layer{}
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"layers": layers})
}

// ListPoints returns the points of one layer
func (h *LayerHandler) ListPoints(w http.ResponseWriter, r *http.Request) {
	points, err := h.manager.ListPoints(r.Context(), ViewerFrom(r.Context()), chi.URLParam(r, "key"))
	if err != nil {
		respondWithDomainError(w, h.logger, err)
		return
	}

	if points == nil {
		points = []layer.Point{}
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"points": points})
}

// CreatePoint adds a user point to a layer
func (h *LayerHandler) CreatePoint(w http.ResponseWriter, r *http.Request) {
	var draft layer.PointDraft
	if err := decodeValid(r, &draft); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid point payload", err)
		return
	}

	created, err := h.manager.CreatePoint(r.Context(), ViewerFrom(r.Context()), chi.URLParam(r, "key"), draft)
	if err != nil {
		respondWithDomainError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
}
