package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pinmap/internal/domain/pin"
)

// PinHandler handles pin-related HTTP requests
type PinHandler struct {
	manager pin.Manager
	logger  *slog.Logger
}

// NewPinHandler creates a new pin handler
func NewPinHandler(manager pin.Manager, logger *slog.Logger) *PinHandler {
	return &PinHandler{
		manager: manager,
		logger:  logger,
	}
}

// ListPins returns every pin with the viewer's permissions
func (h *PinHandler) ListPins(w http.ResponseWriter, r *http.Request) {
	pins, err := h.manager.ListPins(r.Context(), ViewerFrom(r.Context()))
	if err != nil {
		respondWithDomainError(w, h.logger, err)
		return
	}

	if pins == nil {
		pins = []pin.Pin{}
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"pins": pins})
}

// CreatePin stores a new pin for the viewer
func (h *PinHandler) CreatePin(w http.ResponseWriter, r *http.Request) {
	var draft pin.Draft
	if err := decodeValid(r, &draft); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid pin payload", err)
		return
	}

	created, err := h.manager.CreatePin(r.Context(), ViewerFrom(r.Context()), draft, ClientIP(r))
	if err != nil {
		respondWithDomainError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
}

// UpdatePin replaces the comment of a pin
func (h *PinHandler) UpdatePin(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Comment *string `json:"comment" validate:"required"`
	}
	if err := decodeValid(r, &payload); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid comment payload", err)
		return
	}

	updated, err := h.manager.UpdateComment(r.Context(), ViewerFrom(r.Context()), chi.URLParam(r, "id"), *payload.Comment)
	if err != nil {
		respondWithDomainError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, updated)
}

// DeletePin removes one pin
func (h *PinHandler) DeletePin(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.DeletePin(r.Context(), ViewerFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		respondWithDomainError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]int64{"deleted": 1})
}

// DeleteAll removes every pin; administrators only
func (h *PinHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.manager.DeleteAll(r.Context(), ViewerFrom(r.Context()))
	if err != nil {
		respondWithDomainError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}
