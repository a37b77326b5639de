package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"pinmap/internal/domain/user"
)

// AuthHandler handles account and session requests
type AuthHandler struct {
	service user.Service
	logger  *slog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(service user.Service, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service: service,
		logger:  logger,
	}
}

// Me returns the signed-in user or null
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"user": ViewerFrom(r.Context())})
}

// Login signs in an existing account
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	creds, ok := h.credentials(w, r, "Invalid login payload")
	if !ok {
		return
	}

	session, err := h.service.Login(r.Context(), creds)
	if err != nil {
		respondWithDomainError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, session)
}

// Register creates an account and signs it in
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	creds, ok := h.credentials(w, r, "Invalid register payload")
	if !ok {
		return
	}

	session, err := h.service.Register(r.Context(), creds)
	if err != nil {
		respondWithDomainError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, session)
}

// Logout invalidates the caller's token
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.Header.Get(TokenHeader))
	if err := h.service.Logout(r.Context(), token); err != nil {
		respondWithDomainError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// credentials decodes, normalizes and validates a credentials body
func (h *AuthHandler) credentials(w http.ResponseWriter, r *http.Request, message string) (user.Credentials, bool) {
	var creds user.Credentials
	if err := decodeJSON(r, &creds); err != nil {
		respondWithError(w, http.StatusBadRequest, message, err)
		return creds, false
	}

	creds = creds.Normalize()
	if err := validate.Struct(creds); err != nil {
		respondWithError(w, http.StatusBadRequest, message, err)
		return creds, false
	}
	return creds, true
}
