package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"pinmap/internal/domain/layer"
	"pinmap/internal/domain/pin"
	"pinmap/internal/domain/user"
)

// TokenHeader carries the session token
const TokenHeader = "X-Auth-Token"

// maxBodyBytes caps request bodies
const maxBodyBytes = 1 << 20

// MaxClientIPLength caps extracted client addresses
const MaxClientIPLength = 64

var validate = validator.New()

type viewerKey struct{}

// WithViewer stores the authenticated user on ctx
func WithViewer(ctx context.Context, u *user.User) context.Context {
	return context.WithValue(ctx, viewerKey{}, u)
}

// ViewerFrom returns the authenticated user, or nil for anonymous requests
func ViewerFrom(ctx context.Context) *user.User {
	u, _ := ctx.Value(viewerKey{}).(*user.User)
	return u
}

// Authenticate resolves the X-Auth-Token header into the request viewer
func Authenticate(auth user.Service, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := strings.TrimSpace(r.Header.Get(TokenHeader))
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			u, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				logger.Error("Error authenticating request", "error", err)
				respondWithError(w, http.StatusInternalServerError, "Server error", err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithViewer(r.Context(), u)))
		})
	}
}

// ClientIP returns the public address of the caller: the first
// X-Forwarded-For hop, then X-Real-IP, then CF-Connecting-IP, then the
// connection address
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); strings.TrimSpace(forwarded) != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return clip(first)
		}
	}
	for _, header := range []string{"X-Real-IP", "CF-Connecting-IP"} {
		if v := strings.TrimSpace(r.Header.Get(header)); v != "" {
			return clip(v)
		}
	}

	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	return clip(addr)
}

func clip(s string) string {
	if len(s) > MaxClientIPLength {
		return s[:MaxClientIPLength]
	}
	return s
}

// decodeJSON reads a JSON body into dst
func decodeJSON(r *http.Request, dst interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return errors.New("missing JSON body")
	}
	return json.Unmarshal(body, dst)
}

// decodeValid reads a JSON body into dst and checks its validate tags
func decodeValid(r *http.Request, dst interface{}) error {
	if err := decodeJSON(r, dst); err != nil {
		return err
	}
	return validate.Struct(dst)
}

// statusFor maps domain errors to an HTTP status and message
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, user.ErrUnauthorized):
		return http.StatusUnauthorized, "Login required"
	case errors.Is(err, user.ErrForbidden):
		return http.StatusForbidden, "Permission denied"
	case errors.Is(err, pin.ErrNotFound):
		return http.StatusNotFound, "Pin not found"
	case errors.Is(err, pin.ErrConflict):
		return http.StatusConflict, "Pin id already exists"
	case errors.Is(err, pin.ErrInvalid):
		return http.StatusBadRequest, "Invalid pin payload"
	case errors.Is(err, layer.ErrNotFound):
		return http.StatusNotFound, "Layer not found"
	case errors.Is(err, layer.ErrUserPointsClosed):
		return http.StatusForbidden, "Layer does not allow user-created points"
	case errors.Is(err, layer.ErrConflict):
		return http.StatusConflict, "Point id already exists"
	case errors.Is(err, layer.ErrInvalid):
		return http.StatusBadRequest, "Invalid point payload"
	case errors.Is(err, user.ErrNotFound):
		return http.StatusNotFound, "Neznamy uzivatel"
	case errors.Is(err, user.ErrConflict):
		return http.StatusConflict, "Uzivatel uz existuje"
	case errors.Is(err, user.ErrInvalid):
		return http.StatusBadRequest, "Invalid credentials payload"
	}
	return http.StatusInternalServerError, "Server error"
}

// respondWithDomainError writes the mapped status for err
func respondWithDomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	code, message := statusFor(err)
	if code >= 500 {
		logger.Error("HTTP error", "code", code, "error", err)
	}
	respondWithError(w, code, message, err)
}

// respondWithJSON writes a JSON response
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Failed to marshal response"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	w.Write(response)
}

// respondWithError writes an {"error": message} response
func respondWithError(w http.ResponseWriter, code int, message string, err error) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
