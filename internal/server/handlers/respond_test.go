package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"pinmap/internal/domain/layer"
	"pinmap/internal/domain/pin"
	"pinmap/internal/domain/user"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "forwarded first hop", headers: map[string]string{"X-Forwarded-For": " 198.51.100.1 , 10.0.0.1"}, want: "198.51.100.1"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": "198.51.100.2"}, want: "198.51.100.2"},
		{name: "cloudflare", headers: map[string]string{"CF-Connecting-IP": "198.51.100.3"}, want: "198.51.100.3"},
		{name: "forwarded wins", headers: map[string]string{"X-Forwarded-For": "198.51.100.4", "X-Real-IP": "198.51.100.5"}, want: "198.51.100.4"},
		{name: "remote address", remote: "192.0.2.7:5555", want: "192.0.2.7"},
		{name: "remote without port", remote: "192.0.2.8", want: "192.0.2.8"},
		{name: "clipped", headers: map[string]string{"X-Forwarded-For": strings.Repeat("a", 100)}, want: strings.Repeat("a", MaxClientIPLength)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(r))
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{user.ErrUnauthorized, http.StatusUnauthorized},
		{fmt.Errorf("wrapped: %w", user.ErrForbidden), http.StatusForbidden},
		{pin.ErrNotFound, http.StatusNotFound},
		{pin.ErrConflict, http.StatusConflict},
		{pin.ErrInvalid, http.StatusBadRequest},
		{layer.ErrNotFound, http.StatusNotFound},
		{layer.ErrUserPointsClosed, http.StatusForbidden},
		{user.ErrNotFound, http.StatusNotFound},
		{user.ErrConflict, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			status, message := statusFor(tt.err)
			assert.Equal(t, tt.status, status)
			assert.NotEmpty(t, message)
		})
	}
}
