package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pinmap/internal/domain/layer"
	"pinmap/internal/domain/pin"
	"pinmap/internal/domain/user"
)

// TokenHeader carries the session token on every request
const TokenHeader = "X-Auth-Token"

// defaultServerMessage is used when an error response has no message
const defaultServerMessage = "Server error"

// APIError is a non-2xx response from the pin server
type APIError struct {
	Status  int
	Message string
}

// Error implements error
func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// UserMessage returns the server-provided message
func (e *APIError) UserMessage() string {
	return e.Message
}

// IsStatus reports whether err is an APIError with the given status
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// TokenSource supplies the session token
type TokenSource interface {
	Token() string
}

// Config contains configuration for the HTTP client
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client talks to the pin server over its JSON API
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	tokens     TokenSource
	logger     *slog.Logger
}

// NewClient creates a client for the server at config.BaseURL. tokens may be nil.
func NewClient(config Config, tokens TokenSource, logger *slog.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(config.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("error parsing server URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported server URL scheme %q", base.Scheme)
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    base,
		httpClient: &http.Client{Timeout: config.Timeout},
		tokens:     tokens,
		logger:     logger,
	}, nil
}

// BaseURL returns the server address
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// do sends a JSON request and decodes a JSON response into out
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("error encoding request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set(TokenHeader, token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error calling %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseAPIError(resp.StatusCode, raw)
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}
	return nil
}

// parseAPIError extracts the {"error": msg} body of a failed response
func parseAPIError(status int, raw []byte) *APIError {
	var payload struct {
		Error string `json:"error"`
	}
	apiErr := &APIError{Status: status, Message: defaultServerMessage}
	if json.Unmarshal(raw, &payload) == nil && strings.TrimSpace(payload.Error) != "" {
		apiErr.Message = payload.Error
	}
	return apiErr
}

// ListAnnotations fetches every pin. Entries that fail to decode are dropped.
func (c *Client) ListAnnotations(ctx context.Context) ([]pin.Pin, error) {
	var payload struct {
		Pins []json.RawMessage `json:"pins"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/pins", nil, &payload); err != nil {
		return nil, err
	}

	pins := make([]pin.Pin, 0, len(payload.Pins))
	for _, raw := range payload.Pins {
		p, err := pin.Decode(raw)
		if err != nil {
			c.logger.Debug("Dropping malformed pin", "error", err)
			continue
		}
		pins = append(pins, p)
	}
	return pins, nil
}

// CreateAnnotation creates a pin and returns the server's copy
func (c *Client) CreateAnnotation(ctx context.Context, draft pin.Draft) (pin.Pin, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/api/pins", draft, &raw); err != nil {
		return pin.Pin{}, err
	}

	p, err := pin.Decode(raw)
	if err != nil {
		return pin.Pin{}, fmt.Errorf("error decoding created pin: %w", err)
	}
	return p, nil
}

// UpdateComment saves a comment and returns the canonical comment and
// edit permission
func (c *Client) UpdateComment(ctx context.Context, id, comment string) (pin.CommentUpdate, error) {
	var payload struct {
		Comment *string `json:"comment"`
		CanEdit bool    `json:"can_edit"`
	}
	body := map[string]string{"comment": comment}
	if err := c.do(ctx, http.MethodPut, "/api/pins/"+url.PathEscape(id), body, &payload); err != nil {
		return pin.CommentUpdate{}, err
	}

	update := pin.CommentUpdate{Comment: comment, CanEdit: payload.CanEdit}
	if payload.Comment != nil {
		update.Comment = *payload.Comment
	}
	return update, nil
}

// DeleteAnnotation deletes one pin
func (c *Client) DeleteAnnotation(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/pins/"+url.PathEscape(id), nil, nil)
}

// DeleteAll deletes every pin and returns how many were removed
func (c *Client) DeleteAll(ctx context.Context) (int64, error) {
	var payload struct {
		Deleted int64 `json:"deleted"`
	}
	if err := c.do(ctx, http.MethodDelete, "/api/pins", nil, &payload); err != nil {
		return 0, err
	}
	return payload.Deleted, nil
}

// ListLayers fetches the layer descriptors. Entries that fail to decode are dropped.
func (c *Client) ListLayers(ctx context.Context) ([]layer.Descriptor, error) {
	var payload struct {
		Layers []json.RawMessage `json:"layers"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/layers", nil, &payload); err != nil {
		return nil, err
	}

	descriptors := make([]layer.Descriptor, 0, len(payload.Layers))
	for _, raw := range payload.Layers {
		var d layer.Descriptor
		if err := json.Unmarshal(raw, &d); err != nil {
			c.logger.Debug("Dropping malformed layer", "error", err)
			continue
		}
		descriptors = append(descriptors, d)
	}
	return descriptors, nil
}

// ListLayerPoints fetches the points of one layer. Entries that fail to
// decode are dropped.
func (c *Client) ListLayerPoints(ctx context.Context, key string) ([]layer.Point, error) {
	var payload struct {
		Points []json.RawMessage `json:"points"`
	}
	path := "/api/layers/" + url.PathEscape(key) + "/points"
	if err := c.do(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return nil, err
	}

	points := make([]layer.Point, 0, len(payload.Points))
	for _, raw := range payload.Points {
		p, err := layer.DecodePoint(raw)
		if err != nil {
			c.logger.Debug("Dropping malformed layer point", "layer", key, "error", err)
			continue
		}
		points = append(points, p)
	}
	return points, nil
}

// Me resolves the current token to a user; nil when signed out
func (c *Client) Me(ctx context.Context) (*user.User, error) {
	var payload struct {
		User *user.User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &payload); err != nil {
		return nil, err
	}
	return payload.User, nil
}

// Login signs in an existing account
func (c *Client) Login(ctx context.Context, creds user.Credentials) (*user.Session, error) {
	return c.authenticate(ctx, "/api/auth/login", creds)
}

// Register creates an account and signs it in
func (c *Client) Register(ctx context.Context, creds user.Credentials) (*user.Session, error) {
	return c.authenticate(ctx, "/api/auth/register", creds)
}

func (c *Client) authenticate(ctx context.Context, path string, creds user.Credentials) (*user.Session, error) {
	var session user.Session
	if err := c.do(ctx, http.MethodPost, path, creds, &session); err != nil {
		return nil, err
	}
	if session.Token == "" || session.User == nil {
		return nil, fmt.Errorf("error decoding session: missing token or user")
	}
	return &session, nil
}

// Logout invalidates the current token
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
}
