package pin

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxCommentLength caps comments in characters
const MaxCommentLength = 300

// Built-in category types
const (
	CategoryGood   = "good"
	CategoryBad    = "bad"
	CategoryChange = "change"
)

// Common errors
var (
	ErrNotFound = errors.New("pin not found")
	ErrConflict = errors.New("pin id already exists")
	ErrInvalid  = errors.New("invalid pin")
)

// Pin is a geo-tagged sentiment annotation
type Pin struct {
	ID            string    `json:"id"`
	LayerKey      string    `json:"layer_key,omitempty"`
	Lat           float64   `json:"lat"`
	Lng           float64   `json:"lng"`
	Category      string    `json:"type"`
	Comment       string    `json:"comment"`
	CreatedByName string    `json:"created_by_name"`
	CreatedAt     time.Time `json:"created_at"`
	IsOwner       bool      `json:"is_owner"`
	CanEdit       bool      `json:"can_edit"`
	CanDelete     bool      `json:"can_delete"`

	// CreatedFromIP is only disclosed to administrators
	CreatedFromIP *string `json:"created_from_ip,omitempty"`

	OwnerID string `json:"-"`
}

// Validate checks the shape of a pin received from elsewhere
func (p Pin) Validate() error {
	switch {
	case strings.TrimSpace(p.ID) == "":
		return fmt.Errorf("%w: missing id", ErrInvalid)
	case !finite(p.Lat) || !finite(p.Lng):
		return fmt.Errorf("%w: non-finite position", ErrInvalid)
	case p.Category == "":
		return fmt.Errorf("%w: missing type", ErrInvalid)
	case p.CreatedAt.IsZero():
		return fmt.Errorf("%w: missing created_at", ErrInvalid)
	}
	return nil
}

// Draft is a pin creation request
type Draft struct {
	ID       string  `json:"id" validate:"required,max=128"`
	Lat      float64 `json:"lat" validate:"latitude"`
	Lng      float64 `json:"lng" validate:"longitude"`
	Category string  `json:"type" validate:"required,max=40"`
	Comment  string  `json:"comment"`
}

// Normalize trims the identifiers and truncates the comment
func (d Draft) Normalize() Draft {
	d.ID = strings.TrimSpace(d.ID)
	d.Category = strings.TrimSpace(d.Category)
	d.Comment = Truncate(d.Comment, MaxCommentLength)
	return d
}

// CommentUpdate is the canonical result of a comment save
type CommentUpdate struct {
	Comment string `json:"comment"`
	CanEdit bool   `json:"can_edit"`
}

// Tone drives how a category is colored
type Tone string

const (
	ToneGood    Tone = "good"
	ToneBad     Tone = "bad"
	ToneChange  Tone = "change"
	ToneNeutral Tone = "neutral"
)

// Category is a filterable pin tag
type Category struct {
	Type  string `json:"type"`
	Label string `json:"label"`
	Tone  Tone   `json:"tone"`
}

// DefaultCategories are registered before any pin is loaded
func DefaultCategories() []Category {
	return []Category{
		{Type: CategoryGood, Label: "Dobre", Tone: ToneGood},
		{Type: CategoryBad, Label: "Spatne", Tone: ToneBad},
		{Type: CategoryChange, Label: "Tady to chce zmenu", Tone: ToneChange},
	}
}

// Truncate cuts s to at most n characters
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// wirePin mirrors Pin with optional fields so that missing or mistyped
// values can be told apart from zero values
type wirePin struct {
	ID            *string  `json:"id"`
	LayerKey      string   `json:"layer_key"`
	Lat           *float64 `json:"lat"`
	Lng           *float64 `json:"lng"`
	Category      *string  `json:"type"`
	Comment       *string  `json:"comment"`
	CreatedByName string   `json:"created_by_name"`
	CreatedAt     *string  `json:"created_at"`
	IsOwner       bool     `json:"is_owner"`
	CanEdit       bool     `json:"can_edit"`
	CanDelete     bool     `json:"can_delete"`
	CreatedFromIP *string  `json:"created_from_ip"`
}

// Decode parses a single pin payload and validates its shape
func Decode(raw json.RawMessage) (Pin, error) {
	var w wirePin
	if err := json.Unmarshal(raw, &w); err != nil {
		return Pin{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if w.ID == nil || w.Lat == nil || w.Lng == nil || w.Category == nil ||
		w.Comment == nil || w.CreatedAt == nil {
		return Pin{}, fmt.Errorf("%w: missing field", ErrInvalid)
	}

	createdAt, err := ParseTimestamp(*w.CreatedAt)
	if err != nil {
		return Pin{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	p := Pin{
		ID:            *w.ID,
		LayerKey:      w.LayerKey,
		Lat:           *w.Lat,
		Lng:           *w.Lng,
		Category:      *w.Category,
		Comment:       *w.Comment,
		CreatedByName: w.CreatedByName,
		CreatedAt:     createdAt,
		IsOwner:       w.IsOwner,
		CanEdit:       w.CanEdit,
		CanDelete:     w.CanDelete,
		CreatedFromIP: w.CreatedFromIP,
	}

	return p, p.Validate()
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// ParseTimestamp accepts RFC 3339 and the plain SQL timestamp layout
func ParseTimestamp(value string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
