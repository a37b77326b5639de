package pin

import (
	"strings"
	"time"

	"pinmap/internal/domain/user"
)

// Record is a stored layer point. Pins are the records of the feelings layer.
type Record struct {
	ID              string
	LayerKey        string
	Lat             float64
	Lng             float64
	Title           string
	Description     string
	Data            map[string]interface{}
	Type            string
	Comment         string
	CreatedByUserID string
	CreatedByName   string
	CreatedFromIP   *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AuthorName returns the creator name or the placeholder for anonymous rows
func (r Record) AuthorName() string {
	if name := strings.TrimSpace(r.CreatedByName); name != "" {
		return name
	}
	return user.UnknownName
}

// Pin renders the record as a pin with permissions for viewer.
// The source IP is disclosed to administrators only.
func (r Record) Pin(viewer *user.User) Pin {
	p := Pin{
		ID:            r.ID,
		LayerKey:      r.LayerKey,
		Lat:           r.Lat,
		Lng:           r.Lng,
		Category:      r.Type,
		Comment:       r.Comment,
		CreatedByName: r.AuthorName(),
		CreatedAt:     r.CreatedAt,
		IsOwner:       viewer.Owns(r.CreatedByUserID),
		CanEdit:       viewer.CanEdit(r.CreatedByUserID),
		CanDelete:     viewer.CanDelete(r.CreatedByUserID),
		OwnerID:       r.CreatedByUserID,
	}
	if viewer.IsAdmin() {
		p.CreatedFromIP = r.CreatedFromIP
	}
	return p
}
