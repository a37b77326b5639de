package layer

import (
	"pinmap/internal/domain/pin"
	"pinmap/internal/domain/user"
)

// PointFromRecord renders a stored point for viewer. Only feelings points
// carry pin permissions; points of other layers are read-only.
func PointFromRecord(r pin.Record, viewer *user.User) Point {
	p := Point{
		ID:            r.ID,
		LayerKey:      r.LayerKey,
		Lat:           r.Lat,
		Lng:           r.Lng,
		Title:         r.Title,
		Description:   r.Description,
		Data:          r.Data,
		Type:          r.Type,
		Comment:       r.Comment,
		CreatedByName: r.AuthorName(),
		CreatedAt:     r.CreatedAt,
		OwnerID:       r.CreatedByUserID,
	}

	if r.LayerKey == FeelingsKey {
		asPin := r.Pin(viewer)
		p.IsOwner = asPin.IsOwner
		p.CanEdit = asPin.CanEdit
		p.CanDelete = asPin.CanDelete
	}
	return p
}
