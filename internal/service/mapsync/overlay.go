package mapsync

import (
	"fmt"
	"time"

	"pinmap/internal/domain/layer"
	"pinmap/internal/metrics"
	"pinmap/internal/service/hexgrid"
)

// RefreshOverlay rebuilds the hex overlay from every cached pin and returns
// the number of cells shown. The new lattice is fully styled before the
// renderer sees any of it. When the geometry is unchanged the existing
// polygons are restyled, otherwise the old polygons are replaced.
func (e *Engine) RefreshOverlay() int {
	e.overlayMu.Lock()
	defer e.overlayMu.Unlock()

	if !e.layerShown(layer.HexOverlayKey) {
		e.removeOverlayLocked()
		metrics.OverlayCells.Set(0)
		return 0
	}

	start := time.Now()
	next := hexgrid.Build(e.config.Bounds, e.config.RadiusMeters)
	summary := hexgrid.Aggregate(next, e.store.Snapshot())
	metrics.ObserveSince(metrics.OverlayRecomputeMs, start)

	if sameGeometry(e.overlay, next) {
		for _, cell := range next.Cells {
			e.renderer.SetPolygonStyle(cellID(cell.Index), cell.Style)
		}
	} else {
		e.removeOverlayLocked()
		for _, cell := range next.Cells {
			e.renderer.AddPolygon(layer.HexOverlayKey, cellID(cell.Index), cell.Vertices, cell.Style)
		}
	}
	e.overlay = next

	metrics.OverlayCells.Set(float64(next.Len()))
	e.logger.Debug("Refreshed overlay",
		"cells", next.Len(),
		"binned", summary.Binned,
		"dropped", summary.Dropped,
		"duration", time.Since(start))

	return next.Len()
}

// Overlay returns the lattice currently shown, or nil
func (e *Engine) Overlay() *hexgrid.Lattice {
	e.overlayMu.Lock()
	defer e.overlayMu.Unlock()

	return e.overlay
}

func (e *Engine) removeOverlayLocked() {
	if e.overlay == nil {
		return
	}
	for _, cell := range e.overlay.Cells {
		e.renderer.RemovePolygon(layer.HexOverlayKey, cellID(cell.Index))
	}
	e.overlay = nil
}

func sameGeometry(a, b *hexgrid.Lattice) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Bounds == b.Bounds && a.RadiusMeters == b.RadiusMeters && a.Len() == b.Len()
}

func cellID(index int) string {
	return fmt.Sprintf("hex-%d", index)
}
