package hexgrid

import (
	"pinmap/internal/domain/geo"
	"pinmap/internal/domain/pin"
)

// Summary reports the outcome of one aggregation pass
type Summary struct {
	Maxima  Maxima
	Binned  int
	Dropped int
}

// Aggregate bins every pin into the first cell that contains it, derives the
// per-cell strengths and styles every cell. Previous counts on the lattice
// are discarded, so repeated calls with the same input give the same result.
// Pins outside every cell are dropped; pins of categories other than good,
// bad and change occupy a cell without counting.
func Aggregate(l *Lattice, pins []pin.Pin) Summary {
	var summary Summary
	if l.Len() == 0 {
		summary.Dropped = len(pins)
		return summary
	}

	for i := range l.Cells {
		cell := &l.Cells[i]
		cell.GoodCount, cell.BadCount, cell.ChangeCount = 0, 0, 0
	}

	for _, p := range pins {
		idx := l.Locate(geo.LatLng{Lat: p.Lat, Lng: p.Lng})
		if idx < 0 {
			summary.Dropped++
			continue
		}

		cell := &l.Cells[idx]
		switch p.Category {
		case pin.CategoryGood:
			cell.GoodCount++
		case pin.CategoryBad:
			cell.BadCount++
		case pin.CategoryChange:
			cell.ChangeCount++
		}
		summary.Binned++
	}

	for i := range l.Cells {
		cell := &l.Cells[i]
		cell.PositiveStrength = max(cell.GoodCount-cell.BadCount, 0)
		cell.NegativeStrength = max(cell.BadCount-cell.GoodCount, 0)
		cell.ChangeStrength = cell.ChangeCount

		summary.Maxima.Positive = max(summary.Maxima.Positive, cell.PositiveStrength)
		summary.Maxima.Negative = max(summary.Maxima.Negative, cell.NegativeStrength)
		summary.Maxima.Change = max(summary.Maxima.Change, cell.ChangeStrength)
	}

	for i := range l.Cells {
		l.Cells[i].Style = StyleFor(l.Cells[i], summary.Maxima)
	}

	return summary
}
