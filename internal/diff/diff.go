// Package diff subtracts result series position by position.
package diff

import (
	"math"

	"device_tuner/internal/models"
)

// Diff returns a − b over the positions present in both series, ascending.
// Positions match only when exactly equal; unmatched points on either side are
// dropped. Both inputs must be ascending and free of NaN values.
func Diff(a, b models.PositionSeries) models.PositionSeries {
	byPos := make(map[float64]float64, len(b))
	for _, p := range b {
		byPos[p.Position] = p.Value
	}
	out := make(models.PositionSeries, 0, min(len(a), len(b)))
	for _, p := range a {
		if v, ok := byPos[p.Position]; ok {
			out = append(out, models.Point{Position: p.Position, Value: p.Value - v})
		}
	}
	return out
}

// FilterNaN drops points whose value is NaN, keeping position and value paired.
func FilterNaN(s models.PositionSeries) models.PositionSeries {
	out := make(models.PositionSeries, 0, len(s))
	for _, p := range s {
		if !math.IsNaN(p.Value) {
			out = append(out, p)
		}
	}
	return out
}

// Compare diffs two history records, a minus b.
func Compare(a, b models.HistoryRecord) models.Comparison {
	return models.Comparison{
		A:      a.ID,
		ALabel: a.Label,
		B:      b.ID,
		BLabel: b.Label,
		Diff:   Diff(FilterNaN(a.Result), FilterNaN(b.Result)),
	}
}
