package models

import (
	"encoding/json"
	"math"
	"time"
)

// Point is one sample of a result trajectory.
type Point struct {
	Position float64 `json:"position"`
	Value    float64 `json:"value"`
}

// MarshalJSON writes a NaN value as null; JSON has no NaN.
func (p Point) MarshalJSON() ([]byte, error) {
	var v *float64
	if !math.IsNaN(p.Value) {
		v = &p.Value
	}
	return json.Marshal(struct {
		Position float64  `json:"position"`
		Value    *float64 `json:"value"`
	}{p.Position, v})
}

// PositionSeries is ordered strictly ascending by Position.
type PositionSeries []Point

// Positions returns the position column.
func (s PositionSeries) Positions() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Position
	}
	return out
}

// PropertySnapshot captures one property's effective input at launch time.
type PropertySnapshot struct {
	Key          PropertyKey `json:"key"`
	PropertyName string      `json:"property_name"`
	Value        float64     `json:"value"`
}

// HistoryRecord is one completed simulation run.
// Only Label and Enabled change after creation.
type HistoryRecord struct {
	ID        string             `json:"id"`
	Timestamp time.Time          `json:"timestamp"`
	Label     string             `json:"label"`
	Snapshots []PropertySnapshot `json:"snapshots"`
	Result    PositionSeries     `json:"result"`
	Enabled   bool               `json:"enabled"`
}

// Clone returns a copy that shares no slices with r.
func (r HistoryRecord) Clone() HistoryRecord {
	out := r
	out.Snapshots = append([]PropertySnapshot(nil), r.Snapshots...)
	out.Result = append(PositionSeries(nil), r.Result...)
	return out
}

// Comparison is the diff of two enabled history records (A minus B).
type Comparison struct {
	A      string         `json:"a"`
	ALabel string         `json:"a_label"`
	B      string         `json:"b"`
	BLabel string         `json:"b_label"`
	Diff   PositionSeries `json:"diff"`
}
