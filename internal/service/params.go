package service

import (
	"time"

	"device_tuner/internal/models"
)

// ScanParams configures the scan bounds of one property.
type ScanParams struct {
	Start   float64
	End     float64
	Steps   int
	Enabled bool
}

// ScanReport is the outcome of one scan. Failures lists the oracle errors of
// the spots that produced no record, in spot order.
type ScanReport struct {
	Spots     int                    `json:"spots"`
	Records   []models.HistoryRecord `json:"records"`
	Failures  []string               `json:"failures,omitempty"`
	Cancelled bool                   `json:"cancelled"`
}

// LogFilter supports history filtering by time range and type.
type LogFilter struct {
	From time.Time // inclusive; zero means no lower bound
	To   time.Time // inclusive; zero means no upper bound
	Type string    // "", "SEQUENCE", "TEST_VALUE", "RUN", ...
}
