package models

import "time"

// SessionState is what survives a restart: the selected sequence and the
// operator's edits on top of the design values.
type SessionState struct {
	ID        int                        `json:"id"`
	Sequence  string                     `json:"sequence"`
	Overrides map[PropertyKey]float64    `json:"overrides,omitempty"`
	Scans     map[PropertyKey]ScanConfig `json:"scans,omitempty"`
	UpdatedAt time.Time                  `json:"updated_at"`
}
