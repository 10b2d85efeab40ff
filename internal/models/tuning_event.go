package models

import "time"

// Event types written to the tuning log.
const (
	EventSequence      = "SEQUENCE"
	EventTestValue     = "TEST_VALUE"
	EventScanConfig    = "SCAN_CONFIG"
	EventRun           = "RUN"
	EventRunFailed     = "RUN_FAILED"
	EventScanStarted   = "SCAN_STARTED"
	EventScanCompleted = "SCAN_COMPLETED"
	EventScanAborted   = "SCAN_ABORTED"
)

// TuningEvent is a single log entry.
type TuningEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Metadata    any       `json:"metadata,omitempty"`
}
