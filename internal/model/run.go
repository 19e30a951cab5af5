package model

import (
	"encoding/json"
	"time"
)

// RunStatus represents the current state of an audit run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusAborted  RunStatus = "aborted"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one persisted audit execution.
type Run struct {
	ID          string         `json:"id"`
	Status      RunStatus      `json:"status"`
	Directory   string         `json:"directory"`
	Roster      string         `json:"roster"`
	Window      DateWindow     `json:"window"`
	Total       int            `json:"total"`
	StateCounts map[string]int `json:"state_counts,omitempty"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// AuditRecord is the flattened, persisted form of one subcontractor's result.
type AuditRecord struct {
	RunID           string          `json:"run_id"`
	Position        int             `json:"position"`
	SubcontractorID string          `json:"subcontractor_id"`
	Name            string          `json:"name"`
	State           string          `json:"state"`
	Confidence      float64         `json:"confidence"`
	Action          string          `json:"action"`
	Destination     string          `json:"destination"`
	LegacyStatus    string          `json:"legacy_status"`
	GapSummary      string          `json:"gap_summary,omitempty"`
	Detail          json.RawMessage `json:"detail,omitempty"`
}
