package entity

import "time"

type SiteEventKind string

const (
	SiteEventStateChanged      SiteEventKind = "site_state_changed"
	SiteEventActionStarted     SiteEventKind = "action_started"
	SiteEventOperationFinished SiteEventKind = "operation_finished"
)

// SiteEvent is published for live UI consumers; it is never persisted.
type SiteEvent struct {
	SiteID      uint          `json:"site_id"`
	Kind        SiteEventKind `json:"kind"`
	OperationID uint          `json:"operation_id,omitempty"`
	Operation   OperationType `json:"operation,omitempty"`
	Action      string        `json:"action,omitempty"`
	Succeeded   *bool         `json:"succeeded,omitempty"`
	Time        time.Time     `json:"time"`
}

// OperationTrace is the archived copy of a finished run.
type OperationTrace struct {
	OperationID uint           `json:"operation_id"`
	SiteID      uint           `json:"site_id"`
	SiteName    string         `json:"site_name"`
	Type        OperationType  `json:"type"`
	Params      map[string]any `json:"params,omitempty"`
	CreatedTime time.Time      `json:"created_time"`
	StartedTime *time.Time     `json:"started_time"`
	FinishedAt  time.Time      `json:"finished_at"`
	Succeeded   bool           `json:"succeeded"`
	Actions     []Action       `json:"actions"`
}
