package models

import "time"

// RunStatus is the three-valued outcome of a sync run, plus transient states
// used while a run is in flight.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunSyncing   RunStatus = "syncing"
	RunCompleted RunStatus = "completed"
	RunPartial   RunStatus = "partially_failed"
	RunFailed    RunStatus = "failed"
)

// SyncSummary aggregates the per-record outcomes of one run.
type SyncSummary struct {
	Source        string          `json:"source"`
	Status        RunStatus       `json:"status"`
	SuccessCount  int             `json:"success_count"`
	FailedCount   int             `json:"failed_count"`
	FailedRecords []FailedRecord  `json:"failed_records,omitempty"`
	Outcomes      []UpsertOutcome `json:"outcomes,omitempty"`
}

// SyncRun is one row of durable run history.
type SyncRun struct {
	ID           string     `json:"id"`
	Source       string     `json:"source"`
	Status       RunStatus  `json:"status"`
	SuccessCount int        `json:"success_count"`
	FailedCount  int        `json:"failed_count"`
	Error        string     `json:"error,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// ProgressEvent is emitted once before each pipeline stage begins. Step is
// monotonically increasing within a run; Total is fixed at run start.
type ProgressEvent struct {
	Source  string `json:"source"`
	RunID   string `json:"run_id,omitempty"`
	Step    int    `json:"step"`
	Total   int    `json:"total"`
	Message string `json:"message"`
}

// LogEvent is a log line streamed to dashboard listeners.
type LogEvent struct {
	Source    string    `json:"source"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
