package models

import "time"

// ExecutionRecord is one durable, append-only log entry describing a single
// execution attempt. The current status of a task is derived from the most
// recent record for that task within the run.
type ExecutionRecord struct {
	ID            int64      `json:"id,omitempty" db:"id"`             // Auto-incremented in the Postgres store, unused by the file store
	WorkflowID    string     `json:"workflow_id" db:"workflow_id"`     // Parent run
	TaskID        string     `json:"task_id" db:"task_id"`             // Task being recorded
	Attempt       int        `json:"attempt_number" db:"attempt"`      // 1-based attempt counter; 0 for cascade skips
	Status        TaskStatus `json:"status" db:"status"`               // Outcome of this attempt
	StartedAt     time.Time  `json:"started_at" db:"started_at"`       // Dispatch time
	EndedAt       *time.Time `json:"ended_at,omitempty" db:"ended_at"` // Completion time
	OutputSummary string     `json:"output_summary" db:"output_summary"`
	Error         string     `json:"error,omitempty" db:"error_msg"` // Failure reason, empty on success
}
