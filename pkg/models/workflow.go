package models

import "time"

type WorkflowStatus string

const (
	RunningWorkflowStatus   WorkflowStatus = "RUNNING"
	CompletedWorkflowStatus WorkflowStatus = "COMPLETED"
	FailedWorkflowStatus    WorkflowStatus = "FAILED"
	AbortedWorkflowStatus   WorkflowStatus = "ABORTED"
)

// Terminal reports whether the run status is final.
func (s WorkflowStatus) Terminal() bool {
	return s != RunningWorkflowStatus
}

// WorkflowRun is one launch of a task specification. Runs are archived once
// terminal and never deleted, only superseded by new runs.
type WorkflowRun struct {
	ID        string         `json:"id" db:"id"`                 // Run identifier (UUID)
	Name      string         `json:"name" db:"name"`             // Descriptive name from the spec document
	Status    WorkflowStatus `json:"status" db:"status"`         // RUNNING until finalized
	StartedAt time.Time      `json:"started_at" db:"started_at"` // Launch timestamp
	EndedAt   *time.Time     `json:"ended_at" db:"ended_at"`     // Set iff Status is terminal
}
