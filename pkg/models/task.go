package models

import "time"

type TaskStatus string

const (
	PendingTaskStatus   TaskStatus = "PENDING"
	ReadyTaskStatus     TaskStatus = "READY"
	RunningTaskStatus   TaskStatus = "RUNNING"
	CompletedTaskStatus TaskStatus = "COMPLETED"
	FailedTaskStatus    TaskStatus = "FAILED"
	SkippedTaskStatus   TaskStatus = "SKIPPED"
)

// Terminal reports whether the status is final for a task.
func (s TaskStatus) Terminal() bool {
	switch s {
	case CompletedTaskStatus, FailedTaskStatus, SkippedTaskStatus:
		return true
	default:
		return false
	}
}

// ResourceEstimate declares the abstract units a task consumes while running.
// The units are supplied by the task declaration; mapping them to real OS
// metrics is outside the orchestration core.
type ResourceEstimate struct {
	CPU    float64 `json:"cpu" yaml:"cpu"`
	Memory float64 `json:"memory" yaml:"memory"`
}

// DefaultResourceEstimate is assumed when a task declares no estimate.
var DefaultResourceEstimate = ResourceEstimate{CPU: 1, Memory: 1}

// Task represents one schedulable unit of work within a workflow run.
type Task struct {
	ID           string           `json:"id"`                    // Unique identifier, stable across runs
	Description  string           `json:"description"`           // Instruction text, opaque to the scheduler
	Kind         string           `json:"kind"`                  // Executor kind resolved at graph build time
	Command      []string         `json:"command,omitempty"`     // Argument vector for command tasks (never a shell string)
	Dependencies []string         `json:"dependencies"`          // Task IDs that must complete first
	Status       TaskStatus       `json:"status"`                // Current scheduling status
	Attempts     int              `json:"attempts"`              // Execution attempts so far
	MaxAttempts  int              `json:"max_attempts"`          // Retry ceiling
	Estimate     ResourceEstimate `json:"resource_estimate"`     // Declared resource consumption
	Timeout      *time.Duration   `json:"timeout,omitempty"`     // Per-task deadline; scheduler default when nil
	Result       string           `json:"result,omitempty"`      // Output payload once terminal
	ErrorMsg     string           `json:"error,omitempty"`       // Last error message
	StartedAt    *time.Time       `json:"started_at,omitempty"`  // Nullable start time
	FinishedAt   *time.Time       `json:"finished_at,omitempty"` // Nullable end time
}

// DefaultMaxAttempts is the retry ceiling used when a task declares none.
const DefaultMaxAttempts = 3
