package storage

import (
	"github.com/pkg/errors"
	"github.com/varaku1012/quantumwala/pkg/models"
)

var (
	// ErrNotFound indicates a run or record that was never stored.
	ErrNotFound = errors.New("not found")
	// ErrPersistence indicates the underlying storage is unavailable. The
	// scheduler treats this as fatal to the run: losing write durability
	// means the run's truth is unknown.
	ErrPersistence = errors.New("persistence failure")
)

// Store is the durable, append-only record of execution history: the single
// source of truth for what happened. Only the scheduler writes to it; any
// external observer may read.
type Store interface {
	// Run operations
	SaveRun(run models.WorkflowRun) error
	UpdateRunStatus(id string, status models.WorkflowStatus) error
	GetRun(id string) (models.WorkflowRun, error)
	ListRuns() ([]models.WorkflowRun, error)

	// Record operations. Append must be atomic with respect to concurrent
	// readers: a partially written record is never visible.
	Append(rec models.ExecutionRecord) error
	LatestStatus(workflowID, taskID string) (models.TaskStatus, error)
	History(workflowID string) ([]models.ExecutionRecord, error)

	Close() error
}
