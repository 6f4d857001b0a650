// Package report derives a workflow summary purely from the state store's
// append-only log, so any observer can produce it without access to the
// scheduler's in-memory state.
package report

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/varaku1012/quantumwala/pkg/models"
	"github.com/varaku1012/quantumwala/pkg/storage"
)

// TaskReport is the per-task slice of the final report.
type TaskReport struct {
	TaskID     string            `json:"task_id"`
	Status     models.TaskStatus `json:"status"`
	Attempts   int               `json:"attempts"`
	StartedAt  *time.Time        `json:"started_at,omitempty"`
	EndedAt    *time.Time        `json:"ended_at,omitempty"`
	LastOutput string            `json:"last_output,omitempty"`
	LastError  string            `json:"last_error,omitempty"` // for skipped tasks this names the failed dependency
}

// Report is the final artifact for one workflow run.
type Report struct {
	WorkflowID        string                `json:"workflow_id"`
	Name              string                `json:"name"`
	OverallStatus     models.WorkflowStatus `json:"overall_status"`
	StartedAt         time.Time             `json:"started_at"`
	EndedAt           *time.Time            `json:"ended_at,omitempty"`
	CompletionPercent float64               `json:"completion_percent"`
	Tasks             []TaskReport          `json:"tasks"`
}

// Build assembles the report for a run from its stored records. Completion
// percentage is completed tasks over tasks observed in the log; a run aborted
// before some tasks ever dispatched reports over the recorded subset.
func Build(st storage.Store, workflowID string) (Report, error) {
	run, err := st.GetRun(workflowID)
	if err != nil {
		return Report{}, errors.Wrapf(err, "load run %s", workflowID)
	}
	history, err := st.History(workflowID)
	if err != nil {
		return Report{}, errors.Wrapf(err, "load history for run %s", workflowID)
	}

	// Fold records per task: order of first appearance is kept, the latest
	// record wins for status and error, attempts is the highest attempt seen.
	var order []string
	perTask := make(map[string]*TaskReport)
	for _, rec := range history {
		tr, ok := perTask[rec.TaskID]
		if !ok {
			tr = &TaskReport{TaskID: rec.TaskID}
			perTask[rec.TaskID] = tr
			order = append(order, rec.TaskID)
			started := rec.StartedAt
			tr.StartedAt = &started
		}
		tr.Status = rec.Status
		tr.EndedAt = rec.EndedAt
		tr.LastOutput = rec.OutputSummary
		tr.LastError = rec.Error
		if rec.Attempt > tr.Attempts {
			tr.Attempts = rec.Attempt
		}
	}

	rep := Report{
		WorkflowID:    run.ID,
		Name:          run.Name,
		OverallStatus: run.Status,
		StartedAt:     run.StartedAt,
		EndedAt:       run.EndedAt,
	}
	completed := 0
	for _, id := range order {
		tr := perTask[id]
		rep.Tasks = append(rep.Tasks, *tr)
		if tr.Status == models.CompletedTaskStatus {
			completed++
		}
	}
	if len(order) > 0 {
		rep.CompletionPercent = 100 * float64(completed) / float64(len(order))
	}
	return rep, nil
}

// WriteJSON writes the report as an indented JSON artifact.
func WriteJSON(rep Report, path string) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode report")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "write report %s", path)
	}
	return nil
}

// WriteJSONTo streams the report as indented JSON to w.
func WriteJSONTo(rep Report, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(rep), "encode report")
}
