package report_test

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/varaku1012/quantumwala/pkg/models"
	"github.com/varaku1012/quantumwala/pkg/report"
	"github.com/varaku1012/quantumwala/pkg/storage"
)

func seedStore(t *testing.T) *storage.MockStore {
	t.Helper()
	st := storage.NewMockStore()
	started := time.Now().Add(-time.Minute)
	ended := time.Now()
	if err := st.SaveRun(models.WorkflowRun{
		ID: "wf1", Name: "demo", Status: models.FailedWorkflowStatus,
		StartedAt: started, EndedAt: &ended,
	}); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	add := func(taskID string, attempt int, status models.TaskStatus, output, errMsg string) {
		now := time.Now()
		if err := st.Append(models.ExecutionRecord{
			WorkflowID: "wf1", TaskID: taskID, Attempt: attempt, Status: status,
			StartedAt: now, EndedAt: &now, OutputSummary: output, Error: errMsg,
		}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	add("a", 1, models.CompletedTaskStatus, "built", "")
	add("b", 1, models.FailedTaskStatus, "", "transient")
	add("b", 2, models.FailedTaskStatus, "", "permanent")
	add("c", 0, models.SkippedTaskStatus, "", "skipped: dependency b failed")
	return st
}

func TestBuild_FoldsHistoryPerTask(t *testing.T) {
	rep, err := report.Build(seedStore(t), "wf1")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	assert.Equal(t, "wf1", rep.WorkflowID)
	assert.Equal(t, models.FailedWorkflowStatus, rep.OverallStatus)
	assert.Len(t, rep.Tasks, 3)

	// Tasks appear in first-record order with the latest record winning.
	assert.Equal(t, "a", rep.Tasks[0].TaskID)
	assert.Equal(t, models.CompletedTaskStatus, rep.Tasks[0].Status)
	assert.Equal(t, "built", rep.Tasks[0].LastOutput)

	assert.Equal(t, "b", rep.Tasks[1].TaskID)
	assert.Equal(t, models.FailedTaskStatus, rep.Tasks[1].Status)
	assert.Equal(t, 2, rep.Tasks[1].Attempts)
	assert.Equal(t, "permanent", rep.Tasks[1].LastError)

	assert.Equal(t, "c", rep.Tasks[2].TaskID)
	assert.Equal(t, models.SkippedTaskStatus, rep.Tasks[2].Status)
	assert.Contains(t, rep.Tasks[2].LastError, "dependency b failed")

	// 1 of 3 recorded tasks completed.
	assert.InDelta(t, 33.3, rep.CompletionPercent, 0.5)
}

func TestBuild_UnknownRun(t *testing.T) {
	_, err := report.Build(storage.NewMockStore(), "ghost")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestWriteJSON_RoundTrips(t *testing.T) {
	rep, err := report.Build(seedStore(t), "wf1")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	path := filepath.Join(t.TempDir(), "report.json")
	assert.NoError(t, report.WriteJSON(rep, path))

	var buf bytes.Buffer
	assert.NoError(t, report.WriteJSONTo(rep, &buf))
	var decoded report.Report
	assert.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, rep.WorkflowID, decoded.WorkflowID)
	assert.Len(t, decoded.Tasks, 3)
}
