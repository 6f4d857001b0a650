package spec_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/varaku1012/quantumwala/pkg/models"
	"github.com/varaku1012/quantumwala/pkg/spec"
)

const sampleDoc = `
name: release-pipeline
tasks:
  - id: build
    description: build the artifacts
    command: ["make", "build"]
    resource_estimate:
      cpu: 2
      memory: 4
  - id: test
    description: run the test suite
    dependencies: [build]
    max_attempts: 5
    timeout: 2m
  - id: publish
    description: publish the artifacts
    dependencies: [test]
`

func TestParse_DocumentAndDefaults(t *testing.T) {
	doc, err := spec.Parse([]byte(sampleDoc))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	assert.Equal(t, "release-pipeline", doc.Name)
	assert.Len(t, doc.Tasks, 3)

	tasks := doc.ModelTasks()

	// Declaration order is preserved.
	assert.Equal(t, "build", tasks[0].ID)
	assert.Equal(t, "test", tasks[1].ID)
	assert.Equal(t, "publish", tasks[2].ID)

	// A declared command implies kind "command"; otherwise "noop".
	assert.Equal(t, "command", tasks[0].Kind)
	assert.Equal(t, "noop", tasks[1].Kind)

	// Defaults.
	assert.Equal(t, models.DefaultMaxAttempts, tasks[0].MaxAttempts)
	assert.Equal(t, 5, tasks[1].MaxAttempts)
	assert.Equal(t, models.ResourceEstimate{CPU: 2, Memory: 4}, tasks[0].Estimate)
	assert.Equal(t, models.DefaultResourceEstimate, tasks[1].Estimate)
	assert.NotNil(t, tasks[1].Timeout)
	assert.Equal(t, models.PendingTaskStatus, tasks[2].Status)
}

func TestParse_SchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty document", ""},
		{"no tasks", "name: x\ntasks: []"},
		{"missing id", "tasks:\n  - description: no id here"},
		{"missing description", "tasks:\n  - id: a"},
		{"command kind without command", "tasks:\n  - id: a\n    description: d\n    kind: command"},
		{"non-positive estimate", "tasks:\n  - id: a\n    description: d\n    resource_estimate: {cpu: 0, memory: 1}"},
		{"not yaml at all", "{{{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := spec.Parse([]byte(tt.doc))
			assert.ErrorIs(t, err, spec.ErrInvalidSpec)
		})
	}
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spec.yaml")
	if err := os.WriteFile(path, []byte(sampleDoc), 0o644); err != nil {
		t.Fatalf("write spec file: %v", err)
	}
	doc, err := spec.Load(path)
	assert.NoError(t, err)
	assert.Equal(t, "release-pipeline", doc.Name)

	_, err = spec.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParse_DefaultName(t *testing.T) {
	doc, err := spec.Parse([]byte("tasks:\n  - id: a\n    description: d"))
	assert.NoError(t, err)
	assert.Equal(t, "workflow", doc.Name)
}

func TestApplyDefaultMaxAttempts(t *testing.T) {
	doc, err := spec.Parse([]byte(`
tasks:
  - id: pinned
    description: declares its own ceiling
    max_attempts: 5
  - id: inherits
    description: takes the run-level default
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	doc.ApplyDefaultMaxAttempts(2)
	tasks := doc.ModelTasks()
	assert.Equal(t, 5, tasks[0].MaxAttempts)
	assert.Equal(t, 2, tasks[1].MaxAttempts)

	// Non-positive values leave the document untouched.
	doc.ApplyDefaultMaxAttempts(0)
	assert.Equal(t, 2, doc.Tasks[1].MaxAttempts)
}
