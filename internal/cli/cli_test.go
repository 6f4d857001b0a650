package cli

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"

	"github.com/varaku1012/quantumwala/pkg/models"
	"github.com/varaku1012/quantumwala/pkg/report"
)

func TestPrintTaskSummary(t *testing.T) {
	rep := report.Report{
		CompletionPercent: 50,
		Tasks: []report.TaskReport{
			{TaskID: "a", Status: models.CompletedTaskStatus},
			{TaskID: "b", Status: models.FailedTaskStatus, Attempts: 3, LastError: "flaky dependency refused"},
		},
	}

	var buf bytes.Buffer
	printTaskSummary(&buf, rep)
	out := buf.String()

	assert.Contains(t, out, "- a: COMPLETED\n")
	assert.Contains(t, out, "- b: FAILED (3 attempts) - flaky dependency refused\n")
	assert.Contains(t, out, "Completion: 50%\n")

	// Terminal output stays plain ASCII.
	for _, r := range out {
		assert.Less(t, r, rune(128), "non-ASCII rune %q in summary output", r)
	}
}

func TestRunCommandRegistersFlags(t *testing.T) {
	root := &cobra.Command{Use: "quantumwala"}
	SetupCLI(root)
	run, _, err := root.Find([]string{"run"})
	assert.NoError(t, err)
	for _, name := range []string{"max-concurrent", "max-attempts", "abort-after"} {
		assert.NotNil(t, run.Flags().Lookup(name), "missing --%s flag", name)
	}
}
