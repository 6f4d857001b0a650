package executor

import (
	"context"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
	"github.com/varaku1012/quantumwala/pkg/models"
)

var ErrCommandNotAllowed = errors.New("command not in allow-list")

// CommandExecutor runs a task's declared argument vector as a subprocess.
// Commands are never passed through a shell, so task descriptions cannot
// inject into the command line, and the binary must appear in the allow-list
// before anything is spawned. exec.CommandContext kills the child when the
// deadline expires, so no processes are leaked on timeout.
type CommandExecutor struct {
	// Allowed lists the permitted argv[0] values. Empty means nothing may run.
	Allowed []string
	// Dir is the working directory for spawned commands; empty inherits.
	Dir string
}

func (c CommandExecutor) Execute(ctx context.Context, task models.Task) (string, error) {
	if len(task.Command) == 0 {
		return "", errors.Errorf("task %s declares no command", task.ID)
	}
	if !c.allowed(task.Command[0]) {
		return "", errors.Wrapf(ErrCommandNotAllowed, "%q", task.Command[0])
	}

	cmd := exec.CommandContext(ctx, task.Command[0], task.Command[1:]...)
	cmd.Dir = c.Dir
	out, err := cmd.CombinedOutput()
	output := strings.TrimSpace(string(out))
	if ctx.Err() == context.DeadlineExceeded {
		return output, ErrTimeout
	}
	if err != nil {
		return output, errors.Wrapf(err, "command %q failed", task.Command[0])
	}
	return output, nil
}

func (c CommandExecutor) allowed(name string) bool {
	for _, a := range c.Allowed {
		if a == name {
			return true
		}
	}
	return false
}
