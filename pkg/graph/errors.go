package graph

import "github.com/pkg/errors"

var (
	// ErrCycle indicates the dependency relation contains a cycle.
	ErrCycle = errors.New("cycle detected in dependencies")
	// ErrUnknownDependency indicates a task depends on an id not in the spec.
	ErrUnknownDependency = errors.New("unknown dependency")
	// ErrDuplicateTask indicates two tasks declared the same id.
	ErrDuplicateTask = errors.New("duplicate task id")
	// ErrUnknownTask indicates a status operation named a task not in the graph.
	ErrUnknownTask = errors.New("unknown task")
	// ErrInvalidTransition indicates a status update that would move a task
	// backwards or out of a terminal state.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// IsSpecError reports whether err is a construction-time spec error, i.e. one
// that must abort the workflow before any task is dispatched.
func IsSpecError(err error) bool {
	return errors.Is(err, ErrCycle) ||
		errors.Is(err, ErrUnknownDependency) ||
		errors.Is(err, ErrDuplicateTask)
}
