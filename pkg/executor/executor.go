// Package executor defines the pluggable boundary to whatever actually
// performs a task's work. The scheduler only observes success, failure or
// timeout; side effects live entirely inside the implementation.
package executor

import (
	"context"

	"github.com/pkg/errors"
	"github.com/varaku1012/quantumwala/pkg/models"
)

var (
	// ErrTimeout indicates the task exceeded its deadline. The underlying
	// process, if any, is guaranteed terminated before this is returned.
	ErrTimeout = errors.New("task execution timed out")
	// ErrUnknownKind indicates a task kind with no registered executor.
	ErrUnknownKind = errors.New("no executor registered for task kind")
)

// Executor runs exactly one task to completion or failure. Implementations
// must honor ctx cancellation and its deadline, returning ErrTimeout (wrapped
// or bare) when the deadline expires.
type Executor interface {
	Execute(ctx context.Context, task models.Task) (output string, err error)
}

// Func adapts a plain function to the Executor interface, the usual choice
// for deterministic tests.
type Func func(ctx context.Context, task models.Task) (string, error)

func (f Func) Execute(ctx context.Context, task models.Task) (string, error) {
	return f(ctx, task)
}

// Registry maps task kinds to concrete executors. Kinds are resolved once at
// graph-build time, so a misdeclared kind fails the run before any dispatch
// instead of surfacing mid-flight.
type Registry struct {
	executors map[string]Executor
}

func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]Executor)}
}

func (r *Registry) Register(kind string, ex Executor) {
	r.executors[kind] = ex
}

func (r *Registry) Resolve(kind string) (Executor, error) {
	ex, ok := r.executors[kind]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownKind, "%q", kind)
	}
	return ex, nil
}

// Kinds returns the registered kind names.
func (r *Registry) Kinds() []string {
	out := make([]string, 0, len(r.executors))
	for k := range r.executors {
		out = append(out, k)
	}
	return out
}
