package graph

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/varaku1012/quantumwala/pkg/models"
)

// TaskGraph owns the full set of tasks in a workflow run together with their
// dependency edges. The edge structure is immutable after Build; only task
// statuses mutate. Completion callbacks arrive concurrently from in-flight
// tasks, so all status access goes through the graph's mutex.
type TaskGraph struct {
	mu         sync.Mutex
	tasks      map[string]*models.Task
	order      []string            // declaration order, for deterministic scheduling
	dependents map[string][]string // reverse edges: id -> tasks that depend on it
}

// Build constructs a TaskGraph from a static task list. It fails with
// ErrDuplicateTask, ErrUnknownDependency or ErrCycle before any task can run.
func Build(tasks []models.Task) (*TaskGraph, error) {
	g := &TaskGraph{
		tasks:      make(map[string]*models.Task, len(tasks)),
		order:      make([]string, 0, len(tasks)),
		dependents: make(map[string][]string),
	}

	for i := range tasks {
		t := tasks[i]
		if _, exists := g.tasks[t.ID]; exists {
			return nil, errors.Wrapf(ErrDuplicateTask, "%q", t.ID)
		}
		if t.Status == "" {
			t.Status = models.PendingTaskStatus
		}
		if t.MaxAttempts <= 0 {
			t.MaxAttempts = models.DefaultMaxAttempts
		}
		if t.Estimate == (models.ResourceEstimate{}) {
			t.Estimate = models.DefaultResourceEstimate
		}
		g.tasks[t.ID] = &t
		g.order = append(g.order, t.ID)
	}

	for _, id := range g.order {
		for _, dep := range g.tasks[id].Dependencies {
			if _, ok := g.tasks[dep]; !ok {
				return nil, errors.Wrapf(ErrUnknownDependency, "task %q depends on %q", id, dep)
			}
			g.dependents[dep] = append(g.dependents[dep], id)
		}
	}

	if path := g.findCycle(); path != nil {
		return nil, errors.Wrapf(ErrCycle, "%s", strings.Join(path, " -> "))
	}
	return g, nil
}

// findCycle runs DFS coloring over the dependency edges and returns a cycle
// path if one exists. Declaration order makes the reported path deterministic.
func (g *TaskGraph) findCycle() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.tasks))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		stack = append(stack, id)
		for _, dep := range g.tasks[id].Dependencies {
			switch color[dep] {
			case white:
				if visit(dep) {
					return true
				}
			case gray:
				// Trim the stack to the first occurrence of dep to report
				// only the cycle itself.
				for i, s := range stack {
					if s == dep {
						cycle = append(append([]string{}, stack[i:]...), dep)
						return true
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}

	for _, id := range g.order {
		if color[id] == white && visit(id) {
			return cycle
		}
	}
	return nil
}

// ReadyTasks returns every Pending task whose dependencies are all Completed,
// transitioning each to Ready. Ordering is stable by declaration order so that
// scheduling is reproducible. Tasks already Ready (e.g. denied an allocation
// on a previous iteration) are included again.
func (g *TaskGraph) ReadyTasks() []models.Task {
	g.mu.Lock()
	defer g.mu.Unlock()

	var ready []models.Task
	for _, id := range g.order {
		t := g.tasks[id]
		switch t.Status {
		case models.PendingTaskStatus:
			if g.depsCompleted(t) {
				t.Status = models.ReadyTaskStatus
				ready = append(ready, *t)
			}
		case models.ReadyTaskStatus:
			ready = append(ready, *t)
		}
	}
	return ready
}

func (g *TaskGraph) depsCompleted(t *models.Task) bool {
	for _, dep := range t.Dependencies {
		if g.tasks[dep].Status != models.CompletedTaskStatus {
			return false
		}
	}
	return true
}

// allowedTransition encodes the forward-only status rule. Running -> Pending
// is the retry transition; everything else advances.
func allowedTransition(from, to models.TaskStatus) bool {
	switch from {
	case models.PendingTaskStatus:
		return to == models.ReadyTaskStatus || to == models.SkippedTaskStatus
	case models.ReadyTaskStatus:
		return to == models.RunningTaskStatus || to == models.SkippedTaskStatus
	case models.RunningTaskStatus:
		return to == models.CompletedTaskStatus || to == models.FailedTaskStatus || to == models.PendingTaskStatus
	default:
		return false
	}
}

// MarkRunning transitions a Ready task to Running, increments its attempt
// counter and stamps the start time. Returns the attempt number.
func (g *TaskGraph) MarkRunning(id string) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.tasks[id]
	if !ok {
		return 0, errors.Wrapf(ErrUnknownTask, "%q", id)
	}
	if !allowedTransition(t.Status, models.RunningTaskStatus) {
		return 0, errors.Wrapf(ErrInvalidTransition, "%q: %s -> %s", id, t.Status, models.RunningTaskStatus)
	}
	t.Status = models.RunningTaskStatus
	t.Attempts++
	now := time.Now()
	t.StartedAt = &now
	return t.Attempts, nil
}

// MarkStatus updates a task's status with its result or error message. If the
// new status is Failed and the task has exhausted its attempts, the failure
// cascades: every direct and transitive dependent not yet Completed or Running
// is marked Skipped. Letting in-flight dependents of a sibling finish while
// skipping only not-yet-started work is the documented fail-fast policy.
// The returned list holds the ids of tasks skipped by the cascade.
func (g *TaskGraph) MarkStatus(id string, status models.TaskStatus, result string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	t, ok := g.tasks[id]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownTask, "%q", id)
	}
	if !allowedTransition(t.Status, status) {
		return nil, errors.Wrapf(ErrInvalidTransition, "%q: %s -> %s", id, t.Status, status)
	}

	t.Status = status
	switch status {
	case models.CompletedTaskStatus:
		t.Result = result
		now := time.Now()
		t.FinishedAt = &now
	case models.FailedTaskStatus:
		t.ErrorMsg = result
		now := time.Now()
		t.FinishedAt = &now
		return g.cascadeSkip(id), nil
	case models.PendingTaskStatus:
		// Retry transition: the error is remembered until the next attempt.
		t.ErrorMsg = result
	}
	return nil, nil
}

// cascadeSkip marks all transitive dependents of failedID as Skipped, in
// declaration order, recording which failed dependency caused each skip.
// Callers must hold g.mu.
func (g *TaskGraph) cascadeSkip(failedID string) []string {
	reach := map[string]bool{}
	var walk func(id string)
	walk = func(id string) {
		for _, dep := range g.dependents[id] {
			if !reach[dep] {
				reach[dep] = true
				walk(dep)
			}
		}
	}
	walk(failedID)

	var skipped []string
	for _, id := range g.order {
		if !reach[id] {
			continue
		}
		t := g.tasks[id]
		if t.Status != models.PendingTaskStatus && t.Status != models.ReadyTaskStatus {
			continue
		}
		t.Status = models.SkippedTaskStatus
		t.ErrorMsg = fmt.Sprintf("skipped: dependency %s failed", failedID)
		now := time.Now()
		t.FinishedAt = &now
		skipped = append(skipped, id)
	}
	return skipped
}

// Task returns a copy of the task with the given id.
func (g *TaskGraph) Task(id string) (models.Task, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.tasks[id]
	if !ok {
		return models.Task{}, errors.Wrapf(ErrUnknownTask, "%q", id)
	}
	return *t, nil
}

// Tasks returns copies of all tasks in declaration order.
func (g *TaskGraph) Tasks() []models.Task {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]models.Task, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, *g.tasks[id])
	}
	return out
}

// IsTerminal reports whether every task has reached a terminal status.
func (g *TaskGraph) IsTerminal() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, t := range g.tasks {
		if !t.Status.Terminal() {
			return false
		}
	}
	return true
}

// HasFailed reports whether any task is permanently Failed.
func (g *TaskGraph) HasFailed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, t := range g.tasks {
		if t.Status == models.FailedTaskStatus {
			return true
		}
	}
	return false
}

// Summary returns aggregate status counts for reporting.
func (g *TaskGraph) Summary() map[models.TaskStatus]int {
	g.mu.Lock()
	defer g.mu.Unlock()
	counts := make(map[models.TaskStatus]int)
	for _, t := range g.tasks {
		counts[t.Status]++
	}
	return counts
}

// Len returns the number of tasks in the graph.
func (g *TaskGraph) Len() int {
	return len(g.order)
}
