// Package scheduler drives a workflow run: it batches ready tasks against the
// resource budget, dispatches them to executors, records every attempt in the
// state store and finalizes the run once the graph is terminal.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/varaku1012/quantumwala/pkg/budget"
	"github.com/varaku1012/quantumwala/pkg/executor"
	"github.com/varaku1012/quantumwala/pkg/graph"
	"github.com/varaku1012/quantumwala/pkg/models"
	"github.com/varaku1012/quantumwala/pkg/storage"
)

// Logger defines the logging interface for the scheduler.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

const (
	DefaultTaskTimeout  = 60 * time.Second
	DefaultBackoffBase  = 200 * time.Millisecond
	DefaultBackoffCap   = 30 * time.Second
	DefaultGracePeriod  = 30 * time.Second
	DefaultPollInterval = 25 * time.Millisecond

	// outputSummaryLimit caps how much task output is copied into a record.
	outputSummaryLimit = 1024
)

// Config holds the run parameters for one workflow.
type Config struct {
	MaxConcurrent int
	TotalCPU      float64
	TotalMemory   float64
	TaskTimeout   time.Duration // default deadline per attempt
	BackoffBase   time.Duration // retry delay is base * 2^attempts, capped
	BackoffCap    time.Duration
	GracePeriod   time.Duration // how long in-flight tasks get after an abort
	PollInterval  time.Duration // loop wake-up when nothing was dispatched
}

func (c *Config) withDefaults() {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 4
	}
	if c.TotalCPU <= 0 {
		c.TotalCPU = float64(c.MaxConcurrent)
	}
	if c.TotalMemory <= 0 {
		c.TotalMemory = float64(c.MaxConcurrent)
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = DefaultTaskTimeout
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = DefaultBackoffCap
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = DefaultGracePeriod
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
}

// outcome is delivered by a dispatch goroutine when its task finishes.
type outcome struct {
	taskID    string
	attempt   int
	startedAt time.Time
	output    string
	err       error
	alloc     *budget.Allocation
}

// Scheduler owns the resource budget and drives one WorkflowRun to
// completion. The control loop is single-threaded: only it mutates graph
// statuses and only it appends to the store, while task bodies run in
// parallel goroutines bounded by the budget.
type Scheduler struct {
	graph     *graph.TaskGraph
	store     storage.Store
	budget    *budget.Budget
	executors map[string]executor.Executor
	logger    Logger
	cfg       Config
	run       models.WorkflowRun
	done      chan outcome
	abortCh   chan struct{}
	abortOnce sync.Once
}

// New builds a scheduler for the given graph. Every task kind is resolved
// against the registry and every resource estimate checked against the budget
// totals here, so an unknown kind or an unsatisfiable estimate fails before
// any dispatch.
func New(name string, g *graph.TaskGraph, st storage.Store, reg *executor.Registry, logger Logger, cfg Config) (*Scheduler, error) {
	cfg.withDefaults()
	b := budget.New(cfg.TotalCPU, cfg.TotalMemory, cfg.MaxConcurrent)

	executors := make(map[string]executor.Executor)
	for _, t := range g.Tasks() {
		if err := budget.Validate(t.Estimate); err != nil {
			return nil, errors.Wrapf(err, "task %q", t.ID)
		}
		if err := b.Fits(t.Estimate); err != nil {
			return nil, errors.Wrapf(err, "task %q", t.ID)
		}
		if _, ok := executors[t.Kind]; ok {
			continue
		}
		ex, err := reg.Resolve(t.Kind)
		if err != nil {
			return nil, errors.Wrapf(err, "task %q", t.ID)
		}
		executors[t.Kind] = ex
	}

	return &Scheduler{
		graph:     g,
		store:     st,
		budget:    b,
		executors: executors,
		logger:    logger,
		cfg:       cfg,
		run: models.WorkflowRun{
			ID:        uuid.NewString(),
			Name:      name,
			Status:    models.RunningWorkflowStatus,
			StartedAt: time.Now(),
		},
		done:    make(chan outcome),
		abortCh: make(chan struct{}),
	}, nil
}

// RunID returns the identifier assigned to this workflow run.
func (s *Scheduler) RunID() string {
	return s.run.ID
}

// Abort requests cancellation. The main loop stops issuing new dispatches,
// in-flight tasks get the configured grace period to finish, then their
// contexts are cancelled.
func (s *Scheduler) Abort() {
	s.abortOnce.Do(func() { close(s.abortCh) })
}

// Run executes the workflow to a terminal state. The returned run carries the
// overall status; the error is non-nil only for infrastructure failures
// (persistence loss, run-row write failure), never for ordinary task failure.
func (s *Scheduler) Run(ctx context.Context) (models.WorkflowRun, error) {
	if err := s.store.SaveRun(s.run); err != nil {
		return s.run, errors.Wrap(err, "record workflow run")
	}
	s.logger.Infof("Workflow %s (%s) started with %d tasks", s.run.Name, s.run.ID, s.graph.Len())

	// dispatchCtx outlives an abort request so in-flight tasks can finish
	// within the grace period; forceCancel kills them when it expires.
	dispatchCtx, forceCancel := context.WithCancel(context.Background())
	defer forceCancel()

	var (
		inflight     int
		aborted      bool
		fatalErr     error
		backoffUntil = make(map[string]time.Time)
		graceExpiry  <-chan time.Time
		externalDone = ctx.Done()
		abortCh      = s.abortCh
	)

	requestAbort := func(reason string, cause error) {
		if aborted {
			return
		}
		aborted = true
		if cause != nil && fatalErr == nil {
			fatalErr = cause
		}
		graceExpiry = time.After(s.cfg.GracePeriod)
		externalDone = nil
		abortCh = nil
		s.logger.Infof("Workflow %s aborting (%s), %d task(s) in flight", s.run.ID, reason, inflight)
	}

	recordAttempt := func(rec models.ExecutionRecord) {
		if err := s.store.Append(rec); err != nil {
			s.logger.Errorf("Failed to append record for task %s: %v", rec.TaskID, err)
			requestAbort("persistence failure", errors.Wrap(err, "append execution record"))
		}
	}

	handleOutcome := func(out outcome) {
		out.alloc.Release()
		ended := time.Now()
		rec := models.ExecutionRecord{
			WorkflowID:    s.run.ID,
			TaskID:        out.taskID,
			Attempt:       out.attempt,
			StartedAt:     out.startedAt,
			EndedAt:       &ended,
			OutputSummary: summarize(out.output),
		}

		if out.err == nil {
			rec.Status = models.CompletedTaskStatus
			recordAttempt(rec)
			if _, err := s.graph.MarkStatus(out.taskID, models.CompletedTaskStatus, out.output); err != nil {
				s.logger.Errorf("Failed to mark task %s completed: %v", out.taskID, err)
			}
			s.logger.Infof("Task %s completed (attempt %d)", out.taskID, out.attempt)
			return
		}

		rec.Status = models.FailedTaskStatus
		rec.Error = out.err.Error()
		recordAttempt(rec)

		task, err := s.graph.Task(out.taskID)
		if err != nil {
			s.logger.Errorf("Unknown task %s in outcome: %v", out.taskID, err)
			return
		}
		if task.Attempts < task.MaxAttempts && !aborted {
			delay := retryBackoff(s.cfg.BackoffBase, s.cfg.BackoffCap, task.Attempts)
			backoffUntil[out.taskID] = time.Now().Add(delay)
			if _, err := s.graph.MarkStatus(out.taskID, models.PendingTaskStatus, out.err.Error()); err != nil {
				s.logger.Errorf("Failed to requeue task %s: %v", out.taskID, err)
				return
			}
			s.logger.Infof("Task %s failed (attempt %d/%d), retrying in %s: %v",
				out.taskID, task.Attempts, task.MaxAttempts, delay, out.err)
			return
		}

		skipped, err := s.graph.MarkStatus(out.taskID, models.FailedTaskStatus, out.err.Error())
		if err != nil {
			s.logger.Errorf("Failed to mark task %s failed: %v", out.taskID, err)
			return
		}
		s.logger.Infof("Task %s failed permanently after %d attempt(s): %v", out.taskID, task.Attempts, out.err)
		for _, id := range skipped {
			skippedTask, _ := s.graph.Task(id)
			now := time.Now()
			recordAttempt(models.ExecutionRecord{
				WorkflowID: s.run.ID,
				TaskID:     id,
				Attempt:    0,
				Status:     models.SkippedTaskStatus,
				StartedAt:  now,
				EndedAt:    &now,
				Error:      skippedTask.ErrorMsg,
			})
			s.logger.Infof("Task %s skipped: dependency %s failed", id, out.taskID)
		}
	}

	for {
		if !aborted {
			now := time.Now()
			for _, t := range s.graph.ReadyTasks() {
				if until, ok := backoffUntil[t.ID]; ok && now.Before(until) {
					continue
				}
				alloc := s.budget.TryAcquire(t.Estimate)
				if alloc == nil {
					// Denied allocations are normal flow control: the task
					// stays Ready for the next iteration.
					continue
				}
				attempt, err := s.graph.MarkRunning(t.ID)
				if err != nil {
					alloc.Release()
					s.logger.Errorf("Failed to mark task %s running: %v", t.ID, err)
					continue
				}
				delete(backoffUntil, t.ID)
				inflight++
				task, _ := s.graph.Task(t.ID)
				go s.dispatch(dispatchCtx, task, attempt, alloc)
			}
		}

		if inflight == 0 {
			if aborted {
				return s.finalize(models.AbortedWorkflowStatus, fatalErr)
			}
			if s.graph.IsTerminal() {
				status := models.CompletedWorkflowStatus
				if s.graph.HasFailed() {
					status = models.FailedWorkflowStatus
				}
				return s.finalize(status, nil)
			}
		}

		select {
		case out := <-s.done:
			inflight--
			handleOutcome(out)
		case <-time.After(s.cfg.PollInterval):
			// Wake to re-check backoff expiries.
		case <-externalDone:
			requestAbort("context cancelled", nil)
		case <-abortCh:
			requestAbort("abort requested", nil)
		case <-graceExpiry:
			s.logger.Infof("Grace period expired for workflow %s, cancelling %d in-flight task(s)", s.run.ID, inflight)
			forceCancel()
			graceExpiry = nil
		}
	}
}

// dispatch runs one task attempt in its own goroutine and always delivers an
// outcome, releasing nothing itself: the loop owns allocation release so the
// budget has a single mutation path per attempt.
func (s *Scheduler) dispatch(ctx context.Context, task models.Task, attempt int, alloc *budget.Allocation) {
	started := time.Now()
	timeout := s.cfg.TaskTimeout
	if task.Timeout != nil {
		timeout = *task.Timeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.logger.Infof("Dispatching task %s (attempt %d)", task.ID, attempt)
	output, err := s.executors[task.Kind].Execute(execCtx, task)
	if errors.Is(err, context.DeadlineExceeded) || (err == nil && execCtx.Err() == context.DeadlineExceeded) {
		err = executor.ErrTimeout
	}

	s.done <- outcome{
		taskID:    task.ID,
		attempt:   attempt,
		startedAt: started,
		output:    output,
		err:       err,
		alloc:     alloc,
	}
}

func (s *Scheduler) finalize(status models.WorkflowStatus, fatalErr error) (models.WorkflowRun, error) {
	now := time.Now()
	s.run.Status = status
	s.run.EndedAt = &now
	if err := s.store.SaveRun(s.run); err != nil {
		s.logger.Errorf("Failed to record final status for workflow %s: %v", s.run.ID, err)
		if fatalErr == nil {
			fatalErr = errors.Wrap(err, "record final run status")
		}
	}
	summary := s.graph.Summary()
	s.logger.Infof("Workflow %s finished with status %s: %d completed, %d failed, %d skipped",
		s.run.ID, status,
		summary[models.CompletedTaskStatus],
		summary[models.FailedTaskStatus],
		summary[models.SkippedTaskStatus])
	return s.run, fatalErr
}

// retryBackoff computes base * 2^attempts, capped.
func retryBackoff(base, maxDelay time.Duration, attempts int) time.Duration {
	d := base
	for i := 0; i < attempts; i++ {
		d *= 2
		if d >= maxDelay {
			return maxDelay
		}
	}
	return d
}

func summarize(output string) string {
	if len(output) > outputSummaryLimit {
		return output[:outputSummaryLimit]
	}
	return output
}
