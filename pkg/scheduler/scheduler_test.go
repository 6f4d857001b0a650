package scheduler_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/varaku1012/quantumwala/pkg/budget"
	"github.com/varaku1012/quantumwala/pkg/executor"
	"github.com/varaku1012/quantumwala/pkg/graph"
	"github.com/varaku1012/quantumwala/pkg/models"
	"github.com/varaku1012/quantumwala/pkg/scheduler"
	"github.com/varaku1012/quantumwala/pkg/storage"
)

type testLogger struct{}

func (l *testLogger) Infof(format string, args ...interface{})  {}
func (l *testLogger) Errorf(format string, args ...interface{}) {}

// tracker observes execution order and concurrency from inside task bodies.
type tracker struct {
	mu      sync.Mutex
	current int
	peak    int
	order   []string
	windows map[string][2]time.Time
}

func newTracker() *tracker {
	return &tracker{windows: make(map[string][2]time.Time)}
}

func (tr *tracker) executor(delay time.Duration) executor.Func {
	return func(ctx context.Context, task models.Task) (string, error) {
		tr.mu.Lock()
		tr.current++
		if tr.current > tr.peak {
			tr.peak = tr.current
		}
		tr.order = append(tr.order, task.ID)
		start := time.Now()
		tr.mu.Unlock()

		select {
		case <-time.After(delay):
		case <-ctx.Done():
		}

		tr.mu.Lock()
		tr.current--
		tr.windows[task.ID] = [2]time.Time{start, time.Now()}
		tr.mu.Unlock()
		return "ok", nil
	}
}

func (tr *tracker) overlaps(a, b string) bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	wa, wb := tr.windows[a], tr.windows[b]
	return wa[0].Before(wb[1]) && wb[0].Before(wa[1])
}

func fastConfig() scheduler.Config {
	return scheduler.Config{
		MaxConcurrent: 4,
		TotalCPU:      16,
		TotalMemory:   16,
		TaskTimeout:   5 * time.Second,
		BackoffBase:   time.Millisecond,
		BackoffCap:    10 * time.Millisecond,
		GracePeriod:   5 * time.Second,
		PollInterval:  2 * time.Millisecond,
	}
}

func task(id string, deps ...string) models.Task {
	return models.Task{ID: id, Description: id, Kind: "work", Dependencies: deps}
}

func mustGraph(t *testing.T, tasks ...models.Task) *graph.TaskGraph {
	t.Helper()
	g, err := graph.Build(tasks)
	if err != nil {
		t.Fatalf("graph.Build: %v", err)
	}
	return g
}

func registryWith(ex executor.Executor) *executor.Registry {
	reg := executor.NewRegistry()
	reg.Register("work", ex)
	return reg
}

func TestRun_LinearChainCompletes(t *testing.T) {
	tr := newTracker()
	g := mustGraph(t, task("a"), task("b", "a"), task("c", "b"))
	store := storage.NewMockStore()

	sched, err := scheduler.New("chain", g, store, registryWith(tr.executor(5*time.Millisecond)), &testLogger{}, fastConfig())
	if err != nil {
		t.Fatalf("scheduler.New: %v", err)
	}
	run, err := sched.Run(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, models.CompletedWorkflowStatus, run.Status)
	assert.NotNil(t, run.EndedAt)

	// Execution order respects dependencies.
	assert.Equal(t, []string{"a", "b", "c"}, tr.order)

	for _, id := range []string{"a", "b", "c"} {
		status, err := store.LatestStatus(run.ID, id)
		assert.NoError(t, err)
		assert.Equal(t, models.CompletedTaskStatus, status)
	}

	stored, err := store.GetRun(run.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.CompletedWorkflowStatus, stored.Status)
	assert.NotNil(t, stored.EndedAt)
}

func TestRun_DiamondRunsBranchesConcurrently(t *testing.T) {
	tr := newTracker()
	g := mustGraph(t, task("a"), task("b", "a"), task("c", "a"), task("d", "b", "c"))
	store := storage.NewMockStore()

	cfg := fastConfig()
	cfg.MaxConcurrent = 2
	sched, err := scheduler.New("diamond", g, store, registryWith(tr.executor(30*time.Millisecond)), &testLogger{}, cfg)
	if err != nil {
		t.Fatalf("scheduler.New: %v", err)
	}
	run, err := sched.Run(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, models.CompletedWorkflowStatus, run.Status)

	// b and c overlap in time; d is dispatched last.
	assert.True(t, tr.overlaps("b", "c"), "expected b and c to run concurrently")
	assert.Equal(t, "a", tr.order[0])
	assert.Equal(t, "d", tr.order[3])
}

func TestRun_ExhaustedRetriesFailAndCascade(t *testing.T) {
	g := mustGraph(t,
		models.Task{ID: "x", Description: "x", Kind: "work", MaxAttempts: 3},
		task("y", "x"),
	)
	store := storage.NewMockStore()

	calls := 0
	var mu sync.Mutex
	reg := registryWith(executor.Func(func(ctx context.Context, task models.Task) (string, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return "", fmt.Errorf("flaky dependency refused")
	}))

	sched, err := scheduler.New("failing", g, store, reg, &testLogger{}, fastConfig())
	if err != nil {
		t.Fatalf("scheduler.New: %v", err)
	}
	run, err := sched.Run(context.Background())
	assert.NoError(t, err) // task failure is not an infrastructure error
	assert.Equal(t, models.FailedWorkflowStatus, run.Status)

	mu.Lock()
	assert.Equal(t, 3, calls)
	mu.Unlock()

	history, err := store.History(run.ID)
	assert.NoError(t, err)
	var xRecords []models.ExecutionRecord
	for _, rec := range history {
		if rec.TaskID == "x" {
			xRecords = append(xRecords, rec)
		}
	}
	assert.Len(t, xRecords, 3)
	for i, rec := range xRecords {
		assert.Equal(t, i+1, rec.Attempt)
		assert.Equal(t, models.FailedTaskStatus, rec.Status)
		assert.Contains(t, rec.Error, "flaky dependency refused")
	}

	status, err := store.LatestStatus(run.ID, "y")
	assert.NoError(t, err)
	assert.Equal(t, models.SkippedTaskStatus, status)

	// The skip record names the failed dependency.
	for _, rec := range history {
		if rec.TaskID == "y" {
			assert.Contains(t, rec.Error, "dependency x failed")
		}
	}
}

func TestRun_TransientFailureRecoversOnRetry(t *testing.T) {
	g := mustGraph(t, task("flaky"))
	store := storage.NewMockStore()

	attempts := 0
	var mu sync.Mutex
	reg := registryWith(executor.Func(func(ctx context.Context, task models.Task) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts == 1 {
			return "", fmt.Errorf("transient error")
		}
		return "recovered", nil
	}))

	sched, err := scheduler.New("retry", g, store, reg, &testLogger{}, fastConfig())
	if err != nil {
		t.Fatalf("scheduler.New: %v", err)
	}
	run, err := sched.Run(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, models.CompletedWorkflowStatus, run.Status)

	history, _ := store.History(run.ID)
	assert.Len(t, history, 2)
	assert.Equal(t, models.FailedTaskStatus, history[0].Status)
	assert.Equal(t, models.CompletedTaskStatus, history[1].Status)
	assert.Equal(t, "recovered", history[1].OutputSummary)
}

func TestRun_ResourceBudgetBoundsConcurrency(t *testing.T) {
	tr := newTracker()
	tasks := make([]models.Task, 0, 5)
	for i := 0; i < 5; i++ {
		tasks = append(tasks, models.Task{
			ID:          fmt.Sprintf("t%d", i),
			Description: "independent",
			Kind:        "work",
			Estimate:    models.ResourceEstimate{CPU: 1, Memory: 1},
		})
	}
	g := mustGraph(t, tasks...)
	store := storage.NewMockStore()

	cfg := fastConfig()
	cfg.MaxConcurrent = 5
	cfg.TotalCPU = 2
	cfg.TotalMemory = 100
	sched, err := scheduler.New("bounded", g, store, registryWith(tr.executor(20*time.Millisecond)), &testLogger{}, cfg)
	if err != nil {
		t.Fatalf("scheduler.New: %v", err)
	}
	run, err := sched.Run(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, models.CompletedWorkflowStatus, run.Status)

	// total_cpu=2 with cpu=1 per task caps parallelism at 2 even though
	// max_concurrent would allow 5.
	assert.LessOrEqual(t, tr.peak, 2)

	for i := 0; i < 5; i++ {
		status, err := store.LatestStatus(run.ID, fmt.Sprintf("t%d", i))
		assert.NoError(t, err)
		assert.Equal(t, models.CompletedTaskStatus, status)
	}
}

func TestRun_TimeoutFailsTask(t *testing.T) {
	timeout := 20 * time.Millisecond
	g := mustGraph(t, models.Task{
		ID: "slow", Description: "slow", Kind: "work",
		MaxAttempts: 1, Timeout: &timeout,
	})
	store := storage.NewMockStore()

	reg := registryWith(executor.Func(func(ctx context.Context, task models.Task) (string, error) {
		select {
		case <-time.After(time.Second):
			return "too late", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}))

	sched, err := scheduler.New("timeout", g, store, reg, &testLogger{}, fastConfig())
	if err != nil {
		t.Fatalf("scheduler.New: %v", err)
	}
	run, err := sched.Run(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, models.FailedWorkflowStatus, run.Status)

	history, _ := store.History(run.ID)
	assert.Len(t, history, 1)
	assert.Contains(t, history[0].Error, "timed out")
}

func TestRun_PersistenceOutageAbortsRun(t *testing.T) {
	g := mustGraph(t, task("t0"), task("t1"), task("t2"), task("t3"))
	store := storage.NewMockStore()
	store.FailAppendsAfter(1)

	cfg := fastConfig()
	cfg.MaxConcurrent = 1 // deterministic dispatch order
	sched, err := scheduler.New("outage", g, store, registryWith(executor.Func(
		func(ctx context.Context, task models.Task) (string, error) { return "ok", nil },
	)), &testLogger{}, cfg)
	if err != nil {
		t.Fatalf("scheduler.New: %v", err)
	}
	run, err := sched.Run(context.Background())
	assert.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrPersistence), "expected ErrPersistence, got %v", err)
	assert.Equal(t, models.AbortedWorkflowStatus, run.Status)

	// t0's record landed before the outage; nothing was dispatched after the
	// failure surfaced.
	status, err := store.LatestStatus(run.ID, "t0")
	assert.NoError(t, err)
	assert.Equal(t, models.CompletedTaskStatus, status)
	for _, id := range []string{"t2", "t3"} {
		_, err := store.LatestStatus(run.ID, id)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	}
}

func TestRun_AbortLetsInFlightFinish(t *testing.T) {
	tr := newTracker()
	g := mustGraph(t, task("long"), task("queued", "long"))
	store := storage.NewMockStore()

	cfg := fastConfig()
	sched, err := scheduler.New("abort", g, store, registryWith(tr.executor(80*time.Millisecond)), &testLogger{}, cfg)
	if err != nil {
		t.Fatalf("scheduler.New: %v", err)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		sched.Abort()
	}()
	run, err := sched.Run(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, models.AbortedWorkflowStatus, run.Status)
	assert.NotNil(t, run.EndedAt)

	// The in-flight task finished within the grace period and was recorded;
	// its dependent never dispatched.
	status, err := store.LatestStatus(run.ID, "long")
	assert.NoError(t, err)
	assert.Equal(t, models.CompletedTaskStatus, status)
	_, err = store.LatestStatus(run.ID, "queued")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRun_ContextCancellationAborts(t *testing.T) {
	tr := newTracker()
	g := mustGraph(t, task("long"))
	store := storage.NewMockStore()

	sched, err := scheduler.New("ctx-abort", g, store, registryWith(tr.executor(80*time.Millisecond)), &testLogger{}, fastConfig())
	if err != nil {
		t.Fatalf("scheduler.New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	run, err := sched.Run(ctx)
	assert.NoError(t, err)
	assert.Equal(t, models.AbortedWorkflowStatus, run.Status)
}

func TestNew_OversizedEstimateFailsBeforeDispatch(t *testing.T) {
	g := mustGraph(t, models.Task{
		ID: "huge", Description: "huge", Kind: "work",
		Estimate: models.ResourceEstimate{CPU: 5, Memory: 1},
	})
	store := storage.NewMockStore()

	cfg := fastConfig()
	cfg.TotalCPU = 2
	// An estimate that can never be granted must fail construction instead of
	// leaving the run loop waiting for an allocation that will never come.
	_, err := scheduler.New("oversized", g, store, registryWith(executor.Func(
		func(ctx context.Context, task models.Task) (string, error) { return "ok", nil },
	)), &testLogger{}, cfg)
	assert.ErrorIs(t, err, budget.ErrEstimateTooLarge)
	assert.Contains(t, err.Error(), `task "huge"`)

	runs, _ := store.ListRuns()
	assert.Empty(t, runs)
}

func TestNew_InvalidEstimateFailsBeforeDispatch(t *testing.T) {
	g := mustGraph(t, models.Task{
		ID: "bad", Description: "bad", Kind: "work",
		Estimate: models.ResourceEstimate{CPU: 1, Memory: -1},
	})
	store := storage.NewMockStore()

	_, err := scheduler.New("bad-estimate", g, store, registryWith(executor.Func(
		func(ctx context.Context, task models.Task) (string, error) { return "ok", nil },
	)), &testLogger{}, fastConfig())
	assert.ErrorIs(t, err, budget.ErrInvalidEstimate)
}

func TestNew_UnknownKindFailsBeforeDispatch(t *testing.T) {
	g := mustGraph(t, models.Task{ID: "a", Description: "a", Kind: "martian"})
	store := storage.NewMockStore()

	_, err := scheduler.New("bad-kind", g, store, executor.NewRegistry(), &testLogger{}, fastConfig())
	assert.ErrorIs(t, err, executor.ErrUnknownKind)

	// Nothing was recorded: the run never started.
	runs, _ := store.ListRuns()
	assert.Empty(t, runs)
}
