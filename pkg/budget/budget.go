// Package budget gates concurrency so the scheduler never exceeds declared
// system capacity. Units are abstract numbers supplied by task declarations;
// mapping them to real CPU or memory is an external concern.
package budget

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/varaku1012/quantumwala/pkg/models"
)

var (
	ErrInvalidEstimate  = errors.New("resource estimate must be positive")
	ErrEstimateTooLarge = errors.New("resource estimate exceeds total budget")
)

// Budget tracks available CPU/memory quota and a concurrency ceiling for one
// workflow run. It is purely in-memory and never persisted.
type Budget struct {
	mu          sync.Mutex
	totalCPU    float64
	totalMemory float64
	usedCPU     float64
	usedMemory  float64
	maxConcur   int
	outstanding int
}

// Allocation is a granted reservation of budget units for the duration of one
// task's execution. Release is idempotent.
type Allocation struct {
	b        *Budget
	estimate models.ResourceEstimate
	released bool
	mu       sync.Mutex
}

func New(totalCPU, totalMemory float64, maxConcurrent int) *Budget {
	return &Budget{
		totalCPU:    totalCPU,
		totalMemory: totalMemory,
		maxConcur:   maxConcurrent,
	}
}

// TryAcquire grants an allocation if the estimate fits the remaining budget
// and the concurrency ceiling. A nil return is normal flow control, not an
// error: the caller leaves the task Ready and retries next iteration.
func (b *Budget) TryAcquire(estimate models.ResourceEstimate) *Allocation {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.usedCPU+estimate.CPU > b.totalCPU ||
		b.usedMemory+estimate.Memory > b.totalMemory ||
		b.outstanding >= b.maxConcur {
		return nil
	}
	b.usedCPU += estimate.CPU
	b.usedMemory += estimate.Memory
	b.outstanding++
	return &Allocation{b: b, estimate: estimate}
}

// Release returns the reserved units. Releasing an already-released
// allocation is a no-op, guarding against double-release on overlapping
// failure paths.
func (a *Allocation) Release() {
	if a == nil {
		return
	}
	a.mu.Lock()
	if a.released {
		a.mu.Unlock()
		return
	}
	a.released = true
	a.mu.Unlock()

	a.b.mu.Lock()
	a.b.usedCPU -= a.estimate.CPU
	a.b.usedMemory -= a.estimate.Memory
	a.b.outstanding--
	a.b.mu.Unlock()
}

// InUse returns the currently reserved units and outstanding allocation
// count. Used by tests asserting the resource-safety invariant.
func (b *Budget) InUse() (cpu, memory float64, outstanding int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.usedCPU, b.usedMemory, b.outstanding
}

// Validate rejects non-positive estimates before scheduler construction
// admits them into a run.
func Validate(estimate models.ResourceEstimate) error {
	if estimate.CPU <= 0 || estimate.Memory <= 0 {
		return errors.Wrapf(ErrInvalidEstimate, "cpu=%v memory=%v", estimate.CPU, estimate.Memory)
	}
	return nil
}

// Fits rejects an estimate that exceeds the budget's totals. Such a task
// could never be granted an allocation and would leave the run loop spinning,
// so callers must fail the run before any dispatch.
func (b *Budget) Fits(estimate models.ResourceEstimate) error {
	if estimate.CPU > b.totalCPU || estimate.Memory > b.totalMemory {
		return errors.Wrapf(ErrEstimateTooLarge, "cpu=%v of %v, memory=%v of %v",
			estimate.CPU, b.totalCPU, estimate.Memory, b.totalMemory)
	}
	return nil
}
