// Package resource tracks the time budget and hardware parallelism for a
// single fit call. A Tracker is explicit state passed into every engine
// component rather than an ambient global, which keeps fits reentrant and
// testable in isolation.
package resource

import (
	"context"
	"time"
)

// GPU describes one detected accelerator device.
type GPU struct {
	Index    int
	MemoryMB int
}

// Parallelism is the hardware capacity snapshot taken once at fit start.
// Re-querying mid-fit is disallowed: co-located jobs could otherwise make
// consecutive probes disagree and cause over-subscription.
type Parallelism struct {
	CPUCores int
	GPUs     []GPU
}

// NumGPUs returns the detected device count.
func (p Parallelism) NumGPUs() int {
	return len(p.GPUs)
}

// Tracker converts a user-level time budget into a remaining-time clock
// shared by all downstream steps, and caches the parallelism probe for
// the duration of the fit.
type Tracker struct {
	start  time.Time
	budget time.Duration
	grace  time.Duration
	par    Parallelism
	now    func() time.Time
}

// NewTracker probes the host once and starts the budget clock. grace is
// the extra time an in-flight candidate may use after the budget expires.
func NewTracker(budget, grace time.Duration) *Tracker {
	return NewTrackerWithParallelism(budget, grace, Detect())
}

// NewTrackerWithParallelism starts a tracker with an explicit capacity
// snapshot. Used by tests and by callers that probe capacity themselves.
func NewTrackerWithParallelism(budget, grace time.Duration, par Parallelism) *Tracker {
	t := &Tracker{
		budget: budget,
		grace:  grace,
		par:    par,
		now:    time.Now,
	}
	t.start = t.now()
	return t
}

// Parallelism returns the capacity snapshot taken at fit start.
func (t *Tracker) Parallelism() Parallelism {
	return t.par
}

// Remaining returns the time left against the original budget minus
// elapsed wall time. Never negative.
func (t *Tracker) Remaining() time.Duration {
	left := t.budget - t.now().Sub(t.start)
	if left < 0 {
		return 0
	}
	return left
}

// Exhausted reports whether the budget has run out.
func (t *Tracker) Exhausted() bool {
	return t.Remaining() <= 0
}

// Grace returns the per-candidate grace period.
func (t *Tracker) Grace() time.Duration {
	return t.grace
}

// Context derives a context that expires at the budget deadline plus the
// grace period. In-flight candidates run under this context, so they may
// finish within the grace window but no later.
func (t *Tracker) Context(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithDeadline(ctx, t.start.Add(t.budget+t.grace))
}
