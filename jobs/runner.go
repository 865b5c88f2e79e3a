package jobs

import (
	"context"
	"time"
)

// Runner is one job's unit of work. The orchestrator owns scheduling,
// persistence and mutual exclusion; the runner owns what a cycle actually
// does.
type Runner interface {
	// Name is the unique job name, used as the StateStore key.
	Name() string
	// Defaults returns the job-specific default config persisted on first boot.
	Defaults() ConfigMap
	// RunCycle performs one cycle. Per-item failures must be recorded on the
	// cycle and swallowed; a returned error is a cycle-level failure and is
	// counted as a run with zero progress.
	RunCycle(ctx context.Context, c *Cycle) error
}

// Preflighter is an optional Runner extension. When implemented, Start
// refuses to start the job (leaving it Stopped) if Preflight fails -
// e.g. a transfer job with no valid destination.
type Preflighter interface {
	Preflight(cfg ConfigMap) error
}

// Cycle is handed to a Runner for one cycle. It carries the config snapshot
// taken at cycle start and records per-item progress back onto the job.
type Cycle struct {
	// Config is an immutable snapshot of the job config for this cycle.
	// Config changes never apply mid-cycle.
	Config ConfigMap
	// Trigger records what caused the cycle: "start", "tick", "manual", "resume".
	Trigger string

	job *Job
	seq uint64
}

// Continue reports whether the cycle may keep dispatching work. It turns
// false once Stop or Halt has been issued after this cycle began. Checked by
// the batch dispatcher before each batch; work already in flight is never
// hard-cancelled.
func (c *Cycle) Continue() bool {
	c.job.mu.Lock()
	defer c.job.mu.Unlock()
	return c.job.stopSeq == c.seq
}

// SetTotal records the number of items this cycle intends to process.
func (c *Cycle) SetTotal(n int) {
	c.job.mu.Lock()
	c.job.stats.Total = n
	c.job.mu.Unlock()
	c.job.notify()
}

// ItemStarted records the item currently being processed (advisory UI hint).
func (c *Cycle) ItemStarted(item string) {
	c.job.mu.Lock()
	c.job.stats.CurrentItem = item
	c.job.mu.Unlock()
}

// ItemSucceeded counts one successful item.
func (c *Cycle) ItemSucceeded() {
	c.job.mu.Lock()
	c.job.stats.LastRunSucceeded++
	c.job.stats.Progress++
	c.job.mu.Unlock()
	c.job.notify()
}

// ItemFailed counts one failed item. Failures never abort the batch.
func (c *Cycle) ItemFailed() {
	c.job.mu.Lock()
	c.job.stats.LastRunFailed++
	c.job.stats.Progress++
	c.job.mu.Unlock()
	c.job.notify()
}

// Status is a point-in-time snapshot of a job, safe to serialize.
type Status struct {
	Name       string    `json:"name"`
	Running    bool      `json:"running"`
	Paused     bool      `json:"paused"`
	Processing bool      `json:"processing"`
	Config     ConfigMap `json:"config"`
	Stats      RunStats  `json:"stats"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Notifier receives job status updates (lifecycle transitions and item
// progress). Implementations must not block.
type Notifier interface {
	JobUpdated(s Status)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(s Status)

func (f NotifierFunc) JobUpdated(s Status) { f(s) }

// MultiNotifier fans a status update out to several notifiers.
type MultiNotifier []Notifier

func (m MultiNotifier) JobUpdated(s Status) {
	for _, n := range m {
		n.JobUpdated(s)
	}
}
