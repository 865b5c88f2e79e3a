package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/halcyonlabs/streamwatch/errors"
)

const (
	// DefaultIntervalMinutes is used when a job config carries no
	// intervalMinutes key.
	DefaultIntervalMinutes = 15

	// TriggerStart, TriggerTick, TriggerManual and TriggerResume identify
	// what caused a cycle.
	TriggerStart  = "start"
	TriggerTick   = "tick"
	TriggerManual = "manual"
	TriggerResume = "resume"
)

// Job is the per-job state machine: Stopped, Started (Idle or Processing),
// Paused. All public methods are its only mutators. Concurrency across jobs
// is cooperative; within one job nothing runs in parallel with itself - the
// processing guard drops overlapping cycles instead of queueing them.
type Job struct {
	name     string
	runner   Runner
	store    StateStore
	clock    Clock
	log      *zap.SugaredLogger
	notifier Notifier

	mu         sync.Mutex
	running    bool
	paused     bool
	processing bool
	config     ConfigMap
	stats      RunStats
	// stopSeq increments on every Stop/Halt. Cycles capture it at start so
	// the dispatcher can detect a stop issued mid-cycle without cancelling
	// work already in flight.
	stopSeq    uint64
	ticker     Ticker
	tickerDone chan struct{}

	cycles sync.WaitGroup
}

// newJob wires a job; used by the Manager.
func newJob(runner Runner, store StateStore, clock Clock, log *zap.SugaredLogger, notifier Notifier) *Job {
	return &Job{
		name:     runner.Name(),
		runner:   runner,
		store:    store,
		clock:    clock,
		log:      log,
		notifier: notifier,
		config:   runner.Defaults(),
	}
}

// Name returns the job's unique name.
func (j *Job) Name() string { return j.name }

// Status returns a point-in-time snapshot.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.statusLocked()
}

func (j *Job) statusLocked() Status {
	return Status{
		Name:       j.name,
		Running:    j.running,
		Paused:     j.paused,
		Processing: j.processing,
		Config:     j.config.Clone(),
		Stats:      j.stats,
		UpdatedAt:  j.clock.Now(),
	}
}

func (j *Job) notify() {
	if j.notifier == nil {
		return
	}
	j.notifier.JobUpdated(j.Status())
}

// Start transitions the job to Started. No-op with a warning if already
// started and not paused; no-op if config disables the job. Runs one cycle
// immediately (fresh data right after a restart or manual start) and
// installs the periodic ticker.
func (j *Job) Start() error {
	j.mu.Lock()
	if j.running && !j.paused {
		j.mu.Unlock()
		j.log.Warnw("Job already started", "job", j.name)
		return nil
	}
	cfg := j.config.Clone()
	j.mu.Unlock()

	if !cfg.Enabled() {
		j.log.Infow("Job disabled by config, not starting", "job", j.name)
		return nil
	}

	// Fatal start-up failure class: an unmet precondition refuses the start
	// and leaves the job Stopped. No retry loop.
	if pf, ok := j.runner.(Preflighter); ok {
		if err := pf.Preflight(cfg); err != nil {
			j.log.Errorw("Job start refused by preflight", "job", j.name, "error", err)
			return errors.Wrapf(err, "job %s failed start preconditions", j.name)
		}
	}

	if err := j.store.SaveRunningState(j.name, true, false); err != nil {
		return errors.Wrapf(err, "failed to persist running state for %s", j.name)
	}

	j.mu.Lock()
	j.running = true
	j.paused = false
	j.removeTickerLocked()
	j.installTickerLocked()
	j.mu.Unlock()

	j.log.Infow("Job started", "job", j.name, "interval_minutes", cfg.Int("intervalMinutes", DefaultIntervalMinutes))
	j.spawnCycle(TriggerStart)
	j.notify()
	return nil
}

// Stop tears down the ticker and persists running=false, paused=false.
// Terminal for the current session: a later restore will not resume a
// stopped job. Does not abort a cycle already in flight, but prevents its
// future batches.
func (j *Job) Stop() error {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		j.log.Warnw("Job already stopped", "job", j.name)
		return nil
	}
	j.stopSeq++
	j.removeTickerLocked()
	j.running = false
	j.paused = false
	j.mu.Unlock()

	if err := j.store.SaveRunningState(j.name, false, false); err != nil {
		return errors.Wrapf(err, "failed to persist stopped state for %s", j.name)
	}
	j.log.Infow("Job stopped", "job", j.name)
	j.notify()
	return nil
}

// Halt tears down the ticker only, leaving persisted state untouched. Used
// exclusively during orderly process shutdown so the next boot's restore
// sees running=true and resumes automatically. Must not be conflated with
// Stop.
func (j *Job) Halt() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	j.stopSeq++
	j.removeTickerLocked()
	j.mu.Unlock()
	j.log.Infow("Job halted for shutdown (persisted state preserved)", "job", j.name)
}

// Pause marks a started job paused and persists it. The ticker keeps firing;
// the cycle function checks paused at the top and returns without doing
// work, preserving the original tick cadence.
func (j *Job) Pause() error {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return errors.Newf("job %s is not running", j.name)
	}
	if j.paused {
		j.mu.Unlock()
		j.log.Warnw("Job already paused", "job", j.name)
		return nil
	}
	j.paused = true
	j.mu.Unlock()

	if err := j.store.SaveRunningState(j.name, true, true); err != nil {
		return errors.Wrapf(err, "failed to persist paused state for %s", j.name)
	}
	j.log.Infow("Job paused", "job", j.name)
	j.notify()
	return nil
}

// Resume clears the paused flag. For a job restored into the paused state
// (which has no ticker - see Manager.RestoreAll) this also reinstalls the
// ticker and runs an immediate cycle, mirroring Start's fresh-data
// guarantee.
func (j *Job) Resume() error {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return errors.Newf("job %s is not running", j.name)
	}
	if !j.paused {
		j.mu.Unlock()
		j.log.Warnw("Job not paused", "job", j.name)
		return nil
	}
	j.paused = false
	hadTicker := j.ticker != nil
	if !hadTicker {
		j.installTickerLocked()
	}
	j.mu.Unlock()

	if err := j.store.SaveRunningState(j.name, true, false); err != nil {
		return errors.Wrapf(err, "failed to persist resumed state for %s", j.name)
	}
	j.log.Infow("Job resumed", "job", j.name, "ticker_reinstalled", !hadTicker)
	if !hadTicker {
		j.spawnCycle(TriggerResume)
	}
	j.notify()
	return nil
}

// UpdateConfig merges partial into the job config and persists it. A running
// job is stopped first and restarted after the merge (only if the merged
// config still has enabled=true): partial config is never applied to a
// running job without a restart, avoiding tearing state changes mid-cycle.
func (j *Job) UpdateConfig(partial ConfigMap) error {
	j.mu.Lock()
	wasRunning := j.running
	j.mu.Unlock()

	if wasRunning {
		if err := j.Stop(); err != nil {
			return err
		}
	}

	j.mu.Lock()
	j.config = j.config.Merge(partial)
	merged := j.config.Clone()
	j.mu.Unlock()

	if err := j.store.SaveConfig(j.name, merged); err != nil {
		return err
	}
	j.log.Infow("Job config updated", "job", j.name, "restarting", wasRunning && merged.Enabled())

	if wasRunning && merged.Enabled() {
		return j.Start()
	}
	return nil
}

// RunNow triggers one cycle outside the schedule. Respects the processing
// guard; returns an error rather than queueing if a cycle is in flight.
func (j *Job) RunNow() error {
	j.mu.Lock()
	if j.processing {
		j.mu.Unlock()
		return errors.Newf("job %s is already processing a cycle", j.name)
	}
	if j.paused {
		j.mu.Unlock()
		return errors.Newf("job %s is paused", j.name)
	}
	j.mu.Unlock()

	j.spawnCycle(TriggerManual)
	return nil
}

// ResetStats zeroes the job's counters and persists the result.
func (j *Job) ResetStats() error {
	j.mu.Lock()
	j.stats = RunStats{}
	statsCopy := j.stats
	j.mu.Unlock()

	if err := j.store.SaveStats(j.name, &statsCopy); err != nil {
		return errors.Wrapf(err, "failed to persist reset stats for %s", j.name)
	}
	j.notify()
	return nil
}

// restorePaused puts the job into the "logically paused and waiting" state
// at boot: in-memory flags set, no ticker installed. A Resume call is
// required to actually reinstall the timer.
func (j *Job) restorePaused() {
	j.mu.Lock()
	j.running = true
	j.paused = true
	j.mu.Unlock()
	j.log.Infow("Job restored as paused; resume required to reinstall timer", "job", j.name)
	j.notify()
}

// setConfig replaces the in-memory config (used by the Manager when loading
// persisted config at registration time).
func (j *Job) setConfig(cfg ConfigMap) {
	j.mu.Lock()
	j.config = cfg
	j.mu.Unlock()
}

// setStats replaces the in-memory stats (used at registration time).
func (j *Job) setStats(stats RunStats) {
	j.mu.Lock()
	j.stats = stats
	j.mu.Unlock()
}

func (j *Job) installTickerLocked() {
	minutes := j.config.Int("intervalMinutes", DefaultIntervalMinutes)
	if minutes <= 0 {
		minutes = DefaultIntervalMinutes
	}
	interval := time.Duration(minutes) * time.Minute

	j.ticker = j.clock.NewTicker(interval)
	done := make(chan struct{})
	j.tickerDone = done
	go j.tickLoop(j.ticker, done)
}

func (j *Job) removeTickerLocked() {
	if j.ticker == nil {
		return
	}
	j.ticker.Stop()
	close(j.tickerDone)
	j.ticker = nil
	j.tickerDone = nil
}

// tickLoop fires cycles asynchronously: exclusivity is the cycle guard's
// responsibility, not the ticker's, so a long cycle drops ticks instead of
// backlogging them.
func (j *Job) tickLoop(t Ticker, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-t.C():
			j.spawnCycle(TriggerTick)
		}
	}
}

func (j *Job) spawnCycle(trigger string) {
	j.cycles.Add(1)
	go func() {
		defer j.cycles.Done()
		j.runCycle(trigger)
	}()
}

// WaitIdle blocks until no cycle is in flight. Used by tests and by orderly
// shutdown after HaltAll.
func (j *Job) WaitIdle() {
	j.cycles.Wait()
}

// runCycle is the cycle entry point for every trigger. It enforces the
// paused check and the processing guard, snapshots config, delegates to the
// runner, and persists stats at cycle end with a guaranteed processing
// clear.
func (j *Job) runCycle(trigger string) {
	j.mu.Lock()
	if j.paused {
		j.mu.Unlock()
		j.log.Debugw("Job paused, skipping cycle", "job", j.name, "trigger", trigger)
		return
	}
	if j.processing {
		j.mu.Unlock()
		j.log.Warnw("Cycle already in progress, dropping tick", "job", j.name, "trigger", trigger)
		return
	}
	j.processing = true
	cfg := j.config.Clone()
	seq := j.stopSeq
	started := j.clock.Now()
	j.stats.BeginCycle(started)
	j.mu.Unlock()
	j.notify()

	cycle := &Cycle{Config: cfg, Trigger: trigger, job: j, seq: seq}

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = errors.Newf("cycle panicked: %v", r)
			}
		}()
		return j.runner.RunCycle(context.Background(), cycle)
	}()

	finished := j.clock.Now()

	j.mu.Lock()
	j.stats.EndCycle(started, finished)
	statsCopy := j.stats
	j.processing = false
	j.mu.Unlock()

	if err != nil {
		// Cycle-level failure: logged, counted as a run with zero progress.
		j.log.Errorw("Cycle failed", "job", j.name, "trigger", trigger, "error", err)
	} else {
		j.log.Infow("Cycle complete",
			"job", j.name,
			"trigger", trigger,
			"succeeded", statsCopy.LastRunSucceeded,
			"failed", statsCopy.LastRunFailed,
			"duration_ms", statsCopy.LastRunDurationMs)
	}

	if serr := j.store.SaveStats(j.name, &statsCopy); serr != nil {
		j.log.Warnw("Failed to persist cycle stats", "job", j.name, "error", serr)
	}
	j.notify()
}
