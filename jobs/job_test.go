package jobs

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memStore is an in-memory StateStore for lifecycle tests.
type memStore struct {
	mu     sync.Mutex
	states map[string]*JobState
}

func newMemStore() *memStore {
	return &memStore{states: make(map[string]*JobState)}
}

func (s *memStore) Ensure(name string, defaults ConfigMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.states[name]; ok {
		return nil
	}
	s.states[name] = &JobState{
		Name:      name,
		Config:    defaults.Clone(),
		UpdatedAt: time.Now(),
	}
	return nil
}

func (s *memStore) Load(name string) (*JobState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[name]
	if !ok {
		return nil, nil
	}
	cp := *st
	cp.Config = st.Config.Clone()
	return &cp, nil
}

func (s *memStore) SaveConfig(name string, cfg ConfigMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[name]
	if !ok {
		return errNoSuchJob(name)
	}
	st.Config = cfg.Clone()
	return nil
}

func (s *memStore) SaveRunningState(name string, running, paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[name]
	if !ok {
		return errNoSuchJob(name)
	}
	st.Running = running
	st.Paused = paused
	return nil
}

func (s *memStore) SaveStats(name string, stats *RunStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[name]
	if !ok {
		return errNoSuchJob(name)
	}
	st.Stats = *stats
	return nil
}

func errNoSuchJob(name string) error {
	return &noSuchJobError{name: name}
}

type noSuchJobError struct{ name string }

func (e *noSuchJobError) Error() string { return "job state not found: " + e.name }

// fakeRunner records cycle triggers; onCycle (optional) does per-test work.
type fakeRunner struct {
	name     string
	defaults ConfigMap
	onCycle  func(ctx context.Context, c *Cycle) error

	mu       sync.Mutex
	triggers []string
}

func (r *fakeRunner) Name() string { return r.name }

func (r *fakeRunner) Defaults() ConfigMap {
	if r.defaults == nil {
		return ConfigMap{"intervalMinutes": DefaultIntervalMinutes}
	}
	return r.defaults.Clone()
}

func (r *fakeRunner) RunCycle(ctx context.Context, c *Cycle) error {
	r.mu.Lock()
	r.triggers = append(r.triggers, c.Trigger)
	r.mu.Unlock()
	if r.onCycle != nil {
		return r.onCycle(ctx, c)
	}
	return nil
}

func (r *fakeRunner) runs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.triggers)
}

func (r *fakeRunner) triggerList() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.triggers))
	copy(out, r.triggers)
	return out
}

// preflightRunner refuses to start when preflightErr is set.
type preflightRunner struct {
	fakeRunner
	preflightErr error
}

func (r *preflightRunner) Preflight(cfg ConfigMap) error { return r.preflightErr }

func newTestHarness(t *testing.T, r Runner) (*Manager, *Job, *memStore, *FakeClock) {
	t.Helper()
	store := newMemStore()
	clock := NewFakeClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	m := NewManager(store, clock, zap.NewNop().Sugar(), nil)
	job, err := m.Register(r)
	require.NoError(t, err)
	return m, job, store, clock
}

func waitForRuns(t *testing.T, r *fakeRunner, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return r.runs() >= n
	}, 2*time.Second, 5*time.Millisecond)
}

func TestStartRunsImmediateCycleAndInstallsTicker(t *testing.T) {
	fr := &fakeRunner{name: "alpha"}
	_, job, store, clock := newTestHarness(t, fr)

	require.NoError(t, job.Start())
	job.WaitIdle()

	assert.Equal(t, []string{TriggerStart}, fr.triggerList())
	assert.Equal(t, 1, clock.ActiveTickers())

	st, err := store.Load("alpha")
	require.NoError(t, err)
	assert.True(t, st.Running)
	assert.False(t, st.Paused)
	assert.Equal(t, int64(1), st.Stats.TotalRuns)
}

func TestStartWhileStartedIsNoOp(t *testing.T) {
	fr := &fakeRunner{name: "alpha"}
	_, job, _, clock := newTestHarness(t, fr)

	require.NoError(t, job.Start())
	job.WaitIdle()
	require.NoError(t, job.Start())
	job.WaitIdle()

	assert.Equal(t, 1, fr.runs())
	assert.Equal(t, 1, clock.ActiveTickers())
}

func TestStartDisabledConfigIsNoOp(t *testing.T) {
	fr := &fakeRunner{name: "alpha", defaults: ConfigMap{"enabled": false}}
	_, job, store, clock := newTestHarness(t, fr)

	require.NoError(t, job.Start())
	job.WaitIdle()

	assert.Equal(t, 0, fr.runs())
	assert.Equal(t, 0, clock.ActiveTickers())

	st, err := store.Load("alpha")
	require.NoError(t, err)
	assert.False(t, st.Running)
}

func TestPreflightFailureRefusesStart(t *testing.T) {
	fr := &preflightRunner{
		fakeRunner:   fakeRunner{name: "alpha"},
		preflightErr: errNoSuchJob("destination missing"),
	}
	store := newMemStore()
	clock := NewFakeClock(time.Now())
	m := NewManager(store, clock, zap.NewNop().Sugar(), nil)
	job, err := m.Register(fr)
	require.NoError(t, err)

	require.Error(t, job.Start())
	job.WaitIdle()

	assert.Equal(t, 0, fr.runs())
	assert.Equal(t, 0, clock.ActiveTickers())
	assert.False(t, job.Status().Running)

	st, err := store.Load("alpha")
	require.NoError(t, err)
	assert.False(t, st.Running)
}

func TestTickTriggersCycle(t *testing.T) {
	fr := &fakeRunner{name: "alpha"}
	_, job, _, clock := newTestHarness(t, fr)

	require.NoError(t, job.Start())
	job.WaitIdle()

	clock.Tick()
	waitForRuns(t, fr, 2)
	job.WaitIdle()

	assert.Equal(t, []string{TriggerStart, TriggerTick}, fr.triggerList())
}

func TestStopPersistsAndRemovesTicker(t *testing.T) {
	fr := &fakeRunner{name: "alpha"}
	_, job, store, clock := newTestHarness(t, fr)

	require.NoError(t, job.Start())
	job.WaitIdle()
	require.NoError(t, job.Stop())

	assert.Equal(t, 0, clock.ActiveTickers())
	st, err := store.Load("alpha")
	require.NoError(t, err)
	assert.False(t, st.Running)
	assert.False(t, st.Paused)

	// A tick after stop must not trigger anything.
	clock.Tick()
	time.Sleep(50 * time.Millisecond)
	job.WaitIdle()
	assert.Equal(t, 1, fr.runs())
}

func TestHaltPreservesPersistedState(t *testing.T) {
	fr := &fakeRunner{name: "alpha"}
	_, job, store, clock := newTestHarness(t, fr)

	require.NoError(t, job.Start())
	job.WaitIdle()
	job.Halt()

	assert.Equal(t, 0, clock.ActiveTickers())
	st, err := store.Load("alpha")
	require.NoError(t, err)
	assert.True(t, st.Running, "halt must leave persisted running state untouched")
	assert.False(t, st.Paused)
}

func TestPauseSkipsCyclesButKeepsTicker(t *testing.T) {
	fr := &fakeRunner{name: "alpha"}
	_, job, store, clock := newTestHarness(t, fr)

	require.NoError(t, job.Start())
	job.WaitIdle()
	require.NoError(t, job.Pause())

	assert.Equal(t, 1, clock.ActiveTickers(), "pause keeps the ticker installed")

	clock.Tick()
	time.Sleep(50 * time.Millisecond)
	job.WaitIdle()
	assert.Equal(t, 1, fr.runs(), "paused cycles are skipped at the top")

	st, err := store.Load("alpha")
	require.NoError(t, err)
	assert.True(t, st.Running)
	assert.True(t, st.Paused)

	// Resume on a job that kept its ticker does not run an immediate cycle.
	require.NoError(t, job.Resume())
	job.WaitIdle()
	assert.Equal(t, 1, fr.runs())
	assert.Equal(t, 1, clock.ActiveTickers())

	clock.Tick()
	waitForRuns(t, fr, 2)
	job.WaitIdle()
	assert.Equal(t, []string{TriggerStart, TriggerTick}, fr.triggerList())
}

func TestPauseRequiresStartedJob(t *testing.T) {
	fr := &fakeRunner{name: "alpha"}
	_, job, _, _ := newTestHarness(t, fr)

	assert.Error(t, job.Pause())
	assert.Error(t, job.Resume())
}

func TestRunNowOnStoppedJob(t *testing.T) {
	fr := &fakeRunner{name: "alpha"}
	_, job, store, _ := newTestHarness(t, fr)

	require.NoError(t, job.RunNow())
	job.WaitIdle()

	assert.Equal(t, []string{TriggerManual}, fr.triggerList())

	st, err := store.Load("alpha")
	require.NoError(t, err)
	assert.False(t, st.Running, "manual run does not start the schedule")
	assert.Equal(t, int64(1), st.Stats.TotalRuns)
}

func TestRunNowRejectedWhileProcessing(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	fr := &fakeRunner{name: "alpha"}
	fr.onCycle = func(ctx context.Context, c *Cycle) error {
		close(entered)
		<-release
		return nil
	}
	_, job, _, _ := newTestHarness(t, fr)

	require.NoError(t, job.RunNow())
	<-entered

	assert.Error(t, job.RunNow())

	close(release)
	job.WaitIdle()
	assert.Equal(t, 1, fr.runs())
}

func TestRunNowRejectedWhilePaused(t *testing.T) {
	fr := &fakeRunner{name: "alpha"}
	_, job, _, _ := newTestHarness(t, fr)

	require.NoError(t, job.Start())
	job.WaitIdle()
	require.NoError(t, job.Pause())

	assert.Error(t, job.RunNow())
}

func TestOverlappingTickIsDropped(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	fr := &fakeRunner{name: "alpha"}
	fr.onCycle = func(ctx context.Context, c *Cycle) error {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		return nil
	}
	_, job, store, clock := newTestHarness(t, fr)

	require.NoError(t, job.Start())
	<-entered

	clock.Tick()
	time.Sleep(100 * time.Millisecond)

	close(release)
	job.WaitIdle()

	assert.Equal(t, 1, fr.runs(), "overlapping tick must be dropped, not queued")
	st, err := store.Load("alpha")
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Stats.TotalRuns)
}

func TestContinueTurnsFalseAfterStop(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var cyc *Cycle
	fr := &fakeRunner{name: "alpha"}
	fr.onCycle = func(ctx context.Context, c *Cycle) error {
		cyc = c
		close(entered)
		<-release
		return nil
	}
	_, job, _, _ := newTestHarness(t, fr)

	require.NoError(t, job.Start())
	<-entered

	assert.True(t, cyc.Continue())
	require.NoError(t, job.Stop())
	assert.False(t, cyc.Continue(), "stop mid-cycle must flip Continue for the in-flight cycle")

	close(release)
	job.WaitIdle()
}

func TestUpdateConfigRestartsRunningJob(t *testing.T) {
	fr := &fakeRunner{name: "alpha"}
	_, job, store, clock := newTestHarness(t, fr)

	require.NoError(t, job.Start())
	job.WaitIdle()

	require.NoError(t, job.UpdateConfig(ConfigMap{"intervalMinutes": 5, "batchSize": 10}))
	waitForRuns(t, fr, 2)
	job.WaitIdle()

	assert.Equal(t, []string{TriggerStart, TriggerStart}, fr.triggerList())
	assert.True(t, job.Status().Running)
	assert.Equal(t, 1, clock.ActiveTickers())

	st, err := store.Load("alpha")
	require.NoError(t, err)
	assert.Equal(t, 5, st.Config.Int("intervalMinutes", 0))
	assert.Equal(t, 10, st.Config.Int("batchSize", 0))
	assert.True(t, st.Running)
}

func TestUpdateConfigDisableStopsWithoutRestart(t *testing.T) {
	fr := &fakeRunner{name: "alpha"}
	_, job, store, clock := newTestHarness(t, fr)

	require.NoError(t, job.Start())
	job.WaitIdle()

	require.NoError(t, job.UpdateConfig(ConfigMap{"enabled": false}))
	job.WaitIdle()

	assert.Equal(t, 1, fr.runs())
	assert.False(t, job.Status().Running)
	assert.Equal(t, 0, clock.ActiveTickers())

	st, err := store.Load("alpha")
	require.NoError(t, err)
	assert.False(t, st.Running)
	assert.False(t, st.Config.Enabled())
}

func TestUpdateConfigOnStoppedJobOnlyPersists(t *testing.T) {
	fr := &fakeRunner{name: "alpha"}
	_, job, store, _ := newTestHarness(t, fr)

	require.NoError(t, job.UpdateConfig(ConfigMap{"intervalMinutes": 30}))
	job.WaitIdle()

	assert.Equal(t, 0, fr.runs())
	assert.False(t, job.Status().Running)

	st, err := store.Load("alpha")
	require.NoError(t, err)
	assert.Equal(t, 30, st.Config.Int("intervalMinutes", 0))
}

func TestConfigSnapshotIsStableForCycle(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var snap ConfigMap
	fr := &fakeRunner{name: "alpha", defaults: ConfigMap{"intervalMinutes": 15, "batchSize": 25}}
	fr.onCycle = func(ctx context.Context, c *Cycle) error {
		snap = c.Config
		close(entered)
		<-release
		return nil
	}
	_, job, _, _ := newTestHarness(t, fr)

	require.NoError(t, job.RunNow())
	<-entered

	job.setConfig(ConfigMap{"batchSize": 99})
	assert.Equal(t, 25, snap.Int("batchSize", 0), "config changes never apply mid-cycle")

	close(release)
	job.WaitIdle()
}

func TestCycleStatsPersistedAtCycleEnd(t *testing.T) {
	fr := &fakeRunner{name: "alpha"}
	fr.onCycle = func(ctx context.Context, c *Cycle) error {
		c.SetTotal(3)
		c.ItemStarted("one")
		c.ItemSucceeded()
		c.ItemStarted("two")
		c.ItemSucceeded()
		c.ItemStarted("three")
		c.ItemFailed()
		return nil
	}
	_, job, store, _ := newTestHarness(t, fr)

	require.NoError(t, job.RunNow())
	job.WaitIdle()

	st, err := store.Load("alpha")
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Stats.TotalRuns)
	assert.Equal(t, int64(2), st.Stats.TotalSucceeded)
	assert.Equal(t, int64(1), st.Stats.TotalFailed)
	assert.Equal(t, int64(2), st.Stats.LastRunSucceeded)
	assert.Equal(t, int64(1), st.Stats.LastRunFailed)
	assert.Zero(t, st.Stats.Progress, "live progress is cleared at cycle end")
	assert.Zero(t, st.Stats.Total)
	assert.Empty(t, st.Stats.CurrentItem)
}

func TestCyclePanicIsContained(t *testing.T) {
	fr := &fakeRunner{name: "alpha"}
	fr.onCycle = func(ctx context.Context, c *Cycle) error {
		panic("boom")
	}
	_, job, store, _ := newTestHarness(t, fr)

	require.NoError(t, job.RunNow())
	job.WaitIdle()

	assert.False(t, job.Status().Processing, "processing guard must clear after a panic")
	st, err := store.Load("alpha")
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Stats.TotalRuns)

	// The job is still usable afterwards.
	fr.onCycle = nil
	require.NoError(t, job.RunNow())
	job.WaitIdle()
	assert.Equal(t, 2, fr.runs())
}

func TestResetStats(t *testing.T) {
	fr := &fakeRunner{name: "alpha"}
	fr.onCycle = func(ctx context.Context, c *Cycle) error {
		c.ItemSucceeded()
		return nil
	}
	_, job, store, _ := newTestHarness(t, fr)

	require.NoError(t, job.RunNow())
	job.WaitIdle()
	require.NoError(t, job.ResetStats())

	assert.Equal(t, RunStats{}, job.Status().Stats)
	st, err := store.Load("alpha")
	require.NoError(t, err)
	assert.Equal(t, RunStats{}, st.Stats)
}

func TestNotifierReceivesStatusUpdates(t *testing.T) {
	var updates atomic.Int64
	var lastName atomic.Value
	notifier := NotifierFunc(func(s Status) {
		updates.Add(1)
		lastName.Store(s.Name)
	})

	store := newMemStore()
	clock := NewFakeClock(time.Now())
	m := NewManager(store, clock, zap.NewNop().Sugar(), notifier)
	fr := &fakeRunner{name: "alpha"}
	job, err := m.Register(fr)
	require.NoError(t, err)

	require.NoError(t, job.Start())
	job.WaitIdle()
	require.NoError(t, job.Stop())

	assert.Greater(t, updates.Load(), int64(0))
	assert.Equal(t, "alpha", lastName.Load())
}
