package jobs

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/halcyonlabs/streamwatch/errors"
)

// pausedRestoreRequiresResume pins the restore behavior for paused jobs: a
// job persisted as {running:true, paused:true} is restored with in-memory
// flags only and NO ticker; an explicit Resume is required to reinstall it.
// This avoids accidental resumption of a human-paused job on every restart.
const pausedRestoreRequiresResume = true

// haltDrainTimeout bounds how long HaltAll waits for in-flight cycles.
const haltDrainTimeout = 30 * time.Second

// Manager owns the set of registered jobs, boot-time recovery, and orderly
// shutdown.
type Manager struct {
	store    StateStore
	clock    Clock
	log      *zap.SugaredLogger
	notifier Notifier

	mu    sync.Mutex
	jobs  map[string]*Job
	order []string
}

// NewManager creates an empty job manager. notifier may be nil.
func NewManager(store StateStore, clock Clock, log *zap.SugaredLogger, notifier Notifier) *Manager {
	return &Manager{
		store:    store,
		clock:    clock,
		log:      log,
		notifier: notifier,
		jobs:     make(map[string]*Job),
	}
}

// Register ensures the job's durable record exists (idempotent, with the
// runner's defaults) and wires a Job around the runner. Persisted config
// overlays the defaults so new default keys appear without clobbering
// operator changes.
func (m *Manager) Register(r Runner) (*Job, error) {
	name := r.Name()

	if err := m.store.Ensure(name, r.Defaults()); err != nil {
		return nil, errors.Wrapf(err, "failed to ensure state for job %s", name)
	}

	job := newJob(r, m.store, m.clock, m.log, m.notifier)

	st, err := m.store.Load(name)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load state for job %s", name)
	}
	if st != nil {
		job.setConfig(r.Defaults().Merge(st.Config))
		job.setStats(st.Stats)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.jobs[name]; exists {
		return nil, errors.Newf("job already registered: %s", name)
	}
	m.jobs[name] = job
	m.order = append(m.order, name)
	m.log.Infow("Job registered", "job", name)
	return job, nil
}

// Get returns a registered job by name.
func (m *Manager) Get(name string) (*Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[name]
	return j, ok
}

// Jobs returns all registered jobs in registration order.
func (m *Manager) Jobs() []*Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Job, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.jobs[name])
	}
	return out
}

// RestoreAll runs once at process boot, before any external traffic. For
// each registered job it re-enters the persisted state without replaying
// missed cycles: running+unpaused jobs get a full Start (including the
// immediate cycle); running+paused jobs are parked with flags only.
func (m *Manager) RestoreAll() {
	for _, job := range m.Jobs() {
		st, err := m.store.Load(job.Name())
		if err != nil {
			m.log.Errorw("Failed to load persisted state during restore", "job", job.Name(), "error", err)
			continue
		}
		if st == nil || !st.Running {
			continue
		}

		if st.Paused && pausedRestoreRequiresResume {
			job.restorePaused()
			continue
		}

		if err := job.Start(); err != nil {
			m.log.Errorw("Failed to restore job", "job", job.Name(), "error", err)
		}
	}
}

// HaltAll removes every job's ticker without touching persisted state, then
// waits (bounded) for in-flight cycles to finish. Used for orderly process
// shutdown so the next boot resumes automatically.
func (m *Manager) HaltAll() {
	jobs := m.Jobs()
	for _, job := range jobs {
		job.Halt()
	}

	done := make(chan struct{})
	go func() {
		for _, job := range jobs {
			job.WaitIdle()
		}
		close(done)
	}()

	select {
	case <-done:
		m.log.Infow("All jobs halted cleanly")
	case <-time.After(haltDrainTimeout):
		m.log.Warnw("Halt drain timeout - cycles may still be finishing", "timeout", haltDrainTimeout)
	}
}
