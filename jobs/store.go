package jobs

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/halcyonlabs/streamwatch/errors"
)

// StateStore is the durable per-job state contract. All writes are
// whole-record upserts; the only cross-process shared resource is this store
// and the contract is last-writer-wins at record granularity, which is
// acceptable because a single process owns a given job at a time.
type StateStore interface {
	// Ensure creates the record with defaults if absent. Idempotent and safe
	// to call on every boot.
	Ensure(name string, defaults ConfigMap) error
	// Load returns the persisted state, or nil if the job has never existed.
	Load(name string) (*JobState, error)
	SaveConfig(name string, cfg ConfigMap) error
	SaveRunningState(name string, running, paused bool) error
	SaveStats(name string, stats *RunStats) error
}

// SQLStateStore is the SQLite-backed StateStore.
type SQLStateStore struct {
	db *sql.DB
}

// NewStateStore creates a SQLite-backed state store.
func NewStateStore(db *sql.DB) *SQLStateStore {
	return &SQLStateStore{db: db}
}

// Ensure inserts a fresh Stopped record with the given default config.
// A no-op if the record already exists.
func (s *SQLStateStore) Ensure(name string, defaults ConfigMap) error {
	cfgJSON, err := json.Marshal(defaults)
	if err != nil {
		return errors.Wrap(err, "failed to marshal default config")
	}

	query := `
		INSERT INTO job_states (name, running, paused, config, stats, updated_at)
		VALUES (?, 0, 0, ?, '{}', ?)
		ON CONFLICT(name) DO NOTHING
	`
	if _, err := s.db.Exec(query, name, string(cfgJSON), time.Now().Format(time.RFC3339)); err != nil {
		return errors.Wrapf(err, "failed to ensure job state for %s", name)
	}
	return nil
}

// Load returns the persisted state for a job, or nil if absent.
func (s *SQLStateStore) Load(name string) (*JobState, error) {
	query := `SELECT name, running, paused, config, stats, updated_at FROM job_states WHERE name = ?`

	var (
		st                            JobState
		running, paused               int
		cfgJSON, statsJSON, updatedAt string
	)
	err := s.db.QueryRow(query, name).Scan(&st.Name, &running, &paused, &cfgJSON, &statsJSON, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load job state for %s", name)
	}

	st.Running = running != 0
	st.Paused = paused != 0

	if err := json.Unmarshal([]byte(cfgJSON), &st.Config); err != nil {
		return nil, errors.Wrapf(err, "failed to decode config for %s", name)
	}
	if err := json.Unmarshal([]byte(statsJSON), &st.Stats); err != nil {
		return nil, errors.Wrapf(err, "failed to decode stats for %s", name)
	}
	st.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse updated_at for %s", name)
	}

	return &st, nil
}

// SaveConfig persists the full config map for a job.
func (s *SQLStateStore) SaveConfig(name string, cfg ConfigMap) error {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	res, err := s.db.Exec(
		`UPDATE job_states SET config = ?, updated_at = ? WHERE name = ?`,
		string(cfgJSON), time.Now().Format(time.RFC3339), name,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to save config for %s", name)
	}
	return requireRow(res, name)
}

// SaveRunningState persists the running/paused flags for a job.
func (s *SQLStateStore) SaveRunningState(name string, running, paused bool) error {
	res, err := s.db.Exec(
		`UPDATE job_states SET running = ?, paused = ?, updated_at = ? WHERE name = ?`,
		boolToInt(running), boolToInt(paused), time.Now().Format(time.RFC3339), name,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to save running state for %s", name)
	}
	return requireRow(res, name)
}

// SaveStats persists the stats blob for a job.
func (s *SQLStateStore) SaveStats(name string, stats *RunStats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return errors.Wrap(err, "failed to marshal stats")
	}

	res, err := s.db.Exec(
		`UPDATE job_states SET stats = ?, updated_at = ? WHERE name = ?`,
		string(statsJSON), time.Now().Format(time.RFC3339), name,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to save stats for %s", name)
	}
	return requireRow(res, name)
}

func requireRow(res sql.Result, name string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.Newf("job state not found: %s", name)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
