// Package snapshots persists what the tracking jobs observe: profile
// snapshots, activity events, follow deltas, inbox messages, media assets
// and daily rollups. Every write path is idempotent against re-ingesting the
// same upstream data, which is what makes cycle replays safe.
package snapshots

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/halcyonlabs/streamwatch/errors"
)

// Store is the SQLite-backed snapshot store.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ProfileSnapshot is one observed profile state.
type ProfileSnapshot struct {
	ID       string
	MemberID string
	Role     string
	Payload  string
	TakenAt  time.Time
}

// RecordProfile appends one profile snapshot. Snapshots are append-only;
// history is the point.
func (s *Store) RecordProfile(ctx context.Context, memberID, role, payload string, takenAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profile_snapshots (id, member_id, role, payload, taken_at)
		VALUES (?, ?, ?, ?, ?)
	`, uuid.NewString(), memberID, role, payload, takenAt.UTC().Format(time.RFC3339))
	if err != nil {
		return errors.Wrapf(err, "failed to record snapshot for member %s", memberID)
	}
	return nil
}

// LatestProfile returns the newest snapshot for a member, or nil if none.
func (s *Store) LatestProfile(ctx context.Context, memberID string) (*ProfileSnapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, member_id, role, payload, taken_at
		FROM profile_snapshots
		WHERE member_id = ?
		ORDER BY taken_at DESC
		LIMIT 1
	`, memberID)

	var (
		snap    ProfileSnapshot
		takenAt string
	)
	err := row.Scan(&snap.ID, &snap.MemberID, &snap.Role, &snap.Payload, &takenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load latest snapshot for member %s", memberID)
	}
	if snap.TakenAt, err = time.Parse(time.RFC3339, takenAt); err != nil {
		return nil, errors.Wrap(err, "failed to parse taken_at")
	}
	return &snap, nil
}

// CountProfilesBetween counts snapshots with taken_at in [from, to).
func (s *Store) CountProfilesBetween(ctx context.Context, from, to time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM profile_snapshots WHERE taken_at >= ? AND taken_at < ?`,
		from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339)).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count snapshots")
	}
	return n, nil
}
