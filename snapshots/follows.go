package snapshots

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/halcyonlabs/streamwatch/errors"
)

// Follow delta directions and actions.
const (
	DirectionFollower  = "follower"
	DirectionFollowing = "following"

	ActionAdded   = "added"
	ActionRemoved = "removed"
)

// RecordFollowDelta appends one observed follow change.
func (s *Store) RecordFollowDelta(ctx context.Context, memberID, direction, action string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO follow_deltas (id, member_id, direction, action, recorded_at)
		VALUES (?, ?, ?, ?, ?)
	`, uuid.NewString(), memberID, direction, action, at.UTC().Format(time.RFC3339))
	if err != nil {
		return errors.Wrapf(err, "failed to record follow delta for member %s", memberID)
	}
	return nil
}

// CountFollowDeltas counts deltas of one direction/action pair recorded in
// [from, to).
func (s *Store) CountFollowDeltas(ctx context.Context, direction, action string, from, to time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM follow_deltas
		WHERE direction = ? AND action = ? AND recorded_at >= ? AND recorded_at < ?
	`, direction, action, from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339)).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count follow deltas")
	}
	return n, nil
}
