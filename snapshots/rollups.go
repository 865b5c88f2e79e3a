package snapshots

import (
	"context"
	"database/sql"
	"time"

	"github.com/halcyonlabs/streamwatch/errors"
)

// StatRollup is one day's aggregated activity.
type StatRollup struct {
	Day             string
	ChatCount       int64
	TipCount        int64
	TipTotal        int64
	FollowerGained  int64
	FollowerLost    int64
	SnapshotsTaken  int64
	ComputedAt      time.Time
}

// SaveRollup upserts the rollup for one day. Recomputing a day replaces its
// previous numbers.
func (s *Store) SaveRollup(ctx context.Context, r StatRollup) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stat_rollups
			(day, chat_count, tip_count, tip_total, follower_gained, follower_lost, snapshots_taken, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(day) DO UPDATE SET
			chat_count = excluded.chat_count,
			tip_count = excluded.tip_count,
			tip_total = excluded.tip_total,
			follower_gained = excluded.follower_gained,
			follower_lost = excluded.follower_lost,
			snapshots_taken = excluded.snapshots_taken,
			computed_at = excluded.computed_at
	`, r.Day, r.ChatCount, r.TipCount, r.TipTotal, r.FollowerGained, r.FollowerLost,
		r.SnapshotsTaken, r.ComputedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return errors.Wrapf(err, "failed to save rollup for %s", r.Day)
	}
	return nil
}

// GetRollup returns the rollup for one day (format 2006-01-02), or nil.
func (s *Store) GetRollup(ctx context.Context, day string) (*StatRollup, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT day, chat_count, tip_count, tip_total, follower_gained, follower_lost, snapshots_taken, computed_at
		FROM stat_rollups WHERE day = ?
	`, day)

	var (
		r          StatRollup
		computedAt string
	)
	err := row.Scan(&r.Day, &r.ChatCount, &r.TipCount, &r.TipTotal,
		&r.FollowerGained, &r.FollowerLost, &r.SnapshotsTaken, &computedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load rollup for %s", day)
	}
	if r.ComputedAt, err = time.Parse(time.RFC3339, computedAt); err != nil {
		return nil, errors.Wrap(err, "failed to parse computed_at")
	}
	return &r, nil
}
