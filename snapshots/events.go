package snapshots

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/halcyonlabs/streamwatch/errors"
)

// ActivityEvent is one chat or tip event.
type ActivityEvent struct {
	ID         string
	DedupKey   string
	Kind       string
	MemberID   string
	Username   string
	Amount     int64
	Body       string
	OccurredAt time.Time
	IngestedAt time.Time
}

// RecordEvent ingests one event, keyed by its upstream identifier. Returns
// true if the event was new, false if it had been seen before.
func (s *Store) RecordEvent(ctx context.Context, e ActivityEvent) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO activity_events
			(id, dedup_key, kind, member_id, username, amount, body, occurred_at, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), e.DedupKey, e.Kind, e.MemberID, e.Username, e.Amount, e.Body,
		e.OccurredAt.UTC().Format(time.RFC3339), e.IngestedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return false, errors.Wrapf(err, "failed to record event %s", e.DedupKey)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to get rows affected")
	}
	return rows > 0, nil
}

// LatestEventTime returns the newest occurred_at across all events, or the
// zero time if none exist. Jobs use it as the incremental fetch watermark.
func (s *Store) LatestEventTime(ctx context.Context) (time.Time, error) {
	var ts *string
	err := s.db.QueryRowContext(ctx, `SELECT MAX(occurred_at) FROM activity_events`).Scan(&ts)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "failed to load event watermark")
	}
	if ts == nil {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, *ts)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "failed to parse event watermark")
	}
	return t, nil
}

// EventCounters aggregates one day's chat and tip activity.
type EventCounters struct {
	ChatCount int64
	TipCount  int64
	TipTotal  int64
}

// CountEventsBetween aggregates events with occurred_at in [from, to).
func (s *Store) CountEventsBetween(ctx context.Context, from, to time.Time) (EventCounters, error) {
	var c EventCounters
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN kind = 'chat' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN kind = 'tip' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN kind = 'tip' THEN amount ELSE 0 END), 0)
		FROM activity_events
		WHERE occurred_at >= ? AND occurred_at < ?
	`, from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339)).
		Scan(&c.ChatCount, &c.TipCount, &c.TipTotal)
	if err != nil {
		return EventCounters{}, errors.Wrap(err, "failed to aggregate events")
	}
	return c, nil
}
