package snapshots

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/halcyonlabs/streamwatch/errors"
)

// InboxMessage is one fetched inbox message.
type InboxMessage struct {
	RemoteID string
	MemberID string
	Username string
	Body     string
	SentAt   time.Time
}

// RecordMessage ingests one inbox message, deduped by its remote identifier.
// Returns true if the message was new.
func (s *Store) RecordMessage(ctx context.Context, m InboxMessage, fetchedAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO inbox_messages
			(id, remote_id, member_id, username, body, sent_at, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), m.RemoteID, m.MemberID, m.Username, m.Body,
		m.SentAt.UTC().Format(time.RFC3339), fetchedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return false, errors.Wrapf(err, "failed to record message %s", m.RemoteID)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to get rows affected")
	}
	return rows > 0, nil
}

// LatestMessageTime returns the newest sent_at, or the zero time if none.
func (s *Store) LatestMessageTime(ctx context.Context) (time.Time, error) {
	var ts *string
	err := s.db.QueryRowContext(ctx, `SELECT MAX(sent_at) FROM inbox_messages`).Scan(&ts)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "failed to load message watermark")
	}
	if ts == nil {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, *ts)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "failed to parse message watermark")
	}
	return t, nil
}
