package tracker

import (
	"context"

	"github.com/halcyonlabs/streamwatch/errors"
	"github.com/halcyonlabs/streamwatch/jobs"
	"github.com/halcyonlabs/streamwatch/snapshots"
)

// MessagesRunner incrementally fetches the operator's inbox. Messages are
// deduped by their remote identifier, so the since-watermark only trims the
// fetch, never correctness.
type MessagesRunner struct {
	d Deps
}

func NewMessagesRunner(d Deps) *MessagesRunner {
	return &MessagesRunner{d: d}
}

func (r *MessagesRunner) Name() string { return JobMessages }

func (r *MessagesRunner) Defaults() jobs.ConfigMap {
	return jobs.ConfigMap{
		"enabled":         true,
		"intervalMinutes": 30,
	}
}

func (r *MessagesRunner) RunCycle(ctx context.Context, c *jobs.Cycle) error {
	since, err := r.d.Snapshots.LatestMessageTime(ctx)
	if err != nil {
		return err
	}

	msgs, err := r.d.Platform.FetchMessages(ctx, since)
	if err != nil {
		return errors.Wrap(err, "failed to fetch messages")
	}

	c.SetTotal(len(msgs))
	now := r.d.Clock.Now()

	for _, m := range msgs {
		c.ItemStarted(m.RemoteID)
		_, err := r.d.Snapshots.RecordMessage(ctx, snapshots.InboxMessage{
			RemoteID: m.RemoteID,
			MemberID: m.MemberID,
			Username: m.Username,
			Body:     m.Body,
			SentAt:   m.SentAt,
		}, now)
		if err != nil {
			r.d.Log.Warnw("Failed to record message", "message", m.RemoteID, "error", err)
			c.ItemFailed()
			continue
		}
		if m.MemberID != "" {
			if err := r.d.Members.EnsureKnown(ctx, m.MemberID, m.Username, now); err != nil {
				r.d.Log.Warnw("Failed to upsert message sender", "member", m.MemberID, "error", err)
			}
		}
		c.ItemSucceeded()
	}
	return nil
}
