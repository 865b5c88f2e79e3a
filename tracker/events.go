package tracker

import (
	"context"
	"time"

	"github.com/halcyonlabs/streamwatch/errors"
	"github.com/halcyonlabs/streamwatch/jobs"
	"github.com/halcyonlabs/streamwatch/members"
	"github.com/halcyonlabs/streamwatch/platform"
	"github.com/halcyonlabs/streamwatch/snapshots"
)

// EventsRunner incrementally ingests chat and tip events. The fetch
// watermark is the newest stored event time, so overlapping fetches are
// cheap and the dedup key makes replays harmless.
type EventsRunner struct {
	d Deps
}

func NewEventsRunner(d Deps) *EventsRunner {
	return &EventsRunner{d: d}
}

func (r *EventsRunner) Name() string { return JobEvents }

func (r *EventsRunner) Defaults() jobs.ConfigMap {
	return jobs.ConfigMap{
		"enabled":         true,
		"intervalMinutes": 10,
	}
}

func (r *EventsRunner) RunCycle(ctx context.Context, c *jobs.Cycle) error {
	since, err := r.d.Snapshots.LatestEventTime(ctx)
	if err != nil {
		return err
	}

	events, err := r.d.Platform.FetchEvents(ctx, since)
	if err != nil {
		return errors.Wrap(err, "failed to fetch events")
	}

	c.SetTotal(len(events))
	now := r.d.Clock.Now()

	for _, e := range events {
		c.ItemStarted(e.RemoteID)
		if err := r.ingest(ctx, e, now); err != nil {
			r.d.Log.Warnw("Failed to ingest event", "event", e.RemoteID, "error", err)
			c.ItemFailed()
			continue
		}
		c.ItemSucceeded()
	}
	return nil
}

func (r *EventsRunner) ingest(ctx context.Context, e platform.Event, now time.Time) error {
	_, err := r.d.Snapshots.RecordEvent(ctx, snapshots.ActivityEvent{
		DedupKey:   e.RemoteID,
		Kind:       e.Kind,
		MemberID:   e.MemberID,
		Username:   e.Username,
		Amount:     e.Amount,
		Body:       e.Body,
		OccurredAt: e.OccurredAt,
		IngestedAt: now,
	})
	if err != nil {
		return err
	}

	if e.MemberID == "" {
		return nil
	}
	if err := r.d.Members.EnsureKnown(ctx, e.MemberID, e.Username, now); err != nil {
		return err
	}
	if e.Kind == platform.EventKindTip {
		return r.d.Members.SetFlag(ctx, e.MemberID, members.FlagTippedMe, true)
	}
	return nil
}
