package tracker

import (
	"context"
	"time"

	"github.com/halcyonlabs/streamwatch/jobs"
	"github.com/halcyonlabs/streamwatch/snapshots"
)

// RollupRunner aggregates the previous day's activity into one stat_rollups
// row. Recomputing a day is idempotent, so a missed run is healed by the
// next one.
type RollupRunner struct {
	d Deps
}

func NewRollupRunner(d Deps) *RollupRunner {
	return &RollupRunner{d: d}
}

func (r *RollupRunner) Name() string { return JobRollup }

func (r *RollupRunner) Defaults() jobs.ConfigMap {
	return jobs.ConfigMap{
		"enabled":         true,
		"intervalMinutes": 1440,
	}
}

func (r *RollupRunner) RunCycle(ctx context.Context, c *jobs.Cycle) error {
	now := r.d.Clock.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	dayEnd := dayStart.AddDate(0, 0, 1)

	c.SetTotal(1)
	c.ItemStarted(dayStart.Format("2006-01-02"))

	counters, err := r.d.Snapshots.CountEventsBetween(ctx, dayStart, dayEnd)
	if err != nil {
		c.ItemFailed()
		return err
	}
	gained, err := r.d.Snapshots.CountFollowDeltas(ctx, snapshots.DirectionFollower, snapshots.ActionAdded, dayStart, dayEnd)
	if err != nil {
		c.ItemFailed()
		return err
	}
	lost, err := r.d.Snapshots.CountFollowDeltas(ctx, snapshots.DirectionFollower, snapshots.ActionRemoved, dayStart, dayEnd)
	if err != nil {
		c.ItemFailed()
		return err
	}
	taken, err := r.d.Snapshots.CountProfilesBetween(ctx, dayStart, dayEnd)
	if err != nil {
		c.ItemFailed()
		return err
	}

	err = r.d.Snapshots.SaveRollup(ctx, snapshots.StatRollup{
		Day:            dayStart.Format("2006-01-02"),
		ChatCount:      counters.ChatCount,
		TipCount:       counters.TipCount,
		TipTotal:       counters.TipTotal,
		FollowerGained: gained,
		FollowerLost:   lost,
		SnapshotsTaken: taken,
		ComputedAt:     now,
	})
	if err != nil {
		c.ItemFailed()
		return err
	}
	c.ItemSucceeded()
	return nil
}
