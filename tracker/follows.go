package tracker

import (
	"context"

	"github.com/halcyonlabs/streamwatch/errors"
	"github.com/halcyonlabs/streamwatch/jobs"
	"github.com/halcyonlabs/streamwatch/members"
	"github.com/halcyonlabs/streamwatch/platform"
	"github.com/halcyonlabs/streamwatch/snapshots"
)

// followSyncRunner reconciles one follow direction: it fetches the complete
// current list from the site, records added/removed deltas against the
// previously flagged set, and replaces the segment flag to match.
type followSyncRunner struct {
	d         Deps
	name      string
	direction string
	flag      members.Flag
	list      func(ctx context.Context) ([]platform.Profile, error)
}

// NewFollowersRunner syncs accounts following the operator.
func NewFollowersRunner(d Deps) jobs.Runner {
	return &followSyncRunner{
		d:         d,
		name:      JobFollowers,
		direction: snapshots.DirectionFollower,
		flag:      members.FlagFollower,
		list:      d.Platform.ListFollowers,
	}
}

// NewFollowingRunner syncs accounts the operator follows.
func NewFollowingRunner(d Deps) jobs.Runner {
	return &followSyncRunner{
		d:         d,
		name:      JobFollowing,
		direction: snapshots.DirectionFollowing,
		flag:      members.FlagFollowing,
		list:      d.Platform.ListFollowing,
	}
}

func (r *followSyncRunner) Name() string { return r.name }

func (r *followSyncRunner) Defaults() jobs.ConfigMap {
	return jobs.ConfigMap{
		"enabled":         true,
		"intervalMinutes": 60,
	}
}

func (r *followSyncRunner) RunCycle(ctx context.Context, c *jobs.Cycle) error {
	current, err := r.list(ctx)
	if err != nil {
		return errors.Wrapf(err, "failed to list %s", r.direction)
	}

	prevIDs, err := r.d.Members.ListIDsWithFlag(ctx, r.flag)
	if err != nil {
		return err
	}
	prev := make(map[string]bool, len(prevIDs))
	for _, id := range prevIDs {
		prev[id] = true
	}

	c.SetTotal(len(current))
	now := r.d.Clock.Now()

	currentIDs := make([]string, 0, len(current))
	currentSet := make(map[string]bool, len(current))
	for _, p := range current {
		c.ItemStarted(p.Username)
		currentIDs = append(currentIDs, p.ID)
		currentSet[p.ID] = true

		if err := r.d.Members.EnsureKnown(ctx, p.ID, p.Username, now); err != nil {
			r.d.Log.Warnw("Failed to upsert member", "job", r.name, "member", p.ID, "error", err)
			c.ItemFailed()
			continue
		}
		if !prev[p.ID] {
			if err := r.d.Snapshots.RecordFollowDelta(ctx, p.ID, r.direction, snapshots.ActionAdded, now); err != nil {
				r.d.Log.Warnw("Failed to record follow delta", "job", r.name, "member", p.ID, "error", err)
				c.ItemFailed()
				continue
			}
		}
		c.ItemSucceeded()
	}

	for _, id := range prevIDs {
		if currentSet[id] {
			continue
		}
		if err := r.d.Snapshots.RecordFollowDelta(ctx, id, r.direction, snapshots.ActionRemoved, now); err != nil {
			r.d.Log.Warnw("Failed to record follow removal", "job", r.name, "member", id, "error", err)
		}
	}

	return r.d.Members.ReplaceFlag(ctx, r.flag, currentIDs)
}
