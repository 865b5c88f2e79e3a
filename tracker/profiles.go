package tracker

import (
	"context"
	"encoding/json"

	"github.com/halcyonlabs/streamwatch/errors"
	"github.com/halcyonlabs/streamwatch/jobs"
	"github.com/halcyonlabs/streamwatch/members"
	"github.com/halcyonlabs/streamwatch/targets"
)

// ProfilesRunner is the highest-volume job: each cycle it selects a capped,
// prioritized set of members and snapshots their profiles in paced batches.
type ProfilesRunner struct {
	d   Deps
	sel *targets.Selector
}

func NewProfilesRunner(d Deps, sel *targets.Selector) *ProfilesRunner {
	return &ProfilesRunner{d: d, sel: sel}
}

func (r *ProfilesRunner) Name() string { return JobProfiles }

func (r *ProfilesRunner) Defaults() jobs.ConfigMap {
	return jobs.ConfigMap{
		"enabled":             true,
		"intervalMinutes":     15,
		"batchSize":           25,
		"itemDelaySeconds":    2,
		"batchDelaySeconds":   30,
		"maxPerRun":           targets.DefaultMaxPerRun,
		"prioritizeWatchlist": true,
		"prioritizeFollowing": true,
	}
}

func (r *ProfilesRunner) RunCycle(ctx context.Context, c *jobs.Cycle) error {
	policy := targets.PolicyFromConfig(c.Config)
	selected := r.sel.Select(ctx, policy)
	r.d.Log.Infow("Profile targets selected", "count", len(selected), "cap", policy.MaxPerRun)

	jobs.RunBatches(ctx, r.d.Clock, r.d.Log, c, selected, jobs.BatchConfigFromMap(c.Config),
		func(t targets.Target) string { return t.Username },
		r.snapshotOne)
	return nil
}

// snapshotOne fetches one member's profile, trying the member's recorded
// role first and silently falling back to the other role on a definitive
// not-found. A successful fallback updates the recorded role; not found
// under either role leaves the previous role untouched and counts as a
// failure for this cycle.
func (r *ProfilesRunner) snapshotOne(ctx context.Context, t targets.Target) error {
	m, err := r.d.Members.Get(ctx, t.ID)
	if err != nil {
		return err
	}

	order := []string{members.RoleViewer, members.RoleBroadcaster}
	if m != nil && m.Role == members.RoleBroadcaster {
		order = []string{members.RoleBroadcaster, members.RoleViewer}
	}

	for _, role := range order {
		p, err := r.d.Platform.FetchProfile(ctx, t.Username, role)
		if errors.IsNotFoundError(err) {
			continue
		}
		if err != nil {
			return err
		}

		payload, err := json.Marshal(p)
		if err != nil {
			return errors.Wrapf(err, "failed to encode profile for %s", t.Username)
		}

		now := r.d.Clock.Now()
		if err := r.d.Members.EnsureKnown(ctx, t.ID, p.Username, now); err != nil {
			return err
		}
		if err := r.d.Snapshots.RecordProfile(ctx, t.ID, p.Role, string(payload), now); err != nil {
			return err
		}
		if err := r.d.Members.MarkSnapshotted(ctx, t.ID, now); err != nil {
			return err
		}
		if m == nil || m.Role != p.Role {
			if err := r.d.Members.SetRole(ctx, t.ID, p.Role); err != nil {
				return err
			}
		}
		return nil
	}

	return errors.NewNotFoundError("profile not found under any role: " + t.Username)
}
