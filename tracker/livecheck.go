package tracker

import (
	"context"

	"github.com/halcyonlabs/streamwatch/errors"
	"github.com/halcyonlabs/streamwatch/jobs"
	"github.com/halcyonlabs/streamwatch/members"
)

// LivecheckRunner polls which followed accounts are live and replaces the
// is_live flag to match. Runs on a short interval; the flag feeds the "live"
// priority segment of the profiles job.
type LivecheckRunner struct {
	d Deps
}

func NewLivecheckRunner(d Deps) *LivecheckRunner {
	return &LivecheckRunner{d: d}
}

func (r *LivecheckRunner) Name() string { return JobLivecheck }

func (r *LivecheckRunner) Defaults() jobs.ConfigMap {
	return jobs.ConfigMap{
		"enabled":         true,
		"intervalMinutes": 5,
	}
}

func (r *LivecheckRunner) RunCycle(ctx context.Context, c *jobs.Cycle) error {
	usernames, err := r.d.Platform.ListLive(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to list live accounts")
	}

	c.SetTotal(len(usernames))

	var liveIDs []string
	for _, username := range usernames {
		c.ItemStarted(username)
		m, err := r.d.Members.GetByUsername(ctx, username)
		if err != nil {
			r.d.Log.Warnw("Live member lookup failed", "username", username, "error", err)
			c.ItemFailed()
			continue
		}
		if m == nil {
			// Unknown usernames wait for the follow sync to introduce them.
			r.d.Log.Debugw("Live account not in directory yet", "username", username)
			c.ItemFailed()
			continue
		}
		liveIDs = append(liveIDs, m.ID)
		c.ItemSucceeded()
	}

	return r.d.Members.ReplaceFlag(ctx, members.FlagLive, liveIDs)
}
