// Package tracker implements the recurring jobs that keep the local member
// directory, snapshot history and activity records in sync with the
// streaming site. Each runner plugs into the jobs orchestrator; the
// orchestrator owns scheduling, persistence and exclusivity.
package tracker

import (
	"go.uber.org/zap"

	"github.com/halcyonlabs/streamwatch/jobs"
	"github.com/halcyonlabs/streamwatch/members"
	"github.com/halcyonlabs/streamwatch/platform"
	"github.com/halcyonlabs/streamwatch/snapshots"
)

// Job names, used as StateStore keys and HTTP identifiers.
const (
	JobProfiles  = "profiles"
	JobFollowers = "followers"
	JobFollowing = "following"
	JobLivecheck = "livecheck"
	JobEvents    = "events"
	JobMessages  = "messages"
	JobMedia     = "media"
	JobRollup    = "rollup"
)

// Deps bundles the collaborators every runner draws from.
type Deps struct {
	Members   *members.Store
	Snapshots *snapshots.Store
	Platform  platform.Client
	Clock     jobs.Clock
	Log       *zap.SugaredLogger
}
