package tracker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyonlabs/streamwatch/members"
)

func TestLivecheckReplacesLiveFlag(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.seedMember(t, "m1", "alice", "")
	h.seedMember(t, "m2", "bob", "", members.FlagLive) // was live, no longer

	h.fake.live = []string{"alice", "ghost"}

	job := h.runOnce(t, NewLivecheckRunner(h.deps))

	ids, err := h.deps.Members.ListIDsWithFlag(ctx, members.FlagLive)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, ids)

	stats := job.Status().Stats
	assert.Equal(t, int64(1), stats.LastRunSucceeded)
	assert.Equal(t, int64(1), stats.LastRunFailed, "unknown usernames count as failures")
}

func TestLivecheckEmptyListClearsFlag(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.seedMember(t, "m1", "alice", "", members.FlagLive)

	h.runOnce(t, NewLivecheckRunner(h.deps))

	ids, err := h.deps.Members.ListIDsWithFlag(ctx, members.FlagLive)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
