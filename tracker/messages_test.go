package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyonlabs/streamwatch/platform"
)

func TestMessagesFetchAndDedup(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sent := h.clock.Now().Add(-2 * time.Hour)
	h.fake.messages = []platform.Message{
		{RemoteID: "msg-1", MemberID: "m1", Username: "alice", Body: "hi", SentAt: sent},
		{RemoteID: "msg-2", Username: "anon", Body: "hello", SentAt: sent.Add(time.Minute)},
	}

	job := h.runOnce(t, NewMessagesRunner(h.deps))
	assert.Equal(t, int64(2), job.Status().Stats.LastRunSucceeded)

	// The sender with a known ID is now in the directory.
	m, err := h.deps.Members.Get(ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, m)

	// A second cycle fetches from the watermark and stores nothing new.
	h.runAgain(t, job)
	ts, err := h.deps.Snapshots.LatestMessageTime(ctx)
	require.NoError(t, err)
	assert.Equal(t, sent.Add(time.Minute).UTC(), ts.UTC())
	assert.Equal(t, int64(0), job.Status().Stats.LastRunSucceeded, "no messages newer than the watermark")
}
