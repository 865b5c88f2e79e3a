package snapshots

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	swtest "github.com/halcyonlabs/streamwatch/internal/testing"
	"github.com/halcyonlabs/streamwatch/members"
)

func setup(t *testing.T) (*Store, *members.Store, context.Context) {
	t.Helper()
	conn := swtest.CreateTestDB(t)
	return NewStore(conn), members.NewStore(conn), context.Background()
}

func TestRecordAndLatestProfile(t *testing.T) {
	store, mstore, ctx := setup(t)
	require.NoError(t, mstore.EnsureKnown(ctx, "m1", "alice", time.Now()))

	older := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	newer := older.Add(2 * time.Hour)
	require.NoError(t, store.RecordProfile(ctx, "m1", "viewer", `{"bio":"old"}`, older))
	require.NoError(t, store.RecordProfile(ctx, "m1", "viewer", `{"bio":"new"}`, newer))

	snap, err := store.LatestProfile(ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, `{"bio":"new"}`, snap.Payload)
	assert.Equal(t, newer, snap.TakenAt.UTC())

	none, err := store.LatestProfile(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, none)

	n, err := store.CountProfilesBetween(ctx, older.Add(time.Hour), newer.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRecordProfileRequiresKnownMember(t *testing.T) {
	store, _, ctx := setup(t)
	err := store.RecordProfile(ctx, "ghost", "viewer", `{}`, time.Now())
	assert.Error(t, err, "snapshots reference the members directory")
}

func TestRecordEventDedupsByUpstreamID(t *testing.T) {
	store, _, ctx := setup(t)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	e := ActivityEvent{
		DedupKey:   "evt-1",
		Kind:       "tip",
		Username:   "alice",
		Amount:     50,
		OccurredAt: now,
		IngestedAt: now,
	}
	isNew, err := store.RecordEvent(ctx, e)
	require.NoError(t, err)
	assert.True(t, isNew)

	// Replaying the same upstream event is a no-op.
	isNew, err = store.RecordEvent(ctx, e)
	require.NoError(t, err)
	assert.False(t, isNew)

	counters, err := store.CountEventsBetween(ctx, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, EventCounters{ChatCount: 0, TipCount: 1, TipTotal: 50}, counters)
}

func TestLatestEventTimeWatermark(t *testing.T) {
	store, _, ctx := setup(t)

	ts, err := store.LatestEventTime(ctx)
	require.NoError(t, err)
	assert.True(t, ts.IsZero(), "empty table means zero watermark")

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i, key := range []string{"e1", "e2"} {
		_, err := store.RecordEvent(ctx, ActivityEvent{
			DedupKey:   key,
			Kind:       "chat",
			OccurredAt: now.Add(time.Duration(i) * time.Hour),
			IngestedAt: now,
		})
		require.NoError(t, err)
	}

	ts, err = store.LatestEventTime(ctx)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), ts.UTC())
}

func TestFollowDeltas(t *testing.T) {
	store, _, ctx := setup(t)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.RecordFollowDelta(ctx, "m1", DirectionFollower, ActionAdded, now))
	require.NoError(t, store.RecordFollowDelta(ctx, "m2", DirectionFollower, ActionAdded, now))
	require.NoError(t, store.RecordFollowDelta(ctx, "m3", DirectionFollower, ActionRemoved, now))
	require.NoError(t, store.RecordFollowDelta(ctx, "m4", DirectionFollowing, ActionAdded, now))

	from, to := now.Add(-time.Hour), now.Add(time.Hour)

	gained, err := store.CountFollowDeltas(ctx, DirectionFollower, ActionAdded, from, to)
	require.NoError(t, err)
	assert.Equal(t, int64(2), gained)

	lost, err := store.CountFollowDeltas(ctx, DirectionFollower, ActionRemoved, from, to)
	require.NoError(t, err)
	assert.Equal(t, int64(1), lost)
}

func TestRecordMessageDedups(t *testing.T) {
	store, _, ctx := setup(t)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	m := InboxMessage{RemoteID: "msg-1", Username: "alice", Body: "hi", SentAt: now}
	isNew, err := store.RecordMessage(ctx, m, now)
	require.NoError(t, err)
	assert.True(t, isNew)

	isNew, err = store.RecordMessage(ctx, m, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, isNew)

	ts, err := store.LatestMessageTime(ctx)
	require.NoError(t, err)
	assert.Equal(t, now, ts.UTC())
}

func TestMediaAssets(t *testing.T) {
	store, _, ctx := setup(t)
	now := time.Now()

	has, err := store.HasMedia(ctx, "https://example.com/a.jpg")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, store.RecordMedia(ctx, "m1", "https://example.com/a.jpg", "/data/a.jpg", "/data/a_thumb.jpg", now))
	require.NoError(t, store.RecordMedia(ctx, "m1", "https://example.com/a.jpg", "/data/dup.jpg", "", now))

	has, err = store.HasMedia(ctx, "https://example.com/a.jpg")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestRollupUpsert(t *testing.T) {
	store, _, ctx := setup(t)
	now := time.Date(2026, 8, 2, 1, 0, 0, 0, time.UTC)

	r := StatRollup{Day: "2026-08-01", ChatCount: 10, TipCount: 2, TipTotal: 120, ComputedAt: now}
	require.NoError(t, store.SaveRollup(ctx, r))

	// Recomputing the same day replaces its numbers.
	r.ChatCount = 12
	r.SnapshotsTaken = 5
	require.NoError(t, store.SaveRollup(ctx, r))

	got, err := store.GetRollup(ctx, "2026-08-01")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(12), got.ChatCount)
	assert.Equal(t, int64(5), got.SnapshotsTaken)
	assert.Equal(t, int64(120), got.TipTotal)

	none, err := store.GetRollup(ctx, "2026-07-31")
	require.NoError(t, err)
	assert.Nil(t, none)
}
