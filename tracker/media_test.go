package tracker

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyonlabs/streamwatch/jobs"
	"github.com/halcyonlabs/streamwatch/members"
	"github.com/halcyonlabs/streamwatch/platform"
)

func newMediaRunner(h *harness) *MediaRunner {
	r := NewMediaRunner(h.deps)
	r.fetch = func(ctx context.Context, dst, src string) error {
		return os.WriteFile(dst, []byte("data from "+src), 0o644)
	}
	return r
}

func TestMediaPreflightRequiresDestination(t *testing.T) {
	h := newHarness(t)
	r := NewMediaRunner(h.deps)

	assert.Error(t, r.Preflight(jobs.ConfigMap{}), "no destination refuses the start")
	assert.NoError(t, r.Preflight(jobs.ConfigMap{"destDir": t.TempDir()}))
}

func TestMediaFetchesNewAssetsOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	dest := t.TempDir()

	h.seedMember(t, "m1", "alice", "", members.FlagWatchlist)
	h.fake.media["alice"] = []platform.MediaItem{
		{MemberID: "m1", URL: "https://cdn.example.com/a.mp4"},
		{MemberID: "m1", URL: "https://cdn.example.com/b.mp4"},
	}

	job, err := h.mgr.Register(newMediaRunner(h))
	require.NoError(t, err)
	require.NoError(t, job.UpdateConfig(jobs.ConfigMap{"destDir": dest, "thumbnails": false}))
	h.runAgain(t, job)

	assert.Equal(t, int64(2), job.Status().Stats.LastRunSucceeded)
	assert.FileExists(t, filepath.Join(dest, "m1", "a.mp4"))
	assert.FileExists(t, filepath.Join(dest, "m1", "b.mp4"))

	has, err := h.deps.Snapshots.HasMedia(ctx, "https://cdn.example.com/a.mp4")
	require.NoError(t, err)
	assert.True(t, has)

	// A second cycle finds nothing left to fetch.
	h.runAgain(t, job)
	assert.Equal(t, int64(0), job.Status().Stats.LastRunSucceeded)
}

func TestMediaFetchFailureCountsItem(t *testing.T) {
	h := newHarness(t)
	dest := t.TempDir()

	h.seedMember(t, "m1", "alice", "", members.FlagWatchlist)
	h.fake.media["alice"] = []platform.MediaItem{
		{MemberID: "m1", URL: "https://cdn.example.com/broken.mp4"},
		{MemberID: "m1", URL: "https://cdn.example.com/good.mp4"},
	}

	r := NewMediaRunner(h.deps)
	r.fetch = func(ctx context.Context, dst, src string) error {
		if filepath.Base(dst) == "broken.mp4" {
			return os.ErrPermission
		}
		return os.WriteFile(dst, []byte("ok"), 0o644)
	}

	job, err := h.mgr.Register(r)
	require.NoError(t, err)
	require.NoError(t, job.UpdateConfig(jobs.ConfigMap{"destDir": dest, "thumbnails": false}))
	h.runAgain(t, job)

	stats := job.Status().Stats
	assert.Equal(t, int64(1), stats.LastRunSucceeded)
	assert.Equal(t, int64(1), stats.LastRunFailed)
	assert.FileExists(t, filepath.Join(dest, "m1", "good.mp4"))
}
