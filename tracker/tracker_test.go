package tracker

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/halcyonlabs/streamwatch/errors"
	swtest "github.com/halcyonlabs/streamwatch/internal/testing"
	"github.com/halcyonlabs/streamwatch/jobs"
	"github.com/halcyonlabs/streamwatch/members"
	"github.com/halcyonlabs/streamwatch/platform"
	"github.com/halcyonlabs/streamwatch/snapshots"
)

// fakePlatform is an in-memory platform.Client.
type fakePlatform struct {
	mu sync.Mutex

	profiles   map[string]map[string]*platform.Profile // role -> username
	profileErr error
	followers  []platform.Profile
	following  []platform.Profile
	live       []string
	events     []platform.Event
	messages   []platform.Message
	media      map[string][]platform.MediaItem

	fetchLog  []string // "role/username" in call order
	sinceSeen []time.Time
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		profiles: make(map[string]map[string]*platform.Profile),
		media:    make(map[string][]platform.MediaItem),
	}
}

func (f *fakePlatform) addProfile(role string, p *platform.Profile) {
	if f.profiles[role] == nil {
		f.profiles[role] = make(map[string]*platform.Profile)
	}
	f.profiles[role][p.Username] = p
}

func (f *fakePlatform) FetchProfile(ctx context.Context, username, role string) (*platform.Profile, error) {
	f.mu.Lock()
	f.fetchLog = append(f.fetchLog, role+"/"+username)
	f.mu.Unlock()
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	p := f.profiles[role][username]
	if p == nil {
		return nil, errors.NewNotFoundError("no such profile: " + username)
	}
	cp := *p
	if cp.Role == "" {
		cp.Role = role
	}
	return &cp, nil
}

func (f *fakePlatform) ListFollowers(ctx context.Context) ([]platform.Profile, error) {
	return f.followers, nil
}

func (f *fakePlatform) ListFollowing(ctx context.Context) ([]platform.Profile, error) {
	return f.following, nil
}

func (f *fakePlatform) ListLive(ctx context.Context) ([]string, error) {
	return f.live, nil
}

func (f *fakePlatform) FetchEvents(ctx context.Context, since time.Time) ([]platform.Event, error) {
	f.mu.Lock()
	f.sinceSeen = append(f.sinceSeen, since)
	f.mu.Unlock()
	var out []platform.Event
	for _, e := range f.events {
		if e.OccurredAt.After(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakePlatform) FetchMessages(ctx context.Context, since time.Time) ([]platform.Message, error) {
	var out []platform.Message
	for _, m := range f.messages {
		if m.SentAt.After(since) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakePlatform) ListMedia(ctx context.Context, username string) ([]platform.MediaItem, error) {
	return f.media[username], nil
}

func (f *fakePlatform) fetches() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.fetchLog))
	copy(out, f.fetchLog)
	return out
}

// harness wires real SQLite stores, a fake clock and a fake platform around
// one runner and drives cycles through the real orchestrator.
type harness struct {
	conn  *sql.DB
	deps  Deps
	fake  *fakePlatform
	clock *jobs.FakeClock
	mgr   *jobs.Manager
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := swtest.CreateTestDB(t)
	fake := newFakePlatform()
	clock := jobs.NewFakeClock(time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop().Sugar()
	deps := Deps{
		Members:   members.NewStore(conn),
		Snapshots: snapshots.NewStore(conn),
		Platform:  fake,
		Clock:     clock,
		Log:       log,
	}
	return &harness{
		conn:  conn,
		deps:  deps,
		fake:  fake,
		clock: clock,
		mgr:   jobs.NewManager(jobs.NewStateStore(conn), clock, log, nil),
	}
}

// runOnce registers the runner and executes exactly one manual cycle.
func (h *harness) runOnce(t *testing.T, r jobs.Runner) *jobs.Job {
	t.Helper()
	job, err := h.mgr.Register(r)
	require.NoError(t, err)
	return h.runAgain(t, job)
}

func (h *harness) runAgain(t *testing.T, job *jobs.Job) *jobs.Job {
	t.Helper()
	require.NoError(t, job.RunNow())
	job.WaitIdle()
	return job
}

func (h *harness) seedMember(t *testing.T, id, username, role string, flags ...members.Flag) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.deps.Members.EnsureKnown(ctx, id, username, h.clock.Now()))
	if role != "" {
		require.NoError(t, h.deps.Members.SetRole(ctx, id, role))
	}
	for _, f := range flags {
		require.NoError(t, h.deps.Members.SetFlag(ctx, id, f, true))
	}
}
