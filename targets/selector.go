// Package targets implements the priority-segment merge that decides which
// members a high-volume cycle processes: an ordered, deduplicated list
// bounded by a hard per-cycle cap.
package targets

import (
	"context"

	"go.uber.org/zap"

	"github.com/halcyonlabs/streamwatch/jobs"
)

// Segment names, in their fixed evaluation order.
const (
	SegmentWatchlist   = "watchlist"
	SegmentFollowing   = "following"
	SegmentFollowers   = "followers"
	SegmentBanned      = "banned"
	SegmentLive        = "live"
	SegmentModerators  = "moderators"
	SegmentFriends     = "friends"
	SegmentSubscribers = "subscribers"
	SegmentTippedMe    = "tipped-me"
	SegmentTippedByMe  = "tipped-by-me"

	// SegmentPool is the unprioritized fallback: all known members,
	// least-recently-seen first.
	SegmentPool = "pool"
)

// SegmentOrder is the fixed evaluation order. Determinism matters more than
// configurability here: toggles choose WHICH segments contribute, never in
// what order.
var SegmentOrder = []string{
	SegmentWatchlist,
	SegmentFollowing,
	SegmentFollowers,
	SegmentBanned,
	SegmentLive,
	SegmentModerators,
	SegmentFriends,
	SegmentSubscribers,
	SegmentTippedMe,
	SegmentTippedByMe,
}

// segmentToggles maps each segment to its config toggle key.
var segmentToggles = map[string]string{
	SegmentWatchlist:   "prioritizeWatchlist",
	SegmentFollowing:   "prioritizeFollowing",
	SegmentFollowers:   "prioritizeFollowers",
	SegmentBanned:      "prioritizeBanned",
	SegmentLive:        "prioritizeLive",
	SegmentModerators:  "prioritizeModerators",
	SegmentFriends:     "prioritizeFriends",
	SegmentSubscribers: "prioritizeSubscribers",
	SegmentTippedMe:    "prioritizeTippedMe",
	SegmentTippedByMe:  "prioritizeTippedByMe",
}

// DefaultMaxPerRun bounds one cycle when the config carries no maxPerRun.
const DefaultMaxPerRun = 100

// Target is one selected member reference. Segment records which segment
// won the member, for logging only.
type Target struct {
	ID       string
	Username string
	Segment  string
}

// Provider lists one segment's candidates, ordered by the segment's own
// freshness rule (typically least-recently-processed first).
type Provider interface {
	Segment() string
	List(ctx context.Context, limit int) ([]Target, error)
}

// Policy is the per-cycle selection policy, derived from job config.
type Policy struct {
	MaxPerRun int
	Enabled   map[string]bool
}

// PolicyFromConfig reads the segment toggles and cap out of a job config.
// Watchlist and following default to on; everything else defaults to off.
func PolicyFromConfig(cfg jobs.ConfigMap) Policy {
	enabled := make(map[string]bool, len(segmentToggles))
	for seg, key := range segmentToggles {
		def := seg == SegmentWatchlist || seg == SegmentFollowing
		enabled[seg] = cfg.Bool(key, def)
	}
	return Policy{
		MaxPerRun: cfg.Int("maxPerRun", DefaultMaxPerRun),
		Enabled:   enabled,
	}
}

// Selector merges priority segments into one capped target list.
type Selector struct {
	providers map[string]Provider
	fallback  Provider
	log       *zap.SugaredLogger
}

// NewSelector builds a selector. fallback may be nil; providers are indexed
// by their segment name and consulted in SegmentOrder regardless of the
// order given here.
func NewSelector(log *zap.SugaredLogger, fallback Provider, providers ...Provider) *Selector {
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byName[p.Segment()] = p
	}
	return &Selector{providers: byName, fallback: fallback, log: log}
}

// Select produces the target list for one cycle: segments are evaluated in
// fixed order, members are deduplicated by ID, and once the cap is reached
// no further segment is evaluated at all. If every enabled segment is
// exhausted below the cap, the fallback pool fills the remaining capacity.
// A failing segment is logged and skipped; selection never fails outright.
func (s *Selector) Select(ctx context.Context, p Policy) []Target {
	max := p.MaxPerRun
	if max <= 0 {
		max = DefaultMaxPerRun
	}

	seen := make(map[string]bool, max)
	out := make([]Target, 0, max)

	for _, seg := range SegmentOrder {
		if len(out) >= max {
			break
		}
		if !p.Enabled[seg] {
			continue
		}
		prov, ok := s.providers[seg]
		if !ok {
			continue
		}
		list, err := prov.List(ctx, max)
		if err != nil {
			s.log.Warnw("Segment listing failed, skipping", "segment", seg, "error", err)
			continue
		}
		out = s.merge(out, seen, list, max)
	}

	if len(out) < max && s.fallback != nil {
		list, err := s.fallback.List(ctx, max)
		if err != nil {
			s.log.Warnw("Fallback pool listing failed", "error", err)
		} else {
			out = s.merge(out, seen, list, max)
		}
	}

	return out
}

func (s *Selector) merge(out []Target, seen map[string]bool, list []Target, max int) []Target {
	for _, t := range list {
		if len(out) >= max {
			break
		}
		if seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		out = append(out, t)
	}
	return out
}
