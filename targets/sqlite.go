package targets

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/halcyonlabs/streamwatch/errors"
)

// segmentColumns whitelists the members flag column backing each segment.
// Queries are built only from this map, never from caller input.
var segmentColumns = map[string]string{
	SegmentWatchlist:   "on_watchlist",
	SegmentFollowing:   "is_following",
	SegmentFollowers:   "is_follower",
	SegmentBanned:      "is_banned",
	SegmentLive:        "is_live",
	SegmentModerators:  "is_moderator",
	SegmentFriends:     "is_friend",
	SegmentSubscribers: "is_subscriber",
	SegmentTippedMe:    "tipped_me",
	SegmentTippedByMe:  "tipped_by_me",
}

// sqlProvider lists one segment from the members table, least-recently
// snapshotted first (NULL last_snapshot_at sorts first, so never-processed
// members win).
type sqlProvider struct {
	db      *sql.DB
	segment string
	column  string
}

func (p *sqlProvider) Segment() string { return p.segment }

func (p *sqlProvider) List(ctx context.Context, limit int) ([]Target, error) {
	query := `
		SELECT id, username FROM members
		WHERE ` + p.column + ` = 1
		ORDER BY last_snapshot_at ASC
		LIMIT ?
	`
	rows, err := p.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list segment %s", p.segment)
	}
	defer rows.Close()
	return scanTargets(rows, p.segment)
}

// poolProvider is the unprioritized fallback: every known member,
// least-recently-seen first.
type poolProvider struct {
	db *sql.DB
}

func (p *poolProvider) Segment() string { return SegmentPool }

func (p *poolProvider) List(ctx context.Context, limit int) ([]Target, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, username FROM members ORDER BY last_seen_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list fallback pool")
	}
	defer rows.Close()
	return scanTargets(rows, SegmentPool)
}

func scanTargets(rows *sql.Rows, segment string) ([]Target, error) {
	var out []Target
	for rows.Next() {
		var t Target
		if err := rows.Scan(&t.ID, &t.Username); err != nil {
			return nil, errors.Wrapf(err, "failed to scan target for segment %s", segment)
		}
		t.Segment = segment
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "row iteration failed for segment %s", segment)
	}
	return out, nil
}

// NewSQLProviders returns one provider per segment, backed by the members
// table, in no particular order (the Selector imposes its own).
func NewSQLProviders(db *sql.DB) []Provider {
	out := make([]Provider, 0, len(segmentColumns))
	for seg, col := range segmentColumns {
		out = append(out, &sqlProvider{db: db, segment: seg, column: col})
	}
	return out
}

// NewPoolProvider returns the fallback pool provider over the members table.
func NewPoolProvider(db *sql.DB) Provider {
	return &poolProvider{db: db}
}

// NewSQLSelector wires a Selector over the members table: one provider per
// segment plus the fallback pool.
func NewSQLSelector(db *sql.DB, log *zap.SugaredLogger) *Selector {
	return NewSelector(log, NewPoolProvider(db), NewSQLProviders(db)...)
}
