// Package members persists the directory of tracked platform members and
// their segment flags. The orchestration layer only ever reads member
// references; jobs own flag and freshness updates.
package members

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/halcyonlabs/streamwatch/errors"
)

// Roles a member can be recorded with. Unknown means no profile fetch has
// resolved the member yet.
const (
	RoleUnknown     = "unknown"
	RoleViewer      = "viewer"
	RoleBroadcaster = "broadcaster"
)

// Flag names a segment flag column. Only values from this set are ever
// interpolated into SQL.
type Flag string

const (
	FlagWatchlist  Flag = "on_watchlist"
	FlagFollowing  Flag = "is_following"
	FlagFollower   Flag = "is_follower"
	FlagBanned     Flag = "is_banned"
	FlagLive       Flag = "is_live"
	FlagModerator  Flag = "is_moderator"
	FlagFriend     Flag = "is_friend"
	FlagSubscriber Flag = "is_subscriber"
	FlagTippedMe   Flag = "tipped_me"
	FlagTippedByMe Flag = "tipped_by_me"
)

var validFlags = map[Flag]bool{
	FlagWatchlist: true, FlagFollowing: true, FlagFollower: true,
	FlagBanned: true, FlagLive: true, FlagModerator: true,
	FlagFriend: true, FlagSubscriber: true, FlagTippedMe: true, FlagTippedByMe: true,
}

// Member is one row of the members directory.
type Member struct {
	ID       string
	Username string
	Role     string

	OnWatchlist  bool
	IsFollowing  bool
	IsFollower   bool
	IsBanned     bool
	IsLive       bool
	IsModerator  bool
	IsFriend     bool
	IsSubscriber bool
	TippedMe     bool
	TippedByMe   bool

	LastSnapshotAt *time.Time
	LastSeenAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Store is the SQLite-backed members directory.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureKnown records that a member was observed now: inserts the member if
// absent, otherwise refreshes username and last_seen_at. Identity (the ID)
// is never mutated.
func (s *Store) EnsureKnown(ctx context.Context, id, username string, now time.Time) error {
	ts := now.UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO members (id, username, last_seen_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			last_seen_at = excluded.last_seen_at,
			updated_at = excluded.updated_at
	`, id, username, ts, ts, ts)
	if err != nil {
		return errors.Wrapf(err, "failed to upsert member %s", id)
	}
	return nil
}

// Get returns one member, or nil if unknown.
func (s *Store) Get(ctx context.Context, id string) (*Member, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, role,
		       on_watchlist, is_following, is_follower, is_banned, is_live,
		       is_moderator, is_friend, is_subscriber, tipped_me, tipped_by_me,
		       last_snapshot_at, last_seen_at, created_at, updated_at
		FROM members WHERE id = ?
	`, id)
	return scanMember(row)
}

// GetByUsername returns one member by username, or nil if unknown.
func (s *Store) GetByUsername(ctx context.Context, username string) (*Member, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, role,
		       on_watchlist, is_following, is_follower, is_banned, is_live,
		       is_moderator, is_friend, is_subscriber, tipped_me, tipped_by_me,
		       last_snapshot_at, last_seen_at, created_at, updated_at
		FROM members WHERE username = ?
	`, username)
	return scanMember(row)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMember(row rowScanner) (*Member, error) {
	var (
		m                                      Member
		watch, following, follower, banned     int
		live, mod, friend, sub, tipped, tipper int
		lastSnap, lastSeen                     sql.NullString
		createdAt, updatedAt                   string
	)
	err := row.Scan(
		&m.ID, &m.Username, &m.Role,
		&watch, &following, &follower, &banned, &live,
		&mod, &friend, &sub, &tipped, &tipper,
		&lastSnap, &lastSeen, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan member")
	}

	m.OnWatchlist = watch != 0
	m.IsFollowing = following != 0
	m.IsFollower = follower != 0
	m.IsBanned = banned != 0
	m.IsLive = live != 0
	m.IsModerator = mod != 0
	m.IsFriend = friend != 0
	m.IsSubscriber = sub != 0
	m.TippedMe = tipped != 0
	m.TippedByMe = tipper != 0

	if m.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, errors.Wrap(err, "failed to parse created_at")
	}
	if m.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, errors.Wrap(err, "failed to parse updated_at")
	}
	if lastSnap.Valid && lastSnap.String != "" {
		t, err := time.Parse(time.RFC3339, lastSnap.String)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse last_snapshot_at")
		}
		m.LastSnapshotAt = &t
	}
	if lastSeen.Valid && lastSeen.String != "" {
		t, err := time.Parse(time.RFC3339, lastSeen.String)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse last_seen_at")
		}
		m.LastSeenAt = &t
	}
	return &m, nil
}

// SetRole records the member's resolved role.
func (s *Store) SetRole(ctx context.Context, id, role string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE members SET role = ?, updated_at = ? WHERE id = ?`,
		role, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return errors.Wrapf(err, "failed to set role for member %s", id)
	}
	return requireMember(res, id)
}

// MarkSnapshotted records a successful profile snapshot for freshness
// ordering in the target selector.
func (s *Store) MarkSnapshotted(ctx context.Context, id string, at time.Time) error {
	ts := at.UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx,
		`UPDATE members SET last_snapshot_at = ?, updated_at = ? WHERE id = ?`,
		ts, ts, id)
	if err != nil {
		return errors.Wrapf(err, "failed to mark snapshot for member %s", id)
	}
	return requireMember(res, id)
}

// SetFlag sets or clears one segment flag on one member.
func (s *Store) SetFlag(ctx context.Context, id string, flag Flag, value bool) error {
	if !validFlags[flag] {
		return errors.Newf("unknown member flag: %s", flag)
	}
	v := 0
	if value {
		v = 1
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE members SET `+string(flag)+` = ?, updated_at = ? WHERE id = ?`,
		v, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return errors.Wrapf(err, "failed to set flag %s for member %s", flag, id)
	}
	return requireMember(res, id)
}

// ListIDsWithFlag returns the IDs of every member with the flag set.
func (s *Store) ListIDsWithFlag(ctx context.Context, flag Flag) ([]string, error) {
	if !validFlags[flag] {
		return nil, errors.Newf("unknown member flag: %s", flag)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM members WHERE `+string(flag)+` = 1 ORDER BY id`)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list members with flag %s", flag)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "failed to scan member id")
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ReplaceFlag sets the flag to true for exactly the given IDs and clears it
// everywhere else, in one transaction. Used by the sync jobs that observe a
// complete segment membership list each cycle.
func (s *Store) ReplaceFlag(ctx context.Context, flag Flag, ids []string) error {
	if !validFlags[flag] {
		return errors.Newf("unknown member flag: %s", flag)
	}
	ts := time.Now().UTC().Format(time.RFC3339)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin flag replace")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE members SET `+string(flag)+` = 0, updated_at = ? WHERE `+string(flag)+` = 1`, ts); err != nil {
		return errors.Wrapf(err, "failed to clear flag %s", flag)
	}
	if len(ids) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
		args := make([]interface{}, 0, len(ids)+1)
		args = append(args, ts)
		for _, id := range ids {
			args = append(args, id)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE members SET `+string(flag)+` = 1, updated_at = ? WHERE id IN (`+placeholders+`)`,
			args...); err != nil {
			return errors.Wrapf(err, "failed to set flag %s", flag)
		}
	}
	return errors.Wrap(tx.Commit(), "failed to commit flag replace")
}

// Count returns the total number of known members.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM members`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "failed to count members")
	}
	return n, nil
}

func requireMember(res sql.Result, id string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.Newf("member not found: %s", id)
	}
	return nil
}
