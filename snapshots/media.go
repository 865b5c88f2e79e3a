package snapshots

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/halcyonlabs/streamwatch/errors"
)

// MediaAsset is one media file copied to local storage.
type MediaAsset struct {
	ID        string
	MemberID  string
	SourceURL string
	LocalPath string
	ThumbPath string
	FetchedAt time.Time
}

// HasMedia reports whether the source URL has already been fetched.
func (s *Store) HasMedia(ctx context.Context, sourceURL string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM media_assets WHERE source_url = ?`, sourceURL).Scan(&n)
	if err != nil {
		return false, errors.Wrap(err, "failed to check media asset")
	}
	return n > 0, nil
}

// RecordMedia records one fetched asset. thumbPath may be empty when no
// thumbnail could be generated.
func (s *Store) RecordMedia(ctx context.Context, memberID, sourceURL, localPath, thumbPath string, fetchedAt time.Time) error {
	var thumb sql.NullString
	if thumbPath != "" {
		thumb = sql.NullString{String: thumbPath, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO media_assets (id, member_id, source_url, local_path, thumb_path, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), memberID, sourceURL, localPath, thumb, fetchedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return errors.Wrapf(err, "failed to record media asset %s", sourceURL)
	}
	return nil
}
