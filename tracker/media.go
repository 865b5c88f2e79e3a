package tracker

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/hashicorp/go-getter"

	"github.com/halcyonlabs/streamwatch/errors"
	"github.com/halcyonlabs/streamwatch/jobs"
	"github.com/halcyonlabs/streamwatch/members"
)

// FileFetcher copies one remote file to a local destination.
type FileFetcher func(ctx context.Context, dst, src string) error

// getterFetch is the production fetcher.
func getterFetch(ctx context.Context, dst, src string) error {
	client := &getter.Client{
		Ctx:  ctx,
		Src:  src,
		Dst:  dst,
		Mode: getter.ClientModeFile,
	}
	return client.Get()
}

const (
	thumbWidth  = 320
	thumbHeight = 180
)

// MediaRunner mirrors watchlisted members' media into local storage and
// generates image thumbnails. The destination directory is a hard start
// precondition: with nowhere to write, the job refuses to start.
type MediaRunner struct {
	d     Deps
	fetch FileFetcher
}

func NewMediaRunner(d Deps) *MediaRunner {
	return &MediaRunner{d: d, fetch: getterFetch}
}

func (r *MediaRunner) Name() string { return JobMedia }

func (r *MediaRunner) Defaults() jobs.ConfigMap {
	return jobs.ConfigMap{
		"enabled":           false,
		"intervalMinutes":   720,
		"destDir":           "",
		"thumbnails":        true,
		"batchSize":         5,
		"itemDelaySeconds":  5,
		"batchDelaySeconds": 60,
	}
}

// Preflight verifies the destination is configured and writable.
func (r *MediaRunner) Preflight(cfg jobs.ConfigMap) error {
	dest := cfg.String("destDir", "")
	if dest == "" {
		return errors.New("media destination directory is not configured")
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return errors.Wrapf(err, "media destination is not writable: %s", dest)
	}
	return nil
}

type mediaWork struct {
	memberID string
	username string
	url      string
}

func (r *MediaRunner) RunCycle(ctx context.Context, c *jobs.Cycle) error {
	dest := c.Config.String("destDir", "")
	if dest == "" {
		return errors.New("media destination directory is not configured")
	}

	ids, err := r.d.Members.ListIDsWithFlag(ctx, members.FlagWatchlist)
	if err != nil {
		return err
	}

	var work []mediaWork
	for _, id := range ids {
		m, err := r.d.Members.Get(ctx, id)
		if err != nil || m == nil {
			r.d.Log.Warnw("Watchlist member lookup failed", "member", id, "error", err)
			continue
		}
		items, err := r.d.Platform.ListMedia(ctx, m.Username)
		if err != nil {
			r.d.Log.Warnw("Media listing failed", "member", m.Username, "error", err)
			continue
		}
		for _, item := range items {
			seen, err := r.d.Snapshots.HasMedia(ctx, item.URL)
			if err != nil {
				return err
			}
			if !seen {
				work = append(work, mediaWork{memberID: id, username: m.Username, url: item.URL})
			}
		}
	}

	thumbs := c.Config.Bool("thumbnails", true)
	jobs.RunBatches(ctx, r.d.Clock, r.d.Log, c, work, jobs.BatchConfigFromMap(c.Config),
		func(w mediaWork) string { return w.username + ": " + path.Base(w.url) },
		func(ctx context.Context, w mediaWork) error {
			return r.fetchOne(ctx, dest, w, thumbs)
		})
	return nil
}

func (r *MediaRunner) fetchOne(ctx context.Context, dest string, w mediaWork, thumbs bool) error {
	name := path.Base(w.url)
	if name == "" || name == "." || name == "/" {
		return errors.Newf("unusable media url: %s", w.url)
	}

	memberDir := filepath.Join(dest, w.memberID)
	if err := os.MkdirAll(memberDir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create media directory for %s", w.memberID)
	}

	local := filepath.Join(memberDir, name)
	if err := r.fetch(ctx, local, w.url); err != nil {
		return errors.Wrapf(err, "failed to fetch %s", w.url)
	}

	thumbPath := ""
	if thumbs && isImage(name) {
		thumbPath = thumbFor(local)
		if err := r.makeThumb(local, thumbPath); err != nil {
			// A broken thumbnail never fails the asset itself.
			r.d.Log.Warnw("Thumbnail generation failed", "file", local, "error", err)
			thumbPath = ""
		}
	}

	return r.d.Snapshots.RecordMedia(ctx, w.memberID, w.url, local, thumbPath, r.d.Clock.Now())
}

func (r *MediaRunner) makeThumb(src, dst string) error {
	img, err := imaging.Open(src)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", src)
	}
	thumb := imaging.Thumbnail(img, thumbWidth, thumbHeight, imaging.Lanczos)
	return errors.Wrapf(imaging.Save(thumb, dst), "failed to save thumbnail %s", dst)
}

func isImage(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tif", ".tiff":
		return true
	}
	return false
}

func thumbFor(local string) string {
	ext := filepath.Ext(local)
	return strings.TrimSuffix(local, ext) + "_thumb" + ext
}
