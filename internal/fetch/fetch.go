// Package fetch downloads map files into the local map directory.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/imroc/req/v3"
	"github.com/openmined/reflexmaps/internal/reconcile"
	"github.com/openmined/reflexmaps/internal/version"
	"github.com/spf13/afero"
)

// bodies smaller than this do not get progress logs
const progressThreshold = 1024 * 1024

// StatusError is returned when a map url answers with a non-2xx status.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch: %s: unexpected status %s", e.URL, e.Status)
}

// Result describes a completed download.
type Result struct {
	Path string
	Size int64
}

// Fetcher downloads one url at a time. It never retries.
type Fetcher struct {
	fs     afero.Fs
	client *req.Client
}

type Option func(*req.Client)

// WithTimeout bounds a single download.
func WithTimeout(d time.Duration) Option {
	return func(c *req.Client) {
		if d > 0 {
			c.SetTimeout(d)
		}
	}
}

func New(fs afero.Fs, opts ...Option) *Fetcher {
	c := req.C().
		SetCommonRetryCount(0).
		SetUserAgent(version.UserAgent())

	for _, opt := range opts {
		opt(c)
	}
	return &Fetcher{fs: fs, client: c}
}

// TargetPath is where url lands inside dir.
func TargetPath(dir, url string) string {
	return filepath.Join(dir, reconcile.FilenameFor(url))
}

// Fetch downloads url to dir/<last url segment>, replacing any existing file.
// The body is streamed into a temp file in dir first, so a failed transfer leaves
// the previous file untouched.
func (f *Fetcher) Fetch(ctx context.Context, url, dir string) (Result, error) {
	if err := f.fs.MkdirAll(dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("fetch: mkdir %q: %w", dir, err)
	}
	dest := TargetPath(dir, url)

	tmp, err := afero.TempFile(f.fs, dir, "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return Result{}, fmt.Errorf("fetch: temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		f.fs.Remove(tmpName)
	}

	resp, err := f.client.R().
		SetContext(ctx).
		// req closes Closer outputs itself; keep the temp file open until the status is known
		SetOutput(struct{ io.Writer }{tmp}).
		SetDownloadCallbackWithInterval(func(info req.DownloadInfo) {
			if info.Response == nil || info.Response.Response == nil {
				return
			}
			total := info.Response.ContentLength
			if total < progressThreshold {
				return
			}
			slog.Debug("download progress", "url", url,
				"done", humanize.Bytes(uint64(info.DownloadedSize)),
				"total", humanize.Bytes(uint64(total)))
		}, time.Second).
		Get(url)
	if err != nil {
		cleanup()
		return Result{}, fmt.Errorf("fetch: %q: %w", url, err)
	}

	if resp.IsErrorState() || resp.StatusCode < 200 || resp.StatusCode > 299 {
		cleanup()
		return Result{}, &StatusError{URL: url, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	if err := tmp.Close(); err != nil {
		f.fs.Remove(tmpName)
		return Result{}, fmt.Errorf("fetch: write %q: %w", tmpName, err)
	}

	info, err := f.fs.Stat(tmpName)
	if err != nil {
		f.fs.Remove(tmpName)
		return Result{}, fmt.Errorf("fetch: stat %q: %w", tmpName, err)
	}

	if err := f.fs.Rename(tmpName, dest); err != nil {
		f.fs.Remove(tmpName)
		return Result{}, fmt.Errorf("fetch: replace %q: %w", dest, err)
	}

	slog.Debug("downloaded", "url", url, "path", dest, "size", humanize.Bytes(uint64(info.Size())))
	return Result{Path: dest, Size: info.Size()}, nil
}
