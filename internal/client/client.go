package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/openmined/reflexmaps/internal/catalog"
	"github.com/openmined/reflexmaps/internal/client/config"
	"github.com/openmined/reflexmaps/internal/fetch"
	"github.com/openmined/reflexmaps/internal/reconcile"
	"github.com/openmined/reflexmaps/internal/state"
	"github.com/spf13/afero"
)

// Client runs one sync: load state, query the catalog, download what is stale,
// save state.
type Client struct {
	config  *config.Config
	fs      afero.Fs
	out     io.Writer
	catalog *catalog.Client
	fetcher *fetch.Fetcher
}

type Option func(*Client)

// WithFs swaps the filesystem used for the state file and the maps.
func WithFs(fs afero.Fs) Option {
	return func(c *Client) {
		c.fs = fs
	}
}

// WithOutput sets where the progress lines go. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(c *Client) {
		c.out = w
	}
}

func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("client: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("client: invalid config: %w", err)
	}

	c := &Client{
		config: cfg,
		fs:     afero.NewOsFs(),
		out:    os.Stdout,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.catalog = catalog.New(catalog.WithTimeout(cfg.Timeout))
	c.fetcher = fetch.New(c.fs, fetch.WithTimeout(cfg.Timeout))
	return c, nil
}

// Report summarizes a run.
type Report struct {
	Query        catalog.Query
	Found        int
	Downloaded   int
	Skipped      int
	Bytes        int64
	LastFullSync time.Time
	Saved        bool
}

// Sync performs one run for q.
//
// A catalog failure or a cancelled context returns before anything is saved. A
// failed download stops the run, but the markers of maps already downloaded are
// saved; LastFullSync is then left alone so the next full sync lists the rest again.
func (c *Client) Sync(ctx context.Context, q catalog.Query) (*Report, error) {
	st := c.loadState()
	report := &Report{Query: q, LastFullSync: st.LastFullSync}

	slog.Info("sync start", "query", q.String(), "source", st.SourceURL, "mapPath", st.MapPath, "since", st.LastFullSync)

	resp, err := c.catalog.Query(ctx, st.SourceURL, q, st.LastFullSync)
	if err != nil {
		return report, fmt.Errorf("query catalog: %w", err)
	}
	report.Found = len(resp.Items)
	c.printf("found %d updates\n", len(resp.Items))

	plan := reconcile.BuildPlan(st.MapVersions, resp.Items)
	slog.Debug("sync plan", "downloads", plan.Downloads, "skips", plan.Skips)

	if c.config.DryRun {
		c.printPlan(st.MapPath, plan)
		report.Skipped = plan.Skips
		return report, nil
	}

	var fetchErr error
	for _, item := range plan.Items {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("sync interrupted: %w", err)
		}

		if item.Action == reconcile.ActionSkip {
			c.printf("already latest version of %s\n", item.URL)
			report.Skipped++
			continue
		}

		c.printf("downloading %s to %s\n", item.URL, fetch.TargetPath(st.MapPath, item.URL))
		res, err := c.fetcher.Fetch(ctx, item.URL, st.MapPath)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return report, fmt.Errorf("sync interrupted: %w", ctxErr)
			}
			slog.Error("download failed", "url", item.URL, "error", err)
			fetchErr = fmt.Errorf("download %s: %w", item.URL, err)
			break
		}

		reconcile.Apply(&st, item)
		report.Downloaded++
		report.Bytes += res.Size
	}

	if fetchErr == nil {
		reconcile.Finish(&st, q, resp)
	}

	c.printf("storing update information\n")
	if err := state.Save(c.fs, c.config.StatePath, st); err != nil {
		return report, errors.Join(fetchErr, fmt.Errorf("save state: %w", err))
	}
	report.Saved = true
	report.LastFullSync = st.LastFullSync

	slog.Info("sync done",
		"query", q.String(),
		"found", report.Found,
		"downloaded", report.Downloaded,
		"skipped", report.Skipped,
		"size", humanize.Bytes(uint64(report.Bytes)),
		"lastFullSync", st.LastFullSync,
	)
	return report, fetchErr
}

func (c *Client) loadState() state.SyncState {
	defaults := state.New(c.config.DefaultSourceURL, c.config.DefaultMapPath)
	st := state.Load(c.fs, c.config.StatePath, defaults)

	if c.config.SourceURL != "" {
		st.SourceURL = c.config.SourceURL
	}
	if c.config.MapPath != "" {
		st.MapPath = c.config.MapPath
	}
	return st
}

func (c *Client) printPlan(mapPath string, plan reconcile.Plan) {
	for _, item := range plan.Items {
		if item.Action == reconcile.ActionSkip {
			c.printf("already latest version of %s\n", item.URL)
			continue
		}
		c.printf("would download %s to %s\n", item.URL, fetch.TargetPath(mapPath, item.URL))
	}
}

func (c *Client) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}
