// Package catalog queries the remote map catalog.
package catalog

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/imroc/req/v3"
	"github.com/openmined/reflexmaps/internal/utils"
	"github.com/openmined/reflexmaps/internal/version"
)

const sinceParam = "since"

// Client issues catalog queries. It never retries: a failed query ends the run.
type Client struct {
	client *req.Client
}

type Option func(*req.Client)

// WithTimeout bounds a single catalog request.
func WithTimeout(d time.Duration) Option {
	return func(c *req.Client) {
		if d > 0 {
			c.SetTimeout(d)
		}
	}
}

func New(opts ...Option) *Client {
	c := req.C().
		SetCommonRetryCount(0).
		SetUserAgent(version.UserAgent()).
		SetJsonMarshal(utils.JSONMarshal).
		SetJsonUnmarshal(utils.JSONUnmarshal)

	for _, opt := range opts {
		opt(c)
	}
	return &Client{client: c}
}

// Query fetches the catalog for q from source.
// Full queries are filtered by lastFullSync; scoped queries are not.
func (c *Client) Query(ctx context.Context, source string, q Query, lastFullSync time.Time) (*Response, error) {
	if source == "" {
		return nil, ErrNoSourceURL
	}

	r := c.client.R().SetContext(ctx)
	url := source
	if q.IsFull() {
		r.SetQueryParam(sinceParam, FormatSince(lastFullSync))
	} else {
		if q.ID == "" {
			return nil, ErrEmptyID
		}
		url = source + q.ID
	}

	slog.Debug("catalog query", "query", q.String(), "url", url)
	resp, err := r.Get(url)
	if err != nil {
		return nil, fmt.Errorf("catalog: query %q: %w", url, err)
	}

	if resp.IsErrorState() || resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	body, err := resp.ToBytes()
	if err != nil {
		return nil, fmt.Errorf("catalog: read %q: %w", url, err)
	}

	return decode(url, body, q)
}

func decode(url string, body []byte, q Query) (*Response, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, &DecodeError{URL: url, Err: fmt.Errorf("empty body")}
	}

	var out Response
	if err := utils.JSONUnmarshal(body, &out); err != nil {
		return nil, &DecodeError{URL: url, Err: err}
	}

	if out.Items == nil {
		out.Items = []Item{}
	}

	// a zero server time would rewind the next full sync to year one
	if q.IsFull() && out.ServerNow.IsZero() {
		return nil, &DecodeError{URL: url, Err: ErrMissingServerTime}
	}

	return &out, nil
}

// FormatSince renders the `since` filter value: an ISO-8601 timestamp, unquoted.
// URL encoding is left to the request builder.
func FormatSince(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}
