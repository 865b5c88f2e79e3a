package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/halcyonlabs/streamwatch/errors"
)

// HTTPClient is the production Client: a thin JSON HTTP wrapper with a
// client-side rate limiter in front of every request. The site tolerates
// roughly one request per second sustained; the limiter keeps every job's
// traffic under that regardless of batch configuration.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	log     *zap.SugaredLogger
}

// Options configures the HTTP client.
type Options struct {
	BaseURL string
	// RequestsPerSecond caps outbound request rate; 0 means 1 rps.
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
}

// NewHTTPClient builds the production client.
func NewHTTPClient(opts Options, log *zap.SugaredLogger) *HTTPClient {
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL: opts.BaseURL,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		log:     log,
	}
}

// get performs one rate-limited GET and decodes the JSON body into out.
func (c *HTTPClient) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limiter wait interrupted")
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return errors.Wrapf(err, "failed to build request for %s", path)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "request failed for %s", path)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errors.NewNotFoundError(fmt.Sprintf("resource not found: %s", path))
	case resp.StatusCode == http.StatusTooManyRequests:
		return errors.Wrapf(errors.ErrRateLimited, "throttled by remote on %s", path)
	case resp.StatusCode >= 400:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Newf("unexpected status %d for %s: %s", resp.StatusCode, path, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "failed to decode response for %s", path)
	}
	return nil
}

func (c *HTTPClient) FetchProfile(ctx context.Context, username, role string) (*Profile, error) {
	var p Profile
	if err := c.get(ctx, "/api/"+url.PathEscape(role)+"/"+url.PathEscape(username), nil, &p); err != nil {
		return nil, err
	}
	if p.Role == "" {
		p.Role = role
	}
	return &p, nil
}

func (c *HTTPClient) ListFollowers(ctx context.Context) ([]Profile, error) {
	var out []Profile
	if err := c.get(ctx, "/api/me/followers", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) ListFollowing(ctx context.Context) ([]Profile, error) {
	var out []Profile
	if err := c.get(ctx, "/api/me/following", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) ListLive(ctx context.Context) ([]string, error) {
	var out []string
	if err := c.get(ctx, "/api/me/following/live", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) FetchEvents(ctx context.Context, since time.Time) ([]Event, error) {
	q := url.Values{"since": {since.UTC().Format(time.RFC3339)}}
	var out []Event
	if err := c.get(ctx, "/api/me/events", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) FetchMessages(ctx context.Context, since time.Time) ([]Message, error) {
	q := url.Values{"since": {since.UTC().Format(time.RFC3339)}}
	var out []Message
	if err := c.get(ctx, "/api/me/messages", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) ListMedia(ctx context.Context, username string) ([]MediaItem, error) {
	var out []MediaItem
	if err := c.get(ctx, "/api/media/"+url.PathEscape(username), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
