// ABOUTME: HTTP App Directory client with per-request timeouts.
// ABOUTME: Identical concurrent lookups are coalesced with singleflight.

package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/2389/fdc3-gateway/internal/fdc3"
)

// DefaultTimeout bounds each directory request.
const DefaultTimeout = 5 * time.Second

// maxBodyBytes caps directory responses.
const maxBodyBytes = 4 << 20

// Client is an HTTP Directory.
type Client struct {
	baseURL string
	http    *http.Client
	group   singleflight.Group
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// NewClient creates a client for the directory rooted at baseURL.
func NewClient(baseURL string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		logger:  logger.With("component", "directory"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search implements Directory.
func (c *Client) Search(ctx context.Context, origin string) ([]fdc3.AppEntry, error) {
	q := url.Values{"origin": {origin}}
	return doShared[[]fdc3.AppEntry](ctx, c, "search:"+origin, "/apps/search?"+q.Encode())
}

// Actions implements Directory.
func (c *Client) Actions(ctx context.Context, name string) ([]fdc3.Action, error) {
	return doShared[[]fdc3.Action](ctx, c, "actions:"+name, "/apps/"+url.PathEscape(name)+"/actions")
}

// Get implements Directory.
func (c *Client) Get(ctx context.Context, name string) (*fdc3.AppEntry, error) {
	entry, err := doShared[fdc3.AppEntry](ctx, c, "get:"+name, "/apps/"+url.PathEscape(name))
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// FindByIntent implements Directory.
func (c *Client) FindByIntent(ctx context.Context, intent, contextType string) ([]fdc3.AppEntry, error) {
	q := url.Values{}
	if intent != "" {
		q.Set("intent", intent)
	}
	if contextType != "" {
		q.Set("context", contextType)
	}
	return doShared[[]fdc3.AppEntry](ctx, c, "intent:"+intent+"|"+contextType, "/apps/search?"+q.Encode())
}

// doShared performs a GET for path, sharing the in-flight request with any
// concurrent caller using the same key. The caller's ctx only bounds its own
// wait; the shared request runs under the client timeout.
func doShared[T any](ctx context.Context, c *Client, key, path string) (T, error) {
	var zero T
	ch := c.group.DoChan(key, func() (any, error) {
		var out T
		if err := c.get(context.WithoutCancel(ctx), path, &out); err != nil {
			return nil, err
		}
		return out, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		if res.Shared {
			c.logger.Debug("directory lookup coalesced", "key", key)
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		return zero, fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
	}
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("%w: building request: %w", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s returned status %d: %s", ErrUnavailable, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding %s: %w", ErrUnavailable, path, err)
	}
	return nil
}
