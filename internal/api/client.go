package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/anot-platform/anot-client/internal/logging"
	"github.com/anot-platform/anot-client/internal/tokenstore"
)

const component = "api"

// Client is the single gateway to the REST API. It injects the bearer token
// from the store and transparently recovers from an expired access token by
// refreshing it once per request.
type Client struct {
	baseURL    string
	store      tokenstore.Store
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *zap.Logger

	refreshes singleflight.Group

	mu             sync.RWMutex
	onForcedLogout func()
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client, e.g. to set a timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger used for request and refresh logging.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = logging.OrNop(l) }
}

// WithRateLimit caps outbound requests; rps <= 0 disables the limiter.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithForcedLogout registers the hook run after a failed refresh has cleared
// the session.
func WithForcedLogout(fn func()) Option {
	return func(c *Client) { c.onForcedLogout = fn }
}

// New creates a client for baseURL (e.g. https://host/api) backed by store.
func New(baseURL string, store tokenstore.Store, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		store:   store,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetForcedLogoutHandler replaces the forced-logout hook.
func (c *Client) SetForcedLogoutHandler(fn func()) {
	c.mu.Lock()
	c.onForcedLogout = fn
	c.mu.Unlock()
}

// Authorization returns the header value the next request will carry, or ""
// when no access token is stored.
func (c *Client) Authorization() string {
	if tok, ok := c.store.Get(tokenstore.KeyAccessToken); ok && tok != "" {
		return "Bearer " + tok
	}
	return ""
}

// request describes one logical call. Anonymous calls never carry a token
// and never trigger a refresh.
type request struct {
	method    string
	path      string
	body      any
	anonymous bool
}

type payload struct {
	data        []byte
	contentType string
}

// Do performs an authenticated call and decodes a JSON response into out
// (which may be nil). body is JSON-encoded unless it is a *Multipart.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	return c.do(ctx, request{method: method, path: path, body: body}, out)
}

// Get fetches path and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Post sends body to path and decodes the JSON response into out.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

// Patch sends a partial update to path and decodes the response into out.
func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPatch, path, body, out)
}

// Delete removes the resource at path; a 204 response is success.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.Do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) do(ctx context.Context, r request, out any) error {
	p, err := encodeBody(r.body)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", r.method, r.path, err)
	}

	token := ""
	if !r.anonymous {
		token, _ = c.store.Get(tokenstore.KeyAccessToken)
	}

	resp, err := c.send(ctx, r.method, r.path, p, token)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized && !r.anonymous {
		unauthorized := readError(resp)

		fresh, err := c.recoverAuth(ctx, token, unauthorized)
		if err != nil {
			return err
		}
		// The replay is final: a second 401 goes back to the caller.
		if resp, err = c.send(ctx, r.method, r.path, p, fresh); err != nil {
			return err
		}
	}

	return decodeResponse(resp, out)
}

// recoverAuth returns a usable access token after stale was rejected, or the
// error the caller should see.
func (c *Client) recoverAuth(ctx context.Context, stale string, unauthorized *Error) (string, error) {
	// Another request may already have refreshed while this one was in flight.
	if cur, ok := c.store.Get(tokenstore.KeyAccessToken); ok && cur != "" && cur != stale {
		return cur, nil
	}

	refresh, ok := c.store.Get(tokenstore.KeyRefreshToken)
	if !ok || refresh == "" {
		return "", unauthorized
	}

	v, err, _ := c.refreshes.Do(refresh, func() (any, error) {
		return c.refresh(context.WithoutCancel(ctx), refresh)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// refresh runs at most once per refresh token at a time; concurrent 401s
// share its outcome.
func (c *Client) refresh(ctx context.Context, refreshToken string) (string, error) {
	var out refreshResponse
	err := c.do(ctx, request{
		method:    http.MethodPost,
		path:      "/token/refresh/",
		body:      refreshRequest{Refresh: refreshToken},
		anonymous: true,
	}, &out)
	if err == nil && out.Access == "" {
		err = ErrMissingAccess
	}
	if err != nil {
		logging.LogError(c.log, component, "refresh", err)
		c.store.Remove(tokenstore.KeyAccessToken)
		c.store.Remove(tokenstore.KeyRefreshToken)
		c.store.Remove(tokenstore.KeyUser)

		c.mu.RLock()
		hook := c.onForcedLogout
		c.mu.RUnlock()
		if hook != nil {
			hook()
		}
		return "", fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}

	c.store.Set(tokenstore.KeyAccessToken, out.Access)
	if out.Refresh != "" {
		c.store.Set(tokenstore.KeyRefreshToken, out.Refresh)
	}
	c.log.Info("access token refreshed")
	return out.Access, nil
}

func (c *Client) send(ctx context.Context, method, path string, p *payload, token string) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	var body io.Reader
	if p != nil {
		body = bytes.NewReader(p.data)
	}
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if p != nil {
		req.Header.Set("Content-Type", p.contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	logging.LogRequest(c.log, component, method, url)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logging.LogError(c.log, component, method+" "+path, err)
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	logging.LogResponse(c.log, component, resp.StatusCode, time.Since(start))
	return resp, nil
}

func encodeBody(body any) (*payload, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case *Multipart:
		return b.encode()
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, err
		}
		return &payload{data: data, contentType: "application/json"}, nil
	}
}

// readError consumes and closes resp.
func readError(resp *http.Response) *Error {
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	return newError(resp.StatusCode, data)
}

func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readError(resp)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent || out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
