package zettle

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

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"repairshop/pkg/config"
)

// RefreshSkew is how close to expiry a token may get before it is refreshed.
const RefreshSkew = 30 * time.Second

const maxBody = 4 << 20

// defaultRefreshTimeout bounds a token refresh when no HTTP timeout is configured.
const defaultRefreshTimeout = 30 * time.Second

// Client is the authenticated Zettle API client.
type Client struct {
	cfg   config.Zettle
	store TokenStore
	oauth *OAuth
	http  *http.Client
	log   *zap.SugaredLogger
	now   func() time.Time

	refreshes singleflight.Group
	breakers  *breakers

	orgMu sync.Mutex
	orgID string
}

type Option func(*Client)

// WithHTTPClient replaces the default otel-instrumented client (tests use httptest clients).
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(c *Client) { c.now = now } }

func NewClient(cfg config.Zettle, store TokenStore, log *zap.SugaredLogger, opts ...Option) *Client {
	c := &Client{
		cfg:   cfg,
		store: store,
		log:   log,
		now:   time.Now,
		http: &http.Client{
			Timeout:   cfg.HTTPTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		orgID: cfg.OrganizationID,
	}
	for _, o := range opts {
		o(c)
	}
	c.oauth = NewOAuth(cfg, c.http)
	c.oauth.now = c.now
	c.breakers = newBreakers(cfg.BreakerFailures, gobreaker.Settings{
		Timeout: cfg.BreakerCooldown,
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnw("zettle candidate breaker", "candidate", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

// OAuth exposes the grant helper used by the connect flow.
func (c *Client) OAuth() *OAuth { return c.oauth }

// Store exposes the token store used by the connect flow and status page.
func (c *Client) Store() TokenStore { return c.store }

// Config returns the provider settings the client was built with.
func (c *Client) Config() config.Zettle { return c.cfg }

// Authenticate returns a token valid for more than RefreshSkew, refreshing it once if needed.
func (c *Client) Authenticate(ctx context.Context) (StoredToken, error) {
	tok, err := c.store.Load(ctx)
	if err != nil {
		return StoredToken{}, fmt.Errorf("zettle: load token: %w", err)
	}
	if tok == nil {
		return StoredToken{}, ErrNotConnected
	}
	if tok.ValidFor(c.now(), RefreshSkew) {
		return *tok, nil
	}
	// the shared refresh outlives any one waiter's cancellation
	v, err, _ := c.refreshes.Do("refresh", func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.refreshTimeout())
		defer cancel()
		return c.refresh(rctx, *tok)
	})
	if err != nil {
		return StoredToken{}, err
	}
	return v.(StoredToken), nil
}

func (c *Client) refreshTimeout() time.Duration {
	if c.cfg.HTTPTimeout > 0 {
		return c.cfg.HTTPTimeout
	}
	return defaultRefreshTimeout
}

func (c *Client) refresh(ctx context.Context, prev StoredToken) (StoredToken, error) {
	if !c.cfg.HasCredentials() {
		return StoredToken{}, ErrMissingCredentials
	}
	if prev.RefreshToken == "" {
		return StoredToken{}, fmt.Errorf("%w: no refresh token stored, reconnect required", ErrNotConnected)
	}
	next, err := c.oauth.Refresh(ctx, prev.RefreshToken)
	if err != nil {
		tokenRefreshes.WithLabelValues("error").Inc()
		c.log.Errorw("zettle token refresh failed", "err", err)
		return StoredToken{}, err
	}
	ok, err := c.store.CompareAndSwap(ctx, prev, next)
	if err != nil {
		return StoredToken{}, fmt.Errorf("zettle: persist refreshed token: %w", err)
	}
	if !ok {
		// another process refreshed first; its token wins
		tokenRefreshes.WithLabelValues("lost_race").Inc()
		cur, err := c.store.Load(ctx)
		if err != nil {
			return StoredToken{}, fmt.Errorf("zettle: reload token: %w", err)
		}
		if cur != nil && cur.ValidFor(c.now(), 0) {
			return *cur, nil
		}
		return StoredToken{}, ErrTokenRace
	}
	tokenRefreshes.WithLabelValues("ok").Inc()
	c.log.Infow("zettle token refreshed", "expires_at", next.ExpiresAt)
	return next, nil
}

type response struct {
	Status int
	Header http.Header
	Body   []byte
}

// do sends one authenticated request. Non-2xx answers become *HTTPStatusError.
func (c *Client) do(ctx context.Context, tok StoredToken, method, url string, body any, hdr http.Header) (*response, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return nil, err
	}
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Authorization", tokenType(tok.TokenType)+" "+tok.AccessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("zettle: %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("zettle: read %s: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPStatusError{Method: method, URL: url, Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	return &response{Status: resp.StatusCode, Header: resp.Header, Body: raw}, nil
}

// probe GETs each candidate until one answers 2xx. Candidates with an open breaker go last.
func (c *Client) probe(ctx context.Context, tok StoredToken, resource string, cands []Candidate) (*response, error) {
	return FirstSuccess(ctx, resource, c.breakers.order(cands), func(ctx context.Context, cand Candidate) (*response, error) {
		v, err := c.breakers.run(cand.Name, func() (any, error) {
			return c.do(ctx, tok, http.MethodGet, cand.URL, nil, nil)
		})
		if err != nil {
			a := attemptFrom(cand, err)
			probeAttempts.WithLabelValues(resource, cand.Name, "fail").Inc()
			c.log.Infow("zettle candidate failed", "resource", resource, "url", cand.URL, "status", a.Status, "err", err)
			return nil, err
		}
		probeAttempts.WithLabelValues(resource, cand.Name, "ok").Inc()
		c.log.Debugw("zettle candidate ok", "resource", resource, "url", cand.URL)
		return v.(*response), nil
	})
}
