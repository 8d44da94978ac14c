// Package client is a Go API client for the taskhive backend. Its
// core is the refresh coordinator: transparent, concurrent-request-safe
// recovery from expired access tokens.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/taskhive/backend/internal/model"
)

const (
	refreshPath           = "/auth/refresh"
	defaultRefreshTimeout = 10 * time.Second
)

// APIError is a classified error from the server. Code drives the
// coordinator's branching; Message is for humans.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

func isTerminalCode(code string) bool {
	switch code {
	case model.CodeRefreshTokenMissing,
		model.CodeRefreshTokenExpired,
		model.CodeRefreshTokenInvalid,
		model.CodeRefreshTokenRevoked,
		model.CodeUserNotFound:
		return true
	}
	return false
}

func isAccessCode(code string) bool {
	switch code {
	case model.CodeAccessTokenExpired,
		model.CodeAccessTokenInvalid,
		model.CodeAccessTokenMissing:
		return true
	}
	return false
}

type Option func(*Client)

// WithSessionExpiredHook installs the unauthenticated-entry redirect:
// it fires when the session is unrecoverable, at most once until the
// next successful login or refresh.
func WithSessionExpiredHook(hook func()) Option {
	return func(c *Client) { c.onSessionExpired = hook }
}

// WithRefreshTimeout bounds the refresh exchange so queued callers
// cannot stall indefinitely behind a hung refresh call.
func WithRefreshTimeout(d time.Duration) Option {
	return func(c *Client) { c.refreshTimeout = d }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(log *logrus.Logger) Option {
	return func(c *Client) { c.log = log }
}

// Client talks to the backend with cookie-borne credentials. All
// methods are safe for concurrent use; at most one refresh call is in
// flight at any time, and requests that fail with a refreshable code
// while it runs are queued behind it rather than re-triggering it.
type Client struct {
	baseURL          string
	http             *http.Client
	refreshTimeout   time.Duration
	onSessionExpired func()
	log              *logrus.Logger

	mu         sync.Mutex
	refreshing bool
	waiters    []chan bool
	expired    bool
}

func New(baseURL string, opts ...Option) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	c := &Client{
		baseURL:        baseURL,
		http:           &http.Client{Jar: jar},
		refreshTimeout: defaultRefreshTimeout,
		log:            logrus.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http.Jar == nil {
		c.http.Jar = jar
	}
	return c, nil
}

type envelope struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Code    string          `json:"code"`
}

// do issues one request and runs the coordinator state machine on
// classified 401s. The body is pre-marshaled so the request can be
// replayed after a refresh.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}
	return c.send(ctx, method, path, payload, out, false)
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, out any, retried bool) error {
	status, env, err := c.roundTrip(ctx, method, path, payload)
	if err != nil {
		return err
	}

	if status < http.StatusBadRequest {
		if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
			return json.Unmarshal(env.Data, out)
		}
		return nil
	}

	apiErr := &APIError{Status: status, Code: env.Code, Message: env.Message}

	// Non-auth errors surface to the caller as-is.
	if status != http.StatusUnauthorized {
		return apiErr
	}

	// Terminal: the session itself is unrecoverable.
	if isTerminalCode(apiErr.Code) {
		c.sessionExpired()
		return apiErr
	}

	if !isAccessCode(apiErr.Code) {
		// 401s outside the classified access set (e.g. bad login
		// credentials) engage no refresh logic.
		return apiErr
	}

	// The refresh endpoint answering 401 with an access code still
	// means the refresh credential is bad.
	if path == refreshPath {
		c.sessionExpired()
		return apiErr
	}

	// One retry per request, or a persistently broken credential
	// would loop forever.
	if retried {
		c.sessionExpired()
		return apiErr
	}

	ok, err := c.awaitRefresh(ctx)
	if err != nil {
		return err
	}
	if !ok {
		c.sessionExpired()
		return apiErr
	}

	return c.send(ctx, method, path, payload, out, true)
}

// awaitRefresh guarantees at most one in-flight refresh. The caller
// that flips the flag performs it; everyone else queues a waiter that
// resolves when it completes. Waiters never re-trigger the refresh.
func (c *Client) awaitRefresh(ctx context.Context) (bool, error) {
	c.mu.Lock()
	if c.refreshing {
		ch := make(chan bool, 1)
		c.waiters = append(c.waiters, ch)
		c.mu.Unlock()

		select {
		case ok := <-ch:
			return ok, nil
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	c.refreshing = true
	c.mu.Unlock()

	ok := c.doRefresh(ctx)

	c.mu.Lock()
	c.refreshing = false
	waiters := c.waiters
	c.waiters = nil
	c.mu.Unlock()

	// Queued continuations observe the outcome only after the new
	// credential is in the jar (or the refresh has failed for good).
	for _, w := range waiters {
		w <- ok
	}
	return ok, nil
}

// doRefresh calls the refresh endpoint directly, bypassing the
// coordinator, under a bounded timeout.
func (c *Client) doRefresh(ctx context.Context) bool {
	refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.refreshTimeout)
	defer cancel()

	status, env, err := c.roundTrip(refreshCtx, http.MethodPost, refreshPath, nil)
	if err != nil {
		c.log.WithError(err).Warn("token refresh failed")
		return false
	}
	if status >= http.StatusBadRequest {
		c.log.WithField("code", env.Code).Warn("token refresh rejected")
		return false
	}

	c.mu.Lock()
	c.expired = false
	c.mu.Unlock()
	return true
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload []byte) (int, envelope, error) {
	var body *bytes.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, envelope{}, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, envelope{}, err
	}
	defer resp.Body.Close()

	var env envelope
	// Some responses (204s, proxies) have no JSON body; the zero
	// envelope is fine then.
	_ = json.NewDecoder(resp.Body).Decode(&env)
	return resp.StatusCode, env, nil
}

// sessionExpired fires the hook at most once per expiry, resetting on
// the next successful login/register/refresh.
func (c *Client) sessionExpired() {
	c.mu.Lock()
	already := c.expired
	c.expired = true
	hook := c.onSessionExpired
	c.mu.Unlock()

	if !already && hook != nil {
		hook()
	}
}

func (c *Client) sessionRestored() {
	c.mu.Lock()
	c.expired = false
	c.mu.Unlock()
}
