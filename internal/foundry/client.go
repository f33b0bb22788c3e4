// Package foundry is an HTTP client for the journal bridge module of a
// Foundry VTT world. The bridge exposes the world's journal folders and
// entries as JSON documents.
package foundry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	syncerr "github.com/alexjbarnes/journal-sync/internal/errors"
)

// TransientError wraps an error that is likely temporary and safe to retry.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err (or any error in its chain) is a
// TransientError, meaning the caller should retry after a backoff.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

const (
	// maxRedirects is the maximum number of HTTP redirects to follow
	// before giving up, matching the default net/http limit.
	maxRedirects = 10

	// defaultTimeout is the request timeout when none is configured.
	defaultTimeout = 60 * time.Second

	// maxResponseBytes caps response body reads. A world tree with
	// every page's HTML can be large.
	maxResponseBytes = 64 * 1024 * 1024

	// maxAttempts bounds retries of idempotent requests.
	maxAttempts = 3

	// initialBackoff is the wait before the first retry; it doubles
	// after each attempt.
	initialBackoff = 500 * time.Millisecond
)

// Bridge endpoints.
const (
	sessionEndpoint = "/journal-sync/session"
	treeEndpoint    = "/journal-sync/tree"
	foldersEndpoint = "/journal-sync/folders"
	entriesEndpoint = "/journal-sync/entries"
)

// Client talks to the journal bridge. It logs in lazily and logs in
// again once when the session expires.
type Client struct {
	httpClient *http.Client
	baseURL    string
	user       string
	password   string
	logger     *slog.Logger

	mu       sync.Mutex
	loggedIn bool

	backoff time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client. The client must
// carry a cookie jar for the session to persist.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// sameHostRedirectPolicy follows redirects only when the target host
// matches the original request host so the session cookie and password
// never reach another host.
func sameHostRedirectPolicy(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errors.New("stopped after 10 redirects")
	}

	if len(via) > 0 {
		origHost := via[0].URL.Host
		if req.URL.Host != origHost {
			return fmt.Errorf("redirect to different host blocked: %s -> %s", origHost, req.URL.Host)
		}
	}

	return nil
}

// NewClient returns a client for the world served at baseURL.
func NewClient(baseURL, user, password string, logger *slog.Logger, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid remote url %q", baseURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout:       defaultTimeout,
			Jar:           jar,
			CheckRedirect: sameHostRedirectPolicy,
		},
		baseURL:  strings.TrimRight(baseURL, "/"),
		user:     user,
		password: password,
		logger:   logger,
		backoff:  initialBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// sanitizeResponseBody truncates and sanitizes a response body for
// inclusion in error messages. Limits to 256 bytes and replaces
// non-printable characters to prevent log injection.
func sanitizeResponseBody(body []byte) string {
	const maxLen = 256
	if len(body) > maxLen {
		body = body[:maxLen]
	}

	var clean []byte

	for len(body) > 0 {
		r, size := utf8.DecodeRune(body)
		if r == utf8.RuneError && size <= 1 {
			clean = append(clean, '?')
			body = body[1:]

			continue
		}

		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			clean = append(clean, '?')
		} else {
			clean = append(clean, body[:size]...)
		}

		body = body[size:]
	}

	return string(clean)
}

// classifyStatus maps a non-2xx response to a sentinel error.
func classifyStatus(endpoint string, code int, body []byte) error {
	detail := sanitizeResponseBody(body)

	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%s returned %d: %w", endpoint, code, syncerr.ErrAuthentication)
	case code == http.StatusNotFound:
		return fmt.Errorf("%s returned %d: %s: %w", endpoint, code, detail, syncerr.ErrRemoteNotFound)
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return &TransientError{Err: fmt.Errorf("%s returned %d: %w", endpoint, code, syncerr.ErrNetworkTimeout)}
	case code == http.StatusTooManyRequests || code >= http.StatusInternalServerError:
		return &TransientError{Err: fmt.Errorf("%s returned %d: %s: %w", endpoint, code, detail, syncerr.ErrRemoteUnavailable)}
	}

	return fmt.Errorf("%s returned status %d: %s", endpoint, code, detail)
}

// classifyTransport maps a failed round trip to a sentinel error.
func classifyTransport(endpoint string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &TransientError{Err: fmt.Errorf("sending request to %s: %w: %w", endpoint, syncerr.ErrNetworkTimeout, err)}
	}

	// Connection refused, DNS failures and resets mean the world is down.
	return &TransientError{Err: fmt.Errorf("sending request to %s: %w: %w", endpoint, syncerr.ErrRemoteUnavailable, err)}
}

// send performs one request and returns the response body of a 2xx.
func (c *Client) send(ctx context.Context, method, endpoint string, body any) ([]byte, error) {
	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshalling request body: %w", err)
		}

		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ctx.Err()
		}

		return nil, classifyTransport(endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, classifyTransport(endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, classifyStatus(endpoint, resp.StatusCode, respBody)
	}

	return respBody, nil
}

// login opens a session. The bridge answers with a session cookie that
// the jar replays on later requests.
func (c *Client) login(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loggedIn {
		return nil
	}

	body := map[string]string{"user": c.user, "password": c.password}
	if _, err := c.send(ctx, http.MethodPost, sessionEndpoint, body); err != nil {
		return fmt.Errorf("logging in as %s: %w", c.user, err)
	}

	c.loggedIn = true
	c.logger.Debug("remote session opened", slog.String("user", c.user))

	return nil
}

func (c *Client) expire() {
	c.mu.Lock()
	c.loggedIn = false
	c.mu.Unlock()
}

// do sends an authenticated request. An expired session is renewed
// once. Idempotent requests are retried on transient failures.
func (c *Client) do(ctx context.Context, method, endpoint string, body any, idempotent bool) ([]byte, error) {
	attempts := 1
	if idempotent {
		attempts = maxAttempts
	}

	wait := c.backoff
	relogged := false

	for attempt := 1; ; attempt++ {
		if err := c.login(ctx); err != nil {
			return nil, err
		}

		resp, err := c.send(ctx, method, endpoint, body)
		if err == nil {
			return resp, nil
		}

		if errors.Is(err, syncerr.ErrAuthentication) && !relogged {
			relogged = true
			c.expire()

			continue
		}

		if !IsTransient(err) || attempt >= attempts {
			return nil, err
		}

		c.logger.Debug("retrying remote request",
			slog.String("endpoint", endpoint),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}

		wait *= 2
	}
}
