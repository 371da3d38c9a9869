package twitch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nicklaw5/helix/v2"

	"github.com/nlefebvre/collabnet/internal/retry"
)

const (
	// tokenExpiryBuffer triggers a refresh this long before the token's
	// reported expiry so requests never race the cutoff.
	tokenExpiryBuffer = 5 * time.Minute

	// defaultTimeout is the per-request HTTP timeout when none is configured.
	defaultTimeout = 15 * time.Second

	// maxPageSize is the largest page the API serves per list request.
	maxPageSize = 100

	// maxIDsPerLookup is the largest batch /users accepts per call.
	maxIDsPerLookup = 100
)

// ErrAuth indicates the credential exchange failed. It is fatal to the run:
// retrying with the same credentials cannot succeed.
var ErrAuth = errors.New("twitch: authentication failed")

// errUnauthorized marks a 401 from an API endpoint; the token has been
// invalidated and the next attempt re-authenticates.
var errUnauthorized = errors.New("twitch: unauthorized")

// APIError is a non-retryable HTTP failure from the API (4xx other than
// 401/429). Callers treat it as "no data" and skip the item.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("twitch: api error: status %d: %s", e.StatusCode, e.Body)
}

// Options configures a Client.
type Options struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	BaseURL      string
	Timeout      time.Duration
	MaxRetries   int
	Logger       *slog.Logger

	// HTTPClient overrides the default client; used by tests.
	HTTPClient *http.Client
}

// Client is the single point of contact with the Helix API. The SDK handles
// transport and wire shapes; this wrapper owns the app access token
// lifecycle, the header-driven throttle state, and bounded retries. A Client
// is not safe for concurrent use; the harvester runs a single cycle at a
// time.
type Client struct {
	api        *helix.Client
	maxRetries int
	logger     *slog.Logger

	token       string
	tokenExpiry time.Time
	rate        *RateLimitInfo
}

// New creates a Client from options, applying defaults for the zero values.
func New(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = retry.DefaultMaxAttempts
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	api, err := helix.NewClient(&helix.Options{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		APIBaseURL:   strings.TrimRight(opts.BaseURL, "/"),
		AuthBaseURL:  strings.TrimRight(opts.AuthURL, "/"),
		HTTPClient:   httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("twitch: building helix client: %w", err)
	}

	return &Client{
		api:        api,
		maxRetries: maxRetries,
		logger:     logger,
	}, nil
}

// RateLimit returns the most recently observed quota state, or nil before
// the first response.
func (c *Client) RateLimit() *RateLimitInfo {
	return c.rate
}

// authenticate exchanges client credentials for a fresh app access token and
// installs it on the SDK client.
func (c *Client) authenticate() error {
	resp, err := c.api.RequestAppAccessToken(nil)
	if err != nil {
		return fmt.Errorf("requesting token: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: token endpoint returned status %d: %s", ErrAuth, resp.StatusCode, errBody(&resp.ResponseCommon))
	}
	if resp.Data.AccessToken == "" {
		return fmt.Errorf("%w: token response missing access_token", ErrAuth)
	}

	expiresIn := resp.Data.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}

	c.token = resp.Data.AccessToken
	c.api.SetAppAccessToken(c.token)
	c.tokenExpiry = time.Now().Add(time.Duration(expiresIn)*time.Second - tokenExpiryBuffer)
	c.logger.Info("obtained access token", "expires_at", c.tokenExpiry)
	return nil
}

// ensureToken refreshes the access token when it is missing or near expiry.
func (c *Client) ensureToken() error {
	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return nil
	}
	return c.authenticate()
}

// clearToken drops the cached token so the next attempt re-authenticates.
func (c *Client) clearToken() {
	c.token = ""
	c.api.SetAppAccessToken("")
}

// call runs one SDK request through the retry loop. The closure performs the
// request and hands back the response envelope; transient failures (network
// errors, 5xx, 429 after its wait) are retried with bounded backoff, other
// failures return immediately.
func (c *Client) call(ctx context.Context, op string, fn func() (*helix.ResponseCommon, error)) error {
	return retry.Do(ctx, c.maxRetries, func() error {
		return c.attempt(ctx, op, fn)
	})
}

func (c *Client) attempt(ctx context.Context, op string, fn func() (*helix.ResponseCommon, error)) error {
	// Header-driven throttle: if the last response reported zero remaining
	// quota, suspend until the provider's reset time.
	if c.rate.Exhausted() {
		wait := c.rate.WaitDuration() + time.Second
		c.logger.Warn("rate limit exhausted, suspending", "wait", wait.String())
		if err := sleepCtx(ctx, wait); err != nil {
			return retry.Permanent(err)
		}
	}

	if err := c.ensureToken(); err != nil {
		return retry.Permanent(err)
	}

	rc, err := fn()
	if err != nil {
		if ctx.Err() != nil {
			return retry.Permanent(ctx.Err())
		}
		return fmt.Errorf("requesting %s: %w", op, err)
	}

	if rl := ParseRateLimit(rc.Header); rl != nil {
		c.rate = rl
	}

	switch {
	case rc.StatusCode == http.StatusOK:
		return nil

	case rc.StatusCode == http.StatusUnauthorized:
		// Token went stale mid-flight; force a refresh on the next attempt.
		c.clearToken()
		c.logger.Warn("received 401, forcing token refresh", "op", op)
		return errUnauthorized

	case rc.StatusCode == http.StatusTooManyRequests:
		wait := retryAfter(rc.Header)
		c.logger.Warn("rate limited (429), waiting for reset", "op", op, "wait", wait.String())
		if err := sleepCtx(ctx, wait); err != nil {
			return retry.Permanent(err)
		}
		return fmt.Errorf("twitch: rate limited on %s", op)

	case rc.StatusCode >= 500:
		return fmt.Errorf("twitch: server error on %s: status %d", op, rc.StatusCode)

	default:
		return retry.Permanent(&APIError{StatusCode: rc.StatusCode, Body: errBody(rc)})
	}
}

// sleepCtx waits for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// errBody flattens the SDK's decoded error fields into one message.
func errBody(rc *helix.ResponseCommon) string {
	if rc.ErrorMessage != "" {
		return rc.ErrorMessage
	}
	return rc.Error
}
