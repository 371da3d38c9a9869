package twitch

import (
	"net/http"
	"strconv"
	"time"
)

// defaultRateLimitWait is used when a 429 response carries no usable reset
// header.
const defaultRateLimitWait = 15 * time.Second

// RateLimitInfo holds the quota state reported by Helix response headers
// (Ratelimit-Remaining and Ratelimit-Reset, the latter in unix seconds).
type RateLimitInfo struct {
	Remaining int
	Reset     time.Time
	Observed  time.Time
}

// ParseRateLimit extracts rate limit information from Helix response
// headers. Returns nil if the relevant headers are not present.
func ParseRateLimit(h http.Header) *RateLimitInfo {
	if h == nil {
		return nil
	}

	remainingStr := h.Get("Ratelimit-Remaining")
	resetStr := h.Get("Ratelimit-Reset")

	if remainingStr == "" && resetStr == "" {
		return nil
	}

	info := &RateLimitInfo{
		Observed: time.Now(),
	}

	if remainingStr != "" {
		remaining, err := strconv.Atoi(remainingStr)
		if err == nil {
			info.Remaining = remaining
		}
	}

	if resetStr != "" {
		resetUnix, err := strconv.ParseInt(resetStr, 10, 64)
		if err == nil {
			info.Reset = time.Unix(resetUnix, 0)
		}
	}

	return info
}

// Exhausted reports whether the quota is spent and the reset time is still
// ahead, meaning any further request would be rejected.
func (r *RateLimitInfo) Exhausted() bool {
	if r == nil || r.Reset.IsZero() {
		return false
	}
	return r.Remaining <= 0 && time.Now().Before(r.Reset)
}

// WaitDuration returns how long to wait before the rate limit resets.
// Returns zero if the reset time is unknown or in the past.
func (r *RateLimitInfo) WaitDuration() time.Duration {
	if r == nil || r.Reset.IsZero() {
		return 0
	}
	d := time.Until(r.Reset)
	if d < 0 {
		return 0
	}
	return d
}

// retryAfter determines how long to wait out a 429 response, preferring the
// reset header and falling back to Retry-After, then a fixed default.
func retryAfter(h http.Header) time.Duration {
	if info := ParseRateLimit(h); info != nil {
		if wait := info.WaitDuration(); wait > 0 {
			return wait + time.Second
		}
	}

	if s := h.Get("Retry-After"); s != "" {
		if seconds, err := strconv.Atoi(s); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}

	return defaultRateLimitWait
}
