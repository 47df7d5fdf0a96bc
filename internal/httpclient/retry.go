package httpclient

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RetryPolicy controls DoWithRetry. The catch-up stream path never retries;
// this is for catalog indexing only.
type RetryPolicy struct {
	MaxAttempts    int           // total attempts including the first
	InitialBackoff time.Duration // doubled after each failed attempt
	MaxBackoff     time.Duration // cap for backoff and for Retry-After
}

// DefaultRetryPolicy: four attempts, 2s doubling backoff capped at 60s.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:    4,
	InitialBackoff: 2 * time.Second,
	MaxBackoff:     60 * time.Second,
}

// RetryableStatus reports whether code is worth retrying: 408, 423, 429 and 5xx.
func RetryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusLocked, http.StatusTooManyRequests:
		return true
	}
	return code >= 500 && code < 600
}

// DoWithRetry sends the request built by newReq, retrying transport errors and
// retryable statuses. Retry-After is honoured (capped at MaxBackoff); otherwise
// backoff doubles. The last response is returned as-is when attempts run out,
// so callers still see the final status. Caller must close resp.Body when err == nil.
func DoWithRetry(ctx context.Context, client *http.Client, newReq func(context.Context) (*http.Request, error), policy RetryPolicy) (*http.Response, error) {
	if client == nil {
		client = Default()
	}
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := policy.InitialBackoff
	var lastErr error
	for attempt := 1; ; attempt++ {
		req, err := newReq(ctx)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		var wait time.Duration
		switch {
		case err != nil:
			lastErr = err
		case !RetryableStatus(resp.StatusCode) || attempt == attempts:
			return resp, nil
		default:
			wait = parseRetryAfter(resp.Header.Get("Retry-After"), policy.MaxBackoff)
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
		if attempt == attempts {
			return nil, lastErr
		}
		if wait <= 0 {
			wait = backoff
			if next := backoff * 2; policy.MaxBackoff <= 0 || next <= policy.MaxBackoff {
				backoff = next
			} else {
				backoff = policy.MaxBackoff
			}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// parseRetryAfter parses Retry-After (seconds or HTTP-date). Returns 0 when
// absent or unparseable so the caller falls back to its own backoff.
func parseRetryAfter(s string, max time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	var d time.Duration
	if sec, err := strconv.Atoi(s); err == nil {
		if sec < 0 {
			return 0
		}
		d = time.Duration(sec) * time.Second
	} else if t, err := http.ParseTime(s); err == nil {
		d = time.Until(t)
		if d < 0 {
			return 0
		}
	} else {
		return 0
	}
	if max > 0 && d > max {
		return max
	}
	return d
}
