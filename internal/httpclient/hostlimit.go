package httpclient

import (
	"context"
	"net/url"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/time/rate"
)

// HostLimiter paces outbound requests per upstream host (scheme+host), so a
// burst of catch-up seeks from many clients does not trip a provider's flood
// protection. A nil *HostLimiter or one built with perSecond <= 0 never waits.
type HostLimiter struct {
	perSecond rate.Limit
	burst     int
	limiters  *xsync.MapOf[string, *rate.Limiter]
}

// NewHostLimiter returns a limiter allowing perSecond requests per host with
// the given burst.
func NewHostLimiter(perSecond float64, burst int) *HostLimiter {
	if burst < 1 {
		burst = 1
	}
	return &HostLimiter{
		perSecond: rate.Limit(perSecond),
		burst:     burst,
		limiters:  xsync.NewMapOf[string, *rate.Limiter](),
	}
}

// Wait blocks until a request to rawURL's host may proceed or ctx is done.
func (h *HostLimiter) Wait(ctx context.Context, rawURL string) error {
	if h == nil || h.perSecond <= 0 {
		return nil
	}
	l, _ := h.limiters.LoadOrCompute(hostKey(rawURL), func() *rate.Limiter {
		return rate.NewLimiter(h.perSecond, h.burst)
	})
	return l.Wait(ctx)
}

// Hosts returns how many distinct hosts have been seen.
func (h *HostLimiter) Hosts() int {
	if h == nil {
		return 0
	}
	return h.limiters.Size()
}

func hostKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Scheme + "://" + u.Host
}
