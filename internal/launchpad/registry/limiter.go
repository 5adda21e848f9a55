package registry

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/runeforge/launchpad/internal/launchpad/domain"
)

// DefaultRequestsPerMinute is the registry's default per-caller query
// budget.
const DefaultRequestsPerMinute = 60

// callerLimiter lazily allocates one token bucket per caller, keyed by
// principal instead of by a fixed provider name since the set of
// callers is open-ended.
type callerLimiter struct {
	mu        sync.Mutex
	buckets   map[domain.Principal]*rate.Limiter
	perMinute int
	allowlist map[domain.Principal]bool
}

func newCallerLimiter(perMinute int, allowlist []domain.Principal) *callerLimiter {
	if perMinute <= 0 {
		perMinute = DefaultRequestsPerMinute
	}
	allow := make(map[domain.Principal]bool, len(allowlist))
	for _, p := range allowlist {
		allow[p] = true
	}
	return &callerLimiter{
		buckets:   make(map[domain.Principal]*rate.Limiter),
		perMinute: perMinute,
		allowlist: allow,
	}
}

// Allow reports whether caller may proceed now, consuming one token if
// so. Allowlisted callers always pass.
func (c *callerLimiter) Allow(caller domain.Principal) bool {
	if c.allowlist[caller] {
		return true
	}

	c.mu.Lock()
	limiter, ok := c.buckets[caller]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(float64(c.perMinute)/60.0), c.perMinute)
		c.buckets[caller] = limiter
	}
	c.mu.Unlock()

	return limiter.Allow()
}
