// Package fee implements the launchpad's dynamic fee manager: a
// periodically refreshed, atomically-swapped cache of the four
// priority-tier fee rates served by get_recommended_fee.
package fee

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/runeforge/launchpad/internal/launchpad/bitcoin"
	"github.com/runeforge/launchpad/internal/launchpad/domain"
)

// DefaultRefreshInterval is how often the manager re-fetches fee
// estimates in the background.
const DefaultRefreshInterval = 10 * time.Minute

// Manager serves get_recommended_fee from a cache refreshed by a
// background timer. The cache is replaced as a whole via an
// atomic.Pointer swap, so readers always observe either the old or the
// new estimate set, never a field-by-field mix.
type Manager struct {
	estimator *bitcoin.FeeEstimator
	cache     atomic.Pointer[domain.CachedFeeEstimates]
	interval  time.Duration
}

// NewManager builds a Manager seeded with a conservative built-in
// floor, so get_recommended_fee always has something to serve even
// before the first refresh tick completes.
func NewManager(estimator *bitcoin.FeeEstimator, interval time.Duration) *Manager {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	m := &Manager{estimator: estimator, interval: interval}
	floor := &domain.CachedFeeEstimates{
		Slow:   bitcoin.DefaultFloorSatVByte,
		Medium: bitcoin.DefaultFloorSatVByte,
		Fast:   bitcoin.DefaultFloorSatVByte * 2,
		Urgent: bitcoin.DefaultFloorSatVByte * 4,
		Source: "floor",
	}
	m.cache.Store(floor)
	return m
}

// Run refreshes the cache immediately, then on every tick of interval,
// until ctx is cancelled. Intended to run in its own goroutine for the
// lifetime of the service.
func (m *Manager) Run(ctx context.Context) {
	m.refresh(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.refresh(ctx)
		}
	}
}

func (m *Manager) refresh(ctx context.Context) {
	est := m.estimator.EstimateFees(ctx)
	m.cache.Store(&est)
	slog.Debug("fee cache refreshed", "slow", est.Slow, "medium", est.Medium, "fast", est.Fast, "urgent", est.Urgent, "source", est.Source)
}

// Current returns the current cached estimates.
func (m *Manager) Current() domain.CachedFeeEstimates {
	return *m.cache.Load()
}

// RecommendedFee returns the cached rate for tier, in sat/vbyte.
func (m *Manager) RecommendedFee(tier domain.FeeTier) uint64 {
	return m.cache.Load().ForTier(tier)
}
