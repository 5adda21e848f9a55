package bitcoin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/runeforge/launchpad/internal/launchpad/domain"
	"github.com/runeforge/launchpad/internal/launchpad/errs"
)

// mempoolFeeEstimateResponse is mempool.space's /v1/fees/recommended shape.
type mempoolFeeEstimateResponse struct {
	FastestFee  uint64 `json:"fastestFee"`
	HalfHourFee uint64 `json:"halfHourFee"`
	HourFee     uint64 `json:"hourFee"`
	EconomyFee  uint64 `json:"economyFee"`
	MinimumFee  uint64 `json:"minimumFee"`
}

// DefaultFloorSatVByte is the conservative rate served when no fee
// estimate has ever been fetched successfully.
const DefaultFloorSatVByte = 2

// FeeEstimateTimeout bounds a single fee-estimate HTTP call.
const FeeEstimateTimeout = 30 * time.Second

// FeeEstimator fetches the four priority-tier fee rates from a
// mempool.space-compatible endpoint.
type FeeEstimator struct {
	client  *http.Client
	baseURL string
}

// NewFeeEstimator builds a fee estimator against baseURL, e.g.
// "https://mempool.space/api".
func NewFeeEstimator(client *http.Client, baseURL string) *FeeEstimator {
	return &FeeEstimator{client: client, baseURL: baseURL}
}

// EstimateFees fetches current fee rates and maps mempool.space's
// fastest/halfHour/hour/economy tiers onto the urgent/fast/medium/slow
// tiers. On upstream failure it returns a conservative
// built-in floor rather than propagating NetworkError, since the
// caller (the fee timer) must never leave the cache empty.
func (fe *FeeEstimator) EstimateFees(ctx context.Context) domain.CachedFeeEstimates {
	est, err := fe.fetch(ctx)
	if err != nil {
		slog.Warn("fee estimate fetch failed, serving floor", "error", err)
		return fe.floor()
	}

	fe.enforceFloor(&est)
	est.FetchedAt = time.Now().Unix()
	est.Source = fe.baseURL
	return est
}

func (fe *FeeEstimator) fetch(ctx context.Context) (domain.CachedFeeEstimates, error) {
	ctx, cancel := context.WithTimeout(ctx, FeeEstimateTimeout)
	defer cancel()

	url := fe.baseURL + "/v1/fees/recommended"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.CachedFeeEstimates{}, errs.New(errs.KindInternal, err)
	}

	resp, err := fe.client.Do(req)
	if err != nil {
		return domain.CachedFeeEstimates{}, errs.New(errs.KindNetworkError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.CachedFeeEstimates{}, errs.New(errs.KindNetworkError, fmt.Errorf("fee endpoint HTTP %d", resp.StatusCode))
	}

	var raw mempoolFeeEstimateResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return domain.CachedFeeEstimates{}, errs.New(errs.KindNetworkError, fmt.Errorf("decode fee response: %w", err))
	}

	return domain.CachedFeeEstimates{
		Slow:   raw.EconomyFee,
		Medium: raw.HourFee,
		Fast:   raw.HalfHourFee,
		Urgent: raw.FastestFee,
	}, nil
}

func (fe *FeeEstimator) floor() domain.CachedFeeEstimates {
	return domain.CachedFeeEstimates{
		Slow:      DefaultFloorSatVByte,
		Medium:    DefaultFloorSatVByte,
		Fast:      DefaultFloorSatVByte * 2,
		Urgent:    DefaultFloorSatVByte * 4,
		FetchedAt: time.Now().Unix(),
		Source:    "floor",
	}
}

func (fe *FeeEstimator) enforceFloor(est *domain.CachedFeeEstimates) {
	if est.Slow < DefaultFloorSatVByte {
		est.Slow = DefaultFloorSatVByte
	}
	if est.Medium < DefaultFloorSatVByte {
		est.Medium = DefaultFloorSatVByte
	}
	if est.Fast < DefaultFloorSatVByte {
		est.Fast = DefaultFloorSatVByte
	}
	if est.Urgent < DefaultFloorSatVByte {
		est.Urgent = DefaultFloorSatVByte
	}
}
