package fee

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/runeforge/launchpad/internal/launchpad/bitcoin"
	"github.com/runeforge/launchpad/internal/launchpad/domain"
)

func TestNewManager_SeedsFloorBeforeFirstRefresh(t *testing.T) {
	estimator := bitcoin.NewFeeEstimator(http.DefaultClient, "http://127.0.0.1:0")
	m := NewManager(estimator, time.Hour)

	if got := m.RecommendedFee(domain.FeeTierSlow); got != bitcoin.DefaultFloorSatVByte {
		t.Errorf("RecommendedFee(Slow) = %d, want floor %d", got, bitcoin.DefaultFloorSatVByte)
	}
}

func TestManager_RefreshUpdatesCacheAtomically(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]uint64{
			"fastestFee":  40,
			"halfHourFee": 20,
			"hourFee":     10,
			"economyFee":  5,
			"minimumFee":  1,
		})
	}))
	defer server.Close()

	estimator := bitcoin.NewFeeEstimator(server.Client(), server.URL)
	m := NewManager(estimator, time.Hour)

	m.refresh(context.Background())

	got := m.Current()
	if got.Urgent != 40 || got.Fast != 20 || got.Medium != 10 || got.Slow != 5 {
		t.Fatalf("Current() = %+v, want mapped tiers from the fetched response", got)
	}
}
