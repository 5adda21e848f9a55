package bitcoin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/runeforge/launchpad/internal/launchpad/domain"
	"github.com/runeforge/launchpad/internal/launchpad/errs"
)

// esploraUTXO is the JSON shape returned by Esplora-compatible
// (Blockstream/mempool.space) /address/{addr}/utxo endpoints.
type esploraUTXO struct {
	TxID   string `json:"txid"`
	Vout   uint32 `json:"vout"`
	Status struct {
		Confirmed bool `json:"confirmed"`
	} `json:"status"`
	Value int64 `json:"value"`
}

// providerLimiter pairs a query endpoint with its own token-bucket
// limiter, so one slow provider never throttles the others.
type providerLimiter struct {
	baseURL string
	limiter *rate.Limiter
}

// UTXOFetcher proxies the external Bitcoin query interface's
// get_utxos operation across a round-robin set of Esplora-compatible
// providers.
type UTXOFetcher struct {
	client    *http.Client
	next      atomic.Uint64
	provider  []providerLimiter
	netParams *chaincfg.Params
}

// NewUTXOFetcher builds a fetcher over the given providers, each
// allowed ratePerSecond requests per second with burst 1 so requests
// spread evenly instead of arriving in bursts.
func NewUTXOFetcher(client *http.Client, providerURLs []string, ratePerSecond int, netParams *chaincfg.Params) *UTXOFetcher {
	providers := make([]providerLimiter, len(providerURLs))
	for i, u := range providerURLs {
		providers[i] = providerLimiter{baseURL: u, limiter: rate.NewLimiter(rate.Limit(ratePerSecond), 1)}
	}
	return &UTXOFetcher{client: client, provider: providers, netParams: netParams}
}

// GetUTXOs returns the confirmed UTXOs at address, round-robining
// across providers. Unconfirmed outputs are filtered out: the
// orchestrator's balance check and the branch-and-bound selector both
// require settled value.
func (f *UTXOFetcher) GetUTXOs(ctx context.Context, address string) ([]domain.Utxo, error) {
	if len(f.provider) == 0 {
		return nil, errs.New(errs.KindNetworkError, fmt.Errorf("no UTXO providers configured"))
	}

	idx := int(f.next.Add(1)-1) % len(f.provider)
	p := f.provider[idx]

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, errs.New(errs.KindNetworkError, fmt.Errorf("rate limiter wait: %w", err))
	}

	url := fmt.Sprintf("%s/address/%s/utxo", p.baseURL, address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.New(errs.KindInternal, fmt.Errorf("build UTXO request: %w", err))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errs.New(errs.KindNetworkError, fmt.Errorf("UTXO request to %s: %w", p.baseURL, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errs.New(errs.KindNetworkError, fmt.Errorf("UTXO request to %s: HTTP %d", p.baseURL, resp.StatusCode))
	}

	var raw []esploraUTXO
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, errs.New(errs.KindNetworkError, fmt.Errorf("decode UTXO response: %w", err))
	}

	utxos := make([]domain.Utxo, 0, len(raw))
	for _, u := range raw {
		if !u.Status.Confirmed {
			continue
		}
		script, err := scriptForAddress(address, f.netParams)
		if err != nil {
			slog.Warn("skipping UTXO with unresolvable script", "address", address, "error", err)
			continue
		}
		utxos = append(utxos, domain.Utxo{
			Txid:          u.TxID,
			Vout:          u.Vout,
			ValueSats:     uint64(u.Value),
			Confirmations: 1, // Esplora's /utxo endpoint reports confirmed-or-not, not a count.
			ScriptPubKey:  script,
		})
	}

	slog.Debug("fetched UTXOs", "address", address, "provider", p.baseURL, "total", len(raw), "confirmed", len(utxos))
	return utxos, nil
}

// Balance sums confirmed UTXO value at address.
func (f *UTXOFetcher) Balance(ctx context.Context, address string) (uint64, error) {
	utxos, err := f.GetUTXOs(ctx, address)
	if err != nil {
		return 0, err
	}
	var total uint64
	for _, u := range utxos {
		total += u.ValueSats
	}
	return total, nil
}
