// Package confirmation implements the launchpad's confirmation
// tracker: it periodically reconciles each PendingConfirmation against
// the Bitcoin chain and drives the owning etching process onward.
package confirmation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/runeforge/launchpad/internal/launchpad/domain"
	"github.com/runeforge/launchpad/internal/launchpad/errs"
)

// DefaultLostTimeout is how long a broadcast transaction may go
// unconfirmed and unseen before it is declared BroadcastLost.
const DefaultLostTimeout = 2 * time.Hour

// DefaultPollInterval is the tracker's reconciliation tick period.
const DefaultPollInterval = time.Minute

// CheckTimeout bounds a single per-entry status check.
const CheckTimeout = 30 * time.Second

// esploraTxStatus is the subset of Esplora's /tx/{txid}/status response
// the tracker needs.
type esploraTxStatus struct {
	Confirmed   bool `json:"confirmed"`
	BlockHeight int  `json:"block_height"`
}

// statusResult is one provider's answer for a single txid.
type statusResult struct {
	confirmations uint32
	found         bool
}

// Store is the persistence seam the tracker reads pending entries from
// and writes updates to. Implementations serialize their own access.
type Store interface {
	PendingConfirmations() ([]domain.PendingConfirmation, error)
	SaveConfirmation(domain.PendingConfirmation) error
	RemoveConfirmation(txid string) error
}

// ProcessAdvancer is the orchestrator seam the tracker drives forward
// or fails, keyed by process_id.
type ProcessAdvancer interface {
	AdvanceToIndexing(processID string) error
	FailWithRetry(processID string, kind errs.Kind) error
}

// Tracker reconciles pending confirmations against the chain.
type Tracker struct {
	client       *http.Client
	providerURLs []string
	store        Store
	processes    ProcessAdvancer
	lostTimeout  time.Duration
	currentTip   int
}

// NewTracker builds a Tracker against the given Esplora-compatible
// providers.
func NewTracker(client *http.Client, providerURLs []string, store Store, processes ProcessAdvancer, lostTimeout time.Duration) *Tracker {
	if lostTimeout <= 0 {
		lostTimeout = DefaultLostTimeout
	}
	return &Tracker{
		client:       client,
		providerURLs: providerURLs,
		store:        store,
		processes:    processes,
		lostTimeout:  lostTimeout,
	}
}

// SetChainTip informs the tracker of the current block height, so
// confirmation counts can be derived from a tx's block_height. Tick
// calls this itself via fetchTip before reconciling; exported so tests
// can pin a tip without a live provider.
func (t *Tracker) SetChainTip(height int) {
	t.currentTip = height
}

// Tick runs one reconciliation pass over every pending entry. It never
// fails the overall tick on a single entry's error: a transient lookup
// failure for one txid must not block reconciliation of the others,
// and the tracker must tolerate being restarted mid-pass (every action
// it takes is idempotent: re-removing an already-removed entry, or
// re-advancing an already-advanced process, is a no-op upstream).
func (t *Tracker) Tick(ctx context.Context) {
	pending, err := t.store.PendingConfirmations()
	if err != nil {
		slog.Error("confirmation tracker: failed to load pending entries", "error", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	tipCtx, cancel := context.WithTimeout(ctx, CheckTimeout)
	tip, err := t.fetchTip(tipCtx)
	cancel()
	if err != nil {
		slog.Warn("confirmation tracker: failed to fetch chain tip, reusing last known tip", "tip", t.currentTip, "error", err)
	} else {
		t.SetChainTip(tip)
	}

	slog.Debug("confirmation tracker: reconciling", "count", len(pending), "tip", t.currentTip)

	var advanced, stillPending, lost int
	for _, entry := range pending {
		if ctx.Err() != nil {
			slog.Warn("confirmation tracker: context cancelled mid-tick", "advanced", advanced)
			return
		}
		t.reconcileOne(ctx, entry, &advanced, &stillPending, &lost)
	}

	slog.Info("confirmation tracker: tick complete", "advanced", advanced, "still_pending", stillPending, "lost", lost)
}

func (t *Tracker) reconcileOne(ctx context.Context, entry domain.PendingConfirmation, advanced, stillPending, lost *int) {
	checkCtx, cancel := context.WithTimeout(ctx, CheckTimeout)
	result, err := t.checkStatus(checkCtx, entry.Txid)
	cancel()

	if err != nil || !result.found {
		age := time.Since(time.Unix(entry.BroadcastAt, 0))
		if age > t.lostTimeout {
			slog.Warn("confirmation tracker: transaction lost", "txid", entry.Txid, "process_id", entry.ProcessID, "age", age)
			if ferr := t.processes.FailWithRetry(entry.ProcessID, errs.KindBroadcastLost); ferr != nil {
				slog.Error("confirmation tracker: failed to route lost transaction", "process_id", entry.ProcessID, "error", ferr)
				return
			}
			if rerr := t.store.RemoveConfirmation(entry.Txid); rerr != nil {
				slog.Error("confirmation tracker: failed to remove lost entry", "txid", entry.Txid, "error", rerr)
			}
			*lost++
			return
		}

		entry.LastCheckedAt = time.Now().Unix()
		entry.Attempts++
		if serr := t.store.SaveConfirmation(entry); serr != nil {
			slog.Error("confirmation tracker: failed to persist recheck", "txid", entry.Txid, "error", serr)
		}
		*stillPending++
		return
	}

	if result.confirmations >= entry.RequiredConfirmations {
		if aerr := t.processes.AdvanceToIndexing(entry.ProcessID); aerr != nil {
			slog.Error("confirmation tracker: failed to advance process", "process_id", entry.ProcessID, "error", aerr)
			return
		}
		if rerr := t.store.RemoveConfirmation(entry.Txid); rerr != nil {
			slog.Error("confirmation tracker: failed to remove confirmed entry", "txid", entry.Txid, "error", rerr)
		}
		*advanced++
		return
	}

	entry.LastCheckedAt = time.Now().Unix()
	entry.Attempts++
	if serr := t.store.SaveConfirmation(entry); serr != nil {
		slog.Error("confirmation tracker: failed to persist recheck", "txid", entry.Txid, "error", serr)
	}
	*stillPending++
}

// fetchTip queries the current chain tip height from Esplora's
// /blocks/tip/height, trying providerURLs in order until one answers,
// the same way checkStatus does.
func (t *Tracker) fetchTip(ctx context.Context) (int, error) {
	var lastErr error
	for _, baseURL := range t.providerURLs {
		url := fmt.Sprintf("%s/blocks/tip/height", baseURL)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			lastErr = err
			continue
		}

		resp, err := t.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			lastErr = fmt.Errorf("tip height HTTP %d from %s", resp.StatusCode, baseURL)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		height, convErr := strconv.Atoi(strings.TrimSpace(string(body)))
		if convErr != nil {
			lastErr = fmt.Errorf("parse tip height from %s: %w", baseURL, convErr)
			continue
		}

		return height, nil
	}

	if lastErr != nil {
		return 0, lastErr
	}
	return 0, fmt.Errorf("no provider returned a chain tip")
}

func (t *Tracker) checkStatus(ctx context.Context, txid string) (statusResult, error) {
	var lastErr error
	for _, baseURL := range t.providerURLs {
		url := fmt.Sprintf("%s/tx/%s/status", baseURL, txid)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			lastErr = err
			continue
		}

		resp, err := t.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusNotFound {
			resp.Body.Close()
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			lastErr = fmt.Errorf("status check HTTP %d from %s", resp.StatusCode, baseURL)
			continue
		}

		var raw esploraTxStatus
		decodeErr := json.NewDecoder(resp.Body).Decode(&raw)
		resp.Body.Close()
		if decodeErr != nil {
			lastErr = decodeErr
			continue
		}

		if !raw.Confirmed {
			return statusResult{found: true, confirmations: 0}, nil
		}
		confirmations := uint32(1)
		if t.currentTip > 0 && raw.BlockHeight > 0 && t.currentTip >= raw.BlockHeight {
			confirmations = uint32(t.currentTip-raw.BlockHeight) + 1
		}
		return statusResult{found: true, confirmations: confirmations}, nil
	}

	if lastErr != nil {
		return statusResult{}, lastErr
	}
	return statusResult{found: false}, nil
}

// Run ticks every pollInterval until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context, pollInterval time.Duration) {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Tick(ctx)
		}
	}
}
