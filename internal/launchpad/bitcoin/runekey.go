package bitcoin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/runeforge/launchpad/internal/launchpad/domain"
	"github.com/runeforge/launchpad/internal/launchpad/errs"
)

// merkleProofResponse is Esplora's /tx/{txid}/merkle-proof shape: pos
// is the transaction's zero-based index within its block, which is
// exactly the TxIndex half of a RuneKey.
type merkleProofResponse struct {
	BlockHeight uint64 `json:"block_height"`
	Pos         uint32 `json:"pos"`
}

// RuneKeyResolver looks up the RuneKey (block height, in-block tx
// index) a confirmed etching transaction was mined at, so the registry
// entry created at Indexing carries its real identifier rather than a
// placeholder.
type RuneKeyResolver struct {
	client       *http.Client
	providerURLs []string
}

// NewRuneKeyResolver builds a resolver over the given Esplora-compatible
// providers.
func NewRuneKeyResolver(client *http.Client, providerURLs []string) *RuneKeyResolver {
	return &RuneKeyResolver{client: client, providerURLs: providerURLs}
}

// Resolve returns the RuneKey for a confirmed txid.
func (r *RuneKeyResolver) Resolve(ctx context.Context, txid string) (domain.RuneKey, error) {
	var lastErr error
	for _, baseURL := range r.providerURLs {
		url := fmt.Sprintf("%s/tx/%s/merkle-proof", baseURL, txid)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			lastErr = err
			continue
		}

		resp, err := r.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			lastErr = fmt.Errorf("merkle-proof request to %s: HTTP %d", baseURL, resp.StatusCode)
			continue
		}

		var raw merkleProofResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&raw)
		resp.Body.Close()
		if decodeErr != nil {
			lastErr = decodeErr
			continue
		}

		return domain.RuneKey{Block: raw.BlockHeight, TxIndex: raw.Pos}, nil
	}

	return domain.RuneKey{}, errs.New(errs.KindNetworkError, fmt.Errorf("resolve rune key for %s: %w", txid, lastErr))
}

// ChainTip returns the current chain tip height, trying the same
// provider list Resolve uses in order until one answers. The orchestrator calls this before
// validating a rune_name so it can apply the protocol's progressive
// name-length unlock against the real chain height rather than a
// stale or assumed one.
func (r *RuneKeyResolver) ChainTip(ctx context.Context) (int, error) {
	var lastErr error
	for _, baseURL := range r.providerURLs {
		url := fmt.Sprintf("%s/blocks/tip/height", baseURL)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			lastErr = err
			continue
		}

		resp, err := r.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			lastErr = fmt.Errorf("tip height request to %s: HTTP %d", baseURL, resp.StatusCode)
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

	return 0, errs.New(errs.KindNetworkError, fmt.Errorf("fetch chain tip: %w", lastErr))
}
