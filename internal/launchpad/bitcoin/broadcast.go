package bitcoin

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/btcsuite/btcd/wire"

	"github.com/runeforge/launchpad/internal/launchpad/errs"
)

// Broadcaster sends a raw signed transaction to the network and
// returns its txid.
type Broadcaster interface {
	Broadcast(ctx context.Context, rawHex string) (txid string, err error)
}

// EsploraBroadcaster broadcasts via Esplora-compatible /tx endpoints,
// trying each configured provider in order and falling back to the
// next on a retriable failure.
type EsploraBroadcaster struct {
	client       *http.Client
	providerURLs []string
}

// NewEsploraBroadcaster builds a broadcaster with ordered fallback
// providers.
func NewEsploraBroadcaster(client *http.Client, providerURLs []string) *EsploraBroadcaster {
	return &EsploraBroadcaster{client: client, providerURLs: providerURLs}
}

// Broadcast tries each provider in order. A rejected transaction (HTTP
// 400, and not an already-in-mempool response) is fatal and does not
// fall through to the next provider, since the transaction itself is
// invalid everywhere. An "already in mempool" response from a
// provider is treated as success: the orchestrator may retry a
// broadcast that already landed, and that must not surface as an
// error.
func (b *EsploraBroadcaster) Broadcast(ctx context.Context, rawHex string) (string, error) {
	if len(b.providerURLs) == 0 {
		return "", errs.New(errs.KindNetworkError, fmt.Errorf("no broadcast providers configured"))
	}

	var lastErr error
	for i, baseURL := range b.providerURLs {
		txid, err := b.broadcastToProvider(ctx, rawHex, baseURL)
		if err == nil {
			slog.Info("broadcast succeeded", "provider", baseURL, "txid", txid)
			return txid, nil
		}

		if alreadyTxid, ok := alreadyInMempoolTxid(err, rawHex); ok {
			slog.Info("broadcast already in mempool, treating as success", "provider", baseURL, "txid", alreadyTxid)
			return alreadyTxid, nil
		}

		lastErr = err
		if isBadTxError(err) {
			slog.Error("broadcast rejected", "provider", baseURL, "error", err)
			return "", errs.New(errs.KindBroadcastRejected, err)
		}

		slog.Warn("broadcast failed, trying next provider", "provider", baseURL, "index", i, "error", err)
	}

	return "", errs.New(errs.KindNetworkError, fmt.Errorf("all providers failed: %w", lastErr))
}

func (b *EsploraBroadcaster) broadcastToProvider(ctx context.Context, rawHex string, baseURL string) (string, error) {
	url := baseURL + "/tx"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(rawHex))
	if err != nil {
		return "", fmt.Errorf("build broadcast request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("broadcast to %s: %w", baseURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read broadcast response: %w", err)
	}

	if resp.StatusCode == http.StatusBadRequest {
		return "", &badTxError{message: strings.TrimSpace(string(body))}
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("broadcast HTTP %d from %s: %s", resp.StatusCode, baseURL, string(body))
	}

	return strings.TrimSpace(string(body)), nil
}

// badTxError marks a 400 response: the transaction itself is invalid.
type badTxError struct {
	message string
}

func (e *badTxError) Error() string { return "bad transaction: " + e.message }

func isBadTxError(err error) bool {
	_, ok := err.(*badTxError)
	return ok
}

// alreadyInMempoolTxid detects Esplora's "already in mempool"/
// "txn-already-in-mempool" 400 response bodies and recovers the txid
// the caller already knows (its own computed hash of rawHex), since
// these providers do not echo the txid back on that particular error.
func alreadyInMempoolTxid(err error, rawHex string) (string, bool) {
	bte, ok := err.(*badTxError)
	if !ok {
		return "", false
	}
	msg := strings.ToLower(bte.message)
	if strings.Contains(msg, "already in mempool") || strings.Contains(msg, "txn-already-in-mempool") || strings.Contains(msg, "txn-already-known") || strings.Contains(msg, "already have transaction") {
		if txid, ok := computeTxid(rawHex); ok {
			return txid, true
		}
	}
	return "", false
}

// computeTxid decodes rawHex and returns its txid, used to recover the
// txid of a transaction a provider reports as already broadcast.
func computeTxid(rawHex string) (string, bool) {
	raw, err := hex.DecodeString(rawHex)
	if err != nil {
		return "", false
	}
	var tx wire.MsgTx
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return "", false
	}
	return tx.TxHash().String(), true
}
