package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/runeforge/launchpad/internal/launchpad/domain"
	"github.com/runeforge/launchpad/internal/launchpad/errs"
)

// TestScenario_NameCollisionReachesIndexingThenFailsNameAlreadyUsed is
// end-to-end scenario 2: a second etch of an already-registered name
// reaches Indexing on-chain but fails admission into the registry,
// retaining its txid and leaving the existing registry entry intact.
func TestScenario_NameCollisionReachesIndexingThenFailsNameAlreadyUsed(t *testing.T) {
	server := esploraStub(t, 5_000_000)
	defer server.Close()

	engine, _, reg, roles := newTestEngineFull(t, server, fakeBroadcaster{txid: strings.Repeat("55", 32)})

	existing := domain.RegistryEntry{
		Metadata: domain.RuneMetadata{
			Key:             domain.RuneKey{Block: 839999, TxIndex: 1},
			Name:            "QUANTUMLEAP",
			Symbol:          "Q",
			EtcherPrincipal: "first-owner",
		},
	}
	if err := reg.RegisterRune(roles.Owner(), existing); err != nil {
		t.Fatalf("seed existing rune: %v", err)
	}

	spec := domain.EtchingSpec{RuneName: "QUANTUMLEAP", Symbol: "Q", Divisibility: 8, Premine: 1_000_000}
	processID, err := engine.CreateRune(context.Background(), "second-owner", spec)
	if err != nil {
		t.Fatalf("CreateRune: %v", err)
	}

	waitForState(t, engine, processID, domain.StateAwaitingConfirmation, time.Second)
	if err := engine.AdvanceToIndexing(processID); err != nil {
		t.Fatalf("AdvanceToIndexing: %v", err)
	}

	final := waitForState(t, engine, processID, domain.StateFailed, time.Second)
	if final.State != domain.StateFailed {
		t.Fatalf("state = %s, want Failed", final.State)
	}
	if final.LastErrorKind != string(errs.KindNameAlreadyUsed) {
		t.Fatalf("last_error_kind = %s, want NameAlreadyUsed", final.LastErrorKind)
	}
	if final.Txid == "" {
		t.Fatal("expected txid to be retained on the failed process")
	}

	if e := reg.GetRune(existing.Metadata.Key); e == nil || e.Metadata.EtcherPrincipal != "first-owner" {
		t.Fatalf("registry entry for existing key changed: %+v", e)
	}
}

// TestScenario_RetriedNetworkErrorEndsWithRetryCountOne is end-to-end
// scenario 3: a UTXO lookup fails once with a retriable NetworkError
// and succeeds on the next attempt, so the process still reaches
// Completed with retry_count left at exactly 1.
func TestScenario_RetriedNetworkErrorEndsWithRetryCountOne(t *testing.T) {
	var failedOnce atomic.Bool

	mux := http.NewServeMux()
	mux.HandleFunc("/blocks/tip/height", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("2000000"))
	})
	mux.HandleFunc("/address/", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/utxo") {
			http.NotFound(w, r)
			return
		}
		if failedOnce.CompareAndSwap(false, true) {
			http.Error(w, "temporary upstream failure", http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode([]map[string]any{
			{
				"txid":   strings.Repeat("11", 32),
				"vout":   0,
				"status": map[string]any{"confirmed": true},
				"value":  5_000_000,
			},
		})
	})
	mux.HandleFunc("/tx/", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/merkle-proof") {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"block_height": 840000, "pos": 7})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	engine, _ := newTestEngine(t, server, fakeBroadcaster{txid: strings.Repeat("66", 32)})

	spec := domain.EtchingSpec{RuneName: "RETRYONCE", Symbol: "R", Divisibility: 0, Premine: 1}
	processID, err := engine.CreateRune(context.Background(), "gina", spec)
	if err != nil {
		t.Fatalf("CreateRune: %v", err)
	}

	final := waitForState(t, engine, processID, domain.StateAwaitingConfirmation, time.Second)
	if final.State != domain.StateAwaitingConfirmation {
		t.Fatalf("state = %s, want AwaitingConfirmation; last_error=%s", final.State, final.LastError)
	}
	if final.RetryCount != 1 {
		t.Fatalf("retry_count = %d, want 1", final.RetryCount)
	}

	if err := engine.AdvanceToIndexing(processID); err != nil {
		t.Fatalf("AdvanceToIndexing: %v", err)
	}
	final = waitForState(t, engine, processID, domain.StateCompleted, time.Second)
	if final.State != domain.StateCompleted {
		t.Fatalf("state = %s, want Completed; last_error=%s", final.State, final.LastError)
	}
	if final.RetryCount != 1 {
		t.Fatalf("retry_count at completion = %d, want 1", final.RetryCount)
	}
}

// TestScenario_RBACEnforcementOnUpdateEtchingConfig is end-to-end
// scenario 5: a non-admin caller's update_etching_config call is
// rejected Unauthorized and leaves the orchestrator's live config
// untouched, observable via a subsequent read (here, the effective
// required-confirmations behavior a later process sees).
func TestScenario_RBACEnforcementOnUpdateEtchingConfig(t *testing.T) {
	server := esploraStub(t, 5_000_000)
	defer server.Close()

	engine, procStore := newTestEngine(t, server, fakeBroadcaster{txid: strings.Repeat("77", 32)})

	attempted := Config{
		Network:               domain.NetworkRegtest,
		RequiredConfirmations: 99,
		EnableRetries:         true,
		MaxRetries:            3,
	}
	err := engine.UpdateEtchingConfig("rando-non-admin", attempted)
	if errs.KindOf(err) != errs.KindUnauthorized {
		t.Fatalf("UpdateEtchingConfig err kind = %v, want Unauthorized", errs.KindOf(err))
	}

	spec := domain.EtchingSpec{RuneName: "STILLORIGINAL", Symbol: "S", Divisibility: 0, Premine: 1}
	processID, err := engine.CreateRune(context.Background(), "holly", spec)
	if err != nil {
		t.Fatalf("CreateRune: %v", err)
	}

	final := waitForState(t, engine, processID, domain.StateAwaitingConfirmation, time.Second)
	if final.State != domain.StateAwaitingConfirmation {
		t.Fatalf("state = %s, want AwaitingConfirmation; last_error=%s", final.State, final.LastError)
	}

	// The rejected update's RequiredConfirmations: 99 must never have
	// taken effect: the pending confirmation this process recorded on
	// broadcast still carries newTestEngine's original value of 1.
	pending, ok := procStore.pendingFor(processID)
	if !ok {
		t.Fatalf("expected a pending confirmation recorded for %s", processID)
	}
	if pending.RequiredConfirmations != 1 {
		t.Fatalf("required_confirmations = %d, want 1 (rejected config change must not apply)", pending.RequiredConfirmations)
	}
}
