package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/wire"

	"github.com/runeforge/launchpad/internal/launchpad/bitcoin"
	"github.com/runeforge/launchpad/internal/launchpad/domain"
	"github.com/runeforge/launchpad/internal/launchpad/errs"
	"github.com/runeforge/launchpad/internal/launchpad/fee"
	"github.com/runeforge/launchpad/internal/launchpad/rbac"
	"github.com/runeforge/launchpad/internal/launchpad/registry"
)

type memProcessStore struct {
	mu               sync.Mutex
	byID             map[string]domain.EtchingProcess
	names            map[string]string // owner|name -> process_id, only while active/completed
	pendingByProcess map[string]domain.PendingConfirmation
}

func newMemProcessStore() *memProcessStore {
	return &memProcessStore{
		byID:             make(map[string]domain.EtchingProcess),
		names:            make(map[string]string),
		pendingByProcess: make(map[string]domain.PendingConfirmation),
	}
}

func (s *memProcessStore) pendingFor(processID string) (domain.PendingConfirmation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pendingByProcess[processID]
	return p, ok
}

func (s *memProcessStore) SaveProcess(p domain.EtchingProcess) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[p.ProcessID] = p
	s.names[string(p.OwnerPrincipal)+"|"+p.RuneName] = p.ProcessID
	return nil
}

func (s *memProcessStore) GetProcess(processID string) (domain.EtchingProcess, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[processID]
	return p, ok, nil
}

func (s *memProcessStore) FindActiveByOwnerAndName(owner domain.Principal, runeName string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.names[string(owner)+"|"+runeName]
	if !ok {
		return "", false, nil
	}
	if p := s.byID[id]; p.State == domain.StateFailed {
		return "", false, nil
	}
	return id, true, nil
}

func (s *memProcessStore) ProcessesByOwner(owner domain.Principal) ([]domain.EtchingProcess, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.EtchingProcess
	for _, p := range s.byID {
		if p.OwnerPrincipal == owner {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memProcessStore) SavePendingConfirmation(p domain.PendingConfirmation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingByProcess[p.ProcessID] = p
	return nil
}

func (s *memProcessStore) CountByState(state domain.EtchingState) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n uint64
	for _, p := range s.byID {
		if p.State == state {
			n++
		}
	}
	return n, nil
}

type fakeSigner struct{}

func (fakeSigner) SignSchnorr(context.Context, [32]byte, domain.Principal) ([64]byte, error) {
	return [64]byte{}, nil
}

func (fakeSigner) SignTaprootTx(_ context.Context, tx *wire.MsgTx, prevOuts []*wire.TxOut, _ domain.Principal) error {
	for i := range tx.TxIn {
		tx.TxIn[i].Witness = wire.TxWitness{bytes.Repeat([]byte{0xAB}, 64)}
	}
	return nil
}

type fakeBroadcaster struct {
	txid string
	err  error
}

func (f fakeBroadcaster) Broadcast(context.Context, string) (string, error) {
	return f.txid, f.err
}

// esploraStub serves the minimal set of endpoints the engine's
// collaborators hit during a drive: chain tip, UTXO listing, and
// merkle-proof lookup, standing in for a real Esplora instance. The
// tip is set well past the protocol's name-length unlock schedule so
// test rune names (most far shorter than the 13-letter start length)
// validate the way they would years into the real deployment.
func esploraStub(t *testing.T, utxoValue int64) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/blocks/tip/height", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("2000000"))
	})
	mux.HandleFunc("/address/", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/utxo") {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode([]map[string]any{
			{
				"txid":   strings.Repeat("11", 32),
				"vout":   0,
				"status": map[string]any{"confirmed": true},
				"value":  utxoValue,
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
	return httptest.NewServer(mux)
}

func newTestEngine(t *testing.T, server *httptest.Server, broadcaster bitcoin.Broadcaster) (*Engine, *memProcessStore) {
	t.Helper()
	engine, procStore, _, _ := newTestEngineFull(t, server, broadcaster)
	return engine, procStore
}

// newTestEngineFull is newTestEngine plus the registry and role stores
// it wires internally, for tests that need to observe or pre-seed
// state outside the Engine's own exported surface (e.g. a name
// collision already sitting in the registry, or a caller's role).
func newTestEngineFull(t *testing.T, server *httptest.Server, broadcaster bitcoin.Broadcaster) (*Engine, *memProcessStore, *registry.Store, *rbac.Store) {
	t.Helper()

	net := &chaincfg.RegressionNetParams
	seed := bytes.Repeat([]byte{0x07}, hdkeychain.RecommendedSeedLen)
	master, err := hdkeychain.NewMaster(seed, net)
	if err != nil {
		t.Fatalf("new master: %v", err)
	}
	deriver := &bitcoin.AddressDeriver{MasterKey: master, NetParams: net, Network: domain.NetworkRegtest}

	utxoFetcher := bitcoin.NewUTXOFetcher(server.Client(), []string{server.URL}, 100, net)
	runeKeys := bitcoin.NewRuneKeyResolver(server.Client(), []string{server.URL})
	feeManager := fee.NewManager(bitcoin.NewFeeEstimator(server.Client(), server.URL), time.Hour)

	roles := rbac.NewStore(domain.Principal("owner-of-everything"))
	reg := registry.NewStore(600, nil, roles)
	procStore := newMemProcessStore()

	cfg := Config{
		Network:               domain.NetworkRegtest,
		RequiredConfirmations: 1,
		EnableRetries:         true,
		MaxRetries:            3,
	}

	engine := NewEngine(cfg, procStore, reg, roles, feeManager, utxoFetcher, fakeSigner{}, broadcaster, runeKeys, net, deriver)
	return engine, procStore, reg, roles
}

func waitForState(t *testing.T, engine *Engine, processID string, want domain.EtchingState, timeout time.Duration) domain.EtchingProcess {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var last domain.EtchingProcess
	for time.Now().Before(deadline) {
		p, err := engine.GetEtchingStatus(processID)
		if err != nil {
			t.Fatalf("get status: %v", err)
		}
		last = p
		if p.State == want || p.State.Terminal() {
			return p
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %s, last seen %s (%s)", want, last.State, last.LastError)
	return last
}

func TestCreateRune_HappyPathReachesCompleted(t *testing.T) {
	server := esploraStub(t, 5_000_000)
	defer server.Close()

	engine, _ := newTestEngine(t, server, fakeBroadcaster{txid: strings.Repeat("22", 32)})

	spec := domain.EtchingSpec{
		RuneName:     "QUANTUMLEAP",
		Symbol:       "Q",
		Divisibility: 8,
		Premine:      1_000_000,
	}

	processID, err := engine.CreateRune(context.Background(), "alice", spec)
	if err != nil {
		t.Fatalf("CreateRune: %v", err)
	}

	final := waitForState(t, engine, processID, domain.StateAwaitingConfirmation, time.Second)
	if final.State != domain.StateAwaitingConfirmation {
		t.Fatalf("state = %s, want AwaitingConfirmation; last_error=%s", final.State, final.LastError)
	}
	if final.Txid == "" {
		t.Fatalf("expected txid to be set")
	}

	if err := engine.AdvanceToIndexing(processID); err != nil {
		t.Fatalf("AdvanceToIndexing: %v", err)
	}

	final = waitForState(t, engine, processID, domain.StateCompleted, time.Second)
	if final.State != domain.StateCompleted {
		t.Fatalf("state = %s, want Completed; last_error=%s", final.State, final.LastError)
	}
}

func TestCreateRune_IdempotentOnSameOwnerAndName(t *testing.T) {
	server := esploraStub(t, 5_000_000)
	defer server.Close()

	engine, _ := newTestEngine(t, server, fakeBroadcaster{txid: strings.Repeat("33", 32)})

	spec := domain.EtchingSpec{RuneName: "IDEMPOTENT", Symbol: "I", Divisibility: 0, Premine: 1}

	first, err := engine.CreateRune(context.Background(), "bob", spec)
	if err != nil {
		t.Fatalf("first CreateRune: %v", err)
	}
	second, err := engine.CreateRune(context.Background(), "bob", spec)
	if err != nil {
		t.Fatalf("second CreateRune: %v", err)
	}
	if first != second {
		t.Fatalf("expected same process_id, got %s and %s", first, second)
	}
}

func TestCreateRune_InvalidSpecRejectedSynchronously(t *testing.T) {
	server := esploraStub(t, 5_000_000)
	defer server.Close()

	engine, _ := newTestEngine(t, server, fakeBroadcaster{})

	_, err := engine.CreateRune(context.Background(), "carol", domain.EtchingSpec{RuneName: "", Symbol: "X"})
	if errs.KindOf(err) != errs.KindInvalidArgument {
		t.Fatalf("err kind = %v, want InvalidArgument", errs.KindOf(err))
	}
}

func TestCreateRune_InsufficientBalanceFails(t *testing.T) {
	server := esploraStub(t, 100) // far below dust plus fee
	defer server.Close()

	engine, _ := newTestEngine(t, server, fakeBroadcaster{})

	spec := domain.EtchingSpec{RuneName: "POORWALLET", Symbol: "P", Divisibility: 0, Premine: 1}
	processID, err := engine.CreateRune(context.Background(), "dave", spec)
	if err != nil {
		t.Fatalf("CreateRune: %v", err)
	}

	final := waitForState(t, engine, processID, domain.StateFailed, time.Second)
	if final.State != domain.StateFailed {
		t.Fatalf("state = %s, want Failed", final.State)
	}
	if final.LastErrorKind != string(errs.KindInsufficientBalance) {
		t.Fatalf("last_error_kind = %s, want InsufficientBalance", final.LastErrorKind)
	}
}

func TestCreateRune_BroadcastRejectedIsTerminal(t *testing.T) {
	server := esploraStub(t, 5_000_000)
	defer server.Close()

	rejectErr := errs.New(errs.KindBroadcastRejected, fmt.Errorf("non-final"))
	engine, _ := newTestEngine(t, server, fakeBroadcaster{err: rejectErr})

	spec := domain.EtchingSpec{RuneName: "REJECTME", Symbol: "R", Divisibility: 0, Premine: 1}
	processID, err := engine.CreateRune(context.Background(), "erin", spec)
	if err != nil {
		t.Fatalf("CreateRune: %v", err)
	}

	final := waitForState(t, engine, processID, domain.StateFailed, time.Second)
	if final.State != domain.StateFailed {
		t.Fatalf("state = %s, want Failed", final.State)
	}
	if final.RetryCount != 0 {
		t.Fatalf("retry_count = %d, want 0 (BroadcastRejected is not retriable)", final.RetryCount)
	}
}

func TestCancelProcess_RefusedOnceBroadcast(t *testing.T) {
	server := esploraStub(t, 5_000_000)
	defer server.Close()

	engine, _ := newTestEngine(t, server, fakeBroadcaster{txid: strings.Repeat("44", 32)})

	spec := domain.EtchingSpec{RuneName: "CANCELME", Symbol: "C", Divisibility: 0, Premine: 1}
	processID, err := engine.CreateRune(context.Background(), "frank", spec)
	if err != nil {
		t.Fatalf("CreateRune: %v", err)
	}
	waitForState(t, engine, processID, domain.StateAwaitingConfirmation, time.Second)

	if err := engine.CancelProcess("owner-of-everything", processID); errs.KindOf(err) != errs.KindInvalidArgument {
		t.Fatalf("CancelProcess err = %v, want InvalidArgument (already broadcast)", err)
	}
}
