package bitcoin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEsploraBroadcaster_Broadcast(t *testing.T) {
	expected := "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/tx" {
			t.Errorf("expected path /tx, got %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(expected))
	}))
	defer server.Close()

	b := NewEsploraBroadcaster(server.Client(), []string{server.URL})

	txid, err := b.Broadcast(context.Background(), "deadbeef")
	if err != nil {
		t.Fatalf("Broadcast() error = %v", err)
	}
	if txid != expected {
		t.Errorf("txid = %s, want %s", txid, expected)
	}
}

func TestEsploraBroadcaster_FallbackOnServerError(t *testing.T) {
	expected := "fallback_txid"
	callCount := 0

	server1 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("down"))
	}))
	defer server1.Close()

	server2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(expected))
	}))
	defer server2.Close()

	b := NewEsploraBroadcaster(http.DefaultClient, []string{server1.URL, server2.URL})

	txid, err := b.Broadcast(context.Background(), "deadbeef")
	if err != nil {
		t.Fatalf("Broadcast() error = %v", err)
	}
	if txid != expected {
		t.Errorf("txid = %s, want %s", txid, expected)
	}
	if callCount != 2 {
		t.Errorf("expected 2 calls, got %d", callCount)
	}
}

func TestEsploraBroadcaster_BadTxNoRetry(t *testing.T) {
	callCount := 0

	server1 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("sendrawtransaction RPC error: bad signature"))
	}))
	defer server1.Close()

	server2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("should_not_reach"))
	}))
	defer server2.Close()

	b := NewEsploraBroadcaster(http.DefaultClient, []string{server1.URL, server2.URL})

	_, err := b.Broadcast(context.Background(), "invalid_hex")
	if err == nil {
		t.Fatal("expected error for bad transaction")
	}
	if callCount != 1 {
		t.Errorf("expected 1 call (no retry on rejection), got %d", callCount)
	}
}

func TestEsploraBroadcaster_AlreadyInMempoolIsSuccess(t *testing.T) {
	// A minimal, unambiguously-non-witness serialized transaction (one
	// input so the txin count byte cannot be mistaken for a segwit
	// marker) is enough to exercise computeTxid; the values need not be
	// realistic.
	rawHex := "01000000" + // version
		"01" + // input count
		"0000000000000000000000000000000000000000000000000000000000000000" + // outpoint txid (32 bytes)
		"ffffffff" + // outpoint index
		"00" + // scriptSig length
		"ffffffff" + // sequence
		"00" + // output count
		"00000000" // locktime

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("txn-already-known"))
	}))
	defer server.Close()

	b := NewEsploraBroadcaster(server.Client(), []string{server.URL})

	txid, err := b.Broadcast(context.Background(), rawHex)
	if err != nil {
		t.Fatalf("Broadcast() error = %v, want already-in-mempool treated as success", err)
	}
	if txid == "" {
		t.Error("expected a recovered txid, got empty string")
	}
}

func TestEsploraBroadcaster_AllProvidersFail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("down"))
	}))
	defer server.Close()

	b := NewEsploraBroadcaster(server.Client(), []string{server.URL})

	_, err := b.Broadcast(context.Background(), "deadbeef")
	if err == nil {
		t.Fatal("expected error when all providers fail")
	}
}
