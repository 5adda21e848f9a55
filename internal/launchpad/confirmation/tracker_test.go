package confirmation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/runeforge/launchpad/internal/launchpad/domain"
	"github.com/runeforge/launchpad/internal/launchpad/errs"
)

type memStore struct {
	mu      sync.Mutex
	entries map[string]domain.PendingConfirmation
}

func newMemStore(entries ...domain.PendingConfirmation) *memStore {
	m := &memStore{entries: make(map[string]domain.PendingConfirmation)}
	for _, e := range entries {
		m.entries[e.Txid] = e
	}
	return m
}

func (m *memStore) PendingConfirmations() ([]domain.PendingConfirmation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.PendingConfirmation, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	return out, nil
}

func (m *memStore) SaveConfirmation(e domain.PendingConfirmation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.Txid] = e
	return nil
}

func (m *memStore) RemoveConfirmation(txid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, txid)
	return nil
}

type memAdvancer struct {
	mu        sync.Mutex
	advanced  []string
	failed    map[string]errs.Kind
}

func newMemAdvancer() *memAdvancer {
	return &memAdvancer{failed: make(map[string]errs.Kind)}
}

func (a *memAdvancer) AdvanceToIndexing(processID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.advanced = append(a.advanced, processID)
	return nil
}

func (a *memAdvancer) FailWithRetry(processID string, kind errs.Kind) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failed[processID] = kind
	return nil
}

func TestTracker_AdvancesOnSufficientConfirmations(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"confirmed": true, "block_height": 840000}`))
	}))
	defer server.Close()

	store := newMemStore(domain.PendingConfirmation{
		Txid: "abc", ProcessID: "p1", RequiredConfirmations: 1, BroadcastAt: time.Now().Unix(),
	})
	advancer := newMemAdvancer()

	tr := NewTracker(server.Client(), []string{server.URL}, store, advancer, time.Hour)
	tr.Tick(context.Background())

	if len(advancer.advanced) != 1 || advancer.advanced[0] != "p1" {
		t.Fatalf("advanced = %v, want [p1]", advancer.advanced)
	}
	if pending, _ := store.PendingConfirmations(); len(pending) != 0 {
		t.Fatalf("expected entry removed after advancing, got %v", pending)
	}
}

func TestTracker_StaysPendingBelowThreshold(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"confirmed": false}`))
	}))
	defer server.Close()

	store := newMemStore(domain.PendingConfirmation{
		Txid: "abc", ProcessID: "p1", RequiredConfirmations: 1, BroadcastAt: time.Now().Unix(),
	})
	advancer := newMemAdvancer()

	tr := NewTracker(server.Client(), []string{server.URL}, store, advancer, time.Hour)
	tr.Tick(context.Background())

	if len(advancer.advanced) != 0 {
		t.Fatalf("expected no advance, got %v", advancer.advanced)
	}
	pending, _ := store.PendingConfirmations()
	if len(pending) != 1 || pending[0].Attempts != 1 {
		t.Fatalf("expected entry retained with attempts incremented, got %+v", pending)
	}
}

func TestTracker_DeclaresLostAfterTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	store := newMemStore(domain.PendingConfirmation{
		Txid: "abc", ProcessID: "p1", RequiredConfirmations: 1,
		BroadcastAt: time.Now().Add(-3 * time.Hour).Unix(),
	})
	advancer := newMemAdvancer()

	tr := NewTracker(server.Client(), []string{server.URL}, store, advancer, 2*time.Hour)
	tr.Tick(context.Background())

	if advancer.failed["p1"] != errs.KindBroadcastLost {
		t.Fatalf("failed[p1] = %v, want BroadcastLost", advancer.failed["p1"])
	}
	if pending, _ := store.PendingConfirmations(); len(pending) != 0 {
		t.Fatalf("expected lost entry removed, got %v", pending)
	}
}

func TestTracker_ConfirmationsDerivedFromChainTip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/blocks/tip/height"):
			w.Write([]byte("840005"))
		default:
			w.Write([]byte(`{"confirmed": true, "block_height": 840000}`))
		}
	}))
	defer server.Close()

	// Tip 840005, tx mined at 840000: 6 confirmations. Against a
	// requirement of 7 it stays pending; against 6 it advances.
	t.Run("insufficient depth stays pending", func(t *testing.T) {
		store := newMemStore(domain.PendingConfirmation{
			Txid: "abc", ProcessID: "p1", RequiredConfirmations: 7, BroadcastAt: time.Now().Unix(),
		})
		advancer := newMemAdvancer()

		tr := NewTracker(server.Client(), []string{server.URL}, store, advancer, time.Hour)
		tr.Tick(context.Background())

		if len(advancer.advanced) != 0 {
			t.Fatalf("advanced = %v, want none (6 confirmations < required 7)", advancer.advanced)
		}
	})

	t.Run("sufficient depth advances", func(t *testing.T) {
		store := newMemStore(domain.PendingConfirmation{
			Txid: "abc", ProcessID: "p1", RequiredConfirmations: 6, BroadcastAt: time.Now().Unix(),
		})
		advancer := newMemAdvancer()

		tr := NewTracker(server.Client(), []string{server.URL}, store, advancer, time.Hour)
		tr.Tick(context.Background())

		if len(advancer.advanced) != 1 || advancer.advanced[0] != "p1" {
			t.Fatalf("advanced = %v, want [p1] (6 confirmations >= required 6)", advancer.advanced)
		}
	})
}

func TestTracker_NeverFailsWholeTickOnOneBadEntry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/tx/bad/") {
			http.Error(w, "upstream failure", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"confirmed": true, "block_height": 840000}`))
	}))
	defer server.Close()

	store := newMemStore(
		domain.PendingConfirmation{Txid: "bad", ProcessID: "p-bad", RequiredConfirmations: 1, BroadcastAt: time.Now().Unix()},
		domain.PendingConfirmation{Txid: "good", ProcessID: "p-good", RequiredConfirmations: 1, BroadcastAt: time.Now().Unix()},
	)
	advancer := newMemAdvancer()

	// The provider fails the status lookup for "bad" only. That entry
	// stays pending, and the same tick still advances "good".
	tr := NewTracker(server.Client(), []string{server.URL}, store, advancer, time.Hour)
	tr.Tick(context.Background())

	if len(advancer.advanced) != 1 || advancer.advanced[0] != "p-good" {
		t.Fatalf("advanced = %v, want [p-good] despite the failing entry", advancer.advanced)
	}
}
