// Package registry implements the launchpad's authoritative local
// index of etched Runes: a primary ordered store keyed by RuneKey,
// name and etcher secondary indexes, and paginated/sorted queries
// bound by per-caller rate limiting.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/runeforge/launchpad/internal/launchpad/domain"
	"github.com/runeforge/launchpad/internal/launchpad/errs"
	"github.com/runeforge/launchpad/internal/launchpad/rbac"
)

// MaxLimit is the hard ceiling list_runes enforces on the caller's
// requested page size, regardless of what the caller asks for.
const MaxLimit = 1000

// DefaultLimit is used when the caller's Page.Limit is zero... except
// zero is itself rejected per the pagination contract, so this is only
// applied when the caller omits Limit entirely (a nil *Page path is
// not modeled; callers always supply a Page with a non-zero Limit or
// get InvalidArgument).
const DefaultLimit = 50

// Store is the registry's in-memory index. Every exported method is
// safe for concurrent use. Entries are never removed: a Rune, once
// etched, exists permanently in the index.
type Store struct {
	mu sync.RWMutex

	byKey    map[domain.RuneKey]*domain.RegistryEntry
	byName   map[string]domain.RuneKey
	byEtcher map[domain.Principal][]domain.RuneKey

	limiter *callerLimiter
	roles   *rbac.Store
}

// NewStore builds an empty registry store. perMinute and allowlist
// configure the per-caller query rate limit; roles is consulted for
// the Operator+ admission check on register_rune and update_stats.
func NewStore(perMinute int, allowlist []domain.Principal, roles *rbac.Store) *Store {
	return &Store{
		byKey:    make(map[domain.RuneKey]*domain.RegistryEntry),
		byName:   make(map[string]domain.RuneKey),
		byEtcher: make(map[domain.Principal][]domain.RuneKey),
		limiter:  newCallerLimiter(perMinute, allowlist),
		roles:    roles,
	}
}

// RegisterRune admits a newly etched Rune into the index. The caller
// must hold Operator or above; entry.Metadata.Name must be unused and
// entry.Metadata.Key must be unused. Insertion into the primary store
// and both secondary indexes is atomic under the store's write lock.
func (s *Store) RegisterRune(caller domain.Principal, entry domain.RegistryEntry) error {
	if err := s.roles.RequireAtLeast(caller, domain.RoleOperator); err != nil {
		return err
	}

	key := entry.Metadata.Key
	name := entry.Metadata.Name

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byKey[key]; exists {
		return errs.New(errs.KindInvalidArgument, fmt.Errorf("rune key %s already registered", key))
	}
	if _, exists := s.byName[name]; exists {
		return errs.New(errs.KindNameAlreadyUsed, errs.ErrNameNotUnique)
	}

	stored := entry
	s.byKey[key] = &stored
	s.byName[name] = key
	s.byEtcher[entry.Metadata.EtcherPrincipal] = append(s.byEtcher[entry.Metadata.EtcherPrincipal], key)

	return nil
}

// GetRune returns the entry at key, or nil if none exists.
func (s *Store) GetRune(key domain.RuneKey) *domain.RegistryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byKey[key]
	if !ok {
		return nil
	}
	copyEntry := *e
	return &copyEntry
}

// LookupByName returns the entry named name via the name index, or nil
// if no Rune carries that name.
func (s *Store) LookupByName(name string) *domain.RegistryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.byName[name]
	if !ok {
		return nil
	}
	e := s.byKey[key]
	copyEntry := *e
	return &copyEntry
}

// MyRunes returns every entry etched by caller, via the etcher index,
// in RuneKey order.
func (s *Store) MyRunes(caller domain.Principal) []domain.RegistryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := append([]domain.RuneKey(nil), s.byEtcher[caller]...)
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	out := make([]domain.RegistryEntry, 0, len(keys))
	for _, k := range keys {
		out = append(out, *s.byKey[k])
	}
	return out
}

// UpdateStats applies delta to the dynamic fields of the entry at key.
// Restricted to Operator+. metadata is never mutated.
func (s *Store) UpdateStats(caller domain.Principal, key domain.RuneKey, delta domain.StatsDelta) error {
	if err := s.roles.RequireAtLeast(caller, domain.RoleOperator); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.byKey[key]
	if !ok {
		return errs.New(errs.KindInvalidArgument, errs.ErrRuneNotFound)
	}

	applyDelta(e, delta)
	return nil
}

func applyDelta(e *domain.RegistryEntry, delta domain.StatsDelta) {
	newHolders := int64(e.HolderCount) + delta.HolderCountDelta
	if newHolders < 0 {
		newHolders = 0
	}
	e.HolderCount = uint64(newHolders)

	newVolume := int64(e.TradingVolume24h) + delta.TradingVolumeDelta
	if newVolume < 0 {
		newVolume = 0
	}
	e.TradingVolume24h = uint64(newVolume)
}
