package registry

import (
	"sort"

	"github.com/runeforge/launchpad/internal/launchpad/domain"
	"github.com/runeforge/launchpad/internal/launchpad/errs"
)

// ListRunes returns a sorted, paginated view of the registry. caller is
// used only for rate limiting, not for filtering: every entry is
// readable by every caller. Parameter bounds are enforced before any
// store access, per the pagination contract.
func (s *Store) ListRunes(caller domain.Principal, page domain.Page) (domain.PagedResponse, error) {
	if !s.limiter.Allow(caller) {
		return domain.PagedResponse{}, errs.New(errs.KindRateLimited, errs.ErrRateLimited)
	}

	if page.Limit <= 0 {
		return domain.PagedResponse{}, errs.New(errs.KindInvalidArgument, errs.ErrInvalidLimit)
	}
	if page.Offset < 0 || page.Offset > 1_000_000 {
		return domain.PagedResponse{}, errs.New(errs.KindInvalidArgument, errs.ErrInvalidOffset)
	}

	effectiveLimit := page.Limit
	if effectiveLimit > MaxLimit {
		effectiveLimit = MaxLimit
	}

	sortBy := page.SortBy
	if sortBy == "" {
		sortBy = domain.SortByBlock
	}
	sortOrder := page.SortOrder
	if sortOrder == "" {
		sortOrder = domain.SortDesc
	}

	s.mu.RLock()
	all := make([]domain.RegistryEntry, 0, len(s.byKey))
	for _, e := range s.byKey {
		all = append(all, *e)
	}
	s.mu.RUnlock()

	sortEntries(all, sortBy, sortOrder)

	total := len(all)
	if page.Offset > total {
		return domain.PagedResponse{
			Items:   []domain.RegistryEntry{},
			Total:   total,
			Offset:  page.Offset,
			Limit:   effectiveLimit,
			HasMore: false,
		}, nil
	}

	end := page.Offset + effectiveLimit
	if end > total {
		end = total
	}
	items := all[page.Offset:end]

	hasMore := page.Offset+len(items) < total
	resp := domain.PagedResponse{
		Items:   items,
		Total:   total,
		Offset:  page.Offset,
		Limit:   effectiveLimit,
		HasMore: hasMore,
	}
	if hasMore {
		next := page.Offset + len(items)
		resp.NextOffset = &next
	}
	return resp, nil
}

// TotalRunes returns the number of entries currently indexed.
func (s *Store) TotalRunes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byKey)
}

// sortEntries sorts a snapshot slice total and deterministically: ties
// on the chosen dimension always break on ascending RuneKey order,
// regardless of the requested sortOrder, so that paginating with a
// frozen store yields a uniquely-ordered sequence.
func sortEntries(entries []domain.RegistryEntry, by domain.SortField, order domain.SortOrder) {
	less := func(i, j int) bool {
		a, b := entries[i], entries[j]
		cmp := compareEntries(a, b, by)
		if cmp == 0 {
			return a.Metadata.Key.Less(b.Metadata.Key)
		}
		if order == domain.SortAsc {
			return cmp < 0
		}
		return cmp > 0
	}
	sort.SliceStable(entries, less)
}

// compareEntries returns <0, 0, or >0 comparing a and b along by,
// ignoring the RuneKey tie-break (applied by the caller).
func compareEntries(a, b domain.RegistryEntry, by domain.SortField) int {
	switch by {
	case domain.SortByName:
		switch {
		case a.Metadata.Name < b.Metadata.Name:
			return -1
		case a.Metadata.Name > b.Metadata.Name:
			return 1
		default:
			return 0
		}
	case domain.SortByVolume:
		return compareUint64(a.TradingVolume24h, b.TradingVolume24h)
	case domain.SortByHolders:
		return compareUint64(a.HolderCount, b.HolderCount)
	case domain.SortByIndexedAt:
		return compareInt64(a.IndexedAt, b.IndexedAt)
	default: // SortByBlock
		return compareUint64(a.Metadata.Key.Block, b.Metadata.Key.Block)
	}
}

func compareUint64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
