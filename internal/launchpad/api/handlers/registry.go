package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/runeforge/launchpad/internal/launchpad/api/middleware"
	"github.com/runeforge/launchpad/internal/launchpad/domain"
	"github.com/runeforge/launchpad/internal/launchpad/registry"
)

// ListRunes handles GET /api/runes.
func ListRunes(reg *registry.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page := domain.Page{
			Offset:    parseIntParam(r, "offset", 0),
			Limit:     parseIntParam(r, "limit", registry.DefaultLimit),
			SortBy:    domain.SortField(q.Get("sort_by")),
			SortOrder: domain.SortOrder(q.Get("sort_order")),
		}

		caller := middleware.PrincipalFrom(r)
		resp, err := reg.ListRunes(caller, page)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, APIResponse{Data: resp})
	}
}

// GetRune handles GET /api/runes/{block}/{txIndex}.
func GetRune(reg *registry.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, ok := parseRuneKey(r)
		if !ok {
			writeBadRequest(w, r, "invalid rune key")
			return
		}

		entry := reg.GetRune(key)
		if entry == nil {
			writeBadRequest(w, r, "rune not found")
			return
		}
		writeJSON(w, http.StatusOK, APIResponse{Data: entry})
	}
}

// LookupRuneByName handles GET /api/runes/by-name/{name}.
func LookupRuneByName(reg *registry.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		entry := reg.LookupByName(name)
		if entry == nil {
			writeBadRequest(w, r, "rune not found")
			return
		}
		writeJSON(w, http.StatusOK, APIResponse{Data: entry})
	}
}

// MyRunes handles GET /api/runes/mine.
func MyRunes(reg *registry.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := middleware.PrincipalFrom(r)
		writeJSON(w, http.StatusOK, APIResponse{Data: reg.MyRunes(caller)})
	}
}

// UpdateRuneStats handles PUT /api/runes/{block}/{txIndex}/stats.
func UpdateRuneStats(reg *registry.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, ok := parseRuneKey(r)
		if !ok {
			writeBadRequest(w, r, "invalid rune key")
			return
		}

		var delta domain.StatsDelta
		if err := json.NewDecoder(r.Body).Decode(&delta); err != nil {
			writeBadRequest(w, r, "invalid request body")
			return
		}

		caller := middleware.PrincipalFrom(r)
		if err := reg.UpdateStats(caller, key, delta); err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, APIResponse{Data: map[string]string{"status": "updated"}})
	}
}

func parseRuneKey(r *http.Request) (domain.RuneKey, bool) {
	block, err := strconv.ParseUint(chi.URLParam(r, "block"), 10, 64)
	if err != nil {
		return domain.RuneKey{}, false
	}
	txIndex, err := strconv.ParseUint(chi.URLParam(r, "txIndex"), 10, 32)
	if err != nil {
		return domain.RuneKey{}, false
	}
	return domain.RuneKey{Block: block, TxIndex: uint32(txIndex)}, true
}

func parseIntParam(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}
