package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/runeforge/launchpad/internal/launchpad/api/middleware"
	"github.com/runeforge/launchpad/internal/launchpad/domain"
	"github.com/runeforge/launchpad/internal/launchpad/orchestrator"
)

// CreateRune handles POST /api/etching.
func CreateRune(engine *orchestrator.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var spec domain.EtchingSpec
		if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
			writeBadRequest(w, r, "invalid request body")
			return
		}

		owner := middleware.PrincipalFrom(r)
		processID, err := engine.CreateRune(r.Context(), owner, spec)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusAccepted, APIResponse{Data: map[string]string{"process_id": processID}})
	}
}

// GetEtchingStatus handles GET /api/etching/{processID}.
func GetEtchingStatus(engine *orchestrator.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		processID := chi.URLParam(r, "processID")
		process, err := engine.GetEtchingStatus(processID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, APIResponse{Data: process})
	}
}

// GetMyEtchings handles GET /api/etching.
func GetMyEtchings(engine *orchestrator.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := middleware.PrincipalFrom(r)
		procs, err := engine.GetMyEtchings(caller)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, APIResponse{Data: procs})
	}
}

// CancelEtching handles POST /api/etching/{processID}/cancel.
func CancelEtching(engine *orchestrator.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		processID := chi.URLParam(r, "processID")
		caller := middleware.PrincipalFrom(r)

		if err := engine.CancelProcess(caller, processID); err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, APIResponse{Data: map[string]string{"process_id": processID, "status": "cancelled"}})
	}
}
