package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/runeforge/launchpad/internal/launchpad/api/middleware"
	"github.com/runeforge/launchpad/internal/launchpad/domain"
	"github.com/runeforge/launchpad/internal/launchpad/orchestrator"
)

// HealthHandler handles GET /api/health.
func HealthHandler(engine *orchestrator.Engine, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := engine.HealthCheck()
		writeJSON(w, http.StatusOK, APIResponse{Data: map[string]any{
			"status":  status,
			"version": version,
		}})
	}
}

// GetFeeEstimates handles GET /api/fees.
func GetFeeEstimates(engine *orchestrator.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		estimates := engine.GetCurrentFeeEstimates()
		if estimates == nil {
			writeJSON(w, http.StatusOK, APIResponse{Data: nil})
			return
		}
		writeJSON(w, http.StatusOK, APIResponse{Data: estimates})
	}
}

type updateConfigRequest struct {
	Network                 domain.Network `json:"network"`
	DefaultFeeRate          uint64         `json:"default_fee_rate"`
	RequiredConfirmations   uint32         `json:"required_confirmations"`
	EnableRetries           bool           `json:"enable_retries"`
	MaxRetries              int            `json:"max_retries"`
	RateLimitPerMinute      int            `json:"rate_limit_per_minute"`
}

// UpdateEtchingConfig handles PUT /api/admin/config.
func UpdateEtchingConfig(engine *orchestrator.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateConfigRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, r, "invalid request body")
			return
		}

		caller := middleware.PrincipalFrom(r)
		cfg := orchestrator.Config{
			Network:               req.Network,
			DefaultFeeRate:        req.DefaultFeeRate,
			RequiredConfirmations: req.RequiredConfirmations,
			EnableRetries:         req.EnableRetries,
			MaxRetries:            req.MaxRetries,
			RateLimitPerMinute:    req.RateLimitPerMinute,
		}

		if err := engine.UpdateEtchingConfig(caller, cfg); err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, APIResponse{Data: map[string]string{"status": "updated"}})
	}
}
