package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/runeforge/launchpad/internal/launchpad/api/middleware"
	"github.com/runeforge/launchpad/internal/launchpad/domain"
	"github.com/runeforge/launchpad/internal/launchpad/orchestrator"
)

type grantRoleRequest struct {
	Principal domain.Principal `json:"principal"`
	Role      domain.Role      `json:"role"`
}

// GrantRole handles POST /api/admin/roles.
func GrantRole(engine *orchestrator.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req grantRoleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, r, "invalid request body")
			return
		}

		caller := middleware.PrincipalFrom(r)
		if err := engine.GrantRole(caller, req.Principal, req.Role); err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, APIResponse{Data: map[string]string{"status": "granted"}})
	}
}

type revokeRoleRequest struct {
	Principal domain.Principal `json:"principal"`
}

// RevokeRole handles POST /api/admin/roles/revoke.
func RevokeRole(engine *orchestrator.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req revokeRoleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, r, "invalid request body")
			return
		}

		caller := middleware.PrincipalFrom(r)
		if err := engine.RevokeRole(caller, req.Principal); err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, APIResponse{Data: map[string]string{"status": "revoked"}})
	}
}

// ListRoles handles GET /api/admin/roles.
func ListRoles(engine *orchestrator.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, APIResponse{Data: engine.ListRoles()})
	}
}
