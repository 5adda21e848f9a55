package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/runeforge/launchpad/internal/launchpad/domain"
	"github.com/runeforge/launchpad/internal/launchpad/identity"
)

// defaultSessionTTL bounds how long an issued session token resolves.
const defaultSessionTTL = 12 * time.Hour

type issueSessionRequest struct {
	Principal domain.Principal  `json:"principal"`
	Scopes    []identity.Scope `json:"scopes"`
}

// IssueSession handles POST /api/sessions. It stands in for whatever
// end-user login flow an operator wires up in front of this service:
// given a principal the caller has already authenticated out of band,
// it mints a scoped bearer token good for defaultSessionTTL.
func IssueSession(sessions *identity.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req issueSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, r, "invalid request body")
			return
		}
		if req.Principal == "" {
			writeBadRequest(w, r, "principal is required")
			return
		}
		if len(req.Scopes) == 0 {
			req.Scopes = []identity.Scope{identity.ScopeEtch, identity.ScopeRegistry}
		}

		session, err := sessions.Issue(req.Principal, req.Scopes, defaultSessionTTL)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, APIResponse{Data: map[string]any{
			"token":      session.Token,
			"expires_at": session.ExpiresAt,
		}})
	}
}
