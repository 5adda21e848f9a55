// Package api wires the launchpad's chi router: one route group per
// service (etching, registry, admin/rbac, sessions), fronted by
// request logging and bearer-session authentication.
package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/runeforge/launchpad/internal/launchpad/api/handlers"
	"github.com/runeforge/launchpad/internal/launchpad/api/middleware"
	"github.com/runeforge/launchpad/internal/launchpad/identity"
	"github.com/runeforge/launchpad/internal/launchpad/orchestrator"
	"github.com/runeforge/launchpad/internal/launchpad/registry"
)

// Version is set at build time via ldflags.
var Version = "dev"

// NewRouter builds the launchpad's HTTP API.
func NewRouter(engine *orchestrator.Engine, reg *registry.Store, sessions *identity.Store) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestLogging)
	r.Use(middleware.Authenticate(sessions))

	slog.Info("router initialized", "middleware", []string{"requestLogging", "authenticate"})

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", handlers.HealthHandler(engine, Version))
		r.Get("/fees", handlers.GetFeeEstimates(engine))

		r.Post("/sessions", handlers.IssueSession(sessions))

		r.Route("/etching", func(r chi.Router) {
			r.Post("/", handlers.CreateRune(engine))
			r.Get("/", handlers.GetMyEtchings(engine))
			r.Get("/{processID}", handlers.GetEtchingStatus(engine))
			r.Post("/{processID}/cancel", handlers.CancelEtching(engine))
		})

		r.Route("/runes", func(r chi.Router) {
			r.Get("/", handlers.ListRunes(reg))
			r.Get("/mine", handlers.MyRunes(reg))
			r.Get("/by-name/{name}", handlers.LookupRuneByName(reg))
			r.Get("/{block}/{txIndex}", handlers.GetRune(reg))
			r.Put("/{block}/{txIndex}/stats", handlers.UpdateRuneStats(reg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Put("/config", handlers.UpdateEtchingConfig(engine))
			r.Get("/roles", handlers.ListRoles(engine))
			r.Post("/roles", handlers.GrantRole(engine))
			r.Post("/roles/revoke", handlers.RevokeRole(engine))
		})
	})

	return r
}
