package orchestrator

import (
	"log/slog"
	"time"

	"github.com/runeforge/launchpad/internal/launchpad/domain"
	"github.com/runeforge/launchpad/internal/launchpad/errs"
)

// HealthStatus is the health_check() response shape.
type HealthStatus struct {
	Healthy                     bool `json:"healthy"`
	EtchingConfigInitialized    bool `json:"etching_config_initialized"`
	BitcoinIntegrationConfigured bool `json:"bitcoin_integration_configured"`
	RegistryConfigured          bool `json:"registry_configured"`
}

// UpdateEtchingConfig replaces the orchestrator's administrative
// configuration. Requires Admin+.
func (e *Engine) UpdateEtchingConfig(caller domain.Principal, cfg Config) error {
	if err := e.roles.RequireAtLeast(caller, domain.RoleAdmin); err != nil {
		return err
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.config = cfg
	return nil
}

// GrantRole assigns role to principal. Requires Admin+; Admin/Owner
// grants require Owner, enforced inside rbac.Store.
func (e *Engine) GrantRole(caller, principal domain.Principal, role domain.Role) error {
	return e.roles.GrantRole(caller, principal, role, time.Now().Unix())
}

// RevokeRole strips principal's explicit role assignment. Requires
// Admin+; the Owner can never be revoked.
func (e *Engine) RevokeRole(caller, principal domain.Principal) error {
	return e.roles.RevokeRole(caller, principal)
}

// ListRoles returns every explicit role assignment.
func (e *Engine) ListRoles() []domain.RoleAssignment {
	return e.roles.ListRoles()
}

// GetOwner returns the current Owner principal.
func (e *Engine) GetOwner() domain.Principal {
	return e.roles.Owner()
}

// GetCurrentFeeEstimates returns the fee manager's cache, or nil if
// the background refresh has not populated it yet (zero FetchedAt).
func (e *Engine) GetCurrentFeeEstimates() *domain.CachedFeeEstimates {
	cur := e.feeManager.Current()
	if cur.FetchedAt == 0 {
		return nil
	}
	return &cur
}

// GetRecommendedFee returns the cached rate for tier, falling back to
// the configured default when the cache has not refreshed yet.
func (e *Engine) GetRecommendedFee(tier domain.FeeTier) uint64 {
	cur := e.feeManager.Current()
	if cur.FetchedAt == 0 {
		e.mu.RLock()
		defer e.mu.RUnlock()
		return e.config.DefaultFeeRate
	}
	return cur.ForTier(tier)
}

// HealthCheck reports readiness of each configured dependency.
func (e *Engine) HealthCheck() HealthStatus {
	e.mu.RLock()
	configured := e.config.Network != ""
	e.mu.RUnlock()

	status := HealthStatus{
		EtchingConfigInitialized:     configured,
		BitcoinIntegrationConfigured: e.utxoFetcher != nil && e.signer != nil && e.broadcaster != nil,
		RegistryConfigured:           e.registry != nil,
	}
	status.Healthy = status.EtchingConfigInitialized && status.BitcoinIntegrationConfigured && status.RegistryConfigured
	return status
}

// ConfigureCanisters records the Bitcoin and Registry service
// endpoints the orchestrator is wired against. The launchpad runs as a
// single binary rather than a set of independently upgradable
// services, so there is nothing to live-swap here beyond recording the
// intent; requires Owner, matching the original multi-service
// deployment's strictest administrative gate.
func (e *Engine) ConfigureCanisters(caller domain.Principal, btcEndpoint, registryEndpoint string) error {
	if err := e.roles.RequireAtLeast(caller, domain.RoleOwner); err != nil {
		return err
	}
	slog.Info("orchestrator: collaborator endpoints recorded", "bitcoin", btcEndpoint, "registry", registryEndpoint)
	return nil
}

// CancelProcess marks a process Failed before it has a txid. Once a
// transaction has been broadcast, the process is no longer
// cancelable: cancelling would orphan on-chain state the caller has
// no way to retract. Requires Admin+.
func (e *Engine) CancelProcess(caller domain.Principal, processID string) error {
	if err := e.roles.RequireAtLeast(caller, domain.RoleAdmin); err != nil {
		return err
	}

	lock := e.lockFor(processID)
	lock.Lock()
	defer lock.Unlock()

	process, ok, err := e.store.GetProcess(processID)
	if err != nil {
		return errs.New(errs.KindInternal, err)
	}
	if !ok {
		return errs.New(errs.KindInvalidArgument, errs.ErrProcessNotFound)
	}
	if process.State.Terminal() {
		return nil
	}
	if process.Txid != "" {
		return errs.New(errs.KindInvalidArgument, errs.ErrProcessNotCancelable)
	}

	process.State = domain.StateFailed
	process.LastErrorKind = string(errs.KindInternal)
	process.LastError = "cancelled by administrator"
	e.persist(process)
	return nil
}
