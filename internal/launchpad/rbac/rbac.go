// Package rbac enforces the launchpad's role lattice: Owner > Admin >
// Operator > User. Every administrative and write operation across the
// other launchpad packages checks against a shared Store instance.
package rbac

import (
	"log/slog"
	"sync"

	"github.com/runeforge/launchpad/internal/launchpad/domain"
	"github.com/runeforge/launchpad/internal/launchpad/errs"
)

// Store holds the current role assignment for every known principal.
// There is always exactly one Owner, fixed at construction time; Owner
// may only be transferred, never revoked.
type Store struct {
	mu    sync.RWMutex
	roles map[domain.Principal]domain.RoleAssignment
	owner domain.Principal
}

// NewStore creates a Store with owner as the sole initial Owner.
func NewStore(owner domain.Principal) *Store {
	s := &Store{
		roles: make(map[domain.Principal]domain.RoleAssignment),
		owner: owner,
	}
	s.roles[owner] = domain.RoleAssignment{
		Principal: owner,
		Role:      domain.RoleOwner,
		GrantedBy: owner,
	}
	return s
}

// RoleOf returns caller's current role, defaulting to User for any
// principal never explicitly granted a role.
func (s *Store) RoleOf(caller domain.Principal) domain.Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.roles[caller]
	if !ok {
		return domain.RoleUser
	}
	return a.Role
}

// RequireAtLeast returns Unauthorized unless caller's role is at least
// min in the lattice.
func (s *Store) RequireAtLeast(caller domain.Principal, min domain.Role) error {
	if !s.RoleOf(caller).AtLeast(min) {
		return errs.New(errs.KindUnauthorized, errs.ErrUnauthorized)
	}
	return nil
}

// GrantRole assigns role to principal. update_etching_config,
// cancel_process, and revoke_role require Admin+; granting the Admin
// role itself, and any transfer of Owner, requires Owner.
func (s *Store) GrantRole(grantedBy, principal domain.Principal, role domain.Role, grantedAt int64) error {
	if !role.Valid() {
		return errs.New(errs.KindInvalidArgument, errs.ErrInvalidRole)
	}

	min := domain.RoleAdmin
	if role == domain.RoleAdmin || role == domain.RoleOwner {
		min = domain.RoleOwner
	}
	if err := s.RequireAtLeast(grantedBy, min); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if role == domain.RoleOwner {
		// Owner transfer: the prior owner is demoted to Admin, never
		// left without any role.
		s.roles[s.owner] = domain.RoleAssignment{Principal: s.owner, Role: domain.RoleAdmin, GrantedBy: grantedBy, GrantedAt: grantedAt}
		s.owner = principal
	}

	s.roles[principal] = domain.RoleAssignment{
		Principal: principal,
		Role:      role,
		GrantedBy: grantedBy,
		GrantedAt: grantedAt,
	}

	slog.Info("role granted", "principal", principal, "role", role, "granted_by", grantedBy)
	return nil
}

// RevokeRole removes principal's explicit role assignment, reverting
// them to User. The Owner can never be revoked.
func (s *Store) RevokeRole(revokedBy, principal domain.Principal) error {
	if err := s.RequireAtLeast(revokedBy, domain.RoleAdmin); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if principal == s.owner {
		return errs.New(errs.KindUnauthorized, errs.ErrCannotRevokeOwner)
	}

	delete(s.roles, principal)
	slog.Info("role revoked", "principal", principal, "revoked_by", revokedBy)
	return nil
}

// ListRoles returns every explicit role assignment, Owner first.
func (s *Store) ListRoles() []domain.RoleAssignment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.RoleAssignment, 0, len(s.roles))
	if owner, ok := s.roles[s.owner]; ok {
		out = append(out, owner)
	}
	for p, a := range s.roles {
		if p == s.owner {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Owner returns the current Owner principal.
func (s *Store) Owner() domain.Principal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.owner
}
