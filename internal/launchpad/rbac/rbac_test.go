package rbac

import (
	"testing"

	"github.com/runeforge/launchpad/internal/launchpad/domain"
	"github.com/runeforge/launchpad/internal/launchpad/errs"
)

func TestNewStore_OwnerInvariant(t *testing.T) {
	s := NewStore("deployer")

	if s.Owner() != "deployer" {
		t.Errorf("Owner() = %s, want deployer", s.Owner())
	}
	if role := s.RoleOf("deployer"); role != domain.RoleOwner {
		t.Errorf("RoleOf(deployer) = %s, want Owner", role)
	}
}

func TestRevokeRole_OwnerIsImmutable(t *testing.T) {
	s := NewStore("deployer")

	err := s.RevokeRole("deployer", "deployer")
	if errs.KindOf(err) != errs.KindUnauthorized {
		t.Fatalf("RevokeRole(owner) kind = %v, want Unauthorized", errs.KindOf(err))
	}
	if s.Owner() != "deployer" {
		t.Errorf("owner changed after failed revoke: %s", s.Owner())
	}
}

func TestGrantRole_RequiresAdminForOperator(t *testing.T) {
	s := NewStore("deployer")

	if err := s.GrantRole("alice", "bob", domain.RoleOperator, 1); err == nil {
		t.Fatalf("expected error: a plain User cannot grant roles yet")
	}

	// deployer (Owner) may grant Admin.
	if err := s.GrantRole("deployer", "alice", domain.RoleAdmin, 1); err != nil {
		t.Fatalf("GrantRole(Admin) by Owner failed: %v", err)
	}

	// alice (Admin) may now grant Operator to bob.
	if err := s.GrantRole("alice", "bob", domain.RoleOperator, 2); err != nil {
		t.Fatalf("GrantRole(Operator) by Admin failed: %v", err)
	}
	if role := s.RoleOf("bob"); role != domain.RoleOperator {
		t.Errorf("RoleOf(bob) = %s, want Operator", role)
	}

	// alice (Admin, not Owner) may not grant Admin.
	if err := s.GrantRole("alice", "carol", domain.RoleAdmin, 3); err == nil {
		t.Fatal("expected error: Admin cannot grant Admin")
	}
}

func TestGrantRole_OwnerTransfer(t *testing.T) {
	s := NewStore("deployer")

	if err := s.GrantRole("deployer", "alice", domain.RoleOwner, 1); err != nil {
		t.Fatalf("owner transfer failed: %v", err)
	}

	if s.Owner() != "alice" {
		t.Errorf("Owner() = %s, want alice", s.Owner())
	}
	if role := s.RoleOf("deployer"); role != domain.RoleAdmin {
		t.Errorf("former owner role = %s, want Admin", role)
	}
	if err := s.RevokeRole("alice", "alice"); errs.KindOf(err) != errs.KindUnauthorized {
		t.Fatalf("new owner should still be immutable to revoke, got kind %v", errs.KindOf(err))
	}
}

func TestRequireAtLeast_DefaultsToUser(t *testing.T) {
	s := NewStore("deployer")

	if err := s.RequireAtLeast("nobody", domain.RoleUser); err != nil {
		t.Fatalf("unknown principal should default to User: %v", err)
	}
	if err := s.RequireAtLeast("nobody", domain.RoleOperator); errs.KindOf(err) != errs.KindUnauthorized {
		t.Fatalf("unknown principal should fail Operator check, got kind %v", errs.KindOf(err))
	}
}
