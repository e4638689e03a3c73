package rbac

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pifp-labs/pifp-ledger/internal/kv"
	"github.com/pifp-labs/pifp-ledger/internal/shared"
)

// Storage keys, instance tier: role state lives as long as the deployment
// and renews on the short cycle.
const (
	keyInitialized = "rbac:initialized"
	keySuperAdmin  = "rbac:superadmin"
	roleKeyPrefix  = "rbac:role:"
)

func roleKey(addr shared.Address) string { return roleKeyPrefix + string(addr) }

// Registry grants, revokes, and answers role queries on top of an injected
// kv.Store. Mutations are serialized so a grant/transfer pair can never
// interleave into a state with two SuperAdmins, or none.
type Registry struct {
	mu    sync.Mutex
	store kv.Store
	tier  kv.Tier
}

// NewRegistry builds a Registry on store using the instance renewal tier.
func NewRegistry(store kv.Store) *Registry {
	return &Registry{store: store, tier: kv.InstanceTier}
}

// Init establishes the sole initial SuperAdmin. Callable exactly once per
// deployment; subsequent calls fail with ErrAlreadyInitialized.
func (r *Registry) Init(ctx context.Context, superAdmin shared.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.tier.Renew(ctx, r.store, keyInitialized); err != nil {
		return err
	}
	if _, err := r.store.Get(ctx, keyInitialized); err == nil {
		return shared.ErrAlreadyInitialized
	} else if !errors.Is(err, kv.ErrNotFound) {
		return fmt.Errorf("rbac: init: %w", err)
	}

	if err := r.store.Set(ctx, keyInitialized, []byte("1"), r.tier.Extend); err != nil {
		return fmt.Errorf("rbac: init: %w", err)
	}
	if err := r.putRole(ctx, superAdmin, RoleSuperAdmin); err != nil {
		return err
	}
	return r.setSuperAdmin(ctx, superAdmin)
}

// GrantRole assigns role to target, overwriting any role target already
// holds. The caller must hold SuperAdmin or Admin; granting SuperAdmin is
// restricted to the current SuperAdmin, and moving it to another address
// goes through TransferSuperAdmin exclusively.
func (r *Registry) GrantRole(ctx context.Context, caller, target shared.Address, role Role) error {
	if !role.Valid() {
		return fmt.Errorf("rbac: grant: unknown role %q", role)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	callerRole, ok, err := r.roleOf(ctx, caller)
	if err != nil {
		return err
	}
	if !ok || (callerRole != RoleSuperAdmin && callerRole != RoleAdmin) {
		return shared.ErrNotAuthorized
	}
	if role == RoleSuperAdmin {
		if callerRole != RoleSuperAdmin {
			return shared.ErrNotAuthorized
		}
		if target != caller {
			// The singleton moves via TransferSuperAdmin only.
			return shared.ErrNotAuthorized
		}
		return nil
	}
	if current, err := r.superAdmin(ctx); err == nil && current == target {
		// Overwriting the SuperAdmin's role would leave the deployment
		// without one.
		return shared.ErrNotAuthorized
	}
	return r.putRole(ctx, target, role)
}

// RevokeRole removes whatever role target holds. The caller must hold
// SuperAdmin or Admin. Revoking the current SuperAdmin is refused; that path
// is exclusively TransferSuperAdmin.
func (r *Registry) RevokeRole(ctx context.Context, caller, target shared.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	callerRole, ok, err := r.roleOf(ctx, caller)
	if err != nil {
		return err
	}
	if !ok || (callerRole != RoleSuperAdmin && callerRole != RoleAdmin) {
		return shared.ErrNotAuthorized
	}
	targetRole, ok, err := r.roleOf(ctx, target)
	if err != nil {
		return err
	}
	if !ok {
		return shared.ErrRoleNotFound
	}
	if targetRole == RoleSuperAdmin {
		return shared.ErrNotAuthorized
	}
	if err := r.store.Delete(ctx, roleKey(target)); err != nil {
		return fmt.Errorf("rbac: revoke: %w", err)
	}
	return nil
}

// TransferSuperAdmin atomically moves the SuperAdmin role from current to
// next. current must hold SuperAdmin. There is no observable intermediate
// state with two SuperAdmins or none.
func (r *Registry) TransferSuperAdmin(ctx context.Context, current, next shared.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	currentRole, ok, err := r.roleOf(ctx, current)
	if err != nil {
		return err
	}
	if !ok || currentRole != RoleSuperAdmin {
		return shared.ErrNotAuthorized
	}
	if current == next {
		return nil
	}
	if err := r.putRole(ctx, next, RoleSuperAdmin); err != nil {
		return err
	}
	if err := r.store.Delete(ctx, roleKey(current)); err != nil {
		return fmt.Errorf("rbac: transfer: %w", err)
	}
	return r.setSuperAdmin(ctx, next)
}

// RoleOf returns the role held by addr, if any. Pure read.
func (r *Registry) RoleOf(ctx context.Context, addr shared.Address) (Role, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.roleOf(ctx, addr)
}

// HasRole reports whether addr holds exactly role. Pure read.
func (r *Registry) HasRole(ctx context.Context, addr shared.Address, role Role) (bool, error) {
	held, ok, err := r.RoleOf(ctx, addr)
	if err != nil {
		return false, err
	}
	return ok && held == role, nil
}

// RequireCanRegister passes for SuperAdmin, Admin, and ProjectManager.
func (r *Registry) RequireCanRegister(ctx context.Context, addr shared.Address) error {
	return r.requireAny(ctx, addr, RoleSuperAdmin, RoleAdmin, RoleProjectManager)
}

// RequireAdminOrAbove passes for SuperAdmin and Admin.
func (r *Registry) RequireAdminOrAbove(ctx context.Context, addr shared.Address) error {
	return r.requireAny(ctx, addr, RoleSuperAdmin, RoleAdmin)
}

// RequireOracle passes only for the Oracle role.
func (r *Registry) RequireOracle(ctx context.Context, addr shared.Address) error {
	return r.requireAny(ctx, addr, RoleOracle)
}

func (r *Registry) requireAny(ctx context.Context, addr shared.Address, roles ...Role) error {
	held, ok, err := r.RoleOf(ctx, addr)
	if err != nil {
		return err
	}
	if !ok {
		return shared.ErrNotAuthorized
	}
	for _, role := range roles {
		if held == role {
			return nil
		}
	}
	return shared.ErrNotAuthorized
}

func (r *Registry) roleOf(ctx context.Context, addr shared.Address) (Role, bool, error) {
	key := roleKey(addr)
	if err := r.tier.Renew(ctx, r.store, key); err != nil {
		return "", false, err
	}
	raw, err := r.store.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("rbac: role of %s: %w", addr, err)
	}
	role, err := ParseRole(string(raw))
	if err != nil {
		return "", false, err
	}
	return role, true, nil
}

func (r *Registry) putRole(ctx context.Context, addr shared.Address, role Role) error {
	if err := r.store.Set(ctx, roleKey(addr), []byte(role), r.tier.Extend); err != nil {
		return fmt.Errorf("rbac: put role: %w", err)
	}
	return nil
}

func (r *Registry) superAdmin(ctx context.Context) (shared.Address, error) {
	if err := r.tier.Renew(ctx, r.store, keySuperAdmin); err != nil {
		return "", err
	}
	raw, err := r.store.Get(ctx, keySuperAdmin)
	if err != nil {
		return "", err
	}
	return shared.Address(raw), nil
}

func (r *Registry) setSuperAdmin(ctx context.Context, addr shared.Address) error {
	if err := r.store.Set(ctx, keySuperAdmin, []byte(addr), r.tier.Extend); err != nil {
		return fmt.Errorf("rbac: set superadmin: %w", err)
	}
	return nil
}
