package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// Service orchestrates RBAC operations.
type Service struct {
	store    Store
	cache    *BindingCache
	bindings Bindings
	logger   *slog.Logger
}

// NewService constructs a Service. The cache must be backed by the same store.
func NewService(store Store, cache *BindingCache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, cache: cache, bindings: DefaultBindings(), logger: logger}
}

// ProvisionReport summarises a provisioning run.
type ProvisionReport struct {
	Roles       int
	Permissions int
	Bound       map[Role]int
}

// Provision ensures every role and permission exists and re-applies the fixed
// bindings. Safe to run on every deploy; always ends by invalidating the cache.
// After a commit the shared generation is bumped so serving processes reload.
func (s *Service) Provision(ctx context.Context) (ProvisionReport, error) {
	s.cache.Invalidate()
	defer s.cache.Invalidate()

	report := ProvisionReport{Bound: make(map[Role]int)}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		permIDs := make(map[Permission]int64, len(Permissions()))
		for _, perm := range Permissions() {
			id, err := tx.EnsurePermission(ctx, perm)
			if err != nil {
				return err
			}
			permIDs[perm] = id
		}
		roleIDs := make(map[Role]int64, len(Roles()))
		for _, role := range Roles() {
			id, err := tx.EnsureRole(ctx, role)
			if err != nil {
				return err
			}
			roleIDs[role] = id
		}
		for _, role := range Roles() {
			granted, ok := s.bindings[role]
			if !ok {
				continue
			}
			ids := make([]int64, 0, len(granted))
			for _, perm := range granted.Slice() {
				ids = append(ids, permIDs[perm])
			}
			if err := tx.SyncRolePermissions(ctx, roleIDs[role], ids); err != nil {
				return err
			}
			report.Bound[role] = len(ids)
		}
		report.Roles = len(roleIDs)
		report.Permissions = len(permIDs)
		return nil
	})
	if err != nil {
		return ProvisionReport{}, fmt.Errorf("rbac: provision: %w", err)
	}
	if err := s.cache.Publish(ctx); err != nil {
		return report, fmt.Errorf("rbac: provision: publish bindings: %w", err)
	}
	s.logger.Info("rbac provisioned",
		slog.Int("roles", report.Roles),
		slog.Int("permissions", report.Permissions),
		slog.Int("manager_permissions", report.Bound[RoleAnnotationManager]),
		slog.Int("admin_permissions", report.Bound[RoleAdmin]))
	return report, nil
}

// ResolveActor loads the user's roles and resolves their permissions from the
// binding cache. Returns shared.ErrNotFound for missing or soft-deleted users.
func (s *Service) ResolveActor(ctx context.Context, userID int64) (Actor, error) {
	roles, err := s.store.ActorRoles(ctx, userID)
	if err != nil {
		return Actor{}, err
	}
	bindings, err := s.cache.Get(ctx)
	if err != nil {
		return Actor{}, fmt.Errorf("rbac: bindings: %w", err)
	}
	return NewActor(userID, roles, bindings), nil
}

// RoleSummary describes a role and the permissions it currently grants.
type RoleSummary struct {
	Value       Role         `json:"value"`
	Label       string       `json:"label"`
	Permissions []Permission `json:"permissions"`
}

// RoleSummaries lists the closed role set with current bindings.
func (s *Service) RoleSummaries(ctx context.Context) ([]RoleSummary, error) {
	bindings, err := s.cache.Get(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]RoleSummary, 0, len(Roles()))
	for _, role := range Roles() {
		perms := bindings.PermissionsFor(role).Slice()
		out = append(out, RoleSummary{Value: role, Label: role.Label(), Permissions: perms})
	}
	return out, nil
}

// ListPermissions returns the stored permissions ordered by name.
func (s *Service) ListPermissions(ctx context.Context) ([]PermissionRecord, error) {
	perms, err := s.store.ListPermissions(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].Name < perms[j].Name })
	return perms, nil
}
