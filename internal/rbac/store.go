package rbac

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/annotation-backoffice/backoffice/internal/platform/db"
	"github.com/annotation-backoffice/backoffice/internal/shared"
)

// Store defines persistence for roles, permissions and their bindings.
type Store interface {
	BindingSource
	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error
	ActorRoles(ctx context.Context, userID int64) ([]Role, error)
	ListPermissions(ctx context.Context) ([]PermissionRecord, error)
}

// TxStore exposes the provisioning writes.
type TxStore interface {
	EnsurePermission(ctx context.Context, perm Permission) (int64, error)
	EnsureRole(ctx context.Context, role Role) (int64, error)
	SyncRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error
}

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs a PostgreSQL store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

type pgTxStore struct {
	tx pgx.Tx
}

// WithTx wraps fn in a repeatable-read transaction.
func (s *PGStore) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxStore{tx: tx})
	})
}

// LoadBindings reads every role → permission binding.
func (s *PGStore) LoadBindings(ctx context.Context) (Bindings, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.name, p.name
		FROM role_permissions rp
		JOIN roles r ON r.id = rp.role_id
		JOIN permissions p ON p.id = rp.permission_id`)
	if err != nil {
		return nil, fmt.Errorf("rbac: load bindings: %w", err)
	}
	defer rows.Close()
	bindings := make(Bindings)
	for rows.Next() {
		var roleName, permName string
		if err := rows.Scan(&roleName, &permName); err != nil {
			return nil, err
		}
		role, err := ParseRole(roleName)
		if err != nil {
			continue
		}
		perm, err := ParsePermission(permName)
		if err != nil {
			continue
		}
		if bindings[role] == nil {
			bindings[role] = make(PermissionSet)
		}
		bindings[role][perm] = struct{}{}
	}
	return bindings, rows.Err()
}

// ActorRoles returns the roles of an active user, oldest assignment first.
func (s *PGStore) ActorRoles(ctx context.Context, userID int64) ([]Role, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.name
		FROM users u
		LEFT JOIN user_roles ur ON ur.user_id = u.id
		LEFT JOIN roles r ON r.id = ur.role_id
		WHERE u.id = $1 AND u.deleted_at IS NULL
		ORDER BY ur.created_at, r.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("rbac: actor roles: %w", err)
	}
	defer rows.Close()
	found := false
	roles := []Role{}
	for rows.Next() {
		found = true
		var name *string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		if name == nil {
			continue
		}
		if role, err := ParseRole(*name); err == nil {
			roles = append(roles, role)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !found {
		return nil, shared.ErrNotFound
	}
	return roles, nil
}

// ListPermissions returns all stored permissions.
func (s *PGStore) ListPermissions(ctx context.Context) ([]PermissionRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, label FROM permissions ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []PermissionRecord
	for rows.Next() {
		var rec PermissionRecord
		var name string
		if err := rows.Scan(&rec.ID, &name, &rec.Label); err != nil {
			return nil, err
		}
		rec.Name = Permission(name)
		perms = append(perms, rec)
	}
	return perms, rows.Err()
}

// EnsurePermission inserts the permission when missing, matched by name.
func (t *pgTxStore) EnsurePermission(ctx context.Context, perm Permission) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO permissions (name, label) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET label = EXCLUDED.label
		RETURNING id`, string(perm), perm.Label()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("rbac: ensure permission %s: %w", perm, err)
	}
	return id, nil
}

// EnsureRole inserts the role when missing, matched by name.
func (t *pgTxStore) EnsureRole(ctx context.Context, role Role) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO roles (name, label) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET label = EXCLUDED.label, updated_at = NOW()
		RETURNING id`, string(role), role.Label()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("rbac: ensure role %s: %w", role, err)
	}
	return id, nil
}

// SyncRolePermissions makes permissionIDs the exact binding set of roleID.
func (t *pgTxStore) SyncRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	if _, err := t.tx.Exec(ctx, `
		DELETE FROM role_permissions
		WHERE role_id = $1 AND NOT (permission_id = ANY($2))`, roleID, permissionIDs); err != nil {
		return fmt.Errorf("rbac: detach permissions: %w", err)
	}
	if _, err := t.tx.Exec(ctx, `
		INSERT INTO role_permissions (role_id, permission_id)
		SELECT $1, unnest($2::bigint[])
		ON CONFLICT DO NOTHING`, roleID, permissionIDs); err != nil {
		return fmt.Errorf("rbac: attach permissions: %w", err)
	}
	return nil
}

var _ Store = (*PGStore)(nil)
