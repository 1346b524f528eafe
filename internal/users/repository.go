package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/annotation-backoffice/backoffice/internal/platform/db"
	"github.com/annotation-backoffice/backoffice/internal/rbac"
	"github.com/annotation-backoffice/backoffice/internal/shared"
)

// Repository exposes user persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context, filter ListFilter) ([]User, error)
	// Get returns shared.ErrNotFound for unknown ids, and for soft-deleted
	// ids unless withTrashed is set.
	Get(ctx context.Context, id int64, withTrashed bool) (User, error)
}

// TxRepository exposes the writes performed inside a transaction.
type TxRepository interface {
	// Lock loads a user, soft-deleted or not, and holds its row until commit.
	Lock(ctx context.Context, id int64) (User, error)
	EmailTaken(ctx context.Context, email string, exceptID int64) (bool, error)
	Insert(ctx context.Context, user NewUser) (User, error)
	// Upsert inserts by email or refreshes the existing row, clearing any
	// soft-delete marker.
	Upsert(ctx context.Context, user NewUser) (User, error)
	Update(ctx context.Context, id int64, changes Changes) error
	SyncRole(ctx context.Context, userID int64, role rbac.Role) error
	SoftDelete(ctx context.Context, id int64) error
	Restore(ctx context.Context, id int64) error
	RecordAudit(ctx context.Context, log shared.AuditLog) error
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

type pgTxRepository struct {
	tx pgx.Tx
}

const selectUsers = `
	SELECT u.id, u.name, u.email, u.password_hash, u.created_at, u.updated_at, u.deleted_at,
		COALESCE(array_agg(r.name ORDER BY ur.created_at, r.id) FILTER (WHERE r.name IS NOT NULL), '{}') AS roles
	FROM users u
	LEFT JOIN user_roles ur ON ur.user_id = u.id
	LEFT JOIN roles r ON r.id = ur.role_id`

// WithTx runs fn inside a repeatable-read transaction.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{tx: tx})
	})
}

// List returns users matching filter ordered by id.
func (r *PGRepository) List(ctx context.Context, filter ListFilter) ([]User, error) {
	var (
		conds []string
		args  []any
	)
	switch filter.Trashed {
	case TrashedWith:
	case TrashedOnly:
		conds = append(conds, "u.deleted_at IS NOT NULL")
	default:
		conds = append(conds, "u.deleted_at IS NULL")
	}
	if term := strings.TrimSpace(filter.Search); term != "" {
		args = append(args, "%"+escapeLike(term)+"%")
		conds = append(conds, fmt.Sprintf("(u.name ILIKE $%d OR u.email ILIKE $%d)", len(args), len(args)))
	}
	sql := selectUsers
	if len(conds) > 0 {
		sql += " WHERE " + strings.Join(conds, " AND ")
	}
	sql += " GROUP BY u.id ORDER BY u.id"
	return queryUsers(ctx, r.pool, sql, args...)
}

// Get loads a single user.
func (r *PGRepository) Get(ctx context.Context, id int64, withTrashed bool) (User, error) {
	user, err := getUser(ctx, r.pool, id)
	if err != nil {
		return User{}, err
	}
	if user.Trashed() && !withTrashed {
		return User{}, shared.ErrNotFound
	}
	return user, nil
}

func getUser(ctx context.Context, q querier, id int64) (User, error) {
	users, err := queryUsers(ctx, q, selectUsers+" WHERE u.id = $1 GROUP BY u.id", id)
	if err != nil {
		return User{}, err
	}
	if len(users) == 0 {
		return User{}, shared.ErrNotFound
	}
	return users[0], nil
}

func queryUsers(ctx context.Context, q querier, sql string, args ...any) ([]User, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	users := []User{}
	for rows.Next() {
		var (
			user  User
			roles []string
		)
		if err := rows.Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash,
			&user.CreatedAt, &user.UpdatedAt, &user.DeletedAt, &roles); err != nil {
			return nil, err
		}
		for _, name := range roles {
			if role, err := rbac.ParseRole(name); err == nil {
				user.Roles = append(user.Roles, role)
			}
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func escapeLike(term string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(term)
}

func (t *pgTxRepository) Lock(ctx context.Context, id int64) (User, error) {
	var locked int64
	err := t.tx.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, err
	}
	return getUser(ctx, t.tx, id)
}

func (t *pgTxRepository) EmailTaken(ctx context.Context, email string, exceptID int64) (bool, error) {
	var taken bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1 AND id <> $2)`, email, exceptID).Scan(&taken)
	return taken, err
}

func (t *pgTxRepository) Insert(ctx context.Context, user NewUser) (User, error) {
	out := User{Name: user.Name, Email: user.Email, PasswordHash: user.PasswordHash}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO users (name, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`,
		user.Name, user.Email, user.PasswordHash).Scan(&out.ID, &out.CreatedAt, &out.UpdatedAt)
	return out, err
}

func (t *pgTxRepository) Upsert(ctx context.Context, user NewUser) (User, error) {
	out := User{Name: user.Name, Email: user.Email, PasswordHash: user.PasswordHash}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO users (name, email, password_hash)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE
		SET name = EXCLUDED.name, password_hash = EXCLUDED.password_hash,
			deleted_at = NULL, updated_at = NOW()
		RETURNING id, created_at, updated_at`,
		user.Name, user.Email, user.PasswordHash).Scan(&out.ID, &out.CreatedAt, &out.UpdatedAt)
	return out, err
}

func (t *pgTxRepository) Update(ctx context.Context, id int64, changes Changes) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE users
		SET name = $2, email = $3,
			password_hash = COALESCE(NULLIF($4, ''), password_hash),
			updated_at = NOW()
		WHERE id = $1`,
		id, changes.Name, changes.Email, changes.PasswordHash)
	return err
}

// SyncRole leaves role as the user's only assignment.
func (t *pgTxRepository) SyncRole(ctx context.Context, userID int64, role rbac.Role) error {
	var roleID int64
	if err := t.tx.QueryRow(ctx, `SELECT id FROM roles WHERE name = $1`, string(role)).Scan(&roleID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("users: role %q is not provisioned", role)
		}
		return err
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id <> $2`, userID, roleID); err != nil {
		return err
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)
		ON CONFLICT (user_id, role_id) DO NOTHING`, userID, roleID)
	return err
}

func (t *pgTxRepository) SoftDelete(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE users SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	return err
}

func (t *pgTxRepository) Restore(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE users SET deleted_at = NULL, updated_at = NOW() WHERE id = $1`, id)
	return err
}

func (t *pgTxRepository) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	return shared.RecordAudit(ctx, t.tx, log)
}

var _ Repository = (*PGRepository)(nil)
