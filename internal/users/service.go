package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/annotation-backoffice/backoffice/internal/platform/db"
	"github.com/annotation-backoffice/backoffice/internal/rbac"
	"github.com/annotation-backoffice/backoffice/internal/shared"
)

const (
	emailConstraint   = "users_email_key"
	emailTakenMessage = "The email has already been taken."
	roleInvalidMsg    = "The selected role is invalid."
)

// Hasher turns a plain password into a stored credential.
type Hasher func(password string) (string, error)

// ListResult is a listing page with per-row abilities.
type ListResult struct {
	Users     []User
	Filter    ListFilter
	Abilities map[int64]AbilityFlags
}

// Service implements the user directory. Every operation is authorized
// against the policy when invoked.
type Service struct {
	repo     Repository
	policy   *Policy
	hash     Hasher
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService builds Service instance.
func NewService(repo Repository, policy *Policy, hash Hasher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	v := shared.NewValidator()
	registerRules(v)
	return &Service{repo: repo, policy: policy, hash: hash, validate: v, logger: logger}
}

// Policy returns the policy the service enforces.
func (s *Service) Policy() *Policy {
	return s.policy
}

// List returns users matching filter. Soft-deleted users are excluded unless
// the filter asks for them.
func (s *Service) List(ctx context.Context, actor rbac.Actor, filter ListFilter) (ListResult, error) {
	if err := s.policy.Authorize(ActionViewAny, actor, nil); err != nil {
		return ListResult{}, err
	}
	filter.Search = strings.TrimSpace(filter.Search)
	users, err := s.repo.List(ctx, filter)
	if err != nil {
		return ListResult{}, fmt.Errorf("users: list: %w", err)
	}
	return ListResult{Users: users, Filter: filter, Abilities: s.policy.Abilities(actor, users)}, nil
}

// Show returns an active user.
func (s *Service) Show(ctx context.Context, actor rbac.Actor, id int64) (User, error) {
	if err := s.policy.Authorize(ActionView, actor, nil); err != nil {
		return User{}, err
	}
	return s.repo.Get(ctx, id, false)
}

// Profile returns the actor's own active record.
func (s *Service) Profile(ctx context.Context, id int64) (User, error) {
	return s.repo.Get(ctx, id, false)
}

// RoleOptions lists the roles actor may assign.
func (s *Service) RoleOptions(actor rbac.Actor) []RoleOption {
	out := make([]RoleOption, 0, len(rbac.Roles()))
	for _, role := range rbac.Roles() {
		if s.policy.CanAssignRole(actor, role) {
			out = append(out, RoleOption{Value: role, Label: role.Label()})
		}
	}
	return out
}

// CreateForm returns the data needed to render the create form.
func (s *Service) CreateForm(actor rbac.Actor) ([]RoleOption, error) {
	if err := s.policy.Authorize(ActionCreate, actor, nil); err != nil {
		return nil, err
	}
	return s.RoleOptions(actor), nil
}

// EditForm returns the target and role options for the edit form.
func (s *Service) EditForm(ctx context.Context, actor rbac.Actor, id int64) (User, []RoleOption, error) {
	target, err := s.repo.Get(ctx, id, false)
	if err != nil {
		return User{}, nil, err
	}
	if err := s.policy.Authorize(ActionUpdate, actor, &target); err != nil {
		return User{}, nil, err
	}
	return target, s.RoleOptions(actor), nil
}

// Create stores a new user holding exactly one role.
func (s *Service) Create(ctx context.Context, actor rbac.Actor, req CreateUserRequest) (User, error) {
	if err := s.policy.Authorize(ActionCreate, actor, nil); err != nil {
		return User{}, err
	}
	req.normalize()
	if err := s.validate.Struct(req); err != nil {
		return User{}, shared.ValidationErrorFrom(err)
	}
	role := rbac.Role(req.Role)
	if !s.policy.CanAssignRole(actor, role) {
		return User{}, shared.NewValidationError("role", roleInvalidMsg)
	}
	hash, err := s.hash(req.Password)
	if err != nil {
		return User{}, fmt.Errorf("users: hash password: %w", err)
	}

	var created User
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := ensureEmailFree(ctx, tx, req.Email, 0); err != nil {
			return err
		}
		user, err := tx.Insert(ctx, NewUser{Name: req.Name, Email: req.Email, PasswordHash: hash})
		if err != nil {
			return err
		}
		if err := tx.SyncRole(ctx, user.ID, role); err != nil {
			return err
		}
		user.Roles = []rbac.Role{role}
		created = user
		return tx.RecordAudit(ctx, auditEntry(actor, "users.create", user.ID, map[string]any{"role": role}))
	})
	if err != nil {
		return User{}, writeError("create", err)
	}
	s.logger.Info("user created", slog.Int64("user_id", created.ID), slog.Int64("actor_id", actor.UserID), slog.String("role", string(role)))
	return created, nil
}

// Update edits an active user and replaces their role.
func (s *Service) Update(ctx context.Context, actor rbac.Actor, id int64, req UpdateUserRequest) (User, error) {
	target, err := s.repo.Get(ctx, id, false)
	if err != nil {
		return User{}, err
	}
	if err := s.policy.Authorize(ActionUpdate, actor, &target); err != nil {
		return User{}, err
	}
	req.normalize()
	if err := s.validate.Struct(req); err != nil {
		return User{}, shared.ValidationErrorFrom(err)
	}
	role := rbac.Role(req.Role)
	if !s.policy.CanAssignRole(actor, role) {
		return User{}, shared.NewValidationError("role", roleInvalidMsg)
	}
	var hash string
	if req.Password != "" {
		if hash, err = s.hash(req.Password); err != nil {
			return User{}, fmt.Errorf("users: hash password: %w", err)
		}
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := s.lockAuthorized(ctx, tx, ActionUpdate, actor, id, false); err != nil {
			return err
		}
		if err := ensureEmailFree(ctx, tx, req.Email, id); err != nil {
			return err
		}
		if err := tx.Update(ctx, id, Changes{Name: req.Name, Email: req.Email, PasswordHash: hash}); err != nil {
			return err
		}
		if err := tx.SyncRole(ctx, id, role); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, auditEntry(actor, "users.update", id, map[string]any{
			"role":             role,
			"password_changed": hash != "",
		}))
	})
	if err != nil {
		return User{}, writeError("update", err)
	}
	s.logger.Info("user updated", slog.Int64("user_id", id), slog.Int64("actor_id", actor.UserID))
	return s.repo.Get(ctx, id, false)
}

// SoftDelete marks an active user as deleted. The row is kept.
func (s *Service) SoftDelete(ctx context.Context, actor rbac.Actor, id int64) error {
	target, err := s.repo.Get(ctx, id, false)
	if err != nil {
		return err
	}
	if err := s.policy.Authorize(ActionDelete, actor, &target); err != nil {
		return err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := s.lockAuthorized(ctx, tx, ActionDelete, actor, id, false); err != nil {
			return err
		}
		if err := tx.SoftDelete(ctx, id); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, auditEntry(actor, "users.delete", id, nil))
	})
	if err != nil {
		return writeError("delete", err)
	}
	s.logger.Info("user deleted", slog.Int64("user_id", id), slog.Int64("actor_id", actor.UserID))
	return nil
}

// Restore clears the soft-delete marker of a deleted user.
func (s *Service) Restore(ctx context.Context, actor rbac.Actor, id int64) (User, error) {
	target, err := s.repo.Get(ctx, id, true)
	if err != nil {
		return User{}, err
	}
	if err := s.policy.Authorize(ActionRestore, actor, &target); err != nil {
		return User{}, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := s.lockAuthorized(ctx, tx, ActionRestore, actor, id, true); err != nil {
			return err
		}
		if err := tx.Restore(ctx, id); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, auditEntry(actor, "users.restore", id, nil))
	})
	if err != nil {
		return User{}, writeError("restore", err)
	}
	s.logger.Info("user restored", slog.Int64("user_id", id), slog.Int64("actor_id", actor.UserID))
	return s.repo.Get(ctx, id, false)
}

// lockAuthorized re-reads the target under a row lock so the decision holds
// for the rest of the transaction.
func (s *Service) lockAuthorized(ctx context.Context, tx TxRepository, action Action, actor rbac.Actor, id int64, withTrashed bool) (User, error) {
	target, err := tx.Lock(ctx, id)
	if err != nil {
		return User{}, err
	}
	if target.Trashed() && !withTrashed {
		return User{}, shared.ErrNotFound
	}
	if !s.policy.Allows(action, actor, &target) {
		return User{}, shared.ErrForbidden
	}
	return target, nil
}

func ensureEmailFree(ctx context.Context, tx TxRepository, email string, exceptID int64) error {
	taken, err := tx.EmailTaken(ctx, email, exceptID)
	if err != nil {
		return err
	}
	if taken {
		return shared.NewValidationError("email", emailTakenMessage)
	}
	return nil
}

func auditEntry(actor rbac.Actor, action string, userID int64, meta map[string]any) shared.AuditLog {
	return shared.AuditLog{
		ActorID:  actor.UserID,
		Action:   action,
		Entity:   "user",
		EntityID: strconv.FormatInt(userID, 10),
		Meta:     meta,
	}
}

func writeError(op string, err error) error {
	switch {
	case db.IsUniqueViolation(err, emailConstraint):
		return shared.NewValidationError("email", emailTakenMessage)
	case errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrForbidden), errors.Is(err, shared.ErrNotFound):
		return err
	default:
		return fmt.Errorf("users: %s: %w", op, err)
	}
}
