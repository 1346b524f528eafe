package users

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/annotation-backoffice/backoffice/internal/rbac"
	"github.com/annotation-backoffice/backoffice/internal/shared"
)

// SeedAccount describes a default login created by the seeder.
type SeedAccount struct {
	Name  string
	Email string
	Role  rbac.Role
}

// DefaultAccounts lists one account per role.
func DefaultAccounts() []SeedAccount {
	return []SeedAccount{
		{Name: "Admin User", Email: "admin@scify.org", Role: rbac.RoleAdmin},
		{Name: "Annotation Manager", Email: "annotation_manager@scify.org", Role: rbac.RoleAnnotationManager},
		{Name: "Annotator User", Email: "annotator@scify.org", Role: rbac.RoleAnnotator},
	}
}

// Seed upserts accounts by email, resets their password and replaces their
// role. It runs outside the policy and must only be called by provisioning
// tools.
func (s *Service) Seed(ctx context.Context, accounts []SeedAccount, password string) ([]User, error) {
	if strings.TrimSpace(password) == "" {
		return nil, fmt.Errorf("users: seed: password required")
	}
	hash, err := s.hash(password)
	if err != nil {
		return nil, fmt.Errorf("users: seed: hash password: %w", err)
	}
	out := make([]User, 0, len(accounts))
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, acc := range accounts {
			if !acc.Role.Valid() {
				return fmt.Errorf("users: seed %s: %w", acc.Email, rbac.ErrUnknownRole)
			}
			user, err := tx.Upsert(ctx, NewUser{
				Name:         strings.TrimSpace(acc.Name),
				Email:        shared.NormalizeEmail(acc.Email),
				PasswordHash: hash,
			})
			if err != nil {
				return fmt.Errorf("users: seed %s: %w", acc.Email, err)
			}
			if err := tx.SyncRole(ctx, user.ID, acc.Role); err != nil {
				return fmt.Errorf("users: seed %s role: %w", acc.Email, err)
			}
			user.Roles = []rbac.Role{acc.Role}
			out = append(out, user)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, u := range out {
		s.logger.Info("seeded user", slog.String("email", u.Email), slog.String("role", string(u.Roles[0])))
	}
	return out, nil
}
