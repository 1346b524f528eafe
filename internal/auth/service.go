package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/annotation-backoffice/backoffice/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo Repository
	hash func(string) (string, error)
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, hash: HashPassword}
}

// Authenticate validates email/password credentials. Soft-deleted accounts
// never authenticate.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.Active() || !CheckPassword(user.PasswordHash, password) {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// UpdatePassword replaces the credential of userID after checking current.
func (s *Service) UpdatePassword(ctx context.Context, userID int64, current, next string) error {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.Active() {
		return shared.ErrNotFound
	}
	if !CheckPassword(user.PasswordHash, current) {
		return shared.NewValidationError("current_password", "The password is incorrect.")
	}
	hash, err := s.hash(next)
	if err != nil {
		return fmt.Errorf("auth: hash password: %w", err)
	}
	return s.repo.UpdatePassword(ctx, userID, hash)
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}
