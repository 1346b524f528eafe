package users

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/annotation-backoffice/backoffice/internal/rbac"
	"github.com/annotation-backoffice/backoffice/internal/shared"
)

// CreateUserRequest carries the attributes of a new user.
type CreateUserRequest struct {
	Name                 string `json:"name" validate:"required,max=255"`
	Email                string `json:"email" validate:"required,email,max=255"`
	Password             string `json:"password" validate:"required,min=8"`
	PasswordConfirmation string `json:"password_confirmation" validate:"eqfield=Password"`
	Role                 string `json:"role" validate:"required,role"`
}

// UpdateUserRequest carries edited attributes. An empty password keeps the
// current credential.
type UpdateUserRequest struct {
	Name                 string `json:"name" validate:"required,max=255"`
	Email                string `json:"email" validate:"required,email,max=255"`
	Password             string `json:"password" validate:"omitempty,min=8"`
	PasswordConfirmation string `json:"password_confirmation" validate:"eqfield=Password"`
	Role                 string `json:"role" validate:"required,role"`
}

func (r *CreateUserRequest) normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = shared.NormalizeEmail(r.Email)
}

func (r *UpdateUserRequest) normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = shared.NormalizeEmail(r.Email)
}

func registerRules(v *validator.Validate) {
	_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		return rbac.Role(fl.Field().String()).Valid()
	})
}
