package users

import (
	"time"

	"github.com/annotation-backoffice/backoffice/internal/rbac"
)

// Resource is the client representation of a user.
type Resource struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Role      *rbac.Role `json:"role"`
	RoleLabel string     `json:"role_label,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at"`
}

// NewResource serializes u. Role is the primary role or null.
func NewResource(u User) Resource {
	res := Resource{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
		DeletedAt: u.DeletedAt,
	}
	if role, ok := u.PrimaryRole(); ok {
		res.Role = &role
		res.RoleLabel = role.Label()
	}
	return res
}

// NewResources serializes a page of users in order.
func NewResources(users []User) []Resource {
	out := make([]Resource, 0, len(users))
	for _, u := range users {
		out = append(out, NewResource(u))
	}
	return out
}
