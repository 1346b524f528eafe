package users

import (
	"strings"
	"time"

	"github.com/annotation-backoffice/backoffice/internal/rbac"
)

// User is a directory record. DeletedAt is set while the user is soft-deleted.
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	Roles        []rbac.Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

// HasRole reports whether the user holds role.
func (u User) HasRole(role rbac.Role) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// PrimaryRole returns the role shown for display, the oldest assignment.
func (u User) PrimaryRole() (rbac.Role, bool) {
	if len(u.Roles) == 0 {
		return "", false
	}
	return u.Roles[0], true
}

// Trashed reports whether the user is soft-deleted.
func (u User) Trashed() bool {
	return u.DeletedAt != nil
}

// TrashedFilter selects how soft-deleted users appear in listings.
type TrashedFilter string

const (
	// TrashedExclude hides soft-deleted users.
	TrashedExclude TrashedFilter = ""
	// TrashedWith lists active and soft-deleted users.
	TrashedWith TrashedFilter = "with"
	// TrashedOnly lists soft-deleted users only.
	TrashedOnly TrashedFilter = "only"
)

// ParseTrashed maps a query value onto a TrashedFilter. Unknown values exclude.
func ParseTrashed(value string) TrashedFilter {
	switch TrashedFilter(strings.ToLower(strings.TrimSpace(value))) {
	case TrashedWith:
		return TrashedWith
	case TrashedOnly:
		return TrashedOnly
	default:
		return TrashedExclude
	}
}

// ListFilter narrows a listing.
type ListFilter struct {
	Search  string        `json:"search"`
	Trashed TrashedFilter `json:"trashed"`
}

// RoleOption is a role the acting user may assign.
type RoleOption struct {
	Value rbac.Role `json:"value"`
	Label string    `json:"label"`
}

// NewUser carries the columns written on insert.
type NewUser struct {
	Name         string
	Email        string
	PasswordHash string
}

// Changes carries the columns written on update. An empty PasswordHash keeps
// the stored credential.
type Changes struct {
	Name         string
	Email        string
	PasswordHash string
}
