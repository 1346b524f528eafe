package rbac

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownRole is returned for identifiers outside the closed role set.
var ErrUnknownRole = errors.New("rbac: unknown role")

// Role is one of the closed set of roles a user can hold.
type Role string

// Roles known to the system. The string value is the stored identifier.
const (
	RoleAdmin             Role = "admin"
	RoleAnnotationManager Role = "annotation-manager"
	RoleAnnotator         Role = "annotator"
)

var roleLabels = map[Role]string{
	RoleAdmin:             "Admin",
	RoleAnnotationManager: "Annotation Manager",
	RoleAnnotator:         "Annotator",
}

// Roles returns the closed set of roles in display order.
func Roles() []Role {
	return []Role{RoleAdmin, RoleAnnotationManager, RoleAnnotator}
}

// ParseRole resolves a stored identifier into a Role.
func ParseRole(value string) (Role, error) {
	role := Role(value)
	if !role.Valid() {
		return "", fmt.Errorf("%w %q", ErrUnknownRole, value)
	}
	return role, nil
}

// Valid reports whether r belongs to the closed set.
func (r Role) Valid() bool {
	_, ok := roleLabels[r]
	return ok
}

// Label returns the human readable name.
func (r Role) Label() string {
	if label, ok := roleLabels[r]; ok {
		return label
	}
	return ""
}

func (r Role) String() string { return string(r) }

// Permission is a fine grained grant bound to roles.
type Permission string

// Permissions known to the system.
const (
	PermViewUsers    Permission = "view_users"
	PermCreateUsers  Permission = "create_users"
	PermUpdateUsers  Permission = "update_users"
	PermDeleteUsers  Permission = "delete_users"
	PermRestoreUsers Permission = "restore_users"
)

var permissionLabels = map[Permission]string{
	PermViewUsers:    "View users",
	PermCreateUsers:  "Create users",
	PermUpdateUsers:  "Update users",
	PermDeleteUsers:  "Delete users",
	PermRestoreUsers: "Restore users",
}

// Permissions returns the closed set of permissions.
func Permissions() []Permission {
	return []Permission{PermViewUsers, PermCreateUsers, PermUpdateUsers, PermDeleteUsers, PermRestoreUsers}
}

// ParsePermission resolves a stored identifier into a Permission.
func ParsePermission(value string) (Permission, error) {
	perm := Permission(value)
	if !perm.Valid() {
		return "", fmt.Errorf("rbac: unknown permission %q", value)
	}
	return perm, nil
}

// Valid reports whether p belongs to the closed set.
func (p Permission) Valid() bool {
	_, ok := permissionLabels[p]
	return ok
}

// Label returns the human readable name.
func (p Permission) Label() string {
	return permissionLabels[p]
}

// PermissionSet is an unordered set of permissions.
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from perms.
func NewPermissionSet(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// Has reports membership.
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Slice returns the members sorted by identifier.
func (s PermissionSet) Slice() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// PermissionRecord is a permission row as stored.
type PermissionRecord struct {
	ID    int64
	Name  Permission
	Label string
}
