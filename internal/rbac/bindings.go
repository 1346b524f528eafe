package rbac

// Bindings maps roles to the permissions they grant. Values handed out by
// BindingCache are shared and must be treated as read-only.
type Bindings map[Role]PermissionSet

// DefaultBindings is the fixed assignment applied by provisioning.
// Roles absent from the map keep whatever the store holds (none by default).
func DefaultBindings() Bindings {
	return Bindings{
		RoleAnnotationManager: NewPermissionSet(
			PermViewUsers,
			PermCreateUsers,
			PermUpdateUsers,
			PermDeleteUsers,
			PermRestoreUsers,
		),
		RoleAdmin: NewPermissionSet(Permissions()...),
	}
}

// PermissionsFor returns the union of permissions granted to roles.
func (b Bindings) PermissionsFor(roles ...Role) PermissionSet {
	set := make(PermissionSet)
	for _, role := range roles {
		for p := range b[role] {
			set[p] = struct{}{}
		}
	}
	return set
}
