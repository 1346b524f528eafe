package rbac

import "context"

// Actor is the authenticated user making a request, with roles and
// permissions resolved once per request.
type Actor struct {
	UserID      int64
	Roles       []Role
	Permissions PermissionSet
}

// NewActor resolves the actor's effective permissions from bindings.
func NewActor(userID int64, roles []Role, bindings Bindings) Actor {
	return Actor{
		UserID:      userID,
		Roles:       roles,
		Permissions: bindings.PermissionsFor(roles...),
	}
}

// Authenticated reports whether the actor carries an identity.
func (a Actor) Authenticated() bool {
	return a.UserID > 0
}

// Can reports whether the actor holds p.
func (a Actor) Can(p Permission) bool {
	return a.Permissions.Has(p)
}

// HasRole reports whether the actor holds role.
func (a Actor) HasRole(role Role) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the actor holds at least one of roles.
func (a Actor) HasAnyRole(roles ...Role) bool {
	for _, role := range roles {
		if a.HasRole(role) {
			return true
		}
	}
	return false
}

// PrimaryRole returns the role shown for display.
func (a Actor) PrimaryRole() (Role, bool) {
	if len(a.Roles) == 0 {
		return "", false
	}
	return a.Roles[0], true
}

// Abilities reports every known permission as a flag.
func (a Actor) Abilities() map[Permission]bool {
	out := make(map[Permission]bool, len(permissionLabels))
	for _, p := range Permissions() {
		out[p] = a.Can(p)
	}
	return out
}

type actorContextKey struct{}

// ContextWithActor stores the actor in ctx.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext returns the actor stored by the middleware.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	if !ok || !actor.Authenticated() {
		return Actor{}, false
	}
	return actor, true
}
