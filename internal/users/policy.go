package users

import (
	"github.com/annotation-backoffice/backoffice/internal/rbac"
	"github.com/annotation-backoffice/backoffice/internal/shared"
)

// Action names a decision the policy can make about users.
type Action string

// Actions on the users resource.
const (
	ActionViewAny Action = "view_any"
	ActionView    Action = "view"
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionRestore Action = "restore"
)

// DecisionRecorder observes enforced authorization outcomes.
type DecisionRecorder interface {
	RecordDecision(action string, allowed bool)
}

// PolicyOptions toggles the optional rules.
type PolicyOptions struct {
	// PreventSelfDelete denies deleting the actor's own account.
	PreventSelfDelete bool
}

// DefaultPolicyOptions returns the production defaults.
func DefaultPolicyOptions() PolicyOptions {
	return PolicyOptions{PreventSelfDelete: true}
}

type rule struct {
	permission rbac.Permission
	// targeted rules require a target and apply the admin shield.
	targeted bool
	state    func(opts PolicyOptions, actor rbac.Actor, target *User) bool
}

var rules = map[Action]rule{
	ActionViewAny: {permission: rbac.PermViewUsers},
	ActionView:    {permission: rbac.PermViewUsers},
	ActionCreate:  {permission: rbac.PermCreateUsers},
	ActionUpdate:  {permission: rbac.PermUpdateUsers, targeted: true},
	ActionDelete:  {permission: rbac.PermDeleteUsers, targeted: true, state: notSelf},
	ActionRestore: {permission: rbac.PermRestoreUsers, targeted: true, state: onlyTrashed},
}

func notSelf(opts PolicyOptions, actor rbac.Actor, target *User) bool {
	return !opts.PreventSelfDelete || actor.UserID != target.ID
}

func onlyTrashed(_ PolicyOptions, _ rbac.Actor, target *User) bool {
	return target.Trashed()
}

// Policy decides what an actor may do with user records. Decisions depend
// only on the already resolved actor and target.
type Policy struct {
	opts     PolicyOptions
	recorder DecisionRecorder
}

// NewPolicy builds a Policy. recorder may be nil.
func NewPolicy(opts PolicyOptions, recorder DecisionRecorder) *Policy {
	return &Policy{opts: opts, recorder: recorder}
}

// Allows evaluates action: the permission first, then the admin shield, then
// any action specific rule.
func (p *Policy) Allows(action Action, actor rbac.Actor, target *User) bool {
	r, ok := rules[action]
	if !ok || !actor.Can(r.permission) {
		return false
	}
	if r.targeted {
		if target == nil || !adminShieldAllows(actor, target) {
			return false
		}
	}
	if r.state != nil && !r.state(p.opts, actor, target) {
		return false
	}
	return true
}

// Authorize enforces action and records the outcome. Denials return
// shared.ErrForbidden without detail about the target.
func (p *Policy) Authorize(action Action, actor rbac.Actor, target *User) error {
	allowed := p.Allows(action, actor, target)
	if p.recorder != nil {
		p.recorder.RecordDecision(string(action), allowed)
	}
	if !allowed {
		return shared.ErrForbidden
	}
	return nil
}

// CanViewAny reports whether actor may list users.
func (p *Policy) CanViewAny(actor rbac.Actor) bool { return p.Allows(ActionViewAny, actor, nil) }

// CanCreate reports whether actor may create users.
func (p *Policy) CanCreate(actor rbac.Actor) bool { return p.Allows(ActionCreate, actor, nil) }

// CanUpdate reports whether actor may update target.
func (p *Policy) CanUpdate(actor rbac.Actor, target User) bool {
	return p.Allows(ActionUpdate, actor, &target)
}

// CanDelete reports whether actor may soft-delete target.
func (p *Policy) CanDelete(actor rbac.Actor, target User) bool {
	return p.Allows(ActionDelete, actor, &target)
}

// CanRestore reports whether actor may restore target.
func (p *Policy) CanRestore(actor rbac.Actor, target User) bool {
	return p.Allows(ActionRestore, actor, &target)
}

// CanAssignRole reports whether actor may hand out role. Only admins grant admin.
func (p *Policy) CanAssignRole(actor rbac.Actor, role rbac.Role) bool {
	if !role.Valid() {
		return false
	}
	return role != rbac.RoleAdmin || actor.HasRole(rbac.RoleAdmin)
}

// A non-admin never acts on an admin, whatever permissions they hold.
func adminShieldAllows(actor rbac.Actor, target *User) bool {
	return !target.HasRole(rbac.RoleAdmin) || actor.HasRole(rbac.RoleAdmin)
}
