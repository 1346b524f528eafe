package users

import "github.com/annotation-backoffice/backoffice/internal/rbac"

// AbilityFlags are the per-row actions a client may offer. They are advisory;
// every mutation is authorized again when invoked.
type AbilityFlags struct {
	Update  bool `json:"update"`
	Delete  bool `json:"delete"`
	Restore bool `json:"restore"`
}

// Abilities projects the policy over targets, one entry per target id.
func (p *Policy) Abilities(actor rbac.Actor, targets []User) map[int64]AbilityFlags {
	out := make(map[int64]AbilityFlags, len(targets))
	for _, target := range targets {
		out[target.ID] = AbilityFlags{
			Update:  p.CanUpdate(actor, target),
			Delete:  p.CanDelete(actor, target),
			Restore: p.CanRestore(actor, target),
		}
	}
	return out
}
