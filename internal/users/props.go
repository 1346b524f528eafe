package users

import (
	"net/http"

	"github.com/annotation-backoffice/backoffice/internal/rbac"
	"github.com/annotation-backoffice/backoffice/internal/view"
)

type authUser struct {
	Resource
	Can map[rbac.Permission]bool `json:"can"`
}

// AuthProps shares the signed-in user, with their permission flags, on
// every page as auth.user.
func AuthProps(service *Service) view.PropsFunc {
	return func(r *http.Request) (map[string]any, error) {
		actor, ok := rbac.ActorFromContext(r.Context())
		if !ok {
			return map[string]any{"auth": map[string]any{"user": nil}}, nil
		}
		user, err := service.Profile(r.Context(), actor.UserID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"auth": map[string]any{
			"user": authUser{Resource: NewResource(user), Can: actor.Abilities()},
		}}, nil
	}
}
