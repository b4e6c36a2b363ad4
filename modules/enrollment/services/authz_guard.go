package services

import (
	"github.com/google/uuid"

	"github.com/alumnet-hq/alumnet/pkg/serrors"
)

// Actor is the explicit authorization context for admin operations. It is
// passed into every transition and cancellation call instead of being read
// from ambient request state.
type Actor struct {
	ID   uuid.UUID
	Role string
}

const RoleAdmin = "admin"

var ErrForbidden = serrors.NewError("AUTHZ_FORBIDDEN", "actor is not permitted to perform this action", "Authorization.PermissionDenied")

var authorizeFn = defaultAuthorize

func defaultAuthorize(actor Actor, action string) error {
	if actor.ID == uuid.Nil || actor.Role != RoleAdmin {
		return ErrForbidden
	}
	return nil
}
