package lifecycle

import (
	"fmt"

	"github.com/cuemby/gpubox/pkg/types"
)

// Policy names who may act on a container
type Policy int

const (
	// AdminOnly allows administrators regardless of ownership
	AdminOnly Policy = iota
	// OwnerOnly allows the owning user only
	OwnerOnly
	// OwnerOrAdmin allows the owning user and every administrator
	OwnerOrAdmin
	// AnyUser allows every authenticated user
	AnyUser
)

func (p Policy) String() string {
	switch p {
	case AdminOnly:
		return "admin-only"
	case OwnerOnly:
		return "owner-only"
	case OwnerOrAdmin:
		return "owner-or-admin"
	case AnyUser:
		return "any-user"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// authorize is the single authorization check used by every operation.
// c may be nil for operations that do not target a container.
func authorize(actor types.Actor, c *types.Container, policy Policy) error {
	if actor.UserID == 0 {
		return fmt.Errorf("%w: no authenticated user", types.ErrUnauthenticated)
	}

	owner := c != nil && c.UserID == actor.UserID
	var allowed bool
	switch policy {
	case AdminOnly:
		allowed = actor.IsAdmin()
	case OwnerOnly:
		allowed = owner
	case OwnerOrAdmin:
		allowed = owner || actor.IsAdmin()
	case AnyUser:
		allowed = true
	}
	if allowed {
		return nil
	}

	if c == nil {
		return fmt.Errorf("%w: user %d is not permitted (%s)", types.ErrUnauthorized, actor.UserID, policy)
	}
	return fmt.Errorf("%w: user %d is not permitted on container %s (%s)", types.ErrUnauthorized, actor.UserID, c.Name, policy)
}

// Authorize applies policy to a request that does not target a container,
// such as host telemetry served outside the Manager.
func Authorize(actor types.Actor, policy Policy) error {
	return authorize(actor, nil, policy)
}
