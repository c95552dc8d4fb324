// Package permission decides whether a user may perform an operation on a board.
package permission

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/plank/internal/domain"
)

type Action string

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionMove   Action = "move"
	ActionDelete Action = "delete"
)

// Operation is an action against a kind of entity.
type Operation struct {
	Action Action
	Entity domain.EntityKind
}

func (o Operation) String() string {
	return string(o.Action) + ":" + string(o.Entity)
}

// Can reports whether role permits op. Viewers read. Members edit cards and
// columns and may delete cards. Deleting a column or changing the board
// itself takes an admin. Unknown roles and actions are denied.
func Can(role domain.Role, op Operation) bool {
	switch op.Action {
	case ActionRead:
		return role.AtLeast(domain.RoleViewer)
	case ActionCreate, ActionUpdate, ActionMove:
		if op.Entity == domain.EntityBoard {
			return role.AtLeast(domain.RoleAdmin)
		}
		return role.AtLeast(domain.RoleMember)
	case ActionDelete:
		if op.Entity == domain.EntityCard {
			return role.AtLeast(domain.RoleMember)
		}
		return role.AtLeast(domain.RoleAdmin)
	default:
		return false
	}
}

// RoleSource looks up a user's role on a board. domain.BoardRepository satisfies it.
type RoleSource interface {
	GetMemberRole(ctx context.Context, boardID, userID uuid.UUID) (domain.Role, error)
}

// Guard authorizes operations against stored board memberships.
type Guard struct {
	roles RoleSource
}

func NewGuard(roles RoleSource) *Guard {
	return &Guard{roles: roles}
}

// Authorize returns nil when userID may perform op on boardID. Errors wrap
// domain.ErrNoAccess, domain.ErrInsufficientRole or domain.ErrUnavailable.
func (g *Guard) Authorize(ctx context.Context, userID, boardID uuid.UUID, op Operation) error {
	role, err := g.roles.GetMemberRole(ctx, boardID, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("permission.Guard.Authorize: %w", domain.ErrNoAccess)
	}
	if err != nil {
		return fmt.Errorf("permission.Guard.Authorize: %w: %w", domain.ErrUnavailable, err)
	}

	if !Can(role, op) {
		log.Debug().
			Str("user_id", userID.String()).
			Str("board_id", boardID.String()).
			Str("role", string(role)).
			Stringer("op", op).
			Msg("permission denied")
		return fmt.Errorf("permission.Guard.Authorize: %s as %q: %w", op, role, domain.ErrInsufficientRole)
	}

	return nil
}
