package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Role is a user's membership level on a single board.
type Role string

const (
	RoleViewer Role = "viewer"
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

var roleRank = map[Role]int{
	RoleViewer: 1,
	RoleMember: 2,
	RoleAdmin:  3,
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether r grants everything min grants. Unknown roles grant nothing.
func (r Role) AtLeast(min Role) bool {
	rank, ok := roleRank[r]
	if !ok {
		return false
	}
	return rank >= roleRank[min]
}

// EntityKind names the kind of board entity an operation targets.
type EntityKind string

const (
	EntityBoard  EntityKind = "board"
	EntityColumn EntityKind = "column"
	EntityCard   EntityKind = "card"
)

type Board struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// PositionUpdate is one sibling's new placement inside a reorder batch.
type PositionUpdate struct {
	ID       uuid.UUID
	ParentID uuid.UUID
	Position int
}

type BoardRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Board, error)
	// GetMemberRole returns ErrNotFound when the user is not a member.
	GetMemberRole(ctx context.Context, boardID, userID uuid.UUID) (Role, error)
}
