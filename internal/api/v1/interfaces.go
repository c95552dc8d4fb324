package v1

import (
	"context"

	"github.com/google/uuid"

	"github.com/gosuda/plank/internal/domain"
	"github.com/gosuda/plank/internal/permission"
)

// DataStore abstracts the repository accessor pattern for handler testing.
// *postgres.Store satisfies this interface.
type DataStore interface {
	Boards() domain.BoardRepository
	Columns() domain.ColumnRepository
	Cards() domain.CardRepository
}

// Authorizer checks board access for handler testing.
// *permission.Guard satisfies this interface.
type Authorizer interface {
	Authorize(ctx context.Context, userID, boardID uuid.UUID, op permission.Operation) error
}

// PresenceSource lists the users currently in a board's room.
// *realtime.Registry satisfies this interface.
type PresenceSource interface {
	MembersOf(boardID uuid.UUID) []domain.Identity
}
