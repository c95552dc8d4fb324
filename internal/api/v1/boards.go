package v1

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/gosuda/plank/internal/domain"
	"github.com/gosuda/plank/internal/permission"
	"github.com/gosuda/plank/internal/server/middleware"
)

type GetBoardInput struct {
	BoardID uuid.UUID `path:"boardID" doc:"Board ID"`
}

// BoardColumn is a column with its cards in position order.
type BoardColumn struct {
	ID       uuid.UUID      `json:"id"`
	Title    string         `json:"title"`
	Position int            `json:"position"`
	Revision int64          `json:"revision"`
	Cards    []*domain.Card `json:"cards"`
}

type BoardSnapshot struct {
	Board   *domain.Board     `json:"board"`
	Columns []*BoardColumn    `json:"columns"`
	Members []domain.Identity `json:"members"`
}

type GetBoardOutput struct {
	Body *BoardSnapshot
}

type BoardPresence struct {
	BoardID uuid.UUID         `json:"board_id"`
	Members []domain.Identity `json:"members"`
}

type GetPresenceOutput struct {
	Body *BoardPresence
}

func RegisterBoardRoutes(api huma.API, store DataStore, guard Authorizer, presence PresenceSource) {
	huma.Register(api, huma.Operation{
		OperationID: "get-board",
		Method:      http.MethodGet,
		Path:        "/boards/{boardID}",
		Summary:     "Get an ordered board snapshot",
		Tags:        []string{"Boards"},
	}, func(ctx context.Context, input *GetBoardInput) (*GetBoardOutput, error) {
		if err := authorizeRead(ctx, guard, input.BoardID); err != nil {
			return nil, err
		}

		board, err := store.Boards().GetByID(ctx, input.BoardID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("board not found")
			}
			return nil, huma.Error500InternalServerError("failed to get board", err)
		}

		columns, err := store.Columns().ListByBoard(ctx, input.BoardID)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list columns", err)
		}
		cards, err := store.Cards().ListByBoard(ctx, input.BoardID)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list cards", err)
		}

		snapshot := &BoardSnapshot{
			Board:   board,
			Columns: make([]*BoardColumn, 0, len(columns)),
			Members: presence.MembersOf(input.BoardID),
		}
		byColumn := make(map[uuid.UUID]*BoardColumn, len(columns))
		for _, c := range columns {
			bc := &BoardColumn{
				ID:       c.ID,
				Title:    c.Title,
				Position: c.Position,
				Revision: c.Revision,
				Cards:    make([]*domain.Card, 0),
			}
			byColumn[c.ID] = bc
			snapshot.Columns = append(snapshot.Columns, bc)
		}
		// Cards arrive ordered by column then position.
		for _, card := range cards {
			if bc, ok := byColumn[card.ColumnID]; ok {
				bc.Cards = append(bc.Cards, card)
			}
		}

		return &GetBoardOutput{Body: snapshot}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-board-presence",
		Method:      http.MethodGet,
		Path:        "/boards/{boardID}/presence",
		Summary:     "List users currently viewing a board",
		Tags:        []string{"Boards"},
	}, func(ctx context.Context, input *GetBoardInput) (*GetPresenceOutput, error) {
		if err := authorizeRead(ctx, guard, input.BoardID); err != nil {
			return nil, err
		}

		return &GetPresenceOutput{Body: &BoardPresence{
			BoardID: input.BoardID,
			Members: presence.MembersOf(input.BoardID),
		}}, nil
	})
}

func authorizeRead(ctx context.Context, guard Authorizer, boardID uuid.UUID) error {
	userID, ok := middleware.UserIDFromContext(ctx)
	if !ok {
		return huma.Error401Unauthorized("missing user context")
	}

	err := guard.Authorize(ctx, userID, boardID, permission.Operation{Action: permission.ActionRead, Entity: domain.EntityBoard})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrNoAccess), errors.Is(err, domain.ErrInsufficientRole):
		return huma.Error403Forbidden("no access to board")
	default:
		return huma.Error503ServiceUnavailable("authorization unavailable", err)
	}
}
