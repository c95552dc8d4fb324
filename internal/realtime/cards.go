package realtime

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/gosuda/plank/internal/domain"
	"github.com/gosuda/plank/internal/permission"
	"github.com/gosuda/plank/internal/position"
)

func (r *Router) createCard(ctx context.Context, conn *Conn, requestID string, in *CreateCard) error {
	if err := r.authorize(ctx, conn, in.BoardID, permission.ActionCreate, domain.EntityCard); err != nil {
		return err
	}

	return r.exclusive(ctx, in.BoardID, func() error {
		col, err := r.store.Columns().GetByID(ctx, in.ColumnID)
		if err != nil {
			return storeErr("realtime.Router.createCard", err)
		}
		if col.BoardID != in.BoardID {
			return fmt.Errorf("realtime.Router.createCard: column %s is not on board %s: %w", col.ID, in.BoardID, domain.ErrInvalidTarget)
		}

		siblings, err := r.store.Cards().ListByColumn(ctx, col.ID)
		if err != nil {
			return storeErr("realtime.Router.createCard", err)
		}

		card, err := domain.NewCard(in.BoardID, col.ID, in.Title, in.Description)
		if err != nil {
			return err
		}
		card.Position = len(siblings)
		if err := r.store.Cards().Create(ctx, card); err != nil {
			return storeErr("realtime.Router.createCard", err)
		}

		r.emit(in.BoardID, conn, requestID, EventCardCreated, card)
		return nil
	})
}

func (r *Router) moveCard(ctx context.Context, conn *Conn, requestID string, in *MoveCard) error {
	card, err := r.store.Cards().GetByID(ctx, in.CardID)
	if err != nil {
		return storeErr("realtime.Router.moveCard", err)
	}
	if err := r.authorize(ctx, conn, card.BoardID, permission.ActionMove, domain.EntityCard); err != nil {
		return err
	}

	return r.exclusive(ctx, card.BoardID, func() error {
		dest, err := r.store.Columns().GetByID(ctx, in.TargetColumnID)
		if err != nil {
			return storeErr("realtime.Router.moveCard", err)
		}
		if dest.BoardID != card.BoardID {
			return fmt.Errorf("realtime.Router.moveCard: column %s is on another board: %w", dest.ID, domain.ErrInvalidTarget)
		}

		// Re-read under the board lock; the card may have moved meanwhile.
		card, err := r.store.Cards().GetByID(ctx, in.CardID)
		if err != nil {
			return storeErr("realtime.Router.moveCard", err)
		}

		source, err := r.store.Cards().ListByColumn(ctx, card.ColumnID)
		if err != nil {
			return storeErr("realtime.Router.moveCard", err)
		}
		var destCards []*domain.Card
		if dest.ID != card.ColumnID {
			if destCards, err = r.store.Cards().ListByColumn(ctx, dest.ID); err != nil {
				return storeErr("realtime.Router.moveCard", err)
			}
		}

		plan, err := position.Move(cardItems(source), cardItems(destCards), card.ID, dest.ID, *in.TargetPosition)
		if err != nil {
			return fmt.Errorf("realtime.Router.moveCard: %w", domain.ErrNotFound)
		}
		if len(plan.Changed) > 0 {
			if err := r.store.Cards().Reorder(ctx, toUpdates(plan.Changed)); err != nil {
				return storeErr("realtime.Router.moveCard", err)
			}
		}

		r.emit(card.BoardID, conn, requestID, EventCardMoved, MovedPayload{
			ID:        card.ID,
			From:      plan.From,
			To:        dest.ID,
			Position:  plan.Entity.Position,
			MovedBy:   conn.Identity.UserID,
			Positions: toPositions(plan.Changed),
		})
		return nil
	})
}

func (r *Router) updateCard(ctx context.Context, conn *Conn, requestID string, in *UpdateCard) error {
	card, err := r.store.Cards().GetByID(ctx, in.CardID)
	if err != nil {
		return storeErr("realtime.Router.updateCard", err)
	}
	if err := r.authorize(ctx, conn, card.BoardID, permission.ActionUpdate, domain.EntityCard); err != nil {
		return err
	}

	return r.exclusive(ctx, card.BoardID, func() error {
		updated, err := r.store.Cards().Update(ctx, card.ID, in.Patch)
		if err != nil {
			return storeErr("realtime.Router.updateCard", err)
		}

		r.emit(updated.BoardID, conn, requestID, EventCardUpdated, UpdatedPayload{
			ID:       updated.ID,
			Revision: updated.Revision,
			Changes:  in.Patch.Changes(),
		})
		return nil
	})
}

func (r *Router) deleteCard(ctx context.Context, conn *Conn, requestID string, in *DeleteCard) error {
	card, err := r.store.Cards().GetByID(ctx, in.CardID)
	if err != nil {
		return storeErr("realtime.Router.deleteCard", err)
	}
	if err := r.authorize(ctx, conn, card.BoardID, permission.ActionDelete, domain.EntityCard); err != nil {
		return err
	}

	return r.exclusive(ctx, card.BoardID, func() error {
		card, err := r.store.Cards().GetByID(ctx, in.CardID)
		if err != nil {
			return storeErr("realtime.Router.deleteCard", err)
		}
		siblings, err := r.store.Cards().ListByColumn(ctx, card.ColumnID)
		if err != nil {
			return storeErr("realtime.Router.deleteCard", err)
		}

		before := cardItems(siblings)
		remaining, _, _ := position.Remove(before, card.ID)
		changed := position.Changed(before, remaining)
		if err := r.store.Cards().Delete(ctx, card.ID, toUpdates(changed)); err != nil {
			return storeErr("realtime.Router.deleteCard", err)
		}

		r.emit(card.BoardID, conn, requestID, EventCardDeleted, DeletedPayload{
			ID:        card.ID,
			Parent:    card.ColumnID,
			Positions: toPositions(changed),
		})
		return nil
	})
}

func cardItems(cards []*domain.Card) []position.Item {
	items := make([]position.Item, len(cards))
	for i, c := range cards {
		items[i] = position.Item{ID: c.ID, ParentID: c.ColumnID, Position: c.Position}
	}
	return items
}

func columnItems(cols []*domain.Column) []position.Item {
	items := make([]position.Item, len(cols))
	for i, c := range cols {
		items[i] = position.Item{ID: c.ID, ParentID: c.BoardID, Position: c.Position}
	}
	return items
}

func toUpdates(items []position.Item) []domain.PositionUpdate {
	updates := make([]domain.PositionUpdate, len(items))
	for i, it := range items {
		updates[i] = domain.PositionUpdate{ID: it.ID, ParentID: it.ParentID, Position: it.Position}
	}
	return updates
}

func toPositions(items []position.Item) []PositionPayload {
	out := make([]PositionPayload, len(items))
	for i, it := range items {
		out[i] = PositionPayload{ID: it.ID, Parent: it.ParentID, Position: it.Position}
	}
	return out
}

// boardOfColumn loads a column to find the board an intent targets.
func (r *Router) boardOfColumn(ctx context.Context, columnID uuid.UUID, op string) (*domain.Column, error) {
	col, err := r.store.Columns().GetByID(ctx, columnID)
	if err != nil {
		return nil, storeErr(op, err)
	}
	return col, nil
}
