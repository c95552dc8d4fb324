package realtime

import (
	"context"

	"github.com/gosuda/plank/internal/domain"
	"github.com/gosuda/plank/internal/permission"
	"github.com/gosuda/plank/internal/position"
)

func (r *Router) createColumn(ctx context.Context, conn *Conn, requestID string, in *CreateColumn) error {
	if err := r.authorize(ctx, conn, in.BoardID, permission.ActionCreate, domain.EntityColumn); err != nil {
		return err
	}

	return r.exclusive(ctx, in.BoardID, func() error {
		if _, err := r.store.Boards().GetByID(ctx, in.BoardID); err != nil {
			return storeErr("realtime.Router.createColumn", err)
		}
		siblings, err := r.store.Columns().ListByBoard(ctx, in.BoardID)
		if err != nil {
			return storeErr("realtime.Router.createColumn", err)
		}

		col, err := domain.NewColumn(in.BoardID, in.Title)
		if err != nil {
			return err
		}
		col.Position = len(siblings)
		if err := r.store.Columns().Create(ctx, col); err != nil {
			return storeErr("realtime.Router.createColumn", err)
		}

		r.emit(in.BoardID, conn, requestID, EventColumnCreated, col)
		return nil
	})
}

func (r *Router) updateColumn(ctx context.Context, conn *Conn, requestID string, in *UpdateColumn) error {
	col, err := r.boardOfColumn(ctx, in.ColumnID, "realtime.Router.updateColumn")
	if err != nil {
		return err
	}
	if err := r.authorize(ctx, conn, col.BoardID, permission.ActionUpdate, domain.EntityColumn); err != nil {
		return err
	}

	return r.exclusive(ctx, col.BoardID, func() error {
		updated, err := r.store.Columns().Update(ctx, col.ID, in.Patch)
		if err != nil {
			return storeErr("realtime.Router.updateColumn", err)
		}

		r.emit(updated.BoardID, conn, requestID, EventColumnUpdated, UpdatedPayload{
			ID:       updated.ID,
			Revision: updated.Revision,
			Changes:  in.Patch.Changes(),
		})
		return nil
	})
}

func (r *Router) moveColumn(ctx context.Context, conn *Conn, requestID string, in *MoveColumn) error {
	col, err := r.boardOfColumn(ctx, in.ColumnID, "realtime.Router.moveColumn")
	if err != nil {
		return err
	}
	if err := r.authorize(ctx, conn, col.BoardID, permission.ActionMove, domain.EntityColumn); err != nil {
		return err
	}

	return r.exclusive(ctx, col.BoardID, func() error {
		siblings, err := r.store.Columns().ListByBoard(ctx, col.BoardID)
		if err != nil {
			return storeErr("realtime.Router.moveColumn", err)
		}

		plan, err := position.Move(columnItems(siblings), nil, col.ID, col.BoardID, *in.TargetPosition)
		if err != nil {
			return storeErr("realtime.Router.moveColumn", domain.ErrNotFound)
		}
		if len(plan.Changed) > 0 {
			if err := r.store.Columns().Reorder(ctx, toUpdates(plan.Changed)); err != nil {
				return storeErr("realtime.Router.moveColumn", err)
			}
		}

		r.emit(col.BoardID, conn, requestID, EventColumnMoved, MovedPayload{
			ID:        col.ID,
			From:      col.BoardID,
			To:        col.BoardID,
			Position:  plan.Entity.Position,
			MovedBy:   conn.Identity.UserID,
			Positions: toPositions(plan.Changed),
		})
		return nil
	})
}

// deleteColumn removes the column together with its cards.
func (r *Router) deleteColumn(ctx context.Context, conn *Conn, requestID string, in *DeleteColumn) error {
	col, err := r.boardOfColumn(ctx, in.ColumnID, "realtime.Router.deleteColumn")
	if err != nil {
		return err
	}
	if err := r.authorize(ctx, conn, col.BoardID, permission.ActionDelete, domain.EntityColumn); err != nil {
		return err
	}

	return r.exclusive(ctx, col.BoardID, func() error {
		siblings, err := r.store.Columns().ListByBoard(ctx, col.BoardID)
		if err != nil {
			return storeErr("realtime.Router.deleteColumn", err)
		}

		before := columnItems(siblings)
		remaining, _, ok := position.Remove(before, col.ID)
		if !ok {
			return storeErr("realtime.Router.deleteColumn", domain.ErrNotFound)
		}
		changed := position.Changed(before, remaining)
		if err := r.store.Columns().Delete(ctx, col.ID, toUpdates(changed)); err != nil {
			return storeErr("realtime.Router.deleteColumn", err)
		}

		r.emit(col.BoardID, conn, requestID, EventColumnDeleted, DeletedPayload{
			ID:        col.ID,
			Parent:    col.BoardID,
			Positions: toPositions(changed),
		})
		return nil
	})
}
