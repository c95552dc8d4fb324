package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/plank/internal/domain"
)

const columnColumns = `id, board_id, title, position, revision, created_at, updated_at`

type ColumnRepo struct {
	pool *pgxpool.Pool
}

func NewColumnRepo(pool *pgxpool.Pool) *ColumnRepo {
	return &ColumnRepo{pool: pool}
}

func (r *ColumnRepo) Create(ctx context.Context, c *domain.Column) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO columns (id, board_id, title, position, revision, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.BoardID, c.Title, c.Position, c.Revision, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("columnRepo.Create: %w", err)
	}

	return nil
}

func (r *ColumnRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Column, error) {
	c, err := scanColumn(r.pool.QueryRow(ctx,
		`SELECT `+columnColumns+` FROM columns WHERE id = $1`, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("columnRepo.GetByID: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("columnRepo.GetByID: %w", err)
	}

	return c, nil
}

func (r *ColumnRepo) ListByBoard(ctx context.Context, boardID uuid.UUID) ([]*domain.Column, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+columnColumns+` FROM columns WHERE board_id = $1 ORDER BY position, created_at`,
		boardID,
	)
	if err != nil {
		return nil, fmt.Errorf("columnRepo.ListByBoard: %w", err)
	}
	defer rows.Close()

	var columns []*domain.Column
	for rows.Next() {
		c, err := scanColumn(rows)
		if err != nil {
			return nil, fmt.Errorf("columnRepo.ListByBoard: scan: %w", err)
		}
		columns = append(columns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("columnRepo.ListByBoard: rows: %w", err)
	}

	return columns, nil
}

func (r *ColumnRepo) Update(ctx context.Context, id uuid.UUID, patch domain.ColumnPatch) (*domain.Column, error) {
	c, err := scanColumn(r.pool.QueryRow(ctx,
		`UPDATE columns SET title = COALESCE($1, title), revision = revision + 1, updated_at = now()
		 WHERE id = $2
		 RETURNING `+columnColumns,
		patch.Title, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("columnRepo.Update: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("columnRepo.Update: %w", err)
	}

	return c, nil
}

func (r *ColumnRepo) Reorder(ctx context.Context, updates []domain.PositionUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		return applyPositions(ctx, tx, "columns", "board_id", updates)
	})
	if err != nil {
		return fmt.Errorf("columnRepo.Reorder: %w", err)
	}

	return nil
}

func (r *ColumnRepo) Delete(ctx context.Context, id uuid.UUID, renumber []domain.PositionUpdate) error {
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM columns WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrNotFound
		}
		return applyPositions(ctx, tx, "columns", "board_id", renumber)
	})
	if err != nil {
		return fmt.Errorf("columnRepo.Delete: %w", err)
	}

	return nil
}

func scanColumn(row pgx.Row) (*domain.Column, error) {
	var c domain.Column
	if err := row.Scan(&c.ID, &c.BoardID, &c.Title, &c.Position, &c.Revision, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}
