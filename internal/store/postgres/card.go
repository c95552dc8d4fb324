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

const cardColumns = `id, board_id, column_id, title, description, position, revision, created_at, updated_at`

type CardRepo struct {
	pool *pgxpool.Pool
}

func NewCardRepo(pool *pgxpool.Pool) *CardRepo {
	return &CardRepo{pool: pool}
}

func (r *CardRepo) Create(ctx context.Context, c *domain.Card) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO cards (id, board_id, column_id, title, description, position, revision, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.BoardID, c.ColumnID, c.Title, c.Description,
		c.Position, c.Revision, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("cardRepo.Create: %w", err)
	}

	return nil
}

func (r *CardRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Card, error) {
	c, err := scanCard(r.pool.QueryRow(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE id = $1`, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("cardRepo.GetByID: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("cardRepo.GetByID: %w", err)
	}

	return c, nil
}

func (r *CardRepo) ListByColumn(ctx context.Context, columnID uuid.UUID) ([]*domain.Card, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE column_id = $1 ORDER BY position, created_at`,
		columnID,
	)
	if err != nil {
		return nil, fmt.Errorf("cardRepo.ListByColumn: %w", err)
	}
	defer rows.Close()

	return scanCards(rows, "cardRepo.ListByColumn")
}

func (r *CardRepo) ListByBoard(ctx context.Context, boardID uuid.UUID) ([]*domain.Card, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT c.id, c.board_id, c.column_id, c.title, c.description, c.position, c.revision, c.created_at, c.updated_at
		 FROM cards c JOIN columns col ON col.id = c.column_id
		 WHERE c.board_id = $1
		 ORDER BY col.position, c.position, c.created_at`,
		boardID,
	)
	if err != nil {
		return nil, fmt.Errorf("cardRepo.ListByBoard: %w", err)
	}
	defer rows.Close()

	return scanCards(rows, "cardRepo.ListByBoard")
}

func (r *CardRepo) Update(ctx context.Context, id uuid.UUID, patch domain.CardPatch) (*domain.Card, error) {
	c, err := scanCard(r.pool.QueryRow(ctx,
		`UPDATE cards SET title = COALESCE($1, title), description = COALESCE($2, description),
		        revision = revision + 1, updated_at = now()
		 WHERE id = $3
		 RETURNING `+cardColumns,
		patch.Title, patch.Description, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("cardRepo.Update: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("cardRepo.Update: %w", err)
	}

	return c, nil
}

func (r *CardRepo) Reorder(ctx context.Context, updates []domain.PositionUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		return applyPositions(ctx, tx, "cards", "column_id", updates)
	})
	if err != nil {
		return fmt.Errorf("cardRepo.Reorder: %w", err)
	}

	return nil
}

func (r *CardRepo) Delete(ctx context.Context, id uuid.UUID, renumber []domain.PositionUpdate) error {
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM cards WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrNotFound
		}
		return applyPositions(ctx, tx, "cards", "column_id", renumber)
	})
	if err != nil {
		return fmt.Errorf("cardRepo.Delete: %w", err)
	}

	return nil
}

func scanCard(row pgx.Row) (*domain.Card, error) {
	var c domain.Card
	err := row.Scan(
		&c.ID, &c.BoardID, &c.ColumnID, &c.Title, &c.Description,
		&c.Position, &c.Revision, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func scanCards(rows pgx.Rows, caller string) ([]*domain.Card, error) {
	var cards []*domain.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", caller, err)
		}
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", caller, err)
	}

	return cards, nil
}
