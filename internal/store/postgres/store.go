package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/semaphore"

	"github.com/gosuda/plank/internal/domain"
)

type Store struct {
	pool      *pgxpool.Pool
	lockSlots *semaphore.Weighted
	boards    *BoardRepo
	columns   *ColumnRepo
	cards     *CardRepo
}

func New(ctx context.Context, dsn string, maxConns int32) (*Store, error) {
	if maxConns < 2 {
		return nil, fmt.Errorf("postgres.New: max conns must be at least 2, got %d", maxConns)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: parse config: %w", err)
	}

	cfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: connect: %w", err)
	}

	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.New: ping: %w", err)
	}

	return &Store{
		pool:      pool,
		lockSlots: semaphore.NewWeighted(int64(maxConns / 2)),
		boards:    NewBoardRepo(pool),
		columns:   NewColumnRepo(pool),
		cards:     NewCardRepo(pool),
	}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres.Store.Ping: %w", err)
	}
	return nil
}

func (s *Store) Boards() domain.BoardRepository   { return s.boards }
func (s *Store) Columns() domain.ColumnRepository { return s.columns }
func (s *Store) Cards() domain.CardRepository     { return s.cards }

// withTx runs fn in a transaction, committing on success and rolling back on
// error or panic.
func withTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("tx failed: %w, rollback failed: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// applyPositions writes each update inside tx. table is a trusted constant.
func applyPositions(ctx context.Context, tx pgx.Tx, table, parentColumn string, updates []domain.PositionUpdate) error {
	query := fmt.Sprintf(
		`UPDATE %s SET %s = $1, position = $2, updated_at = now() WHERE id = $3`,
		table, parentColumn,
	)
	for _, u := range updates {
		tag, err := tx.Exec(ctx, query, u.ParentID, u.Position, u.ID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%s %s: %w", table, u.ID, domain.ErrNotFound)
		}
	}
	return nil
}
