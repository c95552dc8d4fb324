package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const unlockTimeout = 5 * time.Second

// LockBoard takes a session-level advisory lock keyed on boardID, so every
// instance sharing this database mutates a board one intent at a time. The
// lock spans the caller's sibling reads and writes; the returned func
// releases it.
//
// At most half of the pool is ever held by lock sessions, so a holder can
// always get a second connection for its queries.
func (s *Store) LockBoard(ctx context.Context, boardID uuid.UUID) (func(), error) {
	if err := s.lockSlots.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("postgres.Store.LockBoard: wait for slot: %w", err)
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		s.lockSlots.Release(1)
		return nil, fmt.Errorf("postgres.Store.LockBoard: acquire: %w", err)
	}

	key := boardID.String()
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock(hashtext($1))`, key); err != nil {
		// The lock may have been granted before the error surfaced; ending
		// the session is the only way to be sure it is gone.
		_ = conn.Hijack().Close(context.Background())
		s.lockSlots.Release(1)
		return nil, fmt.Errorf("postgres.Store.LockBoard: %w", err)
	}

	return func() {
		defer s.lockSlots.Release(1)

		unlockCtx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
		defer cancel()

		if _, err := conn.Exec(unlockCtx, `SELECT pg_advisory_unlock(hashtext($1))`, key); err != nil {
			log.Error().Err(err).Str("board_id", key).Msg("postgres: advisory unlock failed, closing session")
			_ = conn.Hijack().Close(unlockCtx)
			return
		}
		conn.Release()
	}, nil
}
