package v1_test

import (
	"context"

	"github.com/google/uuid"

	"github.com/gosuda/plank/internal/domain"
	"github.com/gosuda/plank/internal/permission"
	"github.com/gosuda/plank/internal/server/middleware"
)

// ---------------------------------------------------------------------------
// Context helpers: inject the caller into context for GetCtx.
// ---------------------------------------------------------------------------

func userCtx(userID uuid.UUID) context.Context {
	return context.WithValue(context.Background(), middleware.ContextKeyUserID, userID)
}

// ---------------------------------------------------------------------------
// Mock DataStore
// ---------------------------------------------------------------------------

type mockDataStore struct {
	boards  domain.BoardRepository
	columns domain.ColumnRepository
	cards   domain.CardRepository
}

func (m *mockDataStore) Boards() domain.BoardRepository   { return m.boards }
func (m *mockDataStore) Columns() domain.ColumnRepository { return m.columns }
func (m *mockDataStore) Cards() domain.CardRepository     { return m.cards }

// ---------------------------------------------------------------------------
// Mock BoardRepository
// ---------------------------------------------------------------------------

type mockBoardRepo struct {
	getByIDFunc       func(ctx context.Context, id uuid.UUID) (*domain.Board, error)
	getMemberRoleFunc func(ctx context.Context, boardID, userID uuid.UUID) (domain.Role, error)
}

func (m *mockBoardRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Board, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockBoardRepo) GetMemberRole(ctx context.Context, boardID, userID uuid.UUID) (domain.Role, error) {
	return m.getMemberRoleFunc(ctx, boardID, userID)
}

// ---------------------------------------------------------------------------
// Mock ColumnRepository
// ---------------------------------------------------------------------------

type mockColumnRepo struct {
	listByBoardFunc func(ctx context.Context, boardID uuid.UUID) ([]*domain.Column, error)
}

func (m *mockColumnRepo) ListByBoard(ctx context.Context, boardID uuid.UUID) ([]*domain.Column, error) {
	return m.listByBoardFunc(ctx, boardID)
}

// Stub methods, not exercised by the read endpoints.

func (m *mockColumnRepo) Create(context.Context, *domain.Column) error { panic("not implemented") }
func (m *mockColumnRepo) GetByID(context.Context, uuid.UUID) (*domain.Column, error) {
	panic("not implemented")
}
func (m *mockColumnRepo) Update(context.Context, uuid.UUID, domain.ColumnPatch) (*domain.Column, error) {
	panic("not implemented")
}
func (m *mockColumnRepo) Reorder(context.Context, []domain.PositionUpdate) error {
	panic("not implemented")
}
func (m *mockColumnRepo) Delete(context.Context, uuid.UUID, []domain.PositionUpdate) error {
	panic("not implemented")
}

// ---------------------------------------------------------------------------
// Mock CardRepository
// ---------------------------------------------------------------------------

type mockCardRepo struct {
	listByBoardFunc func(ctx context.Context, boardID uuid.UUID) ([]*domain.Card, error)
}

func (m *mockCardRepo) ListByBoard(ctx context.Context, boardID uuid.UUID) ([]*domain.Card, error) {
	return m.listByBoardFunc(ctx, boardID)
}

func (m *mockCardRepo) Create(context.Context, *domain.Card) error { panic("not implemented") }
func (m *mockCardRepo) GetByID(context.Context, uuid.UUID) (*domain.Card, error) {
	panic("not implemented")
}
func (m *mockCardRepo) ListByColumn(context.Context, uuid.UUID) ([]*domain.Card, error) {
	panic("not implemented")
}
func (m *mockCardRepo) Update(context.Context, uuid.UUID, domain.CardPatch) (*domain.Card, error) {
	panic("not implemented")
}
func (m *mockCardRepo) Reorder(context.Context, []domain.PositionUpdate) error {
	panic("not implemented")
}
func (m *mockCardRepo) Delete(context.Context, uuid.UUID, []domain.PositionUpdate) error {
	panic("not implemented")
}

// ---------------------------------------------------------------------------
// Mock Authorizer and PresenceSource
// ---------------------------------------------------------------------------

type mockGuard struct {
	authorizeFunc func(ctx context.Context, userID, boardID uuid.UUID, op permission.Operation) error
}

func (m *mockGuard) Authorize(ctx context.Context, userID, boardID uuid.UUID, op permission.Operation) error {
	return m.authorizeFunc(ctx, userID, boardID, op)
}

func allowGuard() *mockGuard {
	return &mockGuard{
		authorizeFunc: func(context.Context, uuid.UUID, uuid.UUID, permission.Operation) error { return nil },
	}
}

type mockPresence struct {
	members map[uuid.UUID][]domain.Identity
}

func (m *mockPresence) MembersOf(boardID uuid.UUID) []domain.Identity {
	if ids, ok := m.members[boardID]; ok {
		return ids
	}
	return []domain.Identity{}
}
