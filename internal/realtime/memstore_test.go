package realtime_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/plank/internal/domain"
)

// ---------------------------------------------------------------------------
// In-memory DataStore with the same positional semantics as the SQL store
// ---------------------------------------------------------------------------

type memStore struct {
	mu      sync.Mutex
	boards  map[uuid.UUID]*domain.Board
	roles   map[uuid.UUID]map[uuid.UUID]domain.Role
	columns map[uuid.UUID]*domain.Column
	cards   map[uuid.UUID]*domain.Card
	err     error

	beforeReorder func()
}

func newMemStore() *memStore {
	return &memStore{
		boards:  make(map[uuid.UUID]*domain.Board),
		roles:   make(map[uuid.UUID]map[uuid.UUID]domain.Role),
		columns: make(map[uuid.UUID]*domain.Column),
		cards:   make(map[uuid.UUID]*domain.Card),
	}
}

func (s *memStore) Boards() domain.BoardRepository   { return (*memBoards)(s) }
func (s *memStore) Columns() domain.ColumnRepository { return (*memColumns)(s) }
func (s *memStore) Cards() domain.CardRepository     { return (*memCards)(s) }

// fail makes every subsequent repository call return err.
func (s *memStore) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// onCardReorder runs fn at the start of every card reorder, before the
// store's lock is taken.
func (s *memStore) onCardReorder(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beforeReorder = fn
}

func (s *memStore) addBoard(title string) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := &domain.Board{ID: uuid.New(), Title: title, CreatedAt: time.Now()}
	s.boards[b.ID] = b
	s.roles[b.ID] = make(map[uuid.UUID]domain.Role)
	return b.ID
}

func (s *memStore) grant(boardID, userID uuid.UUID, role domain.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[boardID][userID] = role
}

func (s *memStore) addColumn(t *testing.T, boardID uuid.UUID, title string) uuid.UUID {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()

	col, err := domain.NewColumn(boardID, title)
	require.NoError(t, err)
	col.Position = len(s.columnsOf(boardID))
	s.columns[col.ID] = col
	return col.ID
}

func (s *memStore) addCard(t *testing.T, columnID uuid.UUID, title string) uuid.UUID {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()

	col := s.columns[columnID]
	require.NotNil(t, col)
	card, err := domain.NewCard(col.BoardID, columnID, title, "")
	require.NoError(t, err)
	card.Position = len(s.cardsOf(columnID))
	s.cards[card.ID] = card
	return card.ID
}

// cardTitles returns the column's card titles in position order.
func (s *memStore) cardTitles(columnID uuid.UUID) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	cards := s.cardsOf(columnID)
	titles := make([]string, len(cards))
	for i, c := range cards {
		titles[i] = c.Title
	}
	return titles
}

func (s *memStore) columnTitles(boardID uuid.UUID) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	cols := s.columnsOf(boardID)
	titles := make([]string, len(cols))
	for i, c := range cols {
		titles[i] = c.Title
	}
	return titles
}

// placement maps every card and column to its parent and position.
func (s *memStore) placement() map[uuid.UUID]placed {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[uuid.UUID]placed, len(s.cards)+len(s.columns))
	for _, c := range s.cards {
		out[c.ID] = placed{Parent: c.ColumnID, Position: c.Position}
	}
	for _, c := range s.columns {
		out[c.ID] = placed{Parent: c.BoardID, Position: c.Position}
	}
	return out
}

// requireDense asserts every sibling group holds positions 0..n-1.
func (s *memStore) requireDense(t *testing.T) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()

	for boardID := range s.boards {
		for i, col := range s.columnsOf(boardID) {
			require.Equal(t, i, col.Position, "column %q", col.Title)
			for j, card := range s.cardsOf(col.ID) {
				require.Equal(t, j, card.Position, "card %q", card.Title)
			}
		}
	}
}

func (s *memStore) columnsOf(boardID uuid.UUID) []*domain.Column {
	var out []*domain.Column
	for _, c := range s.columns {
		if c.BoardID == boardID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

func (s *memStore) cardsOf(columnID uuid.UUID) []*domain.Card {
	var out []*domain.Card
	for _, c := range s.cards {
		if c.ColumnID == columnID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

type placed struct {
	Parent   uuid.UUID
	Position int
}

// ---------------------------------------------------------------------------
// BoardRepository
// ---------------------------------------------------------------------------

type memBoards memStore

func (m *memBoards) GetByID(_ context.Context, id uuid.UUID) (*domain.Board, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	b, ok := m.boards[id]
	if !ok {
		return nil, fmt.Errorf("memBoards.GetByID: %w", domain.ErrNotFound)
	}
	cp := *b
	return &cp, nil
}

func (m *memBoards) GetMemberRole(_ context.Context, boardID, userID uuid.UUID) (domain.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return "", m.err
	}
	role, ok := m.roles[boardID][userID]
	if !ok {
		return "", fmt.Errorf("memBoards.GetMemberRole: %w", domain.ErrNotFound)
	}
	return role, nil
}

// ---------------------------------------------------------------------------
// ColumnRepository
// ---------------------------------------------------------------------------

type memColumns memStore

func (m *memColumns) Create(_ context.Context, c *domain.Column) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	cp := *c
	m.columns[c.ID] = &cp
	return nil
}

func (m *memColumns) GetByID(_ context.Context, id uuid.UUID) (*domain.Column, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.columns[id]
	if !ok {
		return nil, fmt.Errorf("memColumns.GetByID: %w", domain.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (m *memColumns) ListByBoard(_ context.Context, boardID uuid.UUID) ([]*domain.Column, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	var out []*domain.Column
	for _, c := range (*memStore)(m).columnsOf(boardID) {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memColumns) Update(_ context.Context, id uuid.UUID, patch domain.ColumnPatch) (*domain.Column, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.columns[id]
	if !ok {
		return nil, fmt.Errorf("memColumns.Update: %w", domain.ErrNotFound)
	}
	if patch.Title != nil {
		c.Title = *patch.Title
	}
	c.Revision++
	c.UpdatedAt = time.Now()
	cp := *c
	return &cp, nil
}

func (m *memColumns) Reorder(_ context.Context, updates []domain.PositionUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	for _, u := range updates {
		if _, ok := m.columns[u.ID]; !ok {
			return fmt.Errorf("memColumns.Reorder: %w", domain.ErrNotFound)
		}
	}
	for _, u := range updates {
		m.columns[u.ID].Position = u.Position
	}
	return nil
}

func (m *memColumns) Delete(_ context.Context, id uuid.UUID, renumber []domain.PositionUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	if _, ok := m.columns[id]; !ok {
		return fmt.Errorf("memColumns.Delete: %w", domain.ErrNotFound)
	}
	delete(m.columns, id)
	for cid, c := range m.cards {
		if c.ColumnID == id {
			delete(m.cards, cid)
		}
	}
	for _, u := range renumber {
		if c, ok := m.columns[u.ID]; ok {
			c.Position = u.Position
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// CardRepository
// ---------------------------------------------------------------------------

type memCards memStore

func (m *memCards) Create(_ context.Context, c *domain.Card) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	cp := *c
	m.cards[c.ID] = &cp
	return nil
}

func (m *memCards) GetByID(_ context.Context, id uuid.UUID) (*domain.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.cards[id]
	if !ok {
		return nil, fmt.Errorf("memCards.GetByID: %w", domain.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (m *memCards) ListByColumn(_ context.Context, columnID uuid.UUID) ([]*domain.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	var out []*domain.Card
	for _, c := range (*memStore)(m).cardsOf(columnID) {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memCards) ListByBoard(_ context.Context, boardID uuid.UUID) ([]*domain.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	var out []*domain.Card
	for _, col := range (*memStore)(m).columnsOf(boardID) {
		for _, c := range (*memStore)(m).cardsOf(col.ID) {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memCards) Update(_ context.Context, id uuid.UUID, patch domain.CardPatch) (*domain.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.cards[id]
	if !ok {
		return nil, fmt.Errorf("memCards.Update: %w", domain.ErrNotFound)
	}
	if patch.Title != nil {
		c.Title = *patch.Title
	}
	if patch.Description != nil {
		c.Description = *patch.Description
	}
	c.Revision++
	c.UpdatedAt = time.Now()
	cp := *c
	return &cp, nil
}

func (m *memCards) Reorder(_ context.Context, updates []domain.PositionUpdate) error {
	m.mu.Lock()
	hook := m.beforeReorder
	m.mu.Unlock()
	if hook != nil {
		hook()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	for _, u := range updates {
		if _, ok := m.cards[u.ID]; !ok {
			return fmt.Errorf("memCards.Reorder: %w", domain.ErrNotFound)
		}
	}
	for _, u := range updates {
		m.cards[u.ID].ColumnID = u.ParentID
		m.cards[u.ID].Position = u.Position
	}
	return nil
}

func (m *memCards) Delete(_ context.Context, id uuid.UUID, renumber []domain.PositionUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	if _, ok := m.cards[id]; !ok {
		return fmt.Errorf("memCards.Delete: %w", domain.ErrNotFound)
	}
	delete(m.cards, id)
	for _, u := range renumber {
		if c, ok := m.cards[u.ID]; ok {
			c.Position = u.Position
		}
	}
	return nil
}
