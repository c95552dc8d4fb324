package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxTitleLength bounds card and column titles.
const MaxTitleLength = 500

type Column struct {
	ID        uuid.UUID `json:"id"`
	BoardID   uuid.UUID `json:"board_id"`
	Title     string    `json:"title"`
	Position  int       `json:"position"`
	Revision  int64     `json:"revision"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewColumn creates a Column with a validated title. Position is assigned by the caller.
func NewColumn(boardID uuid.UUID, title string) (*Column, error) {
	if boardID == uuid.Nil {
		return nil, fmt.Errorf("column: board ID is required: %w", ErrBadRequest)
	}
	title, err := normalizeTitle("column", title)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &Column{
		ID:        uuid.New(),
		BoardID:   boardID,
		Title:     title,
		Revision:  1,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ColumnPatch carries the column fields an update changes. Nil fields are left alone.
type ColumnPatch struct {
	Title *string `json:"title,omitempty"`
}

func (p ColumnPatch) Validate() error {
	if p.Title == nil {
		return fmt.Errorf("column: patch changes nothing: %w", ErrBadRequest)
	}
	title, err := normalizeTitle("column", *p.Title)
	if err != nil {
		return err
	}
	*p.Title = title
	return nil
}

// Changes returns the patched fields keyed by their wire names.
func (p ColumnPatch) Changes() map[string]any {
	changes := make(map[string]any, 1)
	if p.Title != nil {
		changes["title"] = *p.Title
	}
	return changes
}

type ColumnRepository interface {
	Create(ctx context.Context, c *Column) error
	GetByID(ctx context.Context, id uuid.UUID) (*Column, error)
	// ListByBoard returns the board's columns ordered by position.
	ListByBoard(ctx context.Context, boardID uuid.UUID) ([]*Column, error)
	Update(ctx context.Context, id uuid.UUID, patch ColumnPatch) (*Column, error)
	// Reorder applies every update atomically.
	Reorder(ctx context.Context, updates []PositionUpdate) error
	// Delete removes the column with its cards and applies renumber in the same transaction.
	Delete(ctx context.Context, id uuid.UUID, renumber []PositionUpdate) error
}

func normalizeTitle(kind, title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", fmt.Errorf("%s: title is required: %w", kind, ErrBadRequest)
	}
	if len(title) > MaxTitleLength {
		return "", fmt.Errorf("%s: title exceeds %d bytes: %w", kind, MaxTitleLength, ErrBadRequest)
	}
	return title, nil
}
