package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MaxDescriptionLength bounds card descriptions.
const MaxDescriptionLength = 10000

type Card struct {
	ID          uuid.UUID `json:"id"`
	BoardID     uuid.UUID `json:"board_id"`
	ColumnID    uuid.UUID `json:"column_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Position    int       `json:"position"`
	Revision    int64     `json:"revision"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewCard creates a Card with validated fields. Position is assigned by the caller.
func NewCard(boardID, columnID uuid.UUID, title, description string) (*Card, error) {
	if boardID == uuid.Nil || columnID == uuid.Nil {
		return nil, fmt.Errorf("card: board and column IDs are required: %w", ErrBadRequest)
	}
	title, err := normalizeTitle("card", title)
	if err != nil {
		return nil, err
	}
	if len(description) > MaxDescriptionLength {
		return nil, fmt.Errorf("card: description exceeds %d bytes: %w", MaxDescriptionLength, ErrBadRequest)
	}
	now := time.Now()
	return &Card{
		ID:          uuid.New(),
		BoardID:     boardID,
		ColumnID:    columnID,
		Title:       title,
		Description: description,
		Revision:    1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// CardPatch carries the card fields an update changes. Nil fields are left alone.
type CardPatch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

func (p CardPatch) Validate() error {
	if p.Title == nil && p.Description == nil {
		return fmt.Errorf("card: patch changes nothing: %w", ErrBadRequest)
	}
	if p.Title != nil {
		title, err := normalizeTitle("card", *p.Title)
		if err != nil {
			return err
		}
		*p.Title = title
	}
	if p.Description != nil && len(*p.Description) > MaxDescriptionLength {
		return fmt.Errorf("card: description exceeds %d bytes: %w", MaxDescriptionLength, ErrBadRequest)
	}
	return nil
}

// Changes returns the patched fields keyed by their wire names.
func (p CardPatch) Changes() map[string]any {
	changes := make(map[string]any, 2)
	if p.Title != nil {
		changes["title"] = *p.Title
	}
	if p.Description != nil {
		changes["description"] = *p.Description
	}
	return changes
}

type CardRepository interface {
	Create(ctx context.Context, c *Card) error
	GetByID(ctx context.Context, id uuid.UUID) (*Card, error)
	// ListByColumn returns the column's cards ordered by position.
	ListByColumn(ctx context.Context, columnID uuid.UUID) ([]*Card, error)
	// ListByBoard returns every card on the board ordered by column then position.
	ListByBoard(ctx context.Context, boardID uuid.UUID) ([]*Card, error)
	Update(ctx context.Context, id uuid.UUID, patch CardPatch) (*Card, error)
	// Reorder applies every update atomically. ParentID is the card's column.
	Reorder(ctx context.Context, updates []PositionUpdate) error
	// Delete removes the card and applies renumber in the same transaction.
	Delete(ctx context.Context, id uuid.UUID, renumber []PositionUpdate) error
}
