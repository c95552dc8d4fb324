package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/plank/internal/domain"
)

// Client intent types.
const (
	TypeRoomJoin     = "room.join"
	TypeRoomLeave    = "room.leave"
	TypeCardCreate   = "card.create"
	TypeCardMove     = "card.move"
	TypeCardUpdate   = "card.update"
	TypeCardDelete   = "card.delete"
	TypeColumnCreate = "column.create"
	TypeColumnUpdate = "column.update"
	TypeColumnMove   = "column.move"
	TypeColumnDelete = "column.delete"
)

// Server event types.
const (
	EventMemberJoined  = "member.joined"
	EventMemberLeft    = "member.left"
	EventRoomJoined    = "room.joined"
	EventCardCreated   = "card.created"
	EventCardUpdated   = "card.updated"
	EventCardMoved     = "card.moved"
	EventCardDeleted   = "card.deleted"
	EventColumnCreated = "column.created"
	EventColumnUpdated = "column.updated"
	EventColumnMoved   = "column.moved"
	EventColumnDeleted = "column.deleted"
	EventBoardResync   = "board.resync"
	EventError         = "error"
)

// Frame is an inbound client message.
type Frame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// Envelope is an outbound server message. Seq strictly increases and TS never
// decreases across every envelope this server emits.
type Envelope struct {
	Type      string    `json:"type"`
	RequestID string    `json:"request_id,omitempty"`
	BoardID   string    `json:"board_id,omitempty"`
	ActorID   string    `json:"actor_id,omitempty"`
	Seq       uint64    `json:"seq"`
	TS        time.Time `json:"ts"`
	Payload   any       `json:"payload"`
}

// Payloads of server events.
type (
	MemberPayload struct {
		UserID   uuid.UUID `json:"user_id"`
		Username string    `json:"username"`
	}

	RoomJoinedPayload struct {
		BoardID uuid.UUID       `json:"board_id"`
		Members []MemberPayload `json:"members"`
	}

	PositionPayload struct {
		ID       uuid.UUID `json:"id"`
		Parent   uuid.UUID `json:"parent"`
		Position int       `json:"position"`
	}

	UpdatedPayload struct {
		ID       uuid.UUID      `json:"id"`
		Revision int64          `json:"revision"`
		Changes  map[string]any `json:"changes"`
	}

	MovedPayload struct {
		ID        uuid.UUID         `json:"id"`
		From      uuid.UUID         `json:"from"`
		To        uuid.UUID         `json:"to"`
		Position  int               `json:"position"`
		MovedBy   uuid.UUID         `json:"moved_by"`
		Positions []PositionPayload `json:"positions"`
	}

	DeletedPayload struct {
		ID        uuid.UUID         `json:"id"`
		Parent    uuid.UUID         `json:"parent"`
		Positions []PositionPayload `json:"positions"`
	}

	// ResyncPayload tells clients that board events may have been lost and
	// the board snapshot must be reloaded.
	ResyncPayload struct {
		BoardID uuid.UUID `json:"board_id"`
	}

	ErrorPayload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
)

// Intent is a decoded and validated client request.
type Intent interface {
	Type() string
	validate() error
}

type JoinRoom struct {
	BoardID uuid.UUID `json:"board_id"`
}

type LeaveRoom struct {
	BoardID uuid.UUID `json:"board_id"`
}

type CreateCard struct {
	BoardID     uuid.UUID `json:"board_id"`
	ColumnID    uuid.UUID `json:"column_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
}

type MoveCard struct {
	CardID         uuid.UUID `json:"card_id"`
	TargetColumnID uuid.UUID `json:"target_column_id"`
	TargetPosition *int      `json:"target_position"`
}

type UpdateCard struct {
	CardID uuid.UUID        `json:"card_id"`
	Patch  domain.CardPatch `json:"patch"`
}

type DeleteCard struct {
	CardID uuid.UUID `json:"card_id"`
}

type CreateColumn struct {
	BoardID uuid.UUID `json:"board_id"`
	Title   string    `json:"title"`
}

type UpdateColumn struct {
	ColumnID uuid.UUID          `json:"column_id"`
	Patch    domain.ColumnPatch `json:"patch"`
}

type MoveColumn struct {
	ColumnID       uuid.UUID `json:"column_id"`
	TargetPosition *int      `json:"target_position"`
}

type DeleteColumn struct {
	ColumnID uuid.UUID `json:"column_id"`
}

func (*JoinRoom) Type() string     { return TypeRoomJoin }
func (*LeaveRoom) Type() string    { return TypeRoomLeave }
func (*CreateCard) Type() string   { return TypeCardCreate }
func (*MoveCard) Type() string     { return TypeCardMove }
func (*UpdateCard) Type() string   { return TypeCardUpdate }
func (*DeleteCard) Type() string   { return TypeCardDelete }
func (*CreateColumn) Type() string { return TypeColumnCreate }
func (*UpdateColumn) Type() string { return TypeColumnUpdate }
func (*MoveColumn) Type() string   { return TypeColumnMove }
func (*DeleteColumn) Type() string { return TypeColumnDelete }

func (i *JoinRoom) validate() error  { return requireID("board_id", i.BoardID) }
func (i *LeaveRoom) validate() error { return requireID("board_id", i.BoardID) }

func (i *CreateCard) validate() error {
	if err := requireID("board_id", i.BoardID); err != nil {
		return err
	}
	if err := requireID("column_id", i.ColumnID); err != nil {
		return err
	}
	_, err := domain.NewCard(i.BoardID, i.ColumnID, i.Title, i.Description)
	return err
}

func (i *MoveCard) validate() error {
	if err := requireID("card_id", i.CardID); err != nil {
		return err
	}
	if err := requireID("target_column_id", i.TargetColumnID); err != nil {
		return err
	}
	return requireTarget(i.TargetPosition)
}

func (i *UpdateCard) validate() error {
	if err := requireID("card_id", i.CardID); err != nil {
		return err
	}
	return i.Patch.Validate()
}

func (i *DeleteCard) validate() error { return requireID("card_id", i.CardID) }

func (i *CreateColumn) validate() error {
	if err := requireID("board_id", i.BoardID); err != nil {
		return err
	}
	_, err := domain.NewColumn(i.BoardID, i.Title)
	return err
}

func (i *UpdateColumn) validate() error {
	if err := requireID("column_id", i.ColumnID); err != nil {
		return err
	}
	return i.Patch.Validate()
}

func (i *MoveColumn) validate() error {
	if err := requireID("column_id", i.ColumnID); err != nil {
		return err
	}
	return requireTarget(i.TargetPosition)
}

func (i *DeleteColumn) validate() error { return requireID("column_id", i.ColumnID) }

func requireID(field string, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("%s is required: %w", field, domain.ErrBadRequest)
	}
	return nil
}

// requireTarget rejects a missing position as malformed and a negative one as
// an impossible target. Positions past the end are clamped later.
func requireTarget(p *int) error {
	if p == nil {
		return fmt.Errorf("target_position is required: %w", domain.ErrBadRequest)
	}
	if *p < 0 {
		return fmt.Errorf("target_position %d is negative: %w", *p, domain.ErrInvalidTarget)
	}
	return nil
}

// DecodeFrame parses one inbound message.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("realtime.DecodeFrame: malformed frame: %w", domain.ErrBadRequest)
	}
	if f.Type == "" {
		return Frame{}, fmt.Errorf("realtime.DecodeFrame: type is required: %w", domain.ErrBadRequest)
	}
	return f, nil
}

// DecodeIntent turns a frame into a validated Intent.
func DecodeIntent(f Frame) (Intent, error) {
	var in Intent
	switch f.Type {
	case TypeRoomJoin:
		in = &JoinRoom{}
	case TypeRoomLeave:
		in = &LeaveRoom{}
	case TypeCardCreate:
		in = &CreateCard{}
	case TypeCardMove:
		in = &MoveCard{}
	case TypeCardUpdate:
		in = &UpdateCard{}
	case TypeCardDelete:
		in = &DeleteCard{}
	case TypeColumnCreate:
		in = &CreateColumn{}
	case TypeColumnUpdate:
		in = &UpdateColumn{}
	case TypeColumnMove:
		in = &MoveColumn{}
	case TypeColumnDelete:
		in = &DeleteColumn{}
	default:
		return nil, fmt.Errorf("realtime.DecodeIntent: unknown type %q: %w", f.Type, domain.ErrBadRequest)
	}

	if len(f.Payload) == 0 || string(f.Payload) == "null" {
		return nil, fmt.Errorf("realtime.DecodeIntent: %s: payload is required: %w", f.Type, domain.ErrBadRequest)
	}
	if err := json.Unmarshal(f.Payload, in); err != nil {
		return nil, fmt.Errorf("realtime.DecodeIntent: %s: malformed payload: %w", f.Type, domain.ErrBadRequest)
	}
	if err := in.validate(); err != nil {
		return nil, fmt.Errorf("realtime.DecodeIntent: %s: %w", f.Type, err)
	}

	return in, nil
}
