package realtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/plank/internal/domain"
	"github.com/gosuda/plank/internal/permission"
)

// joinRoom moves conn into the board's room. Joining the current room only
// re-sends the member list.
func (r *Router) joinRoom(ctx context.Context, conn *Conn, requestID string, in *JoinRoom) error {
	if err := r.authorize(ctx, conn, in.BoardID, permission.ActionRead, domain.EntityBoard); err != nil {
		return err
	}

	if current, ok := r.registry.RoomOf(conn.ID); ok && current != in.BoardID {
		r.leave(conn.ID, current)
	}

	return r.serial.Do(in.BoardID, func() error {
		res, err := r.registry.Join(conn.ID, in.BoardID)
		if err != nil {
			if errors.Is(err, ErrUnknownConn) {
				return fmt.Errorf("realtime.Router.joinRoom: %w: %w", domain.ErrUnavailable, err)
			}
			return err
		}
		if res.Left != nil && res.Left.LastForUser {
			// A concurrent join slipped in between; announce the departure late.
			r.announceLeft(*res.Left)
		}
		if res.FirstForUser {
			r.emit(in.BoardID, nil, "", EventMemberJoined, memberPayload(conn.Identity))
		}

		r.reply(conn, requestID, in.BoardID, EventRoomJoined, RoomJoinedPayload{
			BoardID: in.BoardID,
			Members: membersPayload(r.registry.MembersOf(in.BoardID)),
		})
		return nil
	})
}

// leaveRoom ignores a board the connection is not in.
func (r *Router) leaveRoom(conn *Conn, in *LeaveRoom) error {
	if current, ok := r.registry.RoomOf(conn.ID); ok && current == in.BoardID {
		r.leave(conn.ID, current)
	}
	return nil
}

func (r *Router) leave(connID string, boardID uuid.UUID) {
	_ = r.serial.Do(boardID, func() error {
		if current, ok := r.registry.RoomOf(connID); !ok || current != boardID {
			return nil
		}
		res, ok := r.registry.Leave(connID)
		if ok && res.LastForUser {
			r.announceLeft(res)
		}
		return nil
	})
}

// Drop unregisters a connection and announces its departure when it was the
// user's last connection in the room. Calling Drop twice is harmless.
func (r *Router) Drop(connID string) {
	boardID, inRoom := r.registry.RoomOf(connID)
	if !inRoom {
		r.registry.Remove(connID)
		return
	}

	_ = r.serial.Do(boardID, func() error {
		res, left := r.registry.Remove(connID)
		if left && res.LastForUser {
			r.announceLeft(res)
		}
		return nil
	})

	log.Debug().Str("conn_id", connID).Str("board_id", boardID.String()).Msg("connection dropped")
}

// announceLeft tells the room that the user's last connection is gone.
func (r *Router) announceLeft(res LeaveResult) {
	r.emit(res.BoardID, nil, "", EventMemberLeft, memberPayload(res.Identity))
}

func memberPayload(id domain.Identity) MemberPayload {
	return MemberPayload{UserID: id.UserID, Username: id.Username}
}

func membersPayload(ids []domain.Identity) []MemberPayload {
	out := make([]MemberPayload, len(ids))
	for i, id := range ids {
		out[i] = memberPayload(id)
	}
	return out
}
