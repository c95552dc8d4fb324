package domain

import "github.com/google/uuid"

// Identity is the verified user behind a connection or request.
type Identity struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
}
