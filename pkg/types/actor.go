package types

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/salesdesk-backend/pkg/enums"
)

// Actor is the user on whose behalf an operation runs.
type Actor struct {
	UserID uuid.UUID
	Role   enums.ActorRole
}

// Valid reports whether the actor carries an identity and a known role.
func (a Actor) Valid() bool {
	return a.UserID != uuid.Nil && a.Role.IsValid()
}

// UserRef returns a pointer to the user id, or nil for the zero actor.
func (a Actor) UserRef() *uuid.UUID {
	if a.UserID == uuid.Nil {
		return nil
	}
	id := a.UserID
	return &id
}
