package user

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("user: not found")

type ID string

// User carries the display fields the messaging layer is allowed to read.
// Accounts are owned by the identity collaborator; this package never
// mutates them.
type User struct {
	ID        ID
	Name      string
	Verified  bool
	AvatarURL string
}

// Reader is the read-only view over the user directory.
type Reader interface {
	ByID(ctx context.Context, id ID) (*User, error)
	ByIDs(ctx context.Context, ids []ID) ([]*User, error)
}
