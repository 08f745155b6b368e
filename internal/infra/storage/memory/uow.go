package memory

import (
	"context"
	"errors"

	"messenger/internal/app/uow"
	domainchat "messenger/internal/domain/chat"
	domainuser "messenger/internal/domain/user"
)

// ErrFactoryMisconfigured indicates missing repositories.
var ErrFactoryMisconfigured = errors.New("memory: unit of work factory misconfigured")

// Factory wires the in-memory repositories into a unit-of-work boundary.
type Factory struct {
	ConversationRepo *ConversationRepository
	MessageRepo      *MessageRepository
	UserReader       domainuser.Reader
}

// Begin starts a lightweight transaction boundary. No isolation is
// provided but the abstraction matches the application ports.
func (f Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.ConversationRepo == nil || f.MessageRepo == nil || f.UserReader == nil {
		return nil, ErrFactoryMisconfigured
	}
	return &Unit{
		conversations: f.ConversationRepo,
		messages:      f.MessageRepo,
		users:         f.UserReader,
	}, nil
}

// Unit is a uow.UnitOfWork backed by the in-memory stores.
type Unit struct {
	conversations *ConversationRepository
	messages      *MessageRepository
	users         domainuser.Reader
}

func (u *Unit) Conversations() domainchat.ConversationRepository {
	return u.conversations
}

func (u *Unit) Messages() domainchat.MessageRepository {
	return u.messages
}

func (u *Unit) Users() domainuser.Reader {
	return u.users
}

func (u *Unit) Commit(ctx context.Context) error {
	return nil
}

func (u *Unit) Rollback(ctx context.Context) error {
	return nil
}

var _ uow.Factory = Factory{}
