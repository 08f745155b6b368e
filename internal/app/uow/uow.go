package uow

import (
	"context"

	domainchat "messenger/internal/domain/chat"
	domainuser "messenger/internal/domain/user"
)

// UnitOfWork coordinates the chat repositories inside one transaction
// boundary. Any operation touching both a message and its conversation's
// cache fields must run through a single unit.
type UnitOfWork interface {
	Conversations() domainchat.ConversationRepository
	Messages() domainchat.MessageRepository
	Users() domainuser.Reader

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Factory starts unit of work instances.
type Factory interface {
	Begin(ctx context.Context, opts TxOptions) (UnitOfWork, error)
}

// TxOptions configure transaction boundaries.
type TxOptions struct {
	ReadOnly bool
}

// ContextInjector is implemented by units that must thread transaction
// state through context (e.g. Mongo session contexts).
type ContextInjector interface {
	InjectContext(ctx context.Context) context.Context
}

// WithUnitContext binds the unit's transaction to ctx when the backend
// needs it; otherwise ctx is returned unchanged.
func WithUnitContext(ctx context.Context, unit UnitOfWork) context.Context {
	if injector, ok := unit.(ContextInjector); ok {
		return injector.InjectContext(ctx)
	}
	return ctx
}
