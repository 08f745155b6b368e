package memory

import (
	"context"
	"strings"
	"sync"

	domainuser "messenger/internal/domain/user"
)

// UserDirectory is an in-memory read model over user display fields,
// seeded from fixtures or tests. The messaging core never writes through
// the Reader interface; Put exists for seeding only.
type UserDirectory struct {
	mu   sync.RWMutex
	byID map[domainuser.ID]*domainuser.User
}

func NewUserDirectory() *UserDirectory {
	return &UserDirectory{byID: make(map[domainuser.ID]*domainuser.User)}
}

// Put seeds or replaces a directory entry.
func (d *UserDirectory) Put(u domainuser.User) {
	id := domainuser.ID(strings.TrimSpace(string(u.ID)))
	if id == "" {
		return
	}
	u.ID = id
	d.mu.Lock()
	d.byID[id] = &u
	d.mu.Unlock()
}

func (d *UserDirectory) ByID(ctx context.Context, id domainuser.ID) (*domainuser.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if u, ok := d.byID[id]; ok {
		clone := *u
		return &clone, nil
	}
	return nil, domainuser.ErrNotFound
}

func (d *UserDirectory) ByIDs(ctx context.Context, ids []domainuser.ID) ([]*domainuser.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	users := make([]*domainuser.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := d.byID[id]; ok {
			clone := *u
			users = append(users, &clone)
		}
	}
	return users, nil
}

var _ domainuser.Reader = (*UserDirectory)(nil)
