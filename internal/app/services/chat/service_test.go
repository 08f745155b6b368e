package chat_test

import (
	"sync"
	"time"

	chatservice "messenger/internal/app/services/chat"
	domainuser "messenger/internal/domain/user"
	"messenger/internal/infra/storage/memory"
)

// testClock is a hand-advanced clock so edit windows and read timestamps
// are deterministic.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	clock         *testClock
	users         *memory.UserDirectory
	conversations *chatservice.ConversationService
	messages      *chatservice.MessageService
	readState     *chatservice.ReadStateService
}

func newTestEnv() *testEnv {
	clock := newTestClock()
	users := memory.NewUserDirectory()
	users.Put(domainuser.User{ID: "adam", Name: "Adam", Verified: true})
	users.Put(domainuser.User{ID: "zoe", Name: "Zoe"})
	users.Put(domainuser.User{ID: "mallory", Name: "Mallory"})

	factory := memory.Factory{
		ConversationRepo: memory.NewConversationRepository(),
		MessageRepo:      memory.NewMessageRepository(),
		UserReader:       users,
	}
	return &testEnv{
		clock:         clock,
		users:         users,
		conversations: &chatservice.ConversationService{UoW: factory, Now: clock.Now},
		messages:      &chatservice.MessageService{UoW: factory, Now: clock.Now},
		readState:     &chatservice.ReadStateService{UoW: factory, Now: clock.Now},
	}
}
