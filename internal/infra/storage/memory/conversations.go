package memory

import (
	"context"
	"sort"
	"sync"

	domainchat "messenger/internal/domain/chat"
	domainuser "messenger/internal/domain/user"
)

// ConversationRepository stores conversations in memory. Used in dev mode
// and as the test backend.
type ConversationRepository struct {
	mu     sync.RWMutex
	byID   map[domainchat.ConversationID]*domainchat.Conversation
	byPair map[string]domainchat.ConversationID
}

func NewConversationRepository() *ConversationRepository {
	return &ConversationRepository{
		byID:   make(map[domainchat.ConversationID]*domainchat.Conversation),
		byPair: make(map[string]domainchat.ConversationID),
	}
}

func (r *ConversationRepository) ByID(ctx context.Context, id domainchat.ConversationID) (*domainchat.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conversation, ok := r.byID[id]
	if !ok {
		return nil, domainchat.ErrConversationNotFound
	}
	return cloneConversation(conversation), nil
}

func (r *ConversationRepository) ByPair(ctx context.Context, a, b domainuser.ID) (*domainchat.Conversation, error) {
	first, second, err := domainchat.NormalizePair(a, b)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byPair[pairKey(first, second)]
	if !ok {
		return nil, domainchat.ErrConversationNotFound
	}
	return cloneConversation(r.byID[id]), nil
}

func (r *ConversationRepository) Save(ctx context.Context, conversation *domainchat.Conversation) error {
	if conversation == nil || conversation.ID == "" {
		return domainchat.ErrConversationNotFound
	}
	key := pairKey(conversation.UserA, conversation.UserB)
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byPair[key]; ok && existing != conversation.ID {
		return domainchat.ErrPairTaken
	}
	r.byPair[key] = conversation.ID
	r.byID[conversation.ID] = cloneConversation(conversation)
	return nil
}

func (r *ConversationRepository) ListForUser(ctx context.Context, userID domainuser.ID, page, limit int) ([]*domainchat.Conversation, error) {
	r.mu.RLock()
	matches := make([]*domainchat.Conversation, 0)
	for _, conversation := range r.byID {
		if conversation.HasParticipant(userID) {
			matches = append(matches, cloneConversation(conversation))
		}
	}
	r.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].UpdatedAt.After(matches[j].UpdatedAt)
	})
	if limit <= 0 {
		return matches, nil
	}
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * limit
	if start >= len(matches) {
		return []*domainchat.Conversation{}, nil
	}
	end := start + limit
	if end > len(matches) {
		end = len(matches)
	}
	return matches[start:end], nil
}

func (r *ConversationRepository) Delete(ctx context.Context, id domainchat.ConversationID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conversation, ok := r.byID[id]
	if !ok {
		return nil
	}
	delete(r.byPair, pairKey(conversation.UserA, conversation.UserB))
	delete(r.byID, id)
	return nil
}

func pairKey(a, b domainuser.ID) string {
	return string(a) + "|" + string(b)
}

func cloneConversation(c *domainchat.Conversation) *domainchat.Conversation {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

var _ domainchat.ConversationRepository = (*ConversationRepository)(nil)
