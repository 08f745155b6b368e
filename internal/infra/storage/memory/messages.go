package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	domainchat "messenger/internal/domain/chat"
	domainuser "messenger/internal/domain/user"
)

// MessageRepository stores the message log in memory.
type MessageRepository struct {
	mu   sync.RWMutex
	byID map[domainchat.MessageID]*domainchat.Message
}

func NewMessageRepository() *MessageRepository {
	return &MessageRepository{
		byID: make(map[domainchat.MessageID]*domainchat.Message),
	}
}

func (r *MessageRepository) ByID(ctx context.Context, id domainchat.MessageID) (*domainchat.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	message, ok := r.byID[id]
	if !ok {
		return nil, domainchat.ErrMessageNotFound
	}
	return cloneMessage(message), nil
}

func (r *MessageRepository) Save(ctx context.Context, message *domainchat.Message) error {
	if message == nil || message.ID == "" {
		return domainchat.ErrMessageNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[message.ID] = cloneMessage(message)
	return nil
}

func (r *MessageRepository) Delete(ctx context.Context, id domainchat.MessageID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
	return nil
}

func (r *MessageRepository) DeleteByConversation(ctx context.Context, conversationID domainchat.ConversationID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, message := range r.byID {
		if message.ConversationID == conversationID {
			delete(r.byID, id)
		}
	}
	return nil
}

func (r *MessageRepository) List(ctx context.Context, conversationID domainchat.ConversationID, before time.Time, limit int) ([]*domainchat.Message, error) {
	matches := r.collect(conversationID, func(m *domainchat.Message) bool {
		return before.IsZero() || m.CreatedAt.Before(before)
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (r *MessageRepository) Latest(ctx context.Context, conversationID domainchat.ConversationID) (*domainchat.Message, error) {
	matches := r.collect(conversationID, nil)
	if len(matches) == 0 {
		return nil, domainchat.ErrMessageNotFound
	}
	return matches[0], nil
}

func (r *MessageRepository) Search(ctx context.Context, conversationID domainchat.ConversationID, term string, limit int) ([]*domainchat.Message, error) {
	needle := strings.ToLower(strings.TrimSpace(term))
	if needle == "" {
		return []*domainchat.Message{}, nil
	}
	matches := r.collect(conversationID, func(m *domainchat.Message) bool {
		return strings.Contains(strings.ToLower(m.Content), needle)
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (r *MessageRepository) MarkRead(ctx context.Context, ids []domainchat.MessageID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, id := range ids {
		if message, ok := r.byID[id]; ok && !message.IsRead {
			message.IsRead = true
			count++
		}
	}
	return count, nil
}

func (r *MessageRepository) MarkConversationRead(ctx context.Context, conversationID domainchat.ConversationID, excludeSender domainuser.ID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, message := range r.byID {
		if message.ConversationID == conversationID && !message.IsRead && message.SenderID != excludeSender {
			message.IsRead = true
			count++
		}
	}
	return count, nil
}

func (r *MessageRepository) MarkSenderRead(ctx context.Context, conversationID domainchat.ConversationID, sender domainuser.ID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, message := range r.byID {
		if message.ConversationID == conversationID && !message.IsRead && message.SenderID == sender {
			message.IsRead = true
			count++
		}
	}
	return count, nil
}

func (r *MessageRepository) CountUnread(ctx context.Context, conversationIDs []domainchat.ConversationID, excludeSender domainuser.ID) (int64, error) {
	wanted := make(map[domainchat.ConversationID]struct{}, len(conversationIDs))
	for _, id := range conversationIDs {
		wanted[id] = struct{}{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var count int64
	for _, message := range r.byID {
		if _, ok := wanted[message.ConversationID]; !ok {
			continue
		}
		if !message.IsRead && message.SenderID != excludeSender {
			count++
		}
	}
	return count, nil
}

// collect returns matching messages newest-first.
func (r *MessageRepository) collect(conversationID domainchat.ConversationID, keep func(*domainchat.Message) bool) []*domainchat.Message {
	r.mu.RLock()
	matches := make([]*domainchat.Message, 0)
	for _, message := range r.byID {
		if message.ConversationID != conversationID {
			continue
		}
		if keep != nil && !keep(message) {
			continue
		}
		matches = append(matches, cloneMessage(message))
	}
	r.mu.RUnlock()
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	return matches
}

func cloneMessage(m *domainchat.Message) *domainchat.Message {
	if m == nil {
		return nil
	}
	clone := *m
	return &clone
}

var _ domainchat.MessageRepository = (*MessageRepository)(nil)
