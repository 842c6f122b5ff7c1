package repositories

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"restaurant-chat/internal/models"
)

// MemoryChatRepo keeps conversations in process memory. Every mutation runs under
// one write lock, which gives the same per-conversation atomicity as ChatRepo.
type MemoryChatRepo struct {
	mu            sync.RWMutex
	conversations map[string]*models.Conversation
	now           func() time.Time
}

// NewMemoryChatRepo constructs an empty MemoryChatRepo.
func NewMemoryChatRepo() *MemoryChatRepo {
	return &MemoryChatRepo{
		conversations: make(map[string]*models.Conversation),
		now:           time.Now,
	}
}

func (r *MemoryChatRepo) CreateConversation(ctx context.Context, conv models.Conversation) (models.Conversation, error) {
	if len(conv.Messages) == 0 {
		return models.Conversation{}, ErrEmptyConversation
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if conv.Status == models.StatusActive {
		for _, existing := range r.conversations {
			if existing.IsActive() && existing.ClientID == conv.ClientID && existing.WaiterID == conv.WaiterID {
				return models.Conversation{}, ErrActiveConversationExists
			}
		}
	}

	stored := cloneConversation(conv, true)
	r.conversations[conv.ID] = &stored
	return cloneConversation(stored, true), nil
}

func (r *MemoryChatRepo) AppendMessage(ctx context.Context, conversationID string, msg models.Message) (models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.conversations[conversationID]
	if !ok {
		return models.Conversation{}, ErrConversationNotFound
	}

	ts := r.now()
	if ts.Before(conv.UpdatedAt) {
		ts = conv.UpdatedAt
	}
	msg.Read = false
	msg.Timestamp = ts

	conv.Messages = append(conv.Messages, msg)
	conv.LastMessage = msg.Content
	conv.UnreadCount++
	conv.UpdatedAt = ts

	out := cloneConversation(*conv, false)
	out.Messages = []models.Message{msg}
	return out, nil
}

func (r *MemoryChatRepo) MarkAllRead(ctx context.Context, conversationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.conversations[conversationID]
	if !ok {
		return ErrConversationNotFound
	}
	for i := range conv.Messages {
		conv.Messages[i].Read = true
	}
	conv.UnreadCount = 0
	if now := r.now(); now.After(conv.UpdatedAt) {
		conv.UpdatedAt = now
	}
	return nil
}

func (r *MemoryChatRepo) FindActiveConversation(ctx context.Context, clientID, waiterID string) (models.Conversation, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, conv := range r.conversations {
		if conv.IsActive() && conv.ClientID == clientID && conv.WaiterID == waiterID {
			return cloneConversation(*conv, false), true, nil
		}
	}
	return models.Conversation{}, false, nil
}

func (r *MemoryChatRepo) GetConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conv, ok := r.conversations[conversationID]
	if !ok {
		return models.Conversation{}, ErrConversationNotFound
	}
	return cloneConversation(*conv, true), nil
}

func (r *MemoryChatRepo) GetConversationHeader(ctx context.Context, conversationID string) (models.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conv, ok := r.conversations[conversationID]
	if !ok {
		return models.Conversation{}, ErrConversationNotFound
	}
	return cloneConversation(*conv, false), nil
}

func (r *MemoryChatRepo) ListConversations(ctx context.Context, filter models.ConversationFilter) ([]models.Conversation, error) {
	r.mu.RLock()
	result := make([]models.Conversation, 0, len(r.conversations))
	for _, conv := range r.conversations {
		if filter.ClientID != "" && conv.ClientID != filter.ClientID {
			continue
		}
		if filter.WaiterID != "" && conv.WaiterID != filter.WaiterID {
			continue
		}
		result = append(result, cloneConversation(*conv, false))
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	return result, nil
}

func (r *MemoryChatRepo) CloseConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.conversations[conversationID]
	if !ok {
		return models.Conversation{}, ErrConversationNotFound
	}
	if conv.IsActive() {
		conv.Status = models.StatusClosed
		if now := r.now(); now.After(conv.UpdatedAt) {
			conv.UpdatedAt = now
		}
	}
	return cloneConversation(*conv, false), nil
}

func cloneConversation(conv models.Conversation, withMessages bool) models.Conversation {
	out := conv
	out.Messages = nil
	if withMessages {
		out.Messages = append([]models.Message(nil), conv.Messages...)
	}
	return out
}

// MemoryWaiterDirectory is a fixed waiter set for local runs.
type MemoryWaiterDirectory struct {
	mu      sync.RWMutex
	waiters map[string]models.Waiter
}

func NewMemoryWaiterDirectory(waiters ...models.Waiter) *MemoryWaiterDirectory {
	d := &MemoryWaiterDirectory{waiters: make(map[string]models.Waiter, len(waiters))}
	for _, w := range waiters {
		d.waiters[w.ID] = w
	}
	return d
}

func (d *MemoryWaiterDirectory) FindWaiter(ctx context.Context, waiterID string) (models.Waiter, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	w, ok := d.waiters[waiterID]
	if !ok {
		return models.Waiter{}, ErrWaiterNotFound
	}
	return w, nil
}

// ParseWaiters reads a "id:name,id:name" list. Entries without a name use the id.
func ParseWaiters(list string) []models.Waiter {
	var waiters []models.Waiter
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, name, _ := strings.Cut(entry, ":")
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			name = id
		}
		waiters = append(waiters, models.Waiter{ID: id, Name: name, IsActive: true})
	}
	return waiters
}
