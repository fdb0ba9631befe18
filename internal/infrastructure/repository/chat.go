package repository

import (
	"context"
	"sync"

	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/domain"
)

// Oldest messages are evicted when capacity is exceeded.
type chatRepository struct {
	messages map[string][]domain.ChatMessage // boardID -> []ChatMessage
	mu       *sync.RWMutex
}

func NewChatRepository() domain.ChatRepository {
	return &chatRepository{
		messages: make(map[string][]domain.ChatMessage),
		mu:       &sync.RWMutex{},
	}
}

func (r *chatRepository) Append(ctx context.Context, message *domain.ChatMessage, capacity int) error {
	if message == nil || message.BoardID == "" || message.ID == "" {
		return domain.ErrInvalidInput
	}
	if capacity <= 0 {
		capacity = domain.DefaultChatCapacity
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	boardMsgs := append(r.messages[message.BoardID], *message)

	// Evict oldest if over capacity
	if len(boardMsgs) > capacity {
		excess := len(boardMsgs) - capacity
		kept := make([]domain.ChatMessage, capacity)
		copy(kept, boardMsgs[excess:])
		boardMsgs = kept
	}

	r.messages[message.BoardID] = boardMsgs

	return nil
}

func (r *chatRepository) Recent(ctx context.Context, boardID string, limit int) ([]domain.ChatMessage, error) {
	if boardID == "" {
		return nil, domain.ErrInvalidInput
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	boardMsgs := r.messages[boardID]
	if limit > 0 && len(boardMsgs) > limit {
		boardMsgs = boardMsgs[len(boardMsgs)-limit:]
	}

	// Return a copy to prevent external mutation
	cpy := make([]domain.ChatMessage, len(boardMsgs))
	copy(cpy, boardMsgs)

	return cpy, nil
}
