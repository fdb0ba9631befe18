package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/domain"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/json"
	"github.com/redis/go-redis/v9"
)

// Idle chat logs expire so abandoned boards do not pin memory forever.
const redisChatTTL = 30 * 24 * time.Hour

type redisChatRepository struct {
	client *redis.Client
}

func NewRedisChatRepository(client *redis.Client) domain.ChatRepository {
	return &redisChatRepository{
		client: client,
	}
}

func chatKey(boardID string) string {
	return fmt.Sprintf("board:%s:chat", boardID)
}

func (r *redisChatRepository) Append(ctx context.Context, message *domain.ChatMessage, capacity int) error {
	if message == nil || message.BoardID == "" || message.ID == "" {
		return domain.ErrInvalidInput
	}
	if capacity <= 0 {
		capacity = domain.DefaultChatCapacity
	}

	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal chat message: %w", err)
	}

	key := chatKey(message.BoardID)

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		pipe.LTrim(ctx, key, int64(-capacity), -1)
		pipe.Expire(ctx, key, redisChatTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append chat message: %w", err)
	}

	return nil
}

func (r *redisChatRepository) Recent(ctx context.Context, boardID string, limit int) ([]domain.ChatMessage, error) {
	if boardID == "" {
		return nil, domain.ErrInvalidInput
	}

	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}

	results, err := r.client.LRange(ctx, chatKey(boardID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load chat history: %w", err)
	}

	messages := make([]domain.ChatMessage, 0, len(results))
	for _, data := range results {
		var msg domain.ChatMessage
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			continue
		}
		messages = append(messages, msg)
	}

	return messages, nil
}
