package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/domain"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/logging"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/metrics"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/validate"
)

type ChatUseCase interface {
	// Post validates and durably appends a message. The returned message
	// carries the server assigned id and timestamp.
	Post(ctx context.Context, boardID string, sender *domain.Participant, text string) (*domain.ChatMessage, error)
	// History returns the most recent messages, oldest first.
	History(ctx context.Context, boardID string) ([]domain.ChatMessage, error)
}

type Options struct {
	Capacity int
	History  int
}

type chatUseCase struct {
	repository domain.ChatRepository
	options    Options
	logger     logging.Logger
	metrics    *metrics.Metrics
}

func NewChatUseCase(
	repository domain.ChatRepository,
	options Options,
	logger logging.Logger,
	metrics *metrics.Metrics,
) ChatUseCase {
	if options.Capacity <= 0 {
		options.Capacity = domain.DefaultChatCapacity
	}
	if options.History <= 0 {
		options.History = domain.DefaultChatHistory
	}
	if options.History > options.Capacity {
		options.History = options.Capacity
	}

	return &chatUseCase{
		repository: repository,
		options:    options,
		logger:     logger,
		metrics:    metrics,
	}
}

func (uc *chatUseCase) Post(ctx context.Context, boardID string, sender *domain.Participant, text string) (*domain.ChatMessage, error) {
	msg, err := domain.NewChatMessage(boardID, sender, text)
	if err != nil {
		uc.metrics.ChatMessages.WithLabelValues("invalid").Inc()
		return nil, err
	}

	if err := uc.repository.Append(ctx, msg, uc.options.Capacity); err != nil {
		uc.metrics.ChatMessages.WithLabelValues("failed").Inc()
		uc.logger.Error(logging.Chat, logging.Append, "failed to append chat message", map[logging.ExtraKey]any{
			logging.BoardID:      boardID,
			logging.UserID:       sender.UserID,
			logging.ErrorMessage: err.Error(),
		})
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistenceUnavailable, err)
	}

	uc.metrics.ChatMessages.WithLabelValues("stored").Inc()
	return msg, nil
}

func (uc *chatUseCase) History(ctx context.Context, boardID string) ([]domain.ChatMessage, error) {
	if err := validate.BoardID(boardID); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	messages, err := uc.repository.Recent(ctx, boardID, uc.options.History)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			return nil, err
		}
		uc.logger.Error(logging.Chat, logging.History, "failed to read chat history", map[logging.ExtraKey]any{
			logging.BoardID:      boardID,
			logging.ErrorMessage: err.Error(),
		})
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistenceUnavailable, err)
	}

	if messages == nil {
		messages = []domain.ChatMessage{}
	}
	return messages, nil
}
