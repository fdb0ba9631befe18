package events

import (
	"context"

	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/domain"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/contracts"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/json"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/logging"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/messaging"
	"github.com/rabbitmq/amqp091-go"
)

type BoardConsumer struct {
	rabbitmq *messaging.RabbitMQ
	repo     domain.BoardAuditRepository
	logger   logging.Logger
}

func NewBoardConsumer(rabbitmq *messaging.RabbitMQ, repo domain.BoardAuditRepository, logger logging.Logger) *BoardConsumer {
	return &BoardConsumer{
		rabbitmq: rabbitmq,
		repo:     repo,
		logger:   logger,
	}
}

// Listen stores every board lifecycle event as an audit log entry.
func (c *BoardConsumer) Listen(ctx context.Context) error {
	return c.rabbitmq.ConsumeMessages(ctx, messaging.BoardEventsQueue, func(ctx context.Context, msg amqp091.Delivery) error {
		return c.handle(ctx, msg.Body)
	})
}

func (c *BoardConsumer) handle(ctx context.Context, body []byte) error {
	entry, err := decodeAuditLog(body)
	if err != nil {
		c.logger.Error(logging.RabbitMQ, logging.Consume, "failed to decode board event", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})
		return err
	}

	if err := c.repo.Log(ctx, entry); err != nil {
		c.logger.Error(logging.RabbitMQ, logging.Consume, "failed to store audit log", map[logging.ExtraKey]any{
			logging.BoardID:      entry.BoardID,
			logging.ErrorMessage: err.Error(),
		})
		return err
	}

	return nil
}

func decodeAuditLog(body []byte) (*domain.BoardAuditLog, error) {
	var message contracts.AmqpMessage
	if err := json.Unmarshal(body, &message); err != nil {
		return nil, err
	}

	var entry domain.BoardAuditLog
	if err := json.Unmarshal(message.Data, &entry); err != nil {
		return nil, err
	}

	return &entry, nil
}
