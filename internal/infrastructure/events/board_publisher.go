package events

import (
	"context"
	"fmt"

	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/domain"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/contracts"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/json"
)

type Publisher interface {
	PublishMessage(ctx context.Context, routingKey string, message contracts.AmqpMessage) error
}

type BoardPublisher struct {
	rabbitmq Publisher
}

func NewBoardPublisher(rabbitmq Publisher) *BoardPublisher {
	return &BoardPublisher{
		rabbitmq: rabbitmq,
	}
}

// Publish sends a lifecycle entry to the board exchange.
func (p *BoardPublisher) Publish(ctx context.Context, entry *domain.BoardAuditLog) error {
	routingKey, ok := routingKeyFor(entry.EventType)
	if !ok {
		return fmt.Errorf("no routing key for event %q", entry.EventType)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	return p.rabbitmq.PublishMessage(ctx, routingKey, contracts.AmqpMessage{
		BoardID: entry.BoardID,
		Data:    data,
	})
}

func routingKeyFor(eventType domain.BoardEventType) (string, bool) {
	switch eventType {
	case domain.EventBoardOpened:
		return contracts.EventBoardOpened, true
	case domain.EventBoardClosed:
		return contracts.EventBoardClosed, true
	case domain.EventParticipantJoined:
		return contracts.EventParticipantJoined, true
	case domain.EventParticipantLeft:
		return contracts.EventParticipantLeft, true
	case domain.EventSnapshotSaved:
		return contracts.EventSnapshotSaved, true
	}
	return "", false
}

// AuditWriter skips the broker and writes entries straight to the audit store.
type AuditWriter struct {
	repo domain.BoardAuditRepository
}

func NewAuditWriter(repo domain.BoardAuditRepository) *AuditWriter {
	return &AuditWriter{repo: repo}
}

func (w *AuditWriter) Publish(ctx context.Context, entry *domain.BoardAuditLog) error {
	return w.repo.Log(ctx, entry)
}

// NopPublisher drops every entry. Used when no audit store is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *domain.BoardAuditLog) error {
	return nil
}
