package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/domain"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/logging"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/metrics"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/repository"
)

type brokenRepository struct{}

func (brokenRepository) Append(context.Context, *domain.ChatMessage, int) error {
	return errors.New("connection refused")
}

func (brokenRepository) Recent(context.Context, string, int) ([]domain.ChatMessage, error) {
	return nil, errors.New("connection refused")
}

func newTestUseCase(repo domain.ChatRepository) ChatUseCase {
	logger := logging.NewLogger(&logging.LoggerConfig{Logger: "zap", Level: "fatal", Encoding: "json"})
	return NewChatUseCase(repo, Options{}, logger, metrics.New())
}

func TestPostKeepsMostRecent100(t *testing.T) {
	uc := newTestUseCase(repository.NewChatRepository())
	sender := domain.NewParticipant("c1", "u1", "alice")
	ctx := context.Background()

	var ids []string
	for i := 0; i < 150; i++ {
		msg, err := uc.Post(ctx, "abc", sender, fmt.Sprintf("message %d", i))
		if err != nil {
			t.Fatalf("Post %d failed: %v", i, err)
		}
		ids = append(ids, msg.ID)
	}

	history, err := uc.History(ctx, "abc")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 50 {
		t.Fatalf("Expected 50 messages of history, got %d", len(history))
	}
	for i, msg := range history {
		if msg.ID != ids[100+i] {
			t.Fatalf("Expected message %d at position %d, got %s", 100+i, i, msg.Text)
		}
	}
}

func TestPostAssignsServerFields(t *testing.T) {
	uc := newTestUseCase(repository.NewChatRepository())
	sender := domain.NewParticipant("c1", "u1", "alice")

	msg, err := uc.Post(context.Background(), "abc", sender, "  hi  ")
	if err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	if msg.ID == "" || msg.CreatedAt.IsZero() {
		t.Error("Expected id and timestamp to be assigned")
	}
	if msg.Text != "hi" || msg.Username != "alice" || msg.BoardID != "abc" {
		t.Errorf("Unexpected message %+v", msg)
	}
}

func TestPostRejectsInvalidText(t *testing.T) {
	uc := newTestUseCase(repository.NewChatRepository())
	sender := domain.NewParticipant("c1", "u1", "alice")

	for _, text := range []string{"", "   ", strings.Repeat("x", domain.MaxChatTextLength+1)} {
		if _, err := uc.Post(context.Background(), "abc", sender, text); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("Expected ErrInvalidInput for %d chars, got %v", len(text), err)
		}
	}
}

func TestPostWrapsStoreFailure(t *testing.T) {
	uc := newTestUseCase(brokenRepository{})
	sender := domain.NewParticipant("c1", "u1", "alice")

	_, err := uc.Post(context.Background(), "abc", sender, "hello")
	if !errors.Is(err, domain.ErrPersistenceUnavailable) {
		t.Errorf("Expected ErrPersistenceUnavailable, got %v", err)
	}

	_, err = uc.History(context.Background(), "abc")
	if !errors.Is(err, domain.ErrPersistenceUnavailable) {
		t.Errorf("Expected ErrPersistenceUnavailable, got %v", err)
	}
}

func TestHistoryEmptyBoard(t *testing.T) {
	uc := newTestUseCase(repository.NewChatRepository())

	history, err := uc.History(context.Background(), "fresh")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if history == nil || len(history) != 0 {
		t.Errorf("Expected empty non-nil history, got %v", history)
	}

	if _, err := uc.History(context.Background(), "has space"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for bad board id, got %v", err)
	}
}
