package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/domain"
)

func newMessage(boardID string, i int) *domain.ChatMessage {
	return &domain.ChatMessage{
		ID:        fmt.Sprintf("m%d", i),
		BoardID:   boardID,
		UserID:    "u1",
		Username:  "alice",
		Text:      fmt.Sprintf("message %d", i),
		CreatedAt: time.Unix(int64(i), 0),
	}
}

func TestChatAppendKeepsMostRecentCapacity(t *testing.T) {
	repo := NewChatRepository()
	ctx := context.Background()

	for i := 0; i < 150; i++ {
		if err := repo.Append(ctx, newMessage("abc", i), 100); err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
	}

	msgs, err := repo.Recent(ctx, "abc", 0)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(msgs) != 100 {
		t.Fatalf("Expected 100 messages, got %d", len(msgs))
	}
	for i, m := range msgs {
		want := fmt.Sprintf("m%d", i+50)
		if m.ID != want {
			t.Fatalf("Expected %s at position %d, got %s", want, i, m.ID)
		}
	}
}

func TestChatRecentLimit(t *testing.T) {
	repo := NewChatRepository()
	ctx := context.Background()

	for i := 0; i < 80; i++ {
		_ = repo.Append(ctx, newMessage("abc", i), 100)
	}

	msgs, _ := repo.Recent(ctx, "abc", 50)
	if len(msgs) != 50 {
		t.Fatalf("Expected 50 messages, got %d", len(msgs))
	}
	if msgs[0].ID != "m30" || msgs[49].ID != "m79" {
		t.Errorf("Expected m30..m79, got %s..%s", msgs[0].ID, msgs[49].ID)
	}
}

func TestChatBoardsAreIsolated(t *testing.T) {
	repo := NewChatRepository()
	ctx := context.Background()

	_ = repo.Append(ctx, newMessage("a", 1), 100)

	msgs, err := repo.Recent(ctx, "b", 50)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("Expected empty history for b, got %d", len(msgs))
	}
}

func TestChatAppendRejectsInvalid(t *testing.T) {
	repo := NewChatRepository()
	if err := repo.Append(context.Background(), &domain.ChatMessage{ID: "x"}, 100); err != domain.ErrInvalidInput {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}
