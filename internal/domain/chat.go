package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/validate"
	"github.com/google/uuid"
)

const (
	DefaultChatCapacity = 100
	DefaultChatHistory  = 50
	MaxChatTextLength   = 1000
)

type ChatMessage struct {
	ID        string    `json:"id" bson:"id"`
	BoardID   string    `json:"boardId" bson:"board_id"`
	UserID    string    `json:"userId" bson:"user_id"`
	Username  string    `json:"username" bson:"username"`
	Text      string    `json:"text" bson:"text"`
	CreatedAt time.Time `json:"timestamp" bson:"created_at"`
}

// NewChatMessage assigns the id and timestamp server side.
func NewChatMessage(boardID string, sender *Participant, rawText string) (*ChatMessage, error) {
	if boardID == "" || sender == nil {
		return nil, ErrInvalidInput
	}

	validateText := validate.Field("text",
		validate.Required(),
		validate.MaxLength(MaxChatTextLength),
	)

	text := strings.TrimSpace(rawText)
	if err := validateText(text); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	return &ChatMessage{
		ID:        uuid.NewString(),
		BoardID:   boardID,
		UserID:    sender.UserID,
		Username:  sender.Username,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}, nil
}

type ChatRepository interface {
	// Append stores the message and drops the oldest entries beyond capacity.
	Append(ctx context.Context, message *ChatMessage, capacity int) error
	// Recent returns at most limit messages, oldest first.
	Recent(ctx context.Context, boardID string, limit int) ([]ChatMessage, error)
}
