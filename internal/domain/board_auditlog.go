package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type BoardEventType string

const (
	EventBoardOpened       BoardEventType = "board_opened"
	EventBoardClosed       BoardEventType = "board_closed"
	EventParticipantJoined BoardEventType = "participant_joined"
	EventParticipantLeft   BoardEventType = "participant_left"
	EventSnapshotSaved     BoardEventType = "snapshot_saved"
)

type BoardAuditLog struct {
	ID        string         `bson:"_id" json:"id"`
	BoardID   string         `bson:"board_id" json:"boardId"`
	EventType BoardEventType `bson:"event_type" json:"eventType"`
	Timestamp time.Time      `bson:"timestamp" json:"timestamp"`
	Metadata  map[string]any `bson:"metadata,omitempty" json:"metadata,omitempty"`
}

type BoardAuditRepository interface {
	Log(ctx context.Context, log *BoardAuditLog) error
	GetByBoardID(ctx context.Context, boardID string, limit int) ([]BoardAuditLog, error)
	EnsureIndexes(ctx context.Context) error
}

// BoardEventPublisher ships lifecycle entries to the audit trail.
type BoardEventPublisher interface {
	Publish(ctx context.Context, log *BoardAuditLog) error
}

func NewBoardOpenedLog(boardID string) *BoardAuditLog {
	return newBoardAuditLog(boardID, EventBoardOpened, map[string]any{})
}

func NewBoardClosedLog(boardID string, flushed bool) *BoardAuditLog {
	return newBoardAuditLog(boardID, EventBoardClosed, map[string]any{
		"flushed": flushed,
	})
}

func NewParticipantJoinedLog(boardID, userID string, memberCount int) *BoardAuditLog {
	return newBoardAuditLog(boardID, EventParticipantJoined, map[string]any{
		"user_id":      userID,
		"member_count": memberCount,
	})
}

func NewParticipantLeftLog(boardID, userID string, memberCount int) *BoardAuditLog {
	return newBoardAuditLog(boardID, EventParticipantLeft, map[string]any{
		"user_id":      userID,
		"member_count": memberCount,
	})
}

func NewSnapshotSavedLog(boardID string, noteCount int, canvasBytes int) *BoardAuditLog {
	return newBoardAuditLog(boardID, EventSnapshotSaved, map[string]any{
		"note_count":   noteCount,
		"canvas_bytes": canvasBytes,
	})
}

func newBoardAuditLog(boardID string, eventType BoardEventType, metadata map[string]any) *BoardAuditLog {
	return &BoardAuditLog{
		ID:        uuid.NewString(),
		BoardID:   boardID,
		EventType: eventType,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}
}
