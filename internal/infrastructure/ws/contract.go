package ws

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/domain"
	wsjson "github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/json"
)

// WSMessage is the outbound envelope.
type WSMessage struct {
	Type    string `json:"type"`
	BoardID string `json:"boardId,omitempty"`
	Data    any    `json:"data"`
}

// InboundMessage is the envelope a client sends. The board id may sit on the
// envelope or inside data.
type InboundMessage struct {
	Type    string          `json:"type"`
	BoardID string          `json:"boardId,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func DecodeInbound(raw []byte) (*InboundMessage, error) {
	var msg InboundMessage
	if err := wsjson.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedOperation, err)
	}
	if strings.TrimSpace(msg.Type) == "" {
		return nil, fmt.Errorf("%w: missing event type", domain.ErrMalformedOperation)
	}
	return &msg, nil
}

// ResolveBoardID prefers the envelope field, then a bare JSON string in data,
// then data.boardId.
func (m *InboundMessage) ResolveBoardID() string {
	if m.BoardID != "" {
		return m.BoardID
	}
	if len(m.Data) == 0 {
		return ""
	}

	var bare string
	if err := wsjson.Unmarshal(m.Data, &bare); err == nil {
		return bare
	}

	var carrier struct {
		BoardID string `json:"boardId"`
	}
	if err := wsjson.Unmarshal(m.Data, &carrier); err == nil {
		return carrier.BoardID
	}
	return ""
}

// Payload structs
type MemberPayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Retry   bool   `json:"retry,omitempty"`
}

type CanvasUpdatePayload struct {
	BoardID string          `json:"boardId"`
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type StickyNoteAddPayload struct {
	BoardID string            `json:"boardId"`
	Note    domain.StickyNote `json:"note"`
}

type StickyNoteUpdatePayload struct {
	BoardID  string            `json:"boardId"`
	NoteID   string            `json:"noteId"`
	Text     *string           `json:"text,omitempty"`
	Color    *domain.NoteColor `json:"color,omitempty"`
	Position *domain.Position  `json:"position,omitempty"`
}

type StickyNoteDeletePayload struct {
	BoardID string `json:"boardId"`
	NoteID  string `json:"noteId"`
}

type StickyNotesSyncPayload struct {
	Notes []domain.StickyNote `json:"notes"`
}

type ChatMessagePayload struct {
	BoardID string `json:"boardId"`
	Text    string `json:"text"`
}

type BoardSavePayload struct {
	BoardID     string              `json:"boardId"`
	CanvasData  json.RawMessage     `json:"canvasData"`
	StickyNotes []domain.StickyNote `json:"stickyNotes"`
}

type BoardSavedPayload struct {
	BoardID   string `json:"boardId"`
	UpdatedAt string `json:"updatedAt"`
}

// enrich copies the object in data and stamps the sender on it.
func enrich(data json.RawMessage, sender *domain.Participant) (map[string]json.RawMessage, error) {
	fields := make(map[string]json.RawMessage)
	if len(data) > 0 {
		if err := wsjson.Unmarshal(data, &fields); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrMalformedOperation, err)
		}
	}

	userID, _ := wsjson.Marshal(sender.UserID)
	username, _ := wsjson.Marshal(sender.Username)
	fields["userId"] = userID
	fields["username"] = username
	return fields, nil
}

func NewUserJoined(boardID string, p *domain.Participant) *WSMessage {
	return &WSMessage{
		Type:    UserJoined,
		BoardID: boardID,
		Data: MemberPayload{
			UserID:   p.UserID,
			Username: p.Username,
		},
	}
}

func NewUserLeft(boardID string, p *domain.Participant) *WSMessage {
	return &WSMessage{
		Type:    UserLeft,
		BoardID: boardID,
		Data: MemberPayload{
			UserID:   p.UserID,
			Username: p.Username,
		},
	}
}

func NewRoomUsers(boardID string, members []MemberPayload) *WSMessage {
	if members == nil {
		members = []MemberPayload{}
	}
	return &WSMessage{
		Type:    RoomUsers,
		BoardID: boardID,
		Data:    members,
	}
}

func NewRelayed(eventType, boardID string, data any) *WSMessage {
	return &WSMessage{
		Type:    eventType,
		BoardID: boardID,
		Data:    data,
	}
}

func NewFullCanvas(boardID string, canvasData json.RawMessage) *WSMessage {
	return &WSMessage{
		Type:    CanvasUpdate,
		BoardID: boardID,
		Data: CanvasUpdatePayload{
			BoardID: boardID,
			Type:    FullCanvas,
			Data:    canvasData,
		},
	}
}

func NewStickyNotesSync(boardID string, notes []domain.StickyNote) *WSMessage {
	if notes == nil {
		notes = []domain.StickyNote{}
	}
	return &WSMessage{
		Type:    StickyNotesSync,
		BoardID: boardID,
		Data:    StickyNotesSyncPayload{Notes: notes},
	}
}

func NewChatMessage(msg *domain.ChatMessage) *WSMessage {
	return &WSMessage{
		Type:    ChatMessage,
		BoardID: msg.BoardID,
		Data:    msg,
	}
}

func NewBoardSaved(boardID string, updatedAt time.Time) *WSMessage {
	return &WSMessage{
		Type:    BoardSaved,
		BoardID: boardID,
		Data: BoardSavedPayload{
			BoardID:   boardID,
			UpdatedAt: updatedAt.UTC().Format(time.RFC3339),
		},
	}
}

func NewError(boardID, code, message string) *WSMessage {
	return &WSMessage{
		Type:    ErrorEvent,
		BoardID: boardID,
		Data: ErrorPayload{
			Code:    code,
			Message: message,
		},
	}
}

func NewRateLimited(boardID string) *WSMessage {
	return &WSMessage{
		Type:    RateLimited,
		BoardID: boardID,
		Data: ErrorPayload{
			Code:    CodeRateLimited,
			Message: "too many events, slow down",
			Retry:   true,
		},
	}
}
