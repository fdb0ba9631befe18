package ws

// Inbound events
const (
	JoinRoom         = "join-room"
	LeaveRoom        = "leave-room"
	CanvasUpdate     = "canvas-update"
	StickyNoteAdd    = "sticky-note-add"
	StickyNoteUpdate = "sticky-note-update"
	StickyNoteDelete = "sticky-note-delete"
	ChatMessage      = "chat-message"
	CursorMove       = "cursor-move"
	BoardSave        = "board-save"
)

// Outbound-only events
const (
	UserJoined      = "user-joined"
	UserLeft        = "user-left"
	RoomUsers       = "room-users"
	StickyNotesSync = "sticky-notes-sync"
	BoardSaved      = "board-saved"

	ErrorEvent  = "error"
	RateLimited = "error.rate_limited"
)

// Canvas operation types
const (
	PathCreated    = "path-created"
	ObjectAdded    = "object-added"
	ObjectModified = "object-modified"
	FullCanvas     = "full-canvas"
)

// Error codes carried by ErrorEvent
const (
	CodeJoinFailed   = "JOIN_FAILED"
	CodeNotMember    = "NOT_ROOM_MEMBER"
	CodeBadMessage   = "BAD_MESSAGE"
	CodeChatInvalid  = "CHAT_INVALID"
	CodeChatNotSaved = "CHAT_NOT_SAVED"
	CodeChatBusy     = "CHAT_BUSY"
	CodeSaveFailed   = "SAVE_FAILED"
	CodeRateLimited  = "RATE_LIMITED"
)

func validCanvasType(t string) bool {
	switch t {
	case PathCreated, ObjectAdded, ObjectModified, FullCanvas:
		return true
	}
	return false
}
