package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type NoteColor string

const (
	NoteYellow NoteColor = "yellow"
	NotePink   NoteColor = "pink"
	NoteBlue   NoteColor = "blue"
	NoteGreen  NoteColor = "green"
)

func (c NoteColor) Valid() bool {
	switch c {
	case NoteYellow, NotePink, NoteBlue, NoteGreen:
		return true
	}
	return false
}

type Position struct {
	X float64 `json:"x" bson:"x"`
	Y float64 `json:"y" bson:"y"`
}

type StickyNote struct {
	ID        string    `json:"id" bson:"id"`
	Text      string    `json:"text" bson:"text"`
	Color     NoteColor `json:"color" bson:"color"`
	Position  Position  `json:"position" bson:"position"`
	CreatedBy string    `json:"createdBy,omitempty" bson:"created_by,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty" bson:"created_at,omitempty"`
}

// Validate checks the note and fills in the default color.
func (n *StickyNote) Validate() error {
	if strings.TrimSpace(n.ID) == "" {
		return fmt.Errorf("%w: sticky note id is required", ErrInvalidInput)
	}
	if n.Color == "" {
		n.Color = NoteYellow
	}
	if !n.Color.Valid() {
		return fmt.Errorf("%w: unknown sticky note color %q", ErrInvalidInput, n.Color)
	}
	return nil
}

// BoardSnapshot is the whole persisted state of a board. CanvasData is never
// parsed by the server.
type BoardSnapshot struct {
	BoardID     string          `json:"id" bson:"_id"`
	CanvasData  json.RawMessage `json:"canvasData" bson:"canvas_data"`
	StickyNotes []StickyNote    `json:"stickyNotes" bson:"sticky_notes"`
	UpdatedAt   time.Time       `json:"updatedAt" bson:"updated_at"`
}

func NewBoardSnapshot(boardID string, canvasData json.RawMessage, notes []StickyNote) (*BoardSnapshot, error) {
	if strings.TrimSpace(boardID) == "" {
		return nil, fmt.Errorf("%w: board id is required", ErrInvalidInput)
	}

	for i := range notes {
		if err := notes[i].Validate(); err != nil {
			return nil, err
		}
	}
	if notes == nil {
		notes = []StickyNote{}
	}

	return &BoardSnapshot{
		BoardID:     boardID,
		CanvasData:  canvasData,
		StickyNotes: notes,
		UpdatedAt:   time.Now(),
	}, nil
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s *BoardSnapshot) Clone() *BoardSnapshot {
	if s == nil {
		return nil
	}

	cpy := &BoardSnapshot{
		BoardID:     s.BoardID,
		UpdatedAt:   s.UpdatedAt,
		StickyNotes: make([]StickyNote, len(s.StickyNotes)),
	}
	copy(cpy.StickyNotes, s.StickyNotes)

	if s.CanvasData != nil {
		cpy.CanvasData = make(json.RawMessage, len(s.CanvasData))
		copy(cpy.CanvasData, s.CanvasData)
	}

	return cpy
}

type BoardRepository interface {
	// Load returns ErrBoardNotFound when nothing was saved for the board.
	Load(ctx context.Context, boardID string) (*BoardSnapshot, error)
	// Save replaces the whole stored document.
	Save(ctx context.Context, snapshot *BoardSnapshot) error
}
