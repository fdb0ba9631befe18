package boards

import (
	"encoding/json"
	"time"

	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/domain"
)

// saveBoardRequest is the whole board document sent by a client
type saveBoardRequest struct {
	CanvasData  json.RawMessage     `json:"canvasData"`
	StickyNotes []domain.StickyNote `json:"stickyNotes"`
}

// boardResponse is the stored board document
type boardResponse struct {
	ID          string              `json:"id"`
	CanvasData  json.RawMessage     `json:"canvasData"`
	StickyNotes []domain.StickyNote `json:"stickyNotes"`
	UpdatedAt   time.Time           `json:"updatedAt"`
}

func toBoardResponse(s *domain.BoardSnapshot) boardResponse {
	notes := s.StickyNotes
	if notes == nil {
		notes = []domain.StickyNote{}
	}
	return boardResponse{
		ID:          s.BoardID,
		CanvasData:  s.CanvasData,
		StickyNotes: notes,
		UpdatedAt:   s.UpdatedAt,
	}
}
