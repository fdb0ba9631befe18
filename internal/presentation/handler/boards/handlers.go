package boards

import (
	"errors"
	"net/http"

	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/application/usecases/snapshot"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/domain"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/json"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/validate"
	"github.com/go-chi/chi/v5"
)

// LiveRooms receives boards saved over HTTP so open rooms stay current.
type LiveRooms interface {
	ApplySnapshot(snap *domain.BoardSnapshot)
}

type Handler struct {
	snapshots snapshot.SnapshotUseCase
	rooms     LiveRooms
}

func NewHandler(snapshots snapshot.SnapshotUseCase, rooms LiveRooms) *Handler {
	return &Handler{
		snapshots: snapshots,
		rooms:     rooms,
	}
}

// GetBoardHandler returns the stored canvas and sticky notes of a board.
func (h *Handler) GetBoardHandler(w http.ResponseWriter, r *http.Request) {
	boardID := chi.URLParam(r, "boardId")
	if err := validate.BoardID(boardID); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	snap, err := h.snapshots.Load(r.Context(), boardID)
	if err != nil {
		json.WriteError(w, http.StatusServiceUnavailable, err, "Board storage is unavailable")
		return
	}
	if snap == nil {
		json.WriteNotFoundError(w, "Board not found")
		return
	}

	json.Write(w, http.StatusOK, toBoardResponse(snap))
}

// PutBoardHandler replaces the stored board document.
func (h *Handler) PutBoardHandler(w http.ResponseWriter, r *http.Request) {
	boardID := chi.URLParam(r, "boardId")
	if err := validate.BoardID(boardID); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	var req saveBoardRequest
	if err := json.Read(r, &req); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	snap, err := domain.NewBoardSnapshot(boardID, req.CanvasData, req.StickyNotes)
	if err != nil {
		json.WriteValidationError(w, err)
		return
	}

	if err := h.snapshots.Save(r.Context(), snap, snapshot.TriggerHTTP); err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidInput):
			json.WriteValidationError(w, err)
		default:
			json.WriteError(w, http.StatusServiceUnavailable, err, "Board storage is unavailable")
		}
		return
	}

	if h.rooms != nil {
		h.rooms.ApplySnapshot(snap)
	}

	json.Write(w, http.StatusOK, toBoardResponse(snap))
}
