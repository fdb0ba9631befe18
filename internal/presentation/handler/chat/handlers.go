package chat

import (
	"errors"
	"net/http"

	chatusecase "github.com/HarshitGajawada/sync-sketch-collaboration/internal/application/usecases/chat"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/domain"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/json"
	"github.com/go-chi/chi/v5"
)

type Handler struct {
	chat chatusecase.ChatUseCase
}

func NewHandler(chat chatusecase.ChatUseCase) *Handler {
	return &Handler{chat: chat}
}

// GetHistoryHandler returns the most recent chat messages of a board, oldest first.
func (h *Handler) GetHistoryHandler(w http.ResponseWriter, r *http.Request) {
	boardID := chi.URLParam(r, "boardId")

	messages, err := h.chat.History(r.Context(), boardID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidInput):
			json.WriteValidationError(w, err)
		default:
			json.WriteError(w, http.StatusServiceUnavailable, err, "Chat storage is unavailable")
		}
		return
	}

	json.Write(w, http.StatusOK, messages)
}
