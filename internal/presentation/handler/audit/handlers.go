package audit

import (
	"net/http"
	"strconv"

	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/domain"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/json"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/validate"
	"github.com/go-chi/chi/v5"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

type Handler struct {
	repo domain.BoardAuditRepository
}

func NewHandler(repo domain.BoardAuditRepository) *Handler {
	return &Handler{repo: repo}
}

// GetEventsHandler lists the lifecycle entries of a board, newest first.
func (h *Handler) GetEventsHandler(w http.ResponseWriter, r *http.Request) {
	boardID := chi.URLParam(r, "boardId")
	if err := validate.BoardID(boardID); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	limit := defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			json.WriteBadRequestError(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxLimit)
	}

	entries, err := h.repo.GetByBoardID(r.Context(), boardID, limit)
	if err != nil {
		json.WriteInternalError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.BoardAuditLog{}
	}

	json.Write(w, http.StatusOK, entries)
}
