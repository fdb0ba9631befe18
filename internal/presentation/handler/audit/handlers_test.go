package audit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/domain"
	"github.com/go-chi/chi/v5"
)

type stubRepository struct {
	limit int
	logs  []domain.BoardAuditLog
}

func (s *stubRepository) Log(context.Context, *domain.BoardAuditLog) error { return nil }

func (s *stubRepository) GetByBoardID(_ context.Context, _ string, limit int) ([]domain.BoardAuditLog, error) {
	s.limit = limit
	return s.logs, nil
}

func (s *stubRepository) EnsureIndexes(context.Context) error { return nil }

func serve(h *Handler, target string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Get("/api/boards/{boardId}/events", h.GetEventsHandler)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestGetEventsClampsLimit(t *testing.T) {
	repo := &stubRepository{}

	rec := serve(NewHandler(repo), "/api/boards/b1/events?limit=100000")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if repo.limit != maxLimit {
		t.Errorf("expected limit %d, got %d", maxLimit, repo.limit)
	}
	if body := rec.Body.String(); body != "[]\n" {
		t.Errorf("expected empty array, got %q", body)
	}
}

func TestGetEventsRejectsBadLimit(t *testing.T) {
	rec := serve(NewHandler(&stubRepository{}), "/api/boards/b1/events?limit=-1")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestGetEventsDefaultLimit(t *testing.T) {
	repo := &stubRepository{logs: []domain.BoardAuditLog{*domain.NewBoardOpenedLog("b1")}}

	rec := serve(NewHandler(repo), "/api/boards/b1/events")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if repo.limit != defaultLimit {
		t.Errorf("expected limit %d, got %d", defaultLimit, repo.limit)
	}
}
