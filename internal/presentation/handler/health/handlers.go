package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/json"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/ws"
)

var startTime = time.Now()

type StatsProvider interface {
	Stats(ctx context.Context) (ws.Stats, error)
}

type Handler struct {
	healthy atomic.Bool
	stats   StatsProvider
}

func NewHandler(stats StatsProvider) *Handler {
	h := &Handler{stats: stats}
	h.healthy.Store(true)
	return h
}

// SetHealthy flips the probe, e.g. to drain traffic during shutdown.
func (h *Handler) SetHealthy(v bool) {
	h.healthy.Store(v)
}

func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		Message:   "relay is running",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(startTime).Round(time.Second).String(),
	}

	if h.stats != nil {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()

		stats, err := h.stats.Stats(ctx)
		if err != nil {
			resp.Status = "unhealthy"
			resp.Message = "relay loop is not responding"
			json.Write(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp.Connections = stats.Connections
		resp.Rooms = stats.Rooms
	}

	if !h.healthy.Load() {
		resp.Status = "unhealthy"
		resp.Message = "shutting down"
		json.Write(w, http.StatusServiceUnavailable, resp)
		return
	}

	json.Write(w, http.StatusOK, resp)
}
