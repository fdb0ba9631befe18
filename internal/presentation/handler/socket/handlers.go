package socket

import (
	"context"
	"net/http"
	"time"

	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/domain"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/auth"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/configs"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/json"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/logging"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/ws"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const registerTimeout = 5 * time.Second

type Handler struct {
	verifier auth.Verifier
	core     *ws.Core
	upgrader *websocket.Upgrader
	relay    configs.RelayConfig
	logger   logging.Logger
}

func NewHandler(
	verifier auth.Verifier,
	core *ws.Core,
	upgrader *websocket.Upgrader,
	relay configs.RelayConfig,
	logger logging.Logger,
) *Handler {
	return &Handler{
		verifier: verifier,
		core:     core,
		upgrader: upgrader,
		relay:    relay,
		logger:   logger,
	}
}

// ConnectHandler verifies the caller before upgrading, so a rejected identity
// never touches relay state.
func (h *Handler) ConnectHandler(w http.ResponseWriter, r *http.Request) {
	identity, err := h.verifier.Verify(r)
	if err != nil {
		h.logger.Warn(logging.Presence, logging.Connect, "identity rejected", map[logging.ExtraKey]any{
			logging.ClientIp:     r.RemoteAddr,
			logging.ErrorMessage: err.Error(),
		})
		json.WriteError(w, http.StatusUnauthorized, domain.ErrAuthRejected, "Missing or invalid identity")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(logging.Relay, logging.Connect, "websocket upgrade failed", map[logging.ExtraKey]any{
			logging.UserID:       identity.UserID,
			logging.ErrorMessage: err.Error(),
		})
		return
	}

	client := ws.NewClient(conn, uuid.NewString(), h.relay.SendBuffer, h.relay.MaxMessageSize, h.logger)

	ctx, cancel := context.WithTimeout(context.Background(), registerTimeout)
	defer cancel()
	if err := h.core.Register(ctx, client, *identity); err != nil {
		h.logger.Error(logging.Presence, logging.Connect, "failed to register connection", map[logging.ExtraKey]any{
			logging.UserID:       identity.UserID,
			logging.ErrorMessage: err.Error(),
		})
		_ = conn.Close()
		return
	}

	go client.WriteMessage()
	go client.ReadMessage(h.core)
}
