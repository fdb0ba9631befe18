package ws

import (
	"sync"
	"time"

	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/logging"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

type Client struct {
	conn           *connWrapper
	Message        chan *WSMessage
	id             string
	maxMessageSize int64
	logger         logging.Logger

	mu     sync.Mutex
	closed bool
}

func NewClient(conn *websocket.Conn, id string, sendBuffer int, maxMessageSize int64, logger logging.Logger) *Client {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}

	return &Client{
		conn:           newConnWrapper(conn),
		Message:        make(chan *WSMessage, sendBuffer),
		id:             id,
		maxMessageSize: maxMessageSize,
		logger:         logger,
	}
}

func (c *Client) ID() string {
	return c.id
}

// Send never blocks; a full buffer drops the message.
func (c *Client) Send(msg *WSMessage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.Message <- msg:
		return true
	default:
		return false
	}
}

// Close stops the write pump, which then closes the socket.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.Message)
}

func (c *Client) ReadMessage(core *Core) {
	defer func() {
		core.Unregister(c.id)
		_ = c.conn.Close()
	}()

	if c.maxMessageSize > 0 {
		c.conn.conn.SetReadLimit(c.maxMessageSize)
	}
	_ = c.conn.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.conn.SetPongHandler(func(string) error {
		return c.conn.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn(logging.Relay, logging.Disconnect, "ws read error", map[logging.ExtraKey]any{
					logging.ConnectionID: c.id,
					logging.ErrorMessage: err.Error(),
				})
			}
			break
		}

		core.Submit(c.id, raw)
	}
}

func (c *Client) WriteMessage() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Message:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage, time.Now().Add(writeWait))
				return
			}
			if err := c.conn.WriteJSON(msg, time.Now().Add(writeWait)); err != nil {
				c.logger.Warn(logging.Relay, logging.Deliver, "ws write error", map[logging.ExtraKey]any{
					logging.ConnectionID: c.id,
					logging.ErrorMessage: err.Error(),
				})
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
