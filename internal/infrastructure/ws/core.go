package ws

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/application/usecases/chat"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/application/usecases/snapshot"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/domain"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/logging"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/metrics"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/ratelimiter"
)

var ErrCoreStopped = errors.New("relay core stopped")

const publishTimeout = 5 * time.Second

// Conn is the relay's view of a client connection.
type Conn interface {
	ID() string
	// Send queues msg without blocking and reports whether it was accepted.
	Send(msg *WSMessage) bool
	Close()
}

type Options struct {
	AutosaveInterval time.Duration
	InboundQueueSize int
	ChatQueueSize    int
	// FlushTimeout bounds how long shutdown waits for in-flight saves.
	FlushTimeout time.Duration
}

type registration struct {
	conn     Conn
	identity domain.Identity
}

type inboundEvent struct {
	connectionID string
	message      *InboundMessage
	// reply short-circuits dispatch, e.g. for throttled or undecodable events.
	reply *WSMessage
}

type chatJob struct {
	boardID string
	sender  *domain.Participant
	text    string
}

type handlerFunc func(p *domain.Participant, msg *InboundMessage)

// Core owns all presence and room state. Every mutation happens on the Run
// goroutine; persistence runs elsewhere and reports back through calls.
type Core struct {
	registry  *Registry
	directory *Directory
	conns     map[string]Conn
	sessions  map[string]*roomSession
	handlers  map[string]handlerFunc

	register   chan registration
	unregister chan string
	inbound    chan inboundEvent
	calls      chan func()
	chatJobs   chan chatJob
	done       chan struct{}

	chat      chat.ChatUseCase
	snapshots snapshot.SnapshotUseCase
	publisher domain.BoardEventPublisher
	limiter   ratelimiter.Limiter
	options   Options
	logger    logging.Logger
	metrics   *metrics.Metrics

	// savesInFlight is owned by the loop.
	savesInFlight int
	saveCtx       context.Context
	cancelSaves   context.CancelFunc
	activeTimers  atomic.Int64
	wg            sync.WaitGroup
}

func NewCore(
	chatUseCase chat.ChatUseCase,
	snapshotUseCase snapshot.SnapshotUseCase,
	publisher domain.BoardEventPublisher,
	limiter ratelimiter.Limiter,
	options Options,
	logger logging.Logger,
	metrics *metrics.Metrics,
) *Core {
	if options.AutosaveInterval <= 0 {
		options.AutosaveInterval = 5 * time.Second
	}
	if options.InboundQueueSize <= 0 {
		options.InboundQueueSize = 1024
	}
	if options.ChatQueueSize <= 0 {
		options.ChatQueueSize = 256
	}
	if options.FlushTimeout <= 0 {
		options.FlushTimeout = 10 * time.Second
	}

	saveCtx, cancelSaves := context.WithCancel(context.Background())

	c := &Core{
		registry:   NewRegistry(),
		directory:  NewDirectory(),
		conns:      make(map[string]Conn),
		sessions:   make(map[string]*roomSession),
		register:   make(chan registration),
		unregister: make(chan string),
		inbound:    make(chan inboundEvent, options.InboundQueueSize),
		calls:      make(chan func(), 256),
		chatJobs:   make(chan chatJob, options.ChatQueueSize),
		done:       make(chan struct{}),
		chat:       chatUseCase,
		snapshots:  snapshotUseCase,
		publisher:  publisher,
		limiter:    limiter,
		options:    options,
		logger:     logger,
		metrics:    metrics,

		saveCtx:     saveCtx,
		cancelSaves: cancelSaves,
	}

	c.handlers = map[string]handlerFunc{
		JoinRoom:         c.handleJoin,
		LeaveRoom:        c.handleLeave,
		CanvasUpdate:     c.handleCanvasUpdate,
		StickyNoteAdd:    c.handleStickyNoteAdd,
		StickyNoteUpdate: c.handleStickyNoteUpdate,
		StickyNoteDelete: c.handleStickyNoteDelete,
		ChatMessage:      c.handleChatMessage,
		CursorMove:       c.handleCursorMove,
		BoardSave:        c.handleBoardSave,
	}

	return c
}

func (c *Core) Run(ctx context.Context) {
	defer func() {
		close(c.done)
		c.wg.Wait()
		c.cancelSaves()
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.runChatWorker(ctx)
	}()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return
		case reg := <-c.register:
			c.handleRegister(reg)
		case id := <-c.unregister:
			c.handleDisconnect(id)
		case ev := <-c.inbound:
			c.handleInbound(ev)
		case fn := <-c.calls:
			fn()
		}
	}
}

// Register adds an authenticated connection to the presence registry.
func (c *Core) Register(ctx context.Context, conn Conn, identity domain.Identity) error {
	select {
	case c.register <- registration{conn: conn, identity: identity}:
		return nil
	case <-c.done:
		return ErrCoreStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unregister is the disconnect path. Calling it twice is harmless.
func (c *Core) Unregister(connectionID string) {
	select {
	case c.unregister <- connectionID:
	case <-c.done:
	}
}

// Submit decodes one raw frame and queues it for dispatch. It blocks while the
// inbound queue is full.
func (c *Core) Submit(connectionID string, raw []byte) {
	ev := inboundEvent{connectionID: connectionID}

	if c.limiter != nil && !c.limiter.Allow(connectionID) {
		c.metrics.DroppedEvents.WithLabelValues("rate_limited").Inc()
		c.logger.Warn(logging.Relay, logging.RateLimiting, "event throttled", map[logging.ExtraKey]any{
			logging.ConnectionID: connectionID,
		})
		ev.reply = NewRateLimited("")
	} else if msg, err := DecodeInbound(raw); err != nil {
		c.metrics.DroppedEvents.WithLabelValues("malformed").Inc()
		c.logger.Warn(logging.Relay, logging.Dispatch, "undecodable event dropped", map[logging.ExtraKey]any{
			logging.ConnectionID: connectionID,
			logging.ErrorMessage: err.Error(),
		})
		ev.reply = NewError("", CodeBadMessage, "could not decode event")
	} else {
		ev.message = msg
	}

	select {
	case c.inbound <- ev:
	case <-c.done:
	}
}

// ApplySnapshot installs a board saved outside the socket into its live room.
func (c *Core) ApplySnapshot(snap *domain.BoardSnapshot) {
	snap = snap.Clone()
	c.post(func() {
		sess, ok := c.sessions[snap.BoardID]
		if !ok {
			return
		}
		sess.replace(snap)
	})
}

// MembersOf returns the connection ids joined to the board.
func (c *Core) MembersOf(ctx context.Context, boardID string) ([]string, error) {
	var members []string
	err := c.query(ctx, func() {
		members = c.directory.MembersOf(boardID)
	})
	return members, err
}

type Stats struct {
	Connections int `json:"connections"`
	Rooms       int `json:"rooms"`
}

func (c *Core) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := c.query(ctx, func() {
		stats = Stats{
			Connections: c.registry.Len(),
			Rooms:       c.directory.Len(),
		}
	})
	return stats, err
}

// ActiveTimers counts running autosave goroutines.
func (c *Core) ActiveTimers() int64 {
	return c.activeTimers.Load()
}

func (c *Core) post(fn func()) bool {
	select {
	case c.calls <- fn:
		return true
	case <-c.done:
		return false
	}
}

func (c *Core) query(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	call := func() {
		fn()
		close(finished)
	}

	select {
	case c.calls <- call:
	case <-c.done:
		return ErrCoreStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-c.done:
		return ErrCoreStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Core) handleRegister(reg registration) {
	id := reg.conn.ID()
	if _, exists := c.conns[id]; exists {
		c.logger.Warn(logging.Presence, logging.Connect, "duplicate connection id rejected", map[logging.ExtraKey]any{
			logging.ConnectionID: id,
		})
		reg.conn.Close()
		return
	}

	c.conns[id] = reg.conn
	p := c.registry.Register(id, reg.identity.UserID, reg.identity.Username)
	c.metrics.Connections.Inc()

	c.logger.Info(logging.Presence, logging.Connect, "participant connected", map[logging.ExtraKey]any{
		logging.ConnectionID: id,
		logging.UserID:       p.UserID,
	})
}

// handleDisconnect is an implicit leave from every room holding the connection.
func (c *Core) handleDisconnect(connectionID string) {
	if conn, ok := c.conns[connectionID]; ok {
		delete(c.conns, connectionID)
		conn.Close()
	}

	p := c.registry.Unregister(connectionID)
	if p == nil {
		return
	}

	for _, boardID := range c.directory.RoomsOf(connectionID) {
		c.leaveRoom(boardID, p)
	}

	if c.limiter != nil {
		c.limiter.Forget(connectionID)
	}
	c.metrics.Connections.Dec()

	c.logger.Info(logging.Presence, logging.Disconnect, "participant disconnected", map[logging.ExtraKey]any{
		logging.ConnectionID: connectionID,
		logging.UserID:       p.UserID,
	})
}

func (c *Core) handleInbound(ev inboundEvent) {
	conn, ok := c.conns[ev.connectionID]
	if !ok {
		return
	}
	if ev.reply != nil {
		c.send(conn, ev.reply)
		return
	}

	p := c.registry.Lookup(ev.connectionID)
	if p == nil {
		return
	}

	handler, ok := c.handlers[ev.message.Type]
	if !ok {
		c.drop(p, ev.message.Type, "unknown_event", domain.ErrMalformedOperation)
		c.send(conn, NewError("", CodeBadMessage, "unknown event "+ev.message.Type))
		return
	}

	handler(p, ev.message)
}

func (c *Core) send(conn Conn, msg *WSMessage) {
	if conn == nil {
		return
	}
	if !conn.Send(msg) {
		c.metrics.DroppedEvents.WithLabelValues("slow_consumer").Inc()
		c.logger.Warn(logging.Relay, logging.Deliver, "send buffer full, dropping event", map[logging.ExtraKey]any{
			logging.ConnectionID: conn.ID(),
			logging.Event:        msg.Type,
		})
	}
}

func (c *Core) sendTo(connectionID string, msg *WSMessage) {
	c.send(c.conns[connectionID], msg)
}

// relay fans msg out to every member of the room except the sender.
func (c *Core) relay(boardID, senderID string, msg *WSMessage) {
	for _, id := range c.directory.MembersOf(boardID) {
		if id == senderID {
			continue
		}
		c.sendTo(id, msg)
	}
	c.metrics.RelayedEvents.WithLabelValues(msg.Type).Inc()
}

func (c *Core) broadcast(boardID string, msg *WSMessage) {
	for _, id := range c.directory.MembersOf(boardID) {
		c.sendTo(id, msg)
	}
	c.metrics.RelayedEvents.WithLabelValues(msg.Type).Inc()
}

func (c *Core) drop(p *domain.Participant, event, reason string, err error) {
	c.metrics.DroppedEvents.WithLabelValues(reason).Inc()

	extra := map[logging.ExtraKey]any{
		logging.ConnectionID: p.ConnectionID,
		logging.Event:        event,
		logging.ErrorMessage: err.Error(),
	}
	if errors.Is(err, domain.ErrUnknownRoom) {
		c.logger.Debug(logging.Relay, logging.Dispatch, "event for unknown room ignored", extra)
		return
	}
	c.logger.Warn(logging.Relay, logging.Dispatch, "event dropped", extra)
}

func (c *Core) publish(entry *domain.BoardAuditLog) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		if err := c.publisher.Publish(ctx, entry); err != nil {
			c.logger.Warn(logging.RabbitMQ, logging.Publish, "failed to publish board event", map[logging.ExtraKey]any{
				logging.BoardID:      entry.BoardID,
				logging.Event:        string(entry.EventType),
				logging.ErrorMessage: err.Error(),
			})
		}
	}()
}

func (c *Core) runChatWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-c.chatJobs:
			msg, err := c.chat.Post(ctx, job.boardID, job.sender, job.text)
			c.post(func() {
				c.deliverChat(job, msg, err)
			})
		}
	}
}

// deliverChat runs on the loop once the append finished. Only stored
// messages are broadcast.
func (c *Core) deliverChat(job chatJob, msg *domain.ChatMessage, err error) {
	if err != nil {
		code := CodeChatNotSaved
		text := "message could not be saved"
		if errors.Is(err, domain.ErrInvalidInput) {
			code = CodeChatInvalid
			text = "message must be between 1 and 1000 characters"
		}
		c.sendTo(job.sender.ConnectionID, NewError(job.boardID, code, text))
		return
	}

	c.broadcast(job.boardID, NewChatMessage(msg))
}

// shutdown flushes every room through the same single-flight path as the
// autosave, then keeps serving save completions until none are in flight.
func (c *Core) shutdown() {
	for boardID := range c.sessions {
		c.closeSession(boardID)
	}

	for id, conn := range c.conns {
		conn.Close()
		delete(c.conns, id)
	}

	deadline := time.NewTimer(c.options.FlushTimeout)
	defer deadline.Stop()

	for c.savesInFlight > 0 {
		select {
		case fn := <-c.calls:
			fn()
		case <-deadline.C:
			c.logger.Error(logging.Snapshot, logging.Shutdown, "final flush timed out", nil)
			c.cancelSaves()
			return
		}
	}

	c.logger.Info(logging.Relay, logging.Shutdown, "relay core stopped", nil)
}
