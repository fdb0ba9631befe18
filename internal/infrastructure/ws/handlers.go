package ws

import (
	"context"
	"fmt"

	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/application/usecases/snapshot"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/domain"
	wsjson "github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/json"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/logging"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/validate"
)

// roomFor resolves the target board of a room-scoped operation and checks the
// sender is a member of it.
func (c *Core) roomFor(p *domain.Participant, msg *InboundMessage) (string, bool) {
	boardID := msg.ResolveBoardID()
	if err := validate.BoardID(boardID); err != nil {
		c.drop(p, msg.Type, "malformed", fmt.Errorf("%w: %v", domain.ErrMalformedOperation, err))
		return "", false
	}
	if !c.directory.Exists(boardID) {
		c.drop(p, msg.Type, "unknown_room", domain.ErrUnknownRoom)
		return "", false
	}
	if !c.directory.IsMember(boardID, p.ConnectionID) {
		c.drop(p, msg.Type, "not_member", domain.ErrNotRoomMember)
		return "", false
	}
	return boardID, true
}

func (c *Core) handleJoin(p *domain.Participant, msg *InboundMessage) {
	boardID := msg.ResolveBoardID()
	if err := validate.BoardID(boardID); err != nil {
		c.drop(p, msg.Type, "malformed", fmt.Errorf("%w: %v", domain.ErrMalformedOperation, err))
		c.sendTo(p.ConnectionID, NewError("", CodeJoinFailed, err.Error()))
		return
	}

	// A connection sits in at most one room.
	for _, other := range c.directory.RoomsOf(p.ConnectionID) {
		if other != boardID {
			c.leaveRoom(other, p)
		}
	}

	if created := c.directory.Join(boardID, p.ConnectionID); created {
		c.openSession(boardID)
	}

	members := c.directory.MembersOf(boardID)
	joined := NewUserJoined(boardID, p)
	others := make([]MemberPayload, 0, len(members))
	for _, id := range members {
		if id == p.ConnectionID {
			continue
		}
		c.sendTo(id, joined)
		if member := c.registry.Lookup(id); member != nil {
			others = append(others, MemberPayload{UserID: member.UserID, Username: member.Username})
		}
	}
	c.sendTo(p.ConnectionID, NewRoomUsers(boardID, others))

	c.metrics.Rooms.Set(float64(c.directory.Len()))
	c.logger.Info(logging.Relay, logging.Join, "participant joined room", map[logging.ExtraKey]any{
		logging.BoardID:      boardID,
		logging.ConnectionID: p.ConnectionID,
		logging.UserID:       p.UserID,
		logging.Members:      len(members),
	})
	c.publish(domain.NewParticipantJoinedLog(boardID, p.UserID, len(members)))

	c.hydrate(boardID, p.ConnectionID)
}

func (c *Core) handleLeave(p *domain.Participant, msg *InboundMessage) {
	boardID := msg.ResolveBoardID()
	if err := validate.BoardID(boardID); err != nil {
		c.drop(p, msg.Type, "malformed", fmt.Errorf("%w: %v", domain.ErrMalformedOperation, err))
		return
	}
	c.leaveRoom(boardID, p)
}

// leaveRoom is a no-op when the connection is not in the room.
func (c *Core) leaveRoom(boardID string, p *domain.Participant) {
	removed, deleted := c.directory.Leave(boardID, p.ConnectionID)
	if !removed {
		return
	}

	remaining := c.directory.MembersOf(boardID)
	left := NewUserLeft(boardID, p)
	for _, id := range remaining {
		c.sendTo(id, left)
	}

	if sess, ok := c.sessions[boardID]; ok {
		sess.waiters = without(sess.waiters, p.ConnectionID)
		sess.waiting = without(sess.waiting, p.ConnectionID)
	}
	if deleted {
		c.closeSession(boardID)
	}

	c.metrics.Rooms.Set(float64(c.directory.Len()))
	c.logger.Info(logging.Relay, logging.Leave, "participant left room", map[logging.ExtraKey]any{
		logging.BoardID:      boardID,
		logging.ConnectionID: p.ConnectionID,
		logging.UserID:       p.UserID,
		logging.Members:      len(remaining),
	})
	c.publish(domain.NewParticipantLeftLog(boardID, p.UserID, len(remaining)))
}

func (c *Core) handleCanvasUpdate(p *domain.Participant, msg *InboundMessage) {
	boardID, ok := c.roomFor(p, msg)
	if !ok {
		return
	}

	var op CanvasUpdatePayload
	if err := wsjson.Unmarshal(msg.Data, &op); err != nil {
		c.drop(p, msg.Type, "malformed", fmt.Errorf("%w: %v", domain.ErrMalformedOperation, err))
		return
	}
	if !validCanvasType(op.Type) {
		c.drop(p, msg.Type, "malformed", fmt.Errorf("%w: unknown canvas operation %q", domain.ErrMalformedOperation, op.Type))
		return
	}

	fields, err := enrich(msg.Data, p)
	if err != nil {
		c.drop(p, msg.Type, "malformed", err)
		return
	}
	if _, ok := fields["boardId"]; !ok {
		fields["boardId"], _ = wsjson.Marshal(boardID)
	}

	if op.Type == FullCanvas {
		c.sessions[boardID].setCanvas(op.Data)
	}

	c.relay(boardID, p.ConnectionID, NewRelayed(CanvasUpdate, boardID, fields))
}

func (c *Core) handleCursorMove(p *domain.Participant, msg *InboundMessage) {
	boardID, ok := c.roomFor(p, msg)
	if !ok {
		return
	}

	fields, err := enrich(msg.Data, p)
	if err != nil {
		c.drop(p, msg.Type, "malformed", err)
		return
	}

	c.relay(boardID, p.ConnectionID, NewRelayed(CursorMove, boardID, fields))
}

// Sticky-note events are relayed verbatim. The room state is updated on a
// best effort basis so autosave can persist it.
func (c *Core) handleStickyNoteAdd(p *domain.Participant, msg *InboundMessage) {
	boardID, ok := c.roomFor(p, msg)
	if !ok {
		return
	}

	var payload StickyNoteAddPayload
	if err := wsjson.Unmarshal(msg.Data, &payload); err == nil {
		c.sessions[boardID].upsertNote(payload.Note)
	}

	c.relay(boardID, p.ConnectionID, NewRelayed(StickyNoteAdd, boardID, msg.Data))
}

func (c *Core) handleStickyNoteUpdate(p *domain.Participant, msg *InboundMessage) {
	boardID, ok := c.roomFor(p, msg)
	if !ok {
		return
	}

	var payload StickyNoteUpdatePayload
	if err := wsjson.Unmarshal(msg.Data, &payload); err == nil {
		c.sessions[boardID].updateNote(payload)
	}

	c.relay(boardID, p.ConnectionID, NewRelayed(StickyNoteUpdate, boardID, msg.Data))
}

func (c *Core) handleStickyNoteDelete(p *domain.Participant, msg *InboundMessage) {
	boardID, ok := c.roomFor(p, msg)
	if !ok {
		return
	}

	var payload StickyNoteDeletePayload
	if err := wsjson.Unmarshal(msg.Data, &payload); err == nil && payload.NoteID != "" {
		c.sessions[boardID].deleteNote(payload.NoteID)
	}

	c.relay(boardID, p.ConnectionID, NewRelayed(StickyNoteDelete, boardID, msg.Data))
}

func (c *Core) handleChatMessage(p *domain.Participant, msg *InboundMessage) {
	boardID, ok := c.roomFor(p, msg)
	if !ok {
		return
	}

	var payload ChatMessagePayload
	if err := wsjson.Unmarshal(msg.Data, &payload); err != nil {
		c.drop(p, msg.Type, "malformed", fmt.Errorf("%w: %v", domain.ErrMalformedOperation, err))
		c.sendTo(p.ConnectionID, NewError(boardID, CodeChatInvalid, "chat payload must carry text"))
		return
	}

	select {
	case c.chatJobs <- chatJob{boardID: boardID, sender: p, text: payload.Text}:
	default:
		c.metrics.DroppedEvents.WithLabelValues("chat_busy").Inc()
		c.sendTo(p.ConnectionID, NewError(boardID, CodeChatBusy, "chat is busy, try again"))
	}
}

func (c *Core) handleBoardSave(p *domain.Participant, msg *InboundMessage) {
	boardID, ok := c.roomFor(p, msg)
	if !ok {
		return
	}

	var payload BoardSavePayload
	if err := wsjson.Unmarshal(msg.Data, &payload); err != nil {
		c.drop(p, msg.Type, "malformed", fmt.Errorf("%w: %v", domain.ErrMalformedOperation, err))
		c.sendTo(p.ConnectionID, NewError(boardID, CodeBadMessage, "board-save payload is invalid"))
		return
	}

	snap, err := domain.NewBoardSnapshot(boardID, payload.CanvasData, payload.StickyNotes)
	if err != nil {
		c.sendTo(p.ConnectionID, NewError(boardID, CodeBadMessage, err.Error()))
		return
	}

	sess := c.sessions[boardID]
	sess.replace(snap)
	sess.dirty = true
	sess.waiters = append(sess.waiters, p.ConnectionID)
	c.persist(sess, snapshot.TriggerOnDemand)
}

func (c *Core) openSession(boardID string) {
	ctx, cancel := context.WithCancel(context.Background())
	sess := newRoomSession(ctx, boardID, cancel)
	c.sessions[boardID] = sess

	c.activeTimers.Add(1)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.activeTimers.Add(-1)
		sess.runAutosave(ctx, c.options.AutosaveInterval, func() {
			c.post(func() { c.autosave(sess) })
		})
	}()

	c.startLoad(sess)

	c.logger.Debug(logging.Relay, logging.Join, "room opened", map[logging.ExtraKey]any{
		logging.BoardID: boardID,
	})
	c.publish(domain.NewBoardOpenedLog(boardID))
}

// closeSession cancels the room timer exactly once and flushes unsaved state.
func (c *Core) closeSession(boardID string) {
	sess, ok := c.sessions[boardID]
	if !ok {
		return
	}
	delete(c.sessions, boardID)
	sess.stop()

	flushed := sess.dirty
	if sess.dirty {
		if sess.persistable() {
			c.persist(sess, snapshot.TriggerFlush)
		} else {
			c.flushMerged(sess)
		}
	}

	c.logger.Debug(logging.Relay, logging.Leave, "room closed", map[logging.ExtraKey]any{
		logging.BoardID: boardID,
	})
	c.publish(domain.NewBoardClosedLog(boardID, flushed))
}

func (c *Core) hydrate(boardID, connectionID string) {
	sess := c.sessions[boardID]
	if !sess.loaded {
		sess.waiting = append(sess.waiting, connectionID)
		return
	}
	c.sendState(sess, connectionID)
}

func (c *Core) sendState(sess *roomSession, connectionID string) {
	if len(sess.canvas) > 0 {
		c.sendTo(connectionID, NewFullCanvas(sess.boardID, sess.canvas))
	}
	c.sendTo(connectionID, NewStickyNotesSync(sess.boardID, sess.notesCopy()))
}

// startLoad fetches the stored board off the loop. The fetch is abandoned
// when the room closes.
func (c *Core) startLoad(sess *roomSession) {
	sess.loading = true
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		stored, err := c.snapshots.Load(sess.ctx, sess.boardID)
		c.post(func() { c.applyLoaded(sess, stored, err) })
	}()
}

func (c *Core) applyLoaded(sess *roomSession, stored *domain.BoardSnapshot, err error) {
	if c.sessions[sess.boardID] != sess {
		return
	}
	sess.loading = false

	if err != nil {
		c.logger.Warn(logging.Snapshot, logging.Load, "continuing room without stored snapshot", map[logging.ExtraKey]any{
			logging.BoardID:      sess.boardID,
			logging.ErrorMessage: err.Error(),
		})
		if !sess.loaded {
			sess.markLoadFailed()
			c.hydrateWaiting(sess)
		}
		return
	}

	recovered := sess.loadFailed && !sess.replaced
	sess.merge(stored)

	if recovered {
		c.logger.Info(logging.Snapshot, logging.Load, "stored snapshot recovered", map[logging.ExtraKey]any{
			logging.BoardID: sess.boardID,
		})
		for _, id := range c.directory.MembersOf(sess.boardID) {
			c.sendState(sess, id)
		}
		return
	}
	c.hydrateWaiting(sess)
}

func (c *Core) hydrateWaiting(sess *roomSession) {
	waiting := sess.waiting
	sess.waiting = nil
	for _, id := range waiting {
		if c.directory.IsMember(sess.boardID, id) {
			c.sendState(sess, id)
		}
	}
}

// autosave never writes a room whose stored board is still unknown; the load
// is retried instead.
func (c *Core) autosave(sess *roomSession) {
	if c.sessions[sess.boardID] != sess {
		return
	}
	if !sess.persistable() {
		if sess.loaded && !sess.loading {
			c.startLoad(sess)
		}
		return
	}
	if sess.dirty {
		c.persist(sess, snapshot.TriggerAutosave)
	}
}

// persist runs at most one save per session at a time so an older snapshot
// can never land after a newer one.
func (c *Core) persist(sess *roomSession, trigger string) {
	if sess.saving {
		sess.requeue = true
		return
	}

	snap := sess.snapshot()
	waiters := sess.waiters
	sess.waiters = nil
	sess.dirty = false
	sess.saving = true
	c.savesInFlight++

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		err := c.snapshots.Save(c.saveCtx, snap, trigger)
		c.post(func() { c.saveDone(sess, snap, waiters, err) })
	}()
}

func (c *Core) saveDone(sess *roomSession, snap *domain.BoardSnapshot, waiters []string, err error) {
	sess.saving = false
	c.savesInFlight--

	for _, id := range waiters {
		if err != nil {
			c.sendTo(id, NewError(sess.boardID, CodeSaveFailed, "board could not be saved"))
			continue
		}
		c.sendTo(id, NewBoardSaved(sess.boardID, snap.UpdatedAt))
	}

	live := c.sessions[sess.boardID] == sess
	if err != nil {
		// Retried on the next tick while the room lives.
		sess.dirty = true
		if !live {
			return
		}
	}

	if !sess.requeue {
		return
	}
	sess.requeue = false
	if sess.dirty || len(sess.waiters) > 0 {
		trigger := snapshot.TriggerOnDemand
		if !live {
			trigger = snapshot.TriggerFlush
		}
		c.persist(sess, trigger)
	}
}

// flushMerged writes a closed room whose stored board never reached memory.
// The board is loaded again and the unsaved edits are laid over it; when the
// store stays unreachable the edits are dropped rather than replacing it.
func (c *Core) flushMerged(sess *roomSession) {
	pending := sess.detach()
	c.savesInFlight++

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.post(func() { c.savesInFlight-- })

		stored, err := c.snapshots.Load(c.saveCtx, pending.boardID)
		if err != nil {
			c.logger.Error(logging.Snapshot, logging.Save, "unsaved room edits dropped, stored snapshot unavailable", map[logging.ExtraKey]any{
				logging.BoardID:      pending.boardID,
				logging.ErrorMessage: err.Error(),
			})
			return
		}

		pending.merge(stored)
		if err := c.snapshots.Save(c.saveCtx, pending.snapshot(), snapshot.TriggerFlush); err != nil {
			c.logger.Error(logging.Snapshot, logging.Save, "final flush failed", map[logging.ExtraKey]any{
				logging.BoardID:      pending.boardID,
				logging.ErrorMessage: err.Error(),
			})
		}
	}()
}

func without(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
