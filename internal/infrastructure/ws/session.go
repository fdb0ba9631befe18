package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/domain"
)

// roomSession is the live state of one room: the latest full canvas, the
// sticky notes and the autosave timer. Everything except the timer goroutine
// is touched only from the Core loop.
type roomSession struct {
	boardID string
	canvas  json.RawMessage
	notes   []domain.StickyNote

	// loaded flips once the stored snapshot arrived or failed to. Joiners are
	// hydrated from memory from then on.
	loaded bool
	// loadFailed keeps the room unsaveable until a retried load succeeds, so
	// partial state never replaces the stored board.
	loadFailed bool
	loading    bool
	// replaced means a client pushed a whole board, which makes the memory
	// state authoritative regardless of the load.
	replaced   bool
	tombstones map[string]struct{}
	waiting    []string

	dirty   bool
	saving  bool
	requeue bool
	waiters []string

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
}

func newRoomSession(ctx context.Context, boardID string, cancel context.CancelFunc) *roomSession {
	return &roomSession{
		boardID:    boardID,
		notes:      []domain.StickyNote{},
		tombstones: make(map[string]struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// persistable reports whether the memory state may replace the stored board.
func (s *roomSession) persistable() bool {
	return s.replaced || (s.loaded && !s.loadFailed)
}

// detach copies the unsaved edits of a closed room so they can be merged with
// the stored board off the loop.
func (s *roomSession) detach() *roomSession {
	d := &roomSession{
		boardID:    s.boardID,
		canvas:     append(json.RawMessage(nil), s.canvas...),
		notes:      s.notesCopy(),
		tombstones: make(map[string]struct{}, len(s.tombstones)),
	}
	for id := range s.tombstones {
		d.tombstones[id] = struct{}{}
	}
	return d
}

// runAutosave calls tick every interval until the session is stopped.
func (s *roomSession) runAutosave(ctx context.Context, interval time.Duration, tick func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick()
		}
	}
}

func (s *roomSession) stop() {
	if s.cancel != nil {
		s.stopOnce.Do(s.cancel)
	}
}

// snapshot copies the state so it can leave the loop goroutine.
func (s *roomSession) snapshot() *domain.BoardSnapshot {
	snap := &domain.BoardSnapshot{
		BoardID:     s.boardID,
		CanvasData:  s.canvas,
		StickyNotes: s.notes,
		UpdatedAt:   time.Now(),
	}
	return snap.Clone()
}

func (s *roomSession) notesCopy() []domain.StickyNote {
	notes := make([]domain.StickyNote, len(s.notes))
	copy(notes, s.notes)
	return notes
}

func (s *roomSession) indexOf(noteID string) int {
	for i := range s.notes {
		if s.notes[i].ID == noteID {
			return i
		}
	}
	return -1
}

func (s *roomSession) setCanvas(data json.RawMessage) {
	s.canvas = append(json.RawMessage(nil), data...)
	s.dirty = true
}

// upsertNote applies an add last-writer-wins. Unknown colors fall back to yellow.
func (s *roomSession) upsertNote(note domain.StickyNote) bool {
	if !note.Color.Valid() {
		note.Color = domain.NoteYellow
	}
	if err := note.Validate(); err != nil {
		return false
	}

	delete(s.tombstones, note.ID)
	if i := s.indexOf(note.ID); i >= 0 {
		s.notes[i] = note
	} else {
		s.notes = append(s.notes, note)
	}
	s.dirty = true
	return true
}

func (s *roomSession) updateNote(update StickyNoteUpdatePayload) bool {
	i := s.indexOf(update.NoteID)
	if i < 0 {
		return false
	}

	note := &s.notes[i]
	if update.Text != nil {
		note.Text = *update.Text
	}
	if update.Color != nil && update.Color.Valid() {
		note.Color = *update.Color
	}
	if update.Position != nil {
		note.Position = *update.Position
	}
	s.dirty = true
	return true
}

func (s *roomSession) deleteNote(noteID string) bool {
	if !s.persistable() {
		s.tombstones[noteID] = struct{}{}
	}

	i := s.indexOf(noteID)
	if i < 0 {
		return false
	}
	s.notes = append(s.notes[:i], s.notes[i+1:]...)
	s.dirty = true
	return true
}

// replace installs a whole board pushed by a client or the HTTP API.
func (s *roomSession) replace(snap *domain.BoardSnapshot) {
	s.canvas = append(json.RawMessage(nil), snap.CanvasData...)
	s.notes = make([]domain.StickyNote, len(snap.StickyNotes))
	copy(s.notes, snap.StickyNotes)
	if !s.persistable() {
		s.replaced = true
	}
}

// markLoadFailed lets the room continue from memory. Tombstones are kept for
// the retried load.
func (s *roomSession) markLoadFailed() {
	s.loaded = true
	s.loadFailed = true
}

// merge lays the stored snapshot under whatever changed while it loaded.
func (s *roomSession) merge(stored *domain.BoardSnapshot) {
	defer func() {
		s.loaded = true
		s.loadFailed = false
		s.tombstones = make(map[string]struct{})
	}()

	if stored == nil || s.replaced {
		return
	}

	if s.canvas == nil {
		s.canvas = stored.CanvasData
	}

	base := make([]domain.StickyNote, 0, len(stored.StickyNotes)+len(s.notes))
	for _, note := range stored.StickyNotes {
		if _, gone := s.tombstones[note.ID]; gone {
			continue
		}
		if s.indexOf(note.ID) >= 0 {
			continue
		}
		base = append(base, note)
	}
	s.notes = append(base, s.notes...)
}
