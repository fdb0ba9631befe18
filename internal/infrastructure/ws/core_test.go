package ws

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/application/usecases/chat"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/application/usecases/snapshot"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/domain"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/events"
	wsjson "github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/json"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/logging"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/metrics"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/ratelimiter"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/repository"
)

const (
	eventWait   = time.Second
	silenceWait = 100 * time.Millisecond
)

type mockConn struct {
	id     string
	send   chan *WSMessage
	closed atomic.Bool
}

func newMockConn(id string) *mockConn {
	return &mockConn{id: id, send: make(chan *WSMessage, 64)}
}

func (m *mockConn) ID() string { return m.id }

func (m *mockConn) Send(msg *WSMessage) bool {
	if m.closed.Load() {
		return false
	}
	select {
	case m.send <- msg:
		return true
	default:
		return false
	}
}

func (m *mockConn) Close() { m.closed.Store(true) }

type failingChatRepository struct{}

func (failingChatRepository) Append(context.Context, *domain.ChatMessage, int) error {
	return errors.New("store down")
}

func (failingChatRepository) Recent(context.Context, string, int) ([]domain.ChatMessage, error) {
	return nil, errors.New("store down")
}

// stubBoardRepository wraps the in-memory store with gates that hold loads
// or saves until closed, and a count of loads that should fail.
type stubBoardRepository struct {
	domain.BoardRepository

	loadGate chan struct{}
	saveGate chan struct{}
	// failLoads is the number of loads left to fail; negative fails all.
	failLoads atomic.Int64
	loads     atomic.Int64
	saves     atomic.Int64
}

func newStubBoardRepository() *stubBoardRepository {
	return &stubBoardRepository{BoardRepository: repository.NewBoardRepository()}
}

func waitGate(ctx context.Context, gate chan struct{}) error {
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *stubBoardRepository) Load(ctx context.Context, boardID string) (*domain.BoardSnapshot, error) {
	r.loads.Add(1)
	if err := waitGate(ctx, r.loadGate); err != nil {
		return nil, err
	}
	if n := r.failLoads.Load(); n != 0 {
		if n > 0 {
			r.failLoads.Add(-1)
		}
		return nil, errors.New("store down")
	}
	return r.BoardRepository.Load(ctx, boardID)
}

func (r *stubBoardRepository) Save(ctx context.Context, snap *domain.BoardSnapshot) error {
	r.saves.Add(1)
	if err := waitGate(ctx, r.saveGate); err != nil {
		return err
	}
	return r.BoardRepository.Save(ctx, snap)
}

// stored reads the board without passing the gates.
func (r *stubBoardRepository) stored(t *testing.T, boardID string) *domain.BoardSnapshot {
	t.Helper()
	snap, err := r.BoardRepository.Load(context.Background(), boardID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return snap
}

func seedBoard(t *testing.T, repo domain.BoardRepository, boardID, canvas string, notes ...domain.StickyNote) {
	t.Helper()
	snap, err := domain.NewBoardSnapshot(boardID, []byte(canvas), notes)
	if err != nil {
		t.Fatalf("NewBoardSnapshot failed: %v", err)
	}
	if err := repo.Save(context.Background(), snap); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
}

func noteIDs(notes []domain.StickyNote) []string {
	ids := make([]string, 0, len(notes))
	for _, n := range notes {
		ids = append(ids, n.ID)
	}
	return ids
}

type testRelay struct {
	core   *Core
	boards domain.BoardRepository
	cancel context.CancelFunc
	done   chan struct{}
}

type relayOption func(*relayConfig)

type relayConfig struct {
	options Options
	chats   domain.ChatRepository
	boards  domain.BoardRepository
	limiter ratelimiter.Limiter
}

func withAutosave(d time.Duration) relayOption {
	return func(c *relayConfig) { c.options.AutosaveInterval = d }
}

func withChatRepository(r domain.ChatRepository) relayOption {
	return func(c *relayConfig) { c.chats = r }
}

func withBoardRepository(r domain.BoardRepository) relayOption {
	return func(c *relayConfig) { c.boards = r }
}

func withLimiter(l ratelimiter.Limiter) relayOption {
	return func(c *relayConfig) { c.limiter = l }
}

func newTestRelay(t *testing.T, opts ...relayOption) *testRelay {
	t.Helper()

	cfg := relayConfig{
		options: Options{AutosaveInterval: time.Hour},
		chats:   repository.NewChatRepository(),
		boards:  repository.NewBoardRepository(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := logging.NewLogger(&logging.LoggerConfig{Logger: "zap", Level: "fatal", Encoding: "json"})
	m := metrics.New()
	boards := cfg.boards

	core := NewCore(
		chat.NewChatUseCase(cfg.chats, chat.Options{}, logger, m),
		snapshot.NewSnapshotUseCase(boards, events.NopPublisher{}, time.Second, logger, m),
		events.NopPublisher{},
		cfg.limiter,
		cfg.options,
		logger,
		m,
	)

	ctx, cancel := context.WithCancel(context.Background())
	r := &testRelay{core: core, boards: boards, cancel: cancel, done: make(chan struct{})}
	go func() {
		core.Run(ctx)
		close(r.done)
	}()

	t.Cleanup(r.stop)
	return r
}

func (r *testRelay) stop() {
	r.cancel()
	<-r.done
}

func (r *testRelay) connect(t *testing.T, connID, userID, username string) *mockConn {
	t.Helper()
	conn := newMockConn(connID)
	if err := r.core.Register(context.Background(), conn, domain.Identity{UserID: userID, Username: username}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return conn
}

func (r *testRelay) emit(t *testing.T, conn *mockConn, eventType, boardID string, data any) {
	t.Helper()

	msg := InboundMessage{Type: eventType, BoardID: boardID}
	if data != nil {
		raw, err := wsjson.Marshal(data)
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
		msg.Data = raw
	}

	raw, err := wsjson.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	r.core.Submit(conn.id, raw)
}

// join waits until the joiner got its member list.
func (r *testRelay) join(t *testing.T, conn *mockConn, boardID string) *WSMessage {
	t.Helper()
	r.emit(t, conn, JoinRoom, boardID, nil)
	return expectEvent(t, conn, RoomUsers)
}

// expectEvent skips unrelated events until one of eventType arrives.
func expectEvent(t *testing.T, conn *mockConn, eventType string) *WSMessage {
	t.Helper()
	timeout := time.After(eventWait)
	for {
		select {
		case msg := <-conn.send:
			if msg.Type == eventType {
				return msg
			}
		case <-timeout:
			t.Fatalf("Timed out waiting for %s on %s", eventType, conn.id)
			return nil
		}
	}
}

// drain collects everything that arrives within wait.
func drain(conn *mockConn, wait time.Duration) []*WSMessage {
	var msgs []*WSMessage
	timeout := time.After(wait)
	for {
		select {
		case msg := <-conn.send:
			msgs = append(msgs, msg)
		case <-timeout:
			return msgs
		}
	}
}

func countType(msgs []*WSMessage, eventType string) int {
	n := 0
	for _, m := range msgs {
		if m.Type == eventType {
			n++
		}
	}
	return n
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(eventWait)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func asJSON(t *testing.T, v any) map[string]any {
	t.Helper()
	raw, err := wsjson.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	return out
}

func TestJoinNotifiesOthersAndListsMembers(t *testing.T) {
	r := newTestRelay(t)
	a := r.connect(t, "a", "u1", "alice")
	b := r.connect(t, "b", "u2", "bob")
	c := r.connect(t, "c", "u3", "carol")

	r.join(t, b, "R")
	r.join(t, c, "R")
	drain(b, silenceWait)

	users := r.join(t, a, "R")

	members, ok := users.Data.([]MemberPayload)
	if !ok {
		t.Fatalf("Expected []MemberPayload, got %T", users.Data)
	}
	if len(members) != 2 {
		t.Fatalf("Expected 2 members, got %d: %+v", len(members), members)
	}
	for _, m := range members {
		if m.UserID == "u1" {
			t.Error("Expected joiner to be absent from its own room-users")
		}
	}

	for _, conn := range []*mockConn{b, c} {
		msgs := drain(conn, silenceWait)
		joined := 0
		for _, m := range msgs {
			if m.Type == UserJoined && m.Data.(MemberPayload).UserID == "u1" {
				joined++
			}
		}
		if joined != 1 {
			t.Errorf("Expected %s to see one user-joined for alice, got %d", conn.id, joined)
		}
	}

	if got := countType(drain(a, silenceWait), RoomUsers); got != 0 {
		t.Errorf("Expected exactly one room-users for alice, got %d more", got)
	}
}

func TestMembersOfReflectsJoins(t *testing.T) {
	r := newTestRelay(t)
	a := r.connect(t, "a", "u1", "alice")
	b := r.connect(t, "b", "u2", "bob")

	r.join(t, a, "abc")
	r.join(t, b, "abc")
	r.join(t, b, "abc")

	members, err := r.core.MembersOf(context.Background(), "abc")
	if err != nil {
		t.Fatalf("MembersOf failed: %v", err)
	}
	if len(members) != 2 {
		t.Errorf("Expected 2 members after duplicate join, got %v", members)
	}
}

func TestCanvasUpdateExcludesSender(t *testing.T) {
	r := newTestRelay(t)
	a := r.connect(t, "a", "u1", "alice")
	b := r.connect(t, "b", "u2", "bob")
	c := r.connect(t, "c", "u3", "carol")
	for _, conn := range []*mockConn{a, b, c} {
		r.join(t, conn, "R")
	}
	for _, conn := range []*mockConn{a, b, c} {
		drain(conn, silenceWait)
	}

	r.emit(t, a, CanvasUpdate, "", map[string]any{
		"boardId": "R",
		"type":    PathCreated,
		"data":    map[string]any{"path": "M 0 0 L 1 1"},
	})

	for _, conn := range []*mockConn{b, c} {
		msgs := drain(conn, silenceWait)
		if got := countType(msgs, CanvasUpdate); got != 1 {
			t.Fatalf("Expected %s to receive one canvas-update, got %d", conn.id, got)
		}
		payload := asJSON(t, msgs[0].Data)
		if payload["userId"] != "u1" || payload["username"] != "alice" {
			t.Errorf("Expected sender identity on relayed update, got %v", payload)
		}
		if payload["type"] != PathCreated || payload["boardId"] != "R" {
			t.Errorf("Expected original fields to survive, got %v", payload)
		}
	}

	if got := countType(drain(a, silenceWait), CanvasUpdate); got != 0 {
		t.Errorf("Expected sender to receive nothing, got %d", got)
	}
}

func TestMalformedCanvasUpdateIsDropped(t *testing.T) {
	r := newTestRelay(t)
	a := r.connect(t, "a", "u1", "alice")
	b := r.connect(t, "b", "u2", "bob")
	r.join(t, a, "R")
	r.join(t, b, "R")
	drain(b, silenceWait)

	r.emit(t, a, CanvasUpdate, "", map[string]any{"type": PathCreated})
	r.emit(t, a, CanvasUpdate, "R", map[string]any{"type": "teleport"})

	if got := countType(drain(b, silenceWait), CanvasUpdate); got != 0 {
		t.Errorf("Expected malformed updates to be dropped, got %d", got)
	}

	// the relay keeps working afterwards
	r.emit(t, a, CanvasUpdate, "R", map[string]any{"type": ObjectAdded})
	expectEvent(t, b, CanvasUpdate)
}

func TestOperationFromNonMemberIsDropped(t *testing.T) {
	r := newTestRelay(t)
	a := r.connect(t, "a", "u1", "alice")
	b := r.connect(t, "b", "u2", "bob")
	r.join(t, b, "R")

	r.emit(t, a, StickyNoteAdd, "R", map[string]any{"boardId": "R", "note": note("n1", "x")})
	r.emit(t, a, CanvasUpdate, "nowhere", map[string]any{"type": PathCreated})

	if msgs := drain(b, silenceWait); countType(msgs, StickyNoteAdd) != 0 {
		t.Error("Expected operation from a non-member to be dropped")
	}
}

func TestChatBroadcastIncludesSender(t *testing.T) {
	r := newTestRelay(t)
	a := r.connect(t, "a", "u1", "alice")
	b := r.connect(t, "b", "u2", "bob")
	c := r.connect(t, "c", "u3", "carol")
	for _, conn := range []*mockConn{a, b, c} {
		r.join(t, conn, "R")
	}
	for _, conn := range []*mockConn{a, b, c} {
		drain(conn, silenceWait)
	}

	r.emit(t, a, ChatMessage, "R", ChatMessagePayload{BoardID: "R", Text: "  hello  "})

	var first *domain.ChatMessage
	for _, conn := range []*mockConn{a, b, c} {
		msgs := drain(conn, silenceWait)
		if got := countType(msgs, ChatMessage); got != 1 {
			t.Fatalf("Expected %s to receive one chat-message, got %d", conn.id, got)
		}
		msg := msgs[0].Data.(*domain.ChatMessage)
		if msg.Text != "hello" || msg.UserID != "u1" {
			t.Errorf("Unexpected chat message %+v", msg)
		}
		if first == nil {
			first = msg
			continue
		}
		if msg.ID != first.ID || !msg.CreatedAt.Equal(first.CreatedAt) {
			t.Errorf("Expected identical id and timestamp, got %s/%v and %s/%v", msg.ID, msg.CreatedAt, first.ID, first.CreatedAt)
		}
	}
}

func TestChatNotBroadcastWhenAppendFails(t *testing.T) {
	r := newTestRelay(t, withChatRepository(failingChatRepository{}))
	a := r.connect(t, "a", "u1", "alice")
	b := r.connect(t, "b", "u2", "bob")
	r.join(t, a, "R")
	r.join(t, b, "R")
	drain(a, silenceWait)

	r.emit(t, a, ChatMessage, "R", ChatMessagePayload{BoardID: "R", Text: "lost"})

	errMsg := expectEvent(t, a, ErrorEvent)
	if code := errMsg.Data.(ErrorPayload).Code; code != CodeChatNotSaved {
		t.Errorf("Expected %s, got %s", CodeChatNotSaved, code)
	}
	if got := countType(drain(b, silenceWait), ChatMessage); got != 0 {
		t.Errorf("Expected no broadcast after a failed append, got %d", got)
	}
}

func TestChatRejectsEmptyText(t *testing.T) {
	r := newTestRelay(t)
	a := r.connect(t, "a", "u1", "alice")
	r.join(t, a, "R")

	r.emit(t, a, ChatMessage, "R", ChatMessagePayload{BoardID: "R", Text: "   "})

	errMsg := expectEvent(t, a, ErrorEvent)
	if code := errMsg.Data.(ErrorPayload).Code; code != CodeChatInvalid {
		t.Errorf("Expected %s, got %s", CodeChatInvalid, code)
	}
}

func TestStickyNoteAddRelayedVerbatim(t *testing.T) {
	r := newTestRelay(t)
	alice := r.connect(t, "a", "u1", "alice")
	bob := r.connect(t, "b", "u2", "bob")
	r.join(t, alice, "abc")
	r.join(t, bob, "abc")
	drain(alice, silenceWait)
	drain(bob, silenceWait)

	payload := map[string]any{
		"boardId": "abc",
		"note": map[string]any{
			"id":       "n1",
			"text":     "remember the milk",
			"color":    "pink",
			"position": map[string]any{"x": 10.0, "y": 20.0},
		},
	}
	r.emit(t, alice, StickyNoteAdd, "", payload)

	got := expectEvent(t, bob, StickyNoteAdd)
	raw, ok := got.Data.(json.RawMessage)
	if !ok {
		t.Fatalf("Expected raw passthrough, got %T", got.Data)
	}

	var relayed map[string]any
	if err := json.Unmarshal(raw, &relayed); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !reflect.DeepEqual(relayed, asJSON(t, payload)) {
		t.Errorf("Expected identical note payload, got %s", raw)
	}

	if n := countType(drain(alice, silenceWait), StickyNoteAdd); n != 0 {
		t.Errorf("Expected alice to receive nothing back, got %d", n)
	}
}

func TestLeaveNotifiesRemainingMembers(t *testing.T) {
	r := newTestRelay(t)
	a := r.connect(t, "a", "u1", "alice")
	b := r.connect(t, "b", "u2", "bob")
	r.join(t, a, "R")
	r.join(t, b, "R")

	r.emit(t, a, LeaveRoom, "R", nil)
	left := expectEvent(t, b, UserLeft)
	if left.Data.(MemberPayload).UserID != "u1" {
		t.Errorf("Expected alice to leave, got %+v", left.Data)
	}

	// leaving again is a silent no-op
	r.emit(t, a, LeaveRoom, "R", nil)
	if n := countType(drain(b, silenceWait), UserLeft); n != 0 {
		t.Errorf("Expected no further user-left, got %d", n)
	}
	if msgs := drain(a, silenceWait); countType(msgs, ErrorEvent) != 0 {
		t.Error("Expected no error for leaving an absent room")
	}
}

func TestJoinAnotherBoardLeavesPrevious(t *testing.T) {
	r := newTestRelay(t)
	a := r.connect(t, "a", "u1", "alice")
	b := r.connect(t, "b", "u2", "bob")
	r.join(t, a, "R1")
	r.join(t, b, "R1")

	r.join(t, a, "R2")
	expectEvent(t, b, UserLeft)

	members, err := r.core.MembersOf(context.Background(), "R1")
	if err != nil {
		t.Fatalf("MembersOf failed: %v", err)
	}
	if len(members) != 1 || members[0] != "b" {
		t.Errorf("Expected only bob in R1, got %v", members)
	}
}

func TestDisconnectLeavesEveryRoomOnce(t *testing.T) {
	r := newTestRelay(t)
	a := r.connect(t, "a", "u1", "alice")
	b := r.connect(t, "b", "u2", "bob")
	c := r.connect(t, "c", "u3", "carol")
	r.join(t, b, "R1")
	r.join(t, c, "R2")

	// place alice in two rooms directly, bypassing the join discipline
	err := r.core.query(context.Background(), func() {
		for _, boardID := range []string{"R1", "R2"} {
			if r.core.directory.Join(boardID, "a") {
				r.core.openSession(boardID)
			}
		}
	})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}

	r.core.Unregister("a")
	r.core.Unregister("a")

	for _, conn := range []*mockConn{b, c} {
		if n := countType(drain(conn, 2*silenceWait), UserLeft); n != 1 {
			t.Errorf("Expected %s to see exactly one user-left, got %d", conn.id, n)
		}
	}

	for _, boardID := range []string{"R1", "R2"} {
		members, _ := r.core.MembersOf(context.Background(), boardID)
		for _, id := range members {
			if id == "a" {
				t.Errorf("Expected alice removed from %s", boardID)
			}
		}
	}

	if !a.closed.Load() {
		t.Error("Expected the connection to be closed")
	}

	stats, _ := r.core.Stats(context.Background())
	if stats.Connections != 2 {
		t.Errorf("Expected 2 connections, got %d", stats.Connections)
	}
}

func TestRoomTimerCancelledWhenEmpty(t *testing.T) {
	r := newTestRelay(t, withAutosave(10*time.Millisecond))
	a := r.connect(t, "a", "u1", "alice")
	b := r.connect(t, "b", "u2", "bob")

	r.join(t, a, "R")
	r.join(t, b, "R")
	eventually(t, "one timer", func() bool { return r.core.ActiveTimers() == 1 })

	r.core.Unregister("a")
	r.core.Unregister("b")
	r.core.Unregister("b")

	eventually(t, "timer cancelled", func() bool { return r.core.ActiveTimers() == 0 })

	stats, _ := r.core.Stats(context.Background())
	if stats.Rooms != 0 {
		t.Errorf("Expected no rooms, got %d", stats.Rooms)
	}
}

func TestAutosavePersistsFullCanvas(t *testing.T) {
	r := newTestRelay(t, withAutosave(20*time.Millisecond))
	a := r.connect(t, "a", "u1", "alice")
	r.join(t, a, "abc")

	r.emit(t, a, CanvasUpdate, "abc", map[string]any{
		"type": FullCanvas,
		"data": map[string]any{"version": "5.3.0", "objects": []any{}},
	})
	r.emit(t, a, StickyNoteAdd, "abc", map[string]any{"note": note("n1", "saved")})

	eventually(t, "autosave", func() bool {
		snap, err := r.boards.Load(context.Background(), "abc")
		return err == nil && len(snap.CanvasData) > 0 && len(snap.StickyNotes) == 1
	})
}

func TestFinalFlushWhenRoomCloses(t *testing.T) {
	r := newTestRelay(t)
	a := r.connect(t, "a", "u1", "alice")
	r.join(t, a, "abc")

	r.emit(t, a, StickyNoteAdd, "abc", map[string]any{"note": note("n1", "flushed")})
	r.emit(t, a, LeaveRoom, "abc", nil)

	eventually(t, "flush", func() bool {
		snap, err := r.boards.Load(context.Background(), "abc")
		return err == nil && len(snap.StickyNotes) == 1 && snap.StickyNotes[0].Text == "flushed"
	})
}

func TestJoinHydratesFromStore(t *testing.T) {
	r := newTestRelay(t)
	stored, _ := domain.NewBoardSnapshot("abc", []byte(`{"objects":[1]}`), []domain.StickyNote{note("n1", "stored")})
	if err := r.boards.Save(context.Background(), stored); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	a := r.connect(t, "a", "u1", "alice")
	r.join(t, a, "abc")

	canvas := expectEvent(t, a, CanvasUpdate)
	if canvas.Data.(CanvasUpdatePayload).Type != FullCanvas {
		t.Errorf("Expected full-canvas hydration, got %+v", canvas.Data)
	}

	sync := expectEvent(t, a, StickyNotesSync)
	notes := sync.Data.(StickyNotesSyncPayload).Notes
	if len(notes) != 1 || notes[0].ID != "n1" {
		t.Errorf("Expected stored note, got %+v", notes)
	}

	// a second joiner is served from memory, existing members get nothing
	b := r.connect(t, "b", "u2", "bob")
	r.join(t, b, "abc")
	expectEvent(t, b, StickyNotesSync)
	if n := countType(drain(a, silenceWait), StickyNotesSync); n != 0 {
		t.Errorf("Expected no re-broadcast to existing members, got %d", n)
	}
}

func TestBoardSaveIsAcknowledged(t *testing.T) {
	r := newTestRelay(t)
	a := r.connect(t, "a", "u1", "alice")
	r.join(t, a, "abc")

	r.emit(t, a, BoardSave, "abc", BoardSavePayload{
		BoardID:     "abc",
		CanvasData:  json.RawMessage(`{"objects":[]}`),
		StickyNotes: []domain.StickyNote{note("n1", "pushed")},
	})

	expectEvent(t, a, BoardSaved)
	snap, err := r.boards.Load(context.Background(), "abc")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(snap.StickyNotes) != 1 || snap.StickyNotes[0].Text != "pushed" {
		t.Errorf("Unexpected stored board %+v", snap)
	}
}

func TestThrottledEventsAreAnswered(t *testing.T) {
	limiter := ratelimiter.NewLocal(ratelimiter.Options{MaxRatePerSecond: 1, MaxBurst: 1})
	r := newTestRelay(t, withLimiter(limiter))
	a := r.connect(t, "a", "u1", "alice")

	r.join(t, a, "abc")
	r.emit(t, a, CursorMove, "abc", map[string]any{"x": 1, "y": 2})

	expectEvent(t, a, RateLimited)
}

func TestUndecodableFrameIsAnswered(t *testing.T) {
	r := newTestRelay(t)
	a := r.connect(t, "a", "u1", "alice")

	r.core.Submit("a", []byte("{not json"))

	errMsg := expectEvent(t, a, ErrorEvent)
	if code := errMsg.Data.(ErrorPayload).Code; code != CodeBadMessage {
		t.Errorf("Expected %s, got %s", CodeBadMessage, code)
	}
}

func TestRegisterAfterStop(t *testing.T) {
	r := newTestRelay(t)
	r.stop()

	err := r.core.Register(context.Background(), newMockConn("late"), domain.Identity{UserID: "u"})
	if !errors.Is(err, ErrCoreStopped) {
		t.Errorf("Expected ErrCoreStopped, got %v", err)
	}
}

const storedCanvas = `{"objects":[1,2,3]}`

func TestFlushWaitsForStoredBoard(t *testing.T) {
	repo := newStubBoardRepository()
	repo.loadGate = make(chan struct{})
	seedBoard(t, repo.BoardRepository, "abc", storedCanvas, note("old", "old"))

	r := newTestRelay(t, withBoardRepository(repo))
	a := r.connect(t, "a", "u1", "alice")
	r.join(t, a, "abc")

	r.emit(t, a, StickyNoteAdd, "abc", map[string]any{"note": note("n1", "new")})
	r.emit(t, a, LeaveRoom, "abc", nil)

	eventually(t, "room closed", func() bool { return r.core.ActiveTimers() == 0 })
	eventually(t, "flush reload", func() bool { return repo.loads.Load() == 2 })

	if snap := repo.stored(t, "abc"); string(snap.CanvasData) != storedCanvas || len(snap.StickyNotes) != 1 {
		t.Fatalf("Expected stored board untouched while it loads, got %+v", snap)
	}

	close(repo.loadGate)

	eventually(t, "merged flush", func() bool {
		snap := repo.stored(t, "abc")
		return string(snap.CanvasData) == storedCanvas &&
			reflect.DeepEqual(noteIDs(snap.StickyNotes), []string{"old", "n1"})
	})
}

func TestFlushAfterFailedLoadMergesStoredBoard(t *testing.T) {
	repo := newStubBoardRepository()
	repo.failLoads.Store(1)
	seedBoard(t, repo.BoardRepository, "abc", storedCanvas, note("old", "old"))

	r := newTestRelay(t, withBoardRepository(repo))
	a := r.connect(t, "a", "u1", "alice")
	r.join(t, a, "abc")

	sync := expectEvent(t, a, StickyNotesSync)
	if notes := sync.Data.(StickyNotesSyncPayload).Notes; len(notes) != 0 {
		t.Errorf("Expected an empty board while the store is down, got %+v", notes)
	}

	r.emit(t, a, StickyNoteAdd, "abc", map[string]any{"note": note("n1", "new")})
	r.emit(t, a, LeaveRoom, "abc", nil)

	eventually(t, "merged flush", func() bool {
		snap := repo.stored(t, "abc")
		return string(snap.CanvasData) == storedCanvas &&
			reflect.DeepEqual(noteIDs(snap.StickyNotes), []string{"old", "n1"})
	})
}

func TestRoomSurvivesBoardStoreOutage(t *testing.T) {
	repo := newStubBoardRepository()
	repo.failLoads.Store(-1)
	seedBoard(t, repo.BoardRepository, "abc", storedCanvas, note("old", "old"))

	r := newTestRelay(t, withBoardRepository(repo), withAutosave(20*time.Millisecond))
	a := r.connect(t, "a", "u1", "alice")
	b := r.connect(t, "b", "u2", "bob")

	r.join(t, a, "abc")
	expectEvent(t, a, StickyNotesSync)
	r.join(t, b, "abc")
	expectEvent(t, b, StickyNotesSync)

	r.emit(t, a, StickyNoteAdd, "abc", map[string]any{"note": note("n1", "new")})
	expectEvent(t, b, StickyNoteAdd)

	eventually(t, "load retried", func() bool { return repo.loads.Load() >= 3 })

	for _, conn := range []*mockConn{a, b} {
		if n := countType(drain(conn, silenceWait), ErrorEvent); n != 0 {
			t.Errorf("Expected no errors on %s, got %d", conn.id, n)
		}
	}

	r.emit(t, a, LeaveRoom, "abc", nil)
	r.emit(t, b, LeaveRoom, "abc", nil)
	eventually(t, "room closed", func() bool { return r.core.ActiveTimers() == 0 })
	time.Sleep(silenceWait)

	if n := repo.saves.Load(); n != 0 {
		t.Errorf("Expected no saves while the store cannot be read, got %d", n)
	}
	if snap := repo.stored(t, "abc"); string(snap.CanvasData) != storedCanvas || len(snap.StickyNotes) != 1 {
		t.Errorf("Expected stored board untouched, got %+v", snap)
	}
}

func TestAutosaveRetriesFailedLoad(t *testing.T) {
	repo := newStubBoardRepository()
	repo.failLoads.Store(1)
	seedBoard(t, repo.BoardRepository, "abc", storedCanvas, note("old", "old"))

	r := newTestRelay(t, withBoardRepository(repo), withAutosave(20*time.Millisecond))
	a := r.connect(t, "a", "u1", "alice")
	r.join(t, a, "abc")
	expectEvent(t, a, StickyNotesSync)

	r.emit(t, a, StickyNoteAdd, "abc", map[string]any{"note": note("n1", "new")})

	// the recovered board is pushed to the room
	expectEvent(t, a, CanvasUpdate)
	sync := expectEvent(t, a, StickyNotesSync)
	if ids := noteIDs(sync.Data.(StickyNotesSyncPayload).Notes); len(ids) == 0 || ids[0] != "old" {
		t.Errorf("Expected the stored note first, got %v", ids)
	}

	eventually(t, "autosave", func() bool {
		snap := repo.stored(t, "abc")
		return string(snap.CanvasData) == storedCanvas &&
			reflect.DeepEqual(noteIDs(snap.StickyNotes), []string{"old", "n1"})
	})
}

func TestShutdownWaitsForInFlightSave(t *testing.T) {
	repo := newStubBoardRepository()
	repo.saveGate = make(chan struct{})

	r := newTestRelay(t, withBoardRepository(repo), withAutosave(20*time.Millisecond))
	a := r.connect(t, "a", "u1", "alice")
	b := r.connect(t, "b", "u2", "bob")
	r.join(t, a, "abc")
	r.join(t, b, "abc")

	fullCanvas := func(version int) map[string]any {
		return map[string]any{"type": FullCanvas, "data": map[string]any{"version": version}}
	}

	r.emit(t, a, CanvasUpdate, "abc", fullCanvas(1))
	eventually(t, "autosave in flight", func() bool { return repo.saves.Load() == 1 })

	r.emit(t, a, CanvasUpdate, "abc", fullCanvas(2))
	expectEvent(t, b, CanvasUpdate)
	expectEvent(t, b, CanvasUpdate)

	go func() {
		time.Sleep(silenceWait)
		close(repo.saveGate)
	}()
	r.stop()

	var canvas struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(repo.stored(t, "abc").CanvasData, &canvas); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if canvas.Version != 2 {
		t.Errorf("Expected the latest canvas to win, got version %d", canvas.Version)
	}
}

func TestRejoinWhileLoadingHydratesOnce(t *testing.T) {
	repo := newStubBoardRepository()
	repo.loadGate = make(chan struct{})

	r := newTestRelay(t, withBoardRepository(repo))
	a := r.connect(t, "a", "u1", "alice")
	b := r.connect(t, "b", "u2", "bob")
	r.join(t, a, "abc")
	r.join(t, b, "abc")

	r.emit(t, a, LeaveRoom, "abc", nil)
	expectEvent(t, b, UserLeft)
	r.join(t, a, "abc")

	close(repo.loadGate)

	expectEvent(t, a, StickyNotesSync)
	if n := countType(drain(a, silenceWait), StickyNotesSync); n != 0 {
		t.Errorf("Expected one hydration after rejoin, got %d more", n)
	}
}
