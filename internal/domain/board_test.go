package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestStickyNoteValidateDefaultsColor(t *testing.T) {
	n := StickyNote{ID: "n1", Text: "hello"}
	if err := n.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if n.Color != NoteYellow {
		t.Errorf("Expected yellow default, got %s", n.Color)
	}
}

func TestStickyNoteValidateRejects(t *testing.T) {
	for name, n := range map[string]StickyNote{
		"missing id": {Text: "x"},
		"bad color":  {ID: "n1", Color: "red"},
	} {
		if err := n.Validate(); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%s: expected ErrInvalidInput, got %v", name, err)
		}
	}
}

func TestNewBoardSnapshot(t *testing.T) {
	snap, err := NewBoardSnapshot("abc", json.RawMessage(`{"version":"5.3.0"}`), nil)
	if err != nil {
		t.Fatalf("NewBoardSnapshot failed: %v", err)
	}
	if snap.StickyNotes == nil {
		t.Error("Expected empty, non-nil sticky notes")
	}
	if snap.UpdatedAt.IsZero() {
		t.Error("Expected UpdatedAt to be set")
	}

	if _, err := NewBoardSnapshot("", nil, nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for empty board id, got %v", err)
	}
}

func TestBoardSnapshotCloneIsDeep(t *testing.T) {
	snap, _ := NewBoardSnapshot("abc", json.RawMessage(`{"a":1}`), []StickyNote{{ID: "n1", Text: "x"}})
	cpy := snap.Clone()

	cpy.StickyNotes[0].Text = "changed"
	cpy.CanvasData[1] = 'b'

	if snap.StickyNotes[0].Text != "x" {
		t.Error("Expected original note untouched")
	}
	if string(snap.CanvasData) != `{"a":1}` {
		t.Errorf("Expected original canvas untouched, got %s", snap.CanvasData)
	}

	var nilSnap *BoardSnapshot
	if nilSnap.Clone() != nil {
		t.Error("Expected nil clone of nil snapshot")
	}
}
