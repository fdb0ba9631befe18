package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/domain"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/json"
)

type sqliteBoardRepository struct {
	db *sql.DB
}

func NewSqliteBoardRepository(db *sql.DB) domain.BoardRepository {
	return &sqliteBoardRepository{db: db}
}

func (r *sqliteBoardRepository) Load(ctx context.Context, boardID string) (*domain.BoardSnapshot, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT canvas_data, sticky_notes, updated_at FROM board_snapshots WHERE board_id = ?",
		boardID,
	)

	var (
		canvas    []byte
		notes     string
		updatedAt time.Time
	)
	err := row.Scan(&canvas, &notes, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrBoardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load board %s: %w", boardID, err)
	}

	snapshot := &domain.BoardSnapshot{
		BoardID:     boardID,
		CanvasData:  canvas,
		StickyNotes: []domain.StickyNote{},
		UpdatedAt:   updatedAt,
	}
	if err := json.Unmarshal([]byte(notes), &snapshot.StickyNotes); err != nil {
		return nil, fmt.Errorf("failed to decode sticky notes for %s: %w", boardID, err)
	}

	return snapshot, nil
}

func (r *sqliteBoardRepository) Save(ctx context.Context, snapshot *domain.BoardSnapshot) error {
	if snapshot == nil || snapshot.BoardID == "" {
		return domain.ErrInvalidInput
	}

	notes := snapshot.StickyNotes
	if notes == nil {
		notes = []domain.StickyNote{}
	}
	encoded, err := json.Marshal(notes)
	if err != nil {
		return fmt.Errorf("failed to encode sticky notes: %w", err)
	}

	updatedAt := snapshot.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO board_snapshots (board_id, canvas_data, sticky_notes, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(board_id) DO UPDATE SET
			canvas_data = excluded.canvas_data,
			sticky_notes = excluded.sticky_notes,
			updated_at = excluded.updated_at
	`, snapshot.BoardID, []byte(snapshot.CanvasData), string(encoded), updatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save board %s: %w", snapshot.BoardID, err)
	}

	return nil
}
