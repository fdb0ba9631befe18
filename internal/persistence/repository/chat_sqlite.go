package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/domain"
)

type sqliteChatRepository struct {
	db *sql.DB
}

func NewSqliteChatRepository(db *sql.DB) domain.ChatRepository {
	return &sqliteChatRepository{db: db}
}

func (r *sqliteChatRepository) Append(ctx context.Context, message *domain.ChatMessage, capacity int) error {
	if message == nil || message.BoardID == "" || message.ID == "" {
		return domain.ErrInvalidInput
	}
	if capacity <= 0 {
		capacity = domain.DefaultChatCapacity
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin chat append: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO chat_messages (id, board_id, user_id, username, text, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		message.ID, message.BoardID, message.UserID, message.Username, message.Text, message.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert chat message: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM chat_messages
		WHERE board_id = ? AND seq NOT IN (
			SELECT seq FROM chat_messages WHERE board_id = ? ORDER BY seq DESC LIMIT ?
		)
	`, message.BoardID, message.BoardID, capacity)
	if err != nil {
		return fmt.Errorf("failed to trim chat log: %w", err)
	}

	return tx.Commit()
}

func (r *sqliteChatRepository) Recent(ctx context.Context, boardID string, limit int) ([]domain.ChatMessage, error) {
	if boardID == "" {
		return nil, domain.ErrInvalidInput
	}
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, board_id, user_id, username, text, created_at FROM (
			SELECT seq, id, board_id, user_id, username, text, created_at
			FROM chat_messages WHERE board_id = ? ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC
	`, boardID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat history: %w", err)
	}
	defer rows.Close()

	messages := []domain.ChatMessage{}
	for rows.Next() {
		var m domain.ChatMessage
		if err := rows.Scan(&m.ID, &m.BoardID, &m.UserID, &m.Username, &m.Text, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}
