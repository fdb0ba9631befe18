package repository

import (
	"context"
	"sync"

	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/domain"
)

type boardRepository struct {
	boards map[string]*domain.BoardSnapshot // boardID -> snapshot
	mu     *sync.RWMutex
}

// NewBoardRepository keeps snapshots in process memory. Used when no durable
// store is configured and in tests.
func NewBoardRepository() domain.BoardRepository {
	return &boardRepository{
		boards: make(map[string]*domain.BoardSnapshot),
		mu:     &sync.RWMutex{},
	}
}

func (r *boardRepository) Load(ctx context.Context, boardID string) (*domain.BoardSnapshot, error) {
	if boardID == "" {
		return nil, domain.ErrInvalidInput
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot, ok := r.boards[boardID]
	if !ok {
		return nil, domain.ErrBoardNotFound
	}

	return snapshot.Clone(), nil
}

func (r *boardRepository) Save(ctx context.Context, snapshot *domain.BoardSnapshot) error {
	if snapshot == nil || snapshot.BoardID == "" {
		return domain.ErrInvalidInput
	}

	r.mu.Lock()
	r.boards[snapshot.BoardID] = snapshot.Clone()
	r.mu.Unlock()

	return nil
}
