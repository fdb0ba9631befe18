package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/domain"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/persistence/db"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoBoardRepository struct {
	db *mongo.Database
}

func NewMongoBoardRepository(db *mongo.Database) domain.BoardRepository {
	return &mongoBoardRepository{
		db: db,
	}
}

func (r *mongoBoardRepository) Load(ctx context.Context, boardID string) (*domain.BoardSnapshot, error) {
	collection := r.db.Collection(db.BoardsCollection)

	var snapshot domain.BoardSnapshot
	err := collection.FindOne(ctx, bson.M{"_id": boardID}).Decode(&snapshot)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrBoardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load board %s: %w", boardID, err)
	}

	if snapshot.StickyNotes == nil {
		snapshot.StickyNotes = []domain.StickyNote{}
	}

	return &snapshot, nil
}

// Save replaces the document in one write, so concurrent saves of the same
// board resolve last-writer-wins without partial documents.
func (r *mongoBoardRepository) Save(ctx context.Context, snapshot *domain.BoardSnapshot) error {
	if snapshot == nil || snapshot.BoardID == "" {
		return domain.ErrInvalidInput
	}

	collection := r.db.Collection(db.BoardsCollection)

	opts := options.Replace().SetUpsert(true)
	if _, err := collection.ReplaceOne(ctx, bson.M{"_id": snapshot.BoardID}, snapshot, opts); err != nil {
		return fmt.Errorf("failed to save board %s: %w", snapshot.BoardID, err)
	}

	return nil
}
