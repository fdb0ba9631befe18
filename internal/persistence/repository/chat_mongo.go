package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/domain"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/persistence/db"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// One document per board holds the capped message array.
type chatLogDocument struct {
	BoardID   string               `bson:"_id"`
	Messages  []domain.ChatMessage `bson:"messages"`
	UpdatedAt time.Time            `bson:"updated_at"`
}

type mongoChatRepository struct {
	db *mongo.Database
}

func NewMongoChatRepository(db *mongo.Database) domain.ChatRepository {
	return &mongoChatRepository{
		db: db,
	}
}

func (r *mongoChatRepository) Append(ctx context.Context, message *domain.ChatMessage, capacity int) error {
	if message == nil || message.BoardID == "" || message.ID == "" {
		return domain.ErrInvalidInput
	}
	if capacity <= 0 {
		capacity = domain.DefaultChatCapacity
	}

	collection := r.db.Collection(db.ChatMessagesCollection)

	update := bson.M{
		"$push": bson.M{
			"messages": bson.M{
				"$each":  []domain.ChatMessage{*message},
				"$slice": -capacity,
			},
		},
		"$set": bson.M{"updated_at": time.Now()},
	}

	opts := options.Update().SetUpsert(true)
	if _, err := collection.UpdateOne(ctx, bson.M{"_id": message.BoardID}, update, opts); err != nil {
		return fmt.Errorf("failed to append chat message: %w", err)
	}

	return nil
}

func (r *mongoChatRepository) Recent(ctx context.Context, boardID string, limit int) ([]domain.ChatMessage, error) {
	if boardID == "" {
		return nil, domain.ErrInvalidInput
	}

	collection := r.db.Collection(db.ChatMessagesCollection)

	opts := options.FindOne()
	if limit > 0 {
		opts.SetProjection(bson.M{"messages": bson.M{"$slice": -limit}})
	}

	var doc chatLogDocument
	err := collection.FindOne(ctx, bson.M{"_id": boardID}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return []domain.ChatMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load chat history: %w", err)
	}

	if doc.Messages == nil {
		return []domain.ChatMessage{}, nil
	}

	return doc.Messages, nil
}
