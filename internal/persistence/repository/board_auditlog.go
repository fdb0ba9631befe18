package repository

import (
	"context"

	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/domain"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/persistence/db"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type boardAuditLogRepository struct {
	db *mongo.Database
}

func NewBoardAuditLogRepository(db *mongo.Database) domain.BoardAuditRepository {
	return &boardAuditLogRepository{
		db: db,
	}
}

func (r *boardAuditLogRepository) GetByBoardID(ctx context.Context, boardID string, limit int) ([]domain.BoardAuditLog, error) {
	collection := r.db.Collection(db.BoardAuditLogsCollection)

	filter := bson.M{"board_id": boardID}
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var logs []domain.BoardAuditLog
	if err := cursor.All(ctx, &logs); err != nil {
		return nil, err
	}

	return logs, nil
}

func (r *boardAuditLogRepository) Log(ctx context.Context, log *domain.BoardAuditLog) error {
	collection := r.db.Collection(db.BoardAuditLogsCollection)

	_, err := collection.InsertOne(ctx, log)
	return err
}

func (r *boardAuditLogRepository) EnsureIndexes(ctx context.Context) error {
	collection := r.db.Collection(db.BoardAuditLogsCollection)

	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "board_id", Value: 1},
				{Key: "timestamp", Value: -1},
			},
		},
		{
			Keys: bson.D{
				{Key: "event_type", Value: 1},
				{Key: "timestamp", Value: -1},
			},
		},
		{
			Keys:    bson.D{{Key: "timestamp", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(7776000), // 90 days TTL
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
