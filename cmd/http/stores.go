package main

import (
	"context"
	"database/sql"

	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/domain"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/configs"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/events"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/logging"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/messaging"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/ratelimiter"
	memory "github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/repository"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/persistence/db"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/persistence/repository"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// stores owns every backend connection opened for the configured drivers.
type stores struct {
	boards domain.BoardRepository
	chats  domain.ChatRepository
	audit  domain.BoardAuditRepository

	mongoClient *mongo.Client
	mongoDB     *mongo.Database
	redisClient *redis.Client
	sqliteDB    *sql.DB
	rabbitmq    *messaging.RabbitMQ

	logger logging.Logger
}

func openStores(ctx context.Context, cfg *configs.Config, logger logging.Logger) (*stores, error) {
	st := &stores{logger: logger}

	needs := map[string]bool{
		cfg.Storage.Board: true,
		cfg.Storage.Chat:  true,
	}
	if cfg.RateLimiter.Store == "redis" {
		needs["redis"] = true
	}

	if needs["mongo"] {
		mongoCfg := &db.MongoConfig{
			URI:               cfg.Mongo.URI,
			Database:          cfg.Mongo.Database,
			ConnectionTimeout: cfg.Mongo.ConnectionTimeout,
		}
		client, err := db.NewMongoClient(ctx, mongoCfg)
		if err != nil {
			return nil, errors.Wrap(err, "failed to connect to mongodb")
		}
		st.mongoClient = client
		st.mongoDB = db.GetDatabase(client, mongoCfg)

		st.audit = repository.NewBoardAuditLogRepository(st.mongoDB)
		if err := st.audit.EnsureIndexes(ctx); err != nil {
			st.Close()
			return nil, errors.Wrap(err, "failed to create audit log indexes")
		}
		logger.Info(logging.Mongo, logging.Startup, "connected to mongodb", map[logging.ExtraKey]any{
			"database": cfg.Mongo.Database,
		})
	}

	if needs["redis"] {
		client, err := db.NewRedisClient(ctx, &db.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			st.Close()
			return nil, errors.Wrap(err, "failed to connect to redis")
		}
		st.redisClient = client
		logger.Info(logging.Redis, logging.Startup, "connected to redis", map[logging.ExtraKey]any{
			"addr": cfg.Redis.Addr,
		})
	}

	if needs["sqlite"] {
		sqliteDB, err := db.NewSqlite(cfg.Sqlite.Path)
		if err != nil {
			st.Close()
			return nil, errors.Wrap(err, "failed to open sqlite")
		}
		st.sqliteDB = sqliteDB
		logger.Info(logging.Sqlite, logging.Startup, "opened sqlite database", map[logging.ExtraKey]any{
			"path": cfg.Sqlite.Path,
		})
	}

	switch cfg.Storage.Board {
	case "memory", "":
		st.boards = memory.NewBoardRepository()
	case "mongo":
		st.boards = repository.NewMongoBoardRepository(st.mongoDB)
	case "sqlite":
		st.boards = repository.NewSqliteBoardRepository(st.sqliteDB)
	default:
		st.Close()
		return nil, errors.Errorf("board storage not supported: %q (memory, mongo, sqlite)", cfg.Storage.Board)
	}

	switch cfg.Storage.Chat {
	case "memory", "":
		st.chats = memory.NewChatRepository()
	case "mongo":
		st.chats = repository.NewMongoChatRepository(st.mongoDB)
	case "redis":
		st.chats = repository.NewRedisChatRepository(st.redisClient)
	case "sqlite":
		st.chats = repository.NewSqliteChatRepository(st.sqliteDB)
	default:
		st.Close()
		return nil, errors.Errorf("chat storage not supported: %q (memory, mongo, redis, sqlite)", cfg.Storage.Chat)
	}

	return st, nil
}

// auditPublisher routes lifecycle events through RabbitMQ when enabled and
// starts the consumer that stores them. Without a broker, entries go straight
// to mongo when it is connected and are discarded otherwise.
func (st *stores) auditPublisher(ctx context.Context, cfg *configs.Config, logger logging.Logger) (domain.BoardEventPublisher, error) {
	if !cfg.RabbitMQ.Enabled {
		if st.audit != nil {
			return events.NewAuditWriter(st.audit), nil
		}
		return events.NopPublisher{}, nil
	}

	rabbitmq, err := messaging.NewRabbitMQ(cfg.RabbitMQ.URI)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to rabbitmq")
	}
	st.rabbitmq = rabbitmq
	logger.Info(logging.RabbitMQ, logging.Startup, "connected to rabbitmq", nil)

	if st.audit != nil {
		consumer := events.NewBoardConsumer(rabbitmq, st.audit, logger)
		go func() {
			if err := consumer.Listen(ctx); err != nil {
				logger.Error(logging.RabbitMQ, logging.Consume, "board event consumer stopped", map[logging.ExtraKey]any{
					logging.ErrorMessage: err.Error(),
				})
			}
		}()
	} else {
		logger.Warn(logging.RabbitMQ, logging.Startup, "no mongo connection, board events are published but not stored here", nil)
	}

	return events.NewBoardPublisher(rabbitmq), nil
}

// rateLimitStore returns nil for the in-memory default.
func (st *stores) rateLimitStore(cfg *configs.Config) ratelimiter.GetterSetter {
	if cfg.RateLimiter.Store == "redis" && st.redisClient != nil {
		return ratelimiter.NewRedis(st.redisClient)
	}
	return nil
}

func (st *stores) Close() {
	if st.rabbitmq != nil {
		st.rabbitmq.Close()
	}
	if st.sqliteDB != nil {
		_ = st.sqliteDB.Close()
	}
	if st.redisClient != nil {
		_ = st.redisClient.Close()
	}
	if st.mongoClient != nil {
		if err := db.DisconnectMongo(context.Background(), st.mongoClient); err != nil {
			st.logger.Error(logging.Mongo, logging.Shutdown, "failed to disconnect", map[logging.ExtraKey]any{
				logging.ErrorMessage: err.Error(),
			})
		}
	}
}
