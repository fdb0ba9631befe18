package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/domain"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/logging"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/metrics"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Save triggers, used as a metric label.
const (
	TriggerAutosave = "autosave"
	TriggerOnDemand = "on_demand"
	TriggerHTTP     = "http"
	TriggerFlush    = "flush"
)

type SnapshotUseCase interface {
	// Save replaces the stored board document. Saves for one board never
	// interleave; the last one wins.
	Save(ctx context.Context, snapshot *domain.BoardSnapshot, trigger string) error
	// Load returns nil and no error when the board was never saved.
	Load(ctx context.Context, boardID string) (*domain.BoardSnapshot, error)
}

type snapshotUseCase struct {
	repository domain.BoardRepository
	publisher  domain.BoardEventPublisher
	timeout    time.Duration
	logger     logging.Logger
	metrics    *metrics.Metrics

	locks sync.Map // boardID -> *sync.Mutex
}

func NewSnapshotUseCase(
	repository domain.BoardRepository,
	publisher domain.BoardEventPublisher,
	timeout time.Duration,
	logger logging.Logger,
	metrics *metrics.Metrics,
) SnapshotUseCase {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &snapshotUseCase{
		repository: repository,
		publisher:  publisher,
		timeout:    timeout,
		logger:     logger,
		metrics:    metrics,
	}
}

func (uc *snapshotUseCase) boardLock(boardID string) *sync.Mutex {
	lock, _ := uc.locks.LoadOrStore(boardID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

func (uc *snapshotUseCase) Save(ctx context.Context, snapshot *domain.BoardSnapshot, trigger string) error {
	if snapshot == nil || snapshot.BoardID == "" {
		return domain.ErrInvalidInput
	}

	ctx, span := tracing.GetTracer("snapshot").Start(ctx, "snapshot.save")
	defer span.End()
	span.SetAttributes(
		attribute.String("board.id", snapshot.BoardID),
		attribute.String("snapshot.trigger", trigger),
		attribute.Int("snapshot.notes", len(snapshot.StickyNotes)),
	)

	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	lock := uc.boardLock(snapshot.BoardID)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	err := uc.repository.Save(ctx, snapshot)
	uc.metrics.SnapshotLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		uc.metrics.SnapshotSaves.WithLabelValues(trigger, "failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "save failed")
		uc.logger.Error(logging.Snapshot, logging.Save, "failed to save board snapshot", map[logging.ExtraKey]any{
			logging.BoardID:      snapshot.BoardID,
			logging.Event:        trigger,
			logging.ErrorMessage: err.Error(),
		})
		return fmt.Errorf("%w: %v", domain.ErrPersistenceUnavailable, err)
	}

	uc.metrics.SnapshotSaves.WithLabelValues(trigger, "saved").Inc()
	uc.logger.Debug(logging.Snapshot, logging.Save, "board snapshot saved", map[logging.ExtraKey]any{
		logging.BoardID: snapshot.BoardID,
		logging.Event:   trigger,
	})

	entry := domain.NewSnapshotSavedLog(snapshot.BoardID, len(snapshot.StickyNotes), len(snapshot.CanvasData))
	if err := uc.publisher.Publish(ctx, entry); err != nil {
		uc.logger.Warn(logging.Snapshot, logging.Publish, "failed to publish snapshot event", map[logging.ExtraKey]any{
			logging.BoardID:      snapshot.BoardID,
			logging.ErrorMessage: err.Error(),
		})
	}

	return nil
}

func (uc *snapshotUseCase) Load(ctx context.Context, boardID string) (*domain.BoardSnapshot, error) {
	ctx, span := tracing.GetTracer("snapshot").Start(ctx, "snapshot.load")
	defer span.End()
	span.SetAttributes(attribute.String("board.id", boardID))

	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	snapshot, err := uc.repository.Load(ctx, boardID)
	if errors.Is(err, domain.ErrBoardNotFound) {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		uc.logger.Error(logging.Snapshot, logging.Load, "failed to load board snapshot", map[logging.ExtraKey]any{
			logging.BoardID:      boardID,
			logging.ErrorMessage: err.Error(),
		})
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistenceUnavailable, err)
	}

	if snapshot.StickyNotes == nil {
		snapshot.StickyNotes = []domain.StickyNote{}
	}
	return snapshot, nil
}
