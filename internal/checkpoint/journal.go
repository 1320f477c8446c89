package checkpoint

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"lockup-ledger/internal/domain"
	"lockup-ledger/internal/lockup"
	"lockup-ledger/internal/observability"
	"lockup-ledger/internal/storage"
)

// Journal is a ledger event sink appending committed events to an EventStore.
type Journal struct {
	store    storage.EventStore
	database string
	logger   *zap.Logger
}

// NewJournal creates a journal sink. database labels store metrics.
func NewJournal(store storage.EventStore, database string, logger *zap.Logger) *Journal {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Journal{store: store, database: database, logger: logger.Named("journal")}
}

// Compile-time interface check.
var _ lockup.EventSink = (*Journal)(nil)

// Publish appends events in one batch.
func (j *Journal) Publish(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	batch := make([]*domain.Event, len(events))
	for i := range events {
		ev := events[i]
		batch[i] = &ev
	}

	start := time.Now()
	err := j.store.InsertBulk(ctx, batch)
	observability.RecordDBQuery(j.database, "insert_events", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("journal events %d..%d: %w", events[0].Seq, events[len(events)-1].Seq, err)
	}
	j.logger.Debug("journaled", zap.Int("events", len(events)), zap.Uint64("last_seq", events[len(events)-1].Seq))
	return nil
}
