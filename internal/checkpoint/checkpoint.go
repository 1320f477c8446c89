// Package checkpoint persists ledger state through a SnapshotStore and
// journals committed events through an EventStore.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"lockup-ledger/internal/domain"
	"lockup-ledger/internal/lockup"
	"lockup-ledger/internal/observability"
	"lockup-ledger/internal/storage"
)

// Manager saves and restores ledger checkpoints.
type Manager struct {
	ledger    *lockup.Ledger
	snapshots storage.SnapshotStore
	events    storage.EventStore // optional
	logger    *zap.Logger
}

// Options configures a Manager.
type Options struct {
	Snapshots storage.SnapshotStore
	Events    storage.EventStore // when set, restores check the journal for lost events
	Logger    *zap.Logger
}

// NewManager creates a checkpoint manager for ledger.
func NewManager(ledger *lockup.Ledger, opts Options) (*Manager, error) {
	if ledger == nil {
		return nil, errors.New("ledger is required")
	}
	if opts.Snapshots == nil {
		return nil, errors.New("snapshot store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		ledger:    ledger,
		snapshots: opts.Snapshots,
		events:    opts.Events,
		logger:    logger.Named("checkpoint"),
	}, nil
}

// Save snapshots the ledger and stores it.
func (m *Manager) Save(ctx context.Context) (storage.SnapshotInfo, error) {
	start := time.Now()
	info, err := m.save(ctx)
	observability.RecordCheckpoint(time.Since(start).Seconds(), err)
	if err != nil {
		m.logger.Error("checkpoint failed", zap.Error(err))
		return storage.SnapshotInfo{}, err
	}
	m.logger.Info("checkpoint saved",
		zap.Int64("id", info.ID),
		zap.Uint64("last_seq", info.LastEventSeq),
		zap.Uint64("block", info.Block),
		zap.Duration("took", time.Since(start)),
	)
	return info, nil
}

func (m *Manager) save(ctx context.Context) (storage.SnapshotInfo, error) {
	snap, err := m.ledger.Snapshot(ctx)
	if err != nil {
		return storage.SnapshotInfo{}, fmt.Errorf("snapshot ledger: %w", err)
	}
	id, err := m.snapshots.Save(ctx, &snap)
	if err != nil {
		return storage.SnapshotInfo{}, fmt.Errorf("store snapshot: %w", err)
	}
	return storage.SnapshotInfo{
		ID:            id,
		SchemaVersion: snap.SchemaVersion,
		LastEventSeq:  snap.LastEventSeq,
		Block:         snap.Block,
		TakenAt:       snap.TakenAt,
		Pools:         len(snap.Pools),
		Accounts:      len(snap.Accounts),
	}, nil
}

// Restore loads snapshot id into the ledger.
func (m *Manager) Restore(ctx context.Context, id int64) error {
	snap, err := m.snapshots.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load snapshot %d: %w", id, err)
	}
	return m.restore(ctx, snap)
}

// RestoreLatest loads the most recent snapshot. It reports false, without
// error, when the store is empty.
func (m *Manager) RestoreLatest(ctx context.Context) (bool, error) {
	snap, err := m.snapshots.Latest(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load latest snapshot: %w", err)
	}
	return true, m.restore(ctx, snap)
}

func (m *Manager) restore(ctx context.Context, snap *domain.Snapshot) error {
	if err := m.ledger.Restore(ctx, *snap); err != nil {
		return fmt.Errorf("restore ledger: %w", err)
	}
	if m.events == nil {
		return nil
	}
	journaled, err := m.events.LastSeq(ctx)
	if err != nil {
		m.logger.Warn("journal check failed", zap.Error(err))
		return nil
	}
	if journaled > snap.LastEventSeq {
		m.logger.Warn("journal is ahead of the restored checkpoint",
			zap.Uint64("checkpoint_seq", snap.LastEventSeq),
			zap.Uint64("journal_seq", journaled),
		)
	}
	return nil
}

// List returns up to limit checkpoints, newest first.
func (m *Manager) List(ctx context.Context, limit int) ([]storage.SnapshotInfo, error) {
	return m.snapshots.List(ctx, limit)
}
