package memory

import (
	"context"
	"sync"

	"lockup-ledger/internal/domain"
	"lockup-ledger/internal/storage"
)

// SnapshotStore is an in-memory implementation of storage.SnapshotStore.
type SnapshotStore struct {
	mu        sync.RWMutex
	snapshots []domain.Snapshot // index i holds ID i+1
}

// NewSnapshotStore creates a new in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// Save stores a deep copy of snap and returns its ID.
func (s *SnapshotStore) Save(_ context.Context, snap *domain.Snapshot) (int64, error) {
	if snap == nil {
		return 0, storage.ErrInvalidInput
	}
	if snap.SchemaVersion > domain.SnapshotSchemaVersion {
		return 0, storage.ErrUnsupportedSchema
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots = append(s.snapshots, snap.Clone())
	return int64(len(s.snapshots)), nil
}

// Latest returns the most recent snapshot. Returns ErrNotFound if none exists.
func (s *SnapshotStore) Latest(_ context.Context) (*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.snapshots) == 0 {
		return nil, storage.ErrNotFound
	}
	snap := s.snapshots[len(s.snapshots)-1].Clone()
	return &snap, nil
}

// GetByID retrieves a snapshot by ID. Returns ErrNotFound if not exists.
func (s *SnapshotStore) GetByID(_ context.Context, id int64) (*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id < 1 || id > int64(len(s.snapshots)) {
		return nil, storage.ErrNotFound
	}
	snap := s.snapshots[id-1].Clone()
	return &snap, nil
}

// List returns up to limit snapshot summaries, newest first.
func (s *SnapshotStore) List(_ context.Context, limit int) ([]storage.SnapshotInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []storage.SnapshotInfo
	for i := len(s.snapshots) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		snap := s.snapshots[i]
		out = append(out, storage.SnapshotInfo{
			ID:            int64(i + 1),
			SchemaVersion: snap.SchemaVersion,
			LastEventSeq:  snap.LastEventSeq,
			Block:         snap.Block,
			TakenAt:       snap.TakenAt,
			Pools:         len(snap.Pools),
			Accounts:      len(snap.Accounts),
		})
	}
	return out, nil
}
