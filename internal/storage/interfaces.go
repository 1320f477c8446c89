package storage

import (
	"context"

	"lockup-ledger/internal/domain"
)

// SnapshotInfo summarises a stored snapshot without loading it.
type SnapshotInfo struct {
	ID            int64
	SchemaVersion int
	LastEventSeq  uint64
	Block         uint64
	TakenAt       int64
	Pools         int
	Accounts      int
}

// SnapshotStore provides access to ledger_snapshots storage.
// Snapshots are append-only; each Save creates a new record.
type SnapshotStore interface {
	// Save stores a snapshot and returns its ID. Returns ErrInvalidInput for
	// a nil snapshot or one with a schema newer than supported.
	Save(ctx context.Context, snap *domain.Snapshot) (int64, error)

	// Latest returns the most recent snapshot. Returns ErrNotFound if none exists.
	Latest(ctx context.Context) (*domain.Snapshot, error)

	// GetByID retrieves a snapshot by ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id int64) (*domain.Snapshot, error)

	// List returns up to limit snapshot summaries, newest first.
	List(ctx context.Context, limit int) ([]SnapshotInfo, error)
}

// EventStore provides access to the ledger_events journal.
type EventStore interface {
	// InsertBulk appends events. Fails entire batch on a duplicate seq.
	InsertBulk(ctx context.Context, events []*domain.Event) error

	// GetBySeqRange retrieves events with seq in [from, to] (inclusive), ordered by seq ASC.
	GetBySeqRange(ctx context.Context, from, to uint64) ([]*domain.Event, error)

	// GetByToken retrieves all events of a token, ordered by seq ASC.
	GetByToken(ctx context.Context, token domain.Address) ([]*domain.Event, error)

	// GetByAccount retrieves all events naming an account, ordered by seq ASC.
	GetByAccount(ctx context.Context, account domain.Address) ([]*domain.Event, error)

	// LastSeq returns the highest stored seq, or 0 when the journal is empty.
	LastSeq(ctx context.Context) (uint64, error)
}
