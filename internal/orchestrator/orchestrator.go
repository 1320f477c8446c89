// Package orchestrator wires the ledger, the reward emitter and their
// persistence into one running system.
// Open flow: restore latest checkpoint → bootstrap configured pools
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"go.uber.org/zap"

	"lockup-ledger/internal/access"
	"lockup-ledger/internal/checkpoint"
	"lockup-ledger/internal/clock"
	"lockup-ledger/internal/domain"
	"lockup-ledger/internal/lockup"
	"lockup-ledger/internal/observability"
	"lockup-ledger/internal/reward"
	"lockup-ledger/internal/storage"
	"lockup-ledger/internal/token"
)

// PoolSpec is a pool to register at startup if it does not exist yet.
type PoolSpec struct {
	Token          domain.Address
	MaxLockUpLimit sdkmath.Int
	Multiplier     uint64
}

// Options for creating an Orchestrator.
type Options struct {
	// Required collaborators
	Tokens token.Ledger
	Clock  clock.Clock

	// Principals
	Owner   domain.Address
	Fund    domain.Address
	Custody domain.Address
	Minter  domain.Address

	// Reward schedule
	Reward domain.RewardConfig

	// Optional persistence
	Snapshots storage.SnapshotStore
	Events    storage.EventStore
	StoreName string // metrics label for Events, e.g. "clickhouse"

	// Optional observers
	Metrics *observability.Metrics
	Sinks   []lockup.EventSink
	Logger  *zap.Logger
}

// Orchestrator owns the wired system.
type Orchestrator struct {
	Ledger      *lockup.Ledger
	Emitter     *reward.Emitter
	Checkpoints *checkpoint.Manager // nil without a snapshot store

	tokens token.Ledger
	clock  clock.Clock
	owner  domain.Address
	logger *zap.Logger
}

// New creates the ledger and emitter and attaches journal and metrics sinks.
func New(opts Options) (*Orchestrator, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ac, err := access.NewController(opts.Owner)
	if err != nil {
		return nil, fmt.Errorf("access controller: %w", err)
	}

	sinks := append([]lockup.EventSink(nil), opts.Sinks...)
	if opts.Events != nil {
		sinks = append(sinks, checkpoint.NewJournal(opts.Events, opts.StoreName, logger))
	}
	if opts.Metrics != nil {
		sinks = append(sinks, opts.Metrics.Sink())
	}

	ledger, err := lockup.NewLedger(lockup.Options{
		Token:   opts.Tokens,
		Access:  ac,
		Clock:   opts.Clock,
		Custody: opts.Custody,
		Fund:    opts.Fund,
		Logger:  logger,
		Sinks:   sinks,
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}

	emitter, err := reward.NewEmitter(ledger, reward.Options{
		Config: opts.Reward,
		Minter: opts.Minter,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("emitter: %w", err)
	}

	o := &Orchestrator{
		Ledger:  ledger,
		Emitter: emitter,
		tokens:  opts.Tokens,
		clock:   opts.Clock,
		owner:   opts.Owner,
		logger:  logger.Named("orchestrator"),
	}
	if opts.Snapshots != nil {
		o.Checkpoints, err = checkpoint.NewManager(ledger, checkpoint.Options{
			Snapshots: opts.Snapshots,
			Events:    opts.Events,
			Logger:    logger,
		})
		if err != nil {
			return nil, fmt.Errorf("checkpoints: %w", err)
		}
	}
	return o, nil
}

// OpenResult reports what Open did.
type OpenResult struct {
	Restored        bool
	LastEventSeq    uint64
	PoolsRegistered []domain.Address
}

// Open restores the latest checkpoint, if any, then registers the pools
// that are still missing. Registration settles every existing pool first,
// since a restored checkpoint may already hold stake.
func (o *Orchestrator) Open(ctx context.Context, pools []PoolSpec) (*OpenResult, error) {
	result := &OpenResult{}

	if o.Checkpoints != nil {
		restored, err := o.Checkpoints.RestoreLatest(ctx)
		if err != nil {
			return nil, fmt.Errorf("restore checkpoint: %w", err)
		}
		result.Restored = restored
	}

	for _, spec := range pools {
		err := o.Emitter.RegisterRewardPool(ctx, o.owner, spec.Token, spec.Multiplier, spec.MaxLockUpLimit, true)
		switch {
		case errors.Is(err, domain.ErrPoolAlreadyExists):
			continue
		case err != nil:
			return nil, fmt.Errorf("register pool %s: %w", spec.Token, err)
		}
		result.PoolsRegistered = append(result.PoolsRegistered, spec.Token)
	}

	result.LastEventSeq = o.Ledger.LastEventSeq()
	o.logger.Info("opened",
		zap.Bool("restored", result.Restored),
		zap.Int("pools_registered", len(result.PoolsRegistered)),
		zap.Uint64("last_seq", result.LastEventSeq),
	)
	return result, nil
}

// Tokens returns the token capability the ledger settles through.
func (o *Orchestrator) Tokens() token.Ledger {
	return o.tokens
}

// Clock returns the ledger clock.
func (o *Orchestrator) Clock() clock.Clock {
	return o.clock
}

// Close saves a final checkpoint when persistence is configured.
func (o *Orchestrator) Close(ctx context.Context) error {
	if o.Checkpoints == nil {
		return nil
	}
	if _, err := o.Checkpoints.Save(ctx); err != nil {
		return fmt.Errorf("final checkpoint: %w", err)
	}
	return nil
}
