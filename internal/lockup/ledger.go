// Package lockup implements the lock-up ledger: token pools, duration-boosted
// positions, early-exit penalties and the penalty-bonus accumulator.
package lockup

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"lockup-ledger/internal/access"
	"lockup-ledger/internal/clock"
	"lockup-ledger/internal/domain"
	"lockup-ledger/internal/token"
)

// Hooks observe stake changes inside the transaction that makes them.
// BeforeStakeChange sees the owner's pre-change stake, AfterStakeChange the
// post-change stake. A returned error aborts the transaction.
type Hooks interface {
	BeforeStakeChange(tx *Tx, tok, owner domain.Address) error
	AfterStakeChange(tx *Tx, tok, owner domain.Address) error
}

// Snapshotter is implemented by hooks that carry state of their own.
type Snapshotter interface {
	SnapshotInto(tx *Tx, snap *domain.Snapshot)
	RestoreFrom(snap domain.Snapshot) error
}

// EventSink receives committed events in sequence order.
type EventSink interface {
	Publish(ctx context.Context, events []domain.Event) error
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(ctx context.Context, events []domain.Event) error

// Publish calls f.
func (f SinkFunc) Publish(ctx context.Context, events []domain.Event) error {
	return f(ctx, events)
}

// Options configures a Ledger.
type Options struct {
	Token   token.Ledger
	Access  *access.Controller
	Clock   clock.Clock
	Custody domain.Address
	Fund    domain.Address
	Logger  *zap.Logger
	Sinks   []EventSink
}

// Ledger is the lock-up ledger. All mutations run as transactions under one
// write lock; views share the read lock. Committed events are queued under
// the write lock and handed to sinks after it is released.
type Ledger struct {
	mu sync.RWMutex

	// outbox holds committed batches in seq order until a drainer publishes them.
	outboxMu sync.Mutex
	outbox   [][]domain.Event
	draining bool

	token   token.Ledger
	access  *access.Controller
	clock   clock.Clock
	custody domain.Address
	logger  *zap.Logger

	sinksMu sync.RWMutex
	sinks   []EventSink
	hooks   []Hooks

	pools     map[domain.Address]*domain.TokenPool
	accounts  map[accountKey]*domain.UserAccount
	fund      domain.Address
	emergency bool
	lastSeq   uint64
}

// NewLedger creates an empty ledger.
func NewLedger(opts Options) (*Ledger, error) {
	if opts.Token == nil {
		return nil, fmt.Errorf("token ledger is required")
	}
	if opts.Access == nil {
		return nil, fmt.Errorf("access controller is required")
	}
	if opts.Clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if opts.Custody.IsZero() {
		return nil, domain.ErrInvalidAddress.Wrap("custody account must be set")
	}
	if opts.Fund.IsZero() {
		return nil, domain.ErrInvalidAddress.Wrap("fund address must be set")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Ledger{
		token:    opts.Token,
		access:   opts.Access,
		clock:    opts.Clock,
		custody:  opts.Custody,
		fund:     opts.Fund,
		logger:   logger.Named("ledger"),
		sinks:    append([]EventSink(nil), opts.Sinks...),
		pools:    make(map[domain.Address]*domain.TokenPool),
		accounts: make(map[accountKey]*domain.UserAccount),
	}, nil
}

// Use attaches stake hooks. Hooks run in attachment order.
func (l *Ledger) Use(h Hooks) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hooks = append(l.hooks, h)
}

// AddSink subscribes a sink to committed events.
func (l *Ledger) AddSink(s EventSink) {
	l.sinksMu.Lock()
	defer l.sinksMu.Unlock()
	l.sinks = append(l.sinks, s)
}

// Custody returns the account holding locked tokens.
func (l *Ledger) Custody() domain.Address {
	return l.custody
}

// Clock returns the ledger's clock.
func (l *Ledger) Clock() clock.Clock {
	return l.clock
}

// Update runs fn as a write transaction. If fn succeeds, the queued token
// movements are settled as one batch; only then is staged state committed
// and events queued for the sinks. Any error leaves the ledger untouched.
//
// Events are published after the write lock is released, in seq order, with
// a context that is not cancelled with ctx. When no other caller is
// publishing, Update returns after its own events reached every sink.
func (l *Ledger) Update(ctx context.Context, fn func(tx *Tx) error) error {
	if err := l.update(ctx, fn); err != nil {
		return err
	}
	l.drain(context.WithoutCancel(ctx))
	return nil
}

func (l *Ledger) update(ctx context.Context, fn func(tx *Tx) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := newTx(ctx, l, false)
	if err := fn(tx); err != nil {
		return err
	}
	if len(tx.moves) > 0 {
		if err := l.token.Settle(ctx, tx.moves); err != nil {
			return err
		}
	}
	tx.commit()

	for _, ev := range tx.events {
		l.logger.Debug("committed",
			zap.Uint64("seq", ev.Seq),
			zap.String("kind", ev.Kind.String()),
			zap.String("token", ev.Token.String()),
			zap.String("account", ev.Account.String()),
			zap.Uint64("block", ev.Block),
		)
	}

	if len(tx.events) > 0 {
		l.outboxMu.Lock()
		l.outbox = append(l.outbox, tx.events)
		l.outboxMu.Unlock()
	}
	return nil
}

// View runs fn against the committed state. Writes staged by fn are discarded.
func (l *Ledger) View(ctx context.Context, fn func(tx *Tx) error) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return fn(newTx(ctx, l, true))
}

// drain publishes queued batches until the outbox is empty. Only one caller
// drains at a time; others leave their batches to it.
func (l *Ledger) drain(ctx context.Context) {
	l.outboxMu.Lock()
	if l.draining {
		l.outboxMu.Unlock()
		return
	}
	l.draining = true
	for len(l.outbox) > 0 {
		events := l.outbox[0]
		l.outbox[0] = nil
		l.outbox = l.outbox[1:]
		l.outboxMu.Unlock()

		l.publish(ctx, events)

		l.outboxMu.Lock()
	}
	l.draining = false
	l.outboxMu.Unlock()
}

func (l *Ledger) publish(ctx context.Context, events []domain.Event) {
	l.sinksMu.RLock()
	sinks := l.sinks
	l.sinksMu.RUnlock()

	for _, s := range sinks {
		if err := s.Publish(ctx, events); err != nil {
			l.logger.Warn("event sink failed",
				zap.Uint64("first_seq", events[0].Seq),
				zap.Int("events", len(events)),
				zap.Error(err),
			)
		}
	}
}

func (l *Ledger) beforeStakeChange(tx *Tx, tok, owner domain.Address) error {
	for _, h := range l.hooks {
		if err := h.BeforeStakeChange(tx, tok, owner); err != nil {
			return err
		}
	}
	return nil
}

func (l *Ledger) afterStakeChange(tx *Tx, tok, owner domain.Address) error {
	for _, h := range l.hooks {
		if err := h.AfterStakeChange(tx, tok, owner); err != nil {
			return err
		}
	}
	return nil
}
