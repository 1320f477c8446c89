package clickhouse

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"

	"lockup-ledger/internal/domain"
	"lockup-ledger/internal/storage"
)

// EventStore implements storage.EventStore using ClickHouse.
// ledger_events is a ReplacingMergeTree keyed by seq; reads use FINAL.
type EventStore struct {
	conn *Conn
}

// NewEventStore creates a new EventStore.
func NewEventStore(conn *Conn) *EventStore {
	return &EventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

const eventColumns = `seq, kind, token, account, position_index, amount, penalty, fee, bonus, reward, forced, block, timestamp`

// InsertBulk appends events. Fails entire batch on a duplicate seq.
func (s *EventStore) InsertBulk(ctx context.Context, events []*domain.Event) (err error) {
	if len(events) == 0 {
		return nil
	}
	defer observe("events.insert", time.Now(), &err)

	seen := make(map[uint64]struct{}, len(events))
	lo, hi := events[0].Seq, events[0].Seq
	for _, ev := range events {
		if ev == nil {
			return storage.ErrInvalidInput
		}
		if _, dup := seen[ev.Seq]; dup {
			return storage.ErrDuplicateKey
		}
		seen[ev.Seq] = struct{}{}
		lo, hi = min(lo, ev.Seq), max(hi, ev.Seq)
	}

	// MergeTree does not enforce keys; check the stored range explicitly.
	existing, err := s.seqsInRange(ctx, lo, hi)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	for _, seq := range existing {
		if _, dup := seen[seq]; dup {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO ledger_events (`+eventColumns+`)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, ev := range events {
		err = batch.Append(
			ev.Seq, string(ev.Kind), string(ev.Token), string(ev.Account), ev.PositionIndex,
			uint256(ev.Amount), uint256(ev.Penalty), uint256(ev.Fee), uint256(ev.Bonus), uint256(ev.Reward),
			ev.Forced, ev.Block, ev.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetBySeqRange retrieves events with seq in [from, to] (inclusive), ordered by seq ASC.
func (s *EventStore) GetBySeqRange(ctx context.Context, from, to uint64) ([]*domain.Event, error) {
	return s.query(ctx, "query by seq range",
		`WHERE seq >= ? AND seq <= ?`, from, to)
}

// GetByToken retrieves all events of a token, ordered by seq ASC.
func (s *EventStore) GetByToken(ctx context.Context, token domain.Address) ([]*domain.Event, error) {
	return s.query(ctx, "query by token", `WHERE token = ?`, string(token))
}

// GetByAccount retrieves all events naming an account, ordered by seq ASC.
func (s *EventStore) GetByAccount(ctx context.Context, account domain.Address) ([]*domain.Event, error) {
	return s.query(ctx, "query by account", `WHERE account = ?`, string(account))
}

// LastSeq returns the highest stored seq, or 0 when the journal is empty.
func (s *EventStore) LastSeq(ctx context.Context) (_ uint64, err error) {
	defer observe("events.last_seq", time.Now(), &err)

	var seq uint64
	if err := s.conn.QueryRow(ctx, `SELECT max(seq) FROM ledger_events`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("query last seq: %w", err)
	}
	return seq, nil
}

func (s *EventStore) query(ctx context.Context, what, where string, args ...any) (_ []*domain.Event, err error) {
	defer observe("events."+strings.ReplaceAll(what, " ", "_"), time.Now(), &err)

	rows, err := s.conn.Query(ctx,
		`SELECT `+eventColumns+` FROM ledger_events FINAL `+where+` ORDER BY seq ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func (s *EventStore) seqsInRange(ctx context.Context, lo, hi uint64) ([]uint64, error) {
	rows, err := s.conn.Query(ctx, `SELECT seq FROM ledger_events WHERE seq >= ? AND seq <= ?`, lo, hi)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []uint64
	for rows.Next() {
		var seq uint64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		out = append(out, seq)
	}
	return out, rows.Err()
}

func scanEvents(rows chRows) ([]*domain.Event, error) {
	var events []*domain.Event

	for rows.Next() {
		var (
			ev                   domain.Event
			kind, token, account string
			amounts              [5]big.Int
		)
		err := rows.Scan(
			&ev.Seq, &kind, &token, &account, &ev.PositionIndex,
			&amounts[0], &amounts[1], &amounts[2], &amounts[3], &amounts[4],
			&ev.Forced, &ev.Block, &ev.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}

		ev.Kind = domain.EventKind(kind)
		ev.Token = domain.Address(token)
		ev.Account = domain.Address(account)
		ev.Amount = sdkmath.NewIntFromBigInt(&amounts[0])
		ev.Penalty = sdkmath.NewIntFromBigInt(&amounts[1])
		ev.Fee = sdkmath.NewIntFromBigInt(&amounts[2])
		ev.Bonus = sdkmath.NewIntFromBigInt(&amounts[3])
		ev.Reward = sdkmath.NewIntFromBigInt(&amounts[4])
		events = append(events, &ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}

	return events, nil
}

// uint256 converts an amount for a UInt256 column; nil and negative amounts become 0.
func uint256(v sdkmath.Int) *big.Int {
	if v.IsNil() || v.IsNegative() {
		return new(big.Int)
	}
	return v.BigInt()
}
