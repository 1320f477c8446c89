package memory

import (
	"context"
	"sort"
	"sync"

	"lockup-ledger/internal/domain"
	"lockup-ledger/internal/storage"
)

// EventStore is an in-memory implementation of storage.EventStore.
type EventStore struct {
	mu     sync.RWMutex
	bySeq  map[uint64]*domain.Event
	sorted []*domain.Event // ordered by seq
}

// NewEventStore creates a new in-memory event journal.
func NewEventStore() *EventStore {
	return &EventStore{
		bySeq: make(map[uint64]*domain.Event),
	}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

// InsertBulk appends events. Fails entire batch on a duplicate seq.
func (s *EventStore) InsertBulk(_ context.Context, events []*domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[uint64]struct{}, len(events))
	for _, e := range events {
		if e == nil || e.Seq == 0 {
			return storage.ErrInvalidInput
		}
		if _, dup := seen[e.Seq]; dup {
			return storage.ErrDuplicateKey
		}
		if _, exists := s.bySeq[e.Seq]; exists {
			return storage.ErrDuplicateKey
		}
		seen[e.Seq] = struct{}{}
	}

	for _, e := range events {
		evCopy := *e
		s.bySeq[e.Seq] = &evCopy
		s.sorted = append(s.sorted, &evCopy)
	}
	sort.Slice(s.sorted, func(i, j int) bool { return s.sorted[i].Seq < s.sorted[j].Seq })
	return nil
}

// GetBySeqRange retrieves events with seq in [from, to], ordered by seq ASC.
func (s *EventStore) GetBySeqRange(_ context.Context, from, to uint64) ([]*domain.Event, error) {
	return s.filter(func(e *domain.Event) bool { return e.Seq >= from && e.Seq <= to }), nil
}

// GetByToken retrieves all events of a token, ordered by seq ASC.
func (s *EventStore) GetByToken(_ context.Context, token domain.Address) ([]*domain.Event, error) {
	return s.filter(func(e *domain.Event) bool { return e.Token == token }), nil
}

// GetByAccount retrieves all events naming an account, ordered by seq ASC.
func (s *EventStore) GetByAccount(_ context.Context, account domain.Address) ([]*domain.Event, error) {
	return s.filter(func(e *domain.Event) bool { return e.Account == account }), nil
}

// LastSeq returns the highest stored seq, or 0 when empty.
func (s *EventStore) LastSeq(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.sorted) == 0 {
		return 0, nil
	}
	return s.sorted[len(s.sorted)-1].Seq, nil
}

func (s *EventStore) filter(keep func(*domain.Event) bool) []*domain.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Event
	for _, e := range s.sorted {
		if keep(e) {
			evCopy := *e
			out = append(out, &evCopy)
		}
	}
	return out
}
