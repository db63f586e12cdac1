package negotiation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sudo-init-do/sharefood/internal/fault"
	"github.com/sudo-init-do/sharefood/internal/listing"
)

// MemoryStore keeps negotiations in process memory. It holds the listing
// store so CreatePending can reserve the listing and insert the record
// under one lock.
type MemoryStore struct {
	mu       sync.RWMutex
	records  map[string]*Negotiation
	seqs     map[string]int64
	listings listing.Store
}

func NewMemoryStore(listings listing.Store) *MemoryStore {
	return &MemoryStore{
		records:  make(map[string]*Negotiation),
		seqs:     make(map[string]int64),
		listings: listings,
	}
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Negotiation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: negotiation %s", fault.ErrNotFound, id)
	}
	cp := *n
	return &cp, nil
}

func (s *MemoryStore) CreatePending(ctx context.Context, n *Negotiation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[n.ID]; exists {
		return fmt.Errorf("%w: negotiation %s already exists", fault.ErrConflict, n.ID)
	}
	// Reserving first makes the pair atomic: a lost reservation means no
	// record is ever inserted.
	if err := s.listings.Reserve(ctx, n.ListingID, n.ID); err != nil {
		return err
	}
	n.Status = StatusPending
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	cp := *n
	s.records[n.ID] = &cp
	return nil
}

func (s *MemoryStore) SetStatus(_ context.Context, id, from, to string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.records[id]
	if !ok {
		return fmt.Errorf("%w: negotiation %s", fault.ErrNotFound, id)
	}
	if n.Status != from {
		return fmt.Errorf("%w: negotiation %s is %s, not %s", fault.ErrInvalidTransition, id, n.Status, from)
	}
	n.Status = to
	switch to {
	case StatusDelivered:
		n.DeliveredAt = &at
	case StatusCompleted:
		n.CompletedAt = &at
	}
	return nil
}

func (s *MemoryStore) ListByParticipant(_ context.Context, userID string) ([]Negotiation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Negotiation
	for _, n := range s.records {
		if n.Participant(userID) {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// NextSeq hands out the next message sequence for a negotiation. The
// status check and the increment share the store lock, so no sequence is
// ever allocated against a completed negotiation.
func (s *MemoryStore) NextSeq(_ context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.records[id]
	if !ok {
		return 0, fmt.Errorf("%w: negotiation %s", fault.ErrNotFound, id)
	}
	if n.Status == StatusCompleted {
		return 0, fmt.Errorf("%w: negotiation %s is completed", fault.ErrInvalidState, id)
	}
	s.seqs[id]++
	return s.seqs[id], nil
}

func (s *MemoryStore) Purge(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	delete(s.seqs, id)
	return nil
}
