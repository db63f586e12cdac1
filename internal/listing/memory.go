package listing

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sudo-init-do/sharefood/internal/fault"
	"github.com/sudo-init-do/sharefood/internal/geo"
)

// MemoryStore keeps listings in process memory with a geo.Index over the
// available ones. Status transitions are compare-and-set under the store
// lock, so concurrent reservations on one listing yield a single winner.
type MemoryStore struct {
	mu       sync.RWMutex
	listings map[string]*Listing
	index    *geo.Index
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		listings: make(map[string]*Listing),
		index:    geo.NewIndex(),
	}
}

func (s *MemoryStore) Create(_ context.Context, l *Listing) error {
	if err := validate(l); err != nil {
		return err
	}
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	l.Status = StatusAvailable
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	if _, exists := s.listings[l.ID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: listing %s already exists", fault.ErrConflict, l.ID)
	}
	cp := *l
	s.listings[l.ID] = &cp
	s.mu.Unlock()

	s.index.Insert(geo.Entry{ID: l.ID, DonorID: l.DonorID, Loc: l.Location, CreatedAt: l.CreatedAt})
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.listings[id]
	if !ok {
		return nil, fmt.Errorf("%w: listing %s", fault.ErrNotFound, id)
	}
	cp := *l
	return &cp, nil
}

func (s *MemoryStore) FindAvailableNear(_ context.Context, center geo.Point, radiusKm float64, excludeDonorID string) ([]Match, error) {
	if !center.Valid() {
		return nil, fmt.Errorf("%w: invalid center coordinates", fault.ErrValidation)
	}
	candidates := s.index.Query(center, radiusKm, excludeDonorID)

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		l, ok := s.listings[c.ID]
		if !ok || l.Status != StatusAvailable {
			continue
		}
		out = append(out, Match{Listing: *l, DistanceKm: c.DistanceKm})
	}
	return out, nil
}

func (s *MemoryStore) ListByDonor(_ context.Context, donorID string) ([]Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Listing
	for _, l := range s.listings {
		if l.DonorID == donorID {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Reserve(_ context.Context, id, negotiationID string) error {
	s.mu.Lock()
	l, ok := s.listings[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: listing %s", fault.ErrNotFound, id)
	}
	if l.Status != StatusAvailable {
		s.mu.Unlock()
		return fmt.Errorf("%w: listing %s is %s", fault.ErrConflict, id, l.Status)
	}
	l.Status = StatusReserved
	l.NegotiationID = negotiationID
	s.mu.Unlock()

	s.index.Remove(id)
	return nil
}

func (s *MemoryStore) Complete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return fmt.Errorf("%w: listing %s", fault.ErrNotFound, id)
	}
	if l.Status != StatusReserved {
		return fmt.Errorf("%w: cannot complete listing in status %s", fault.ErrInvalidState, l.Status)
	}
	l.Status = StatusCompleted
	return nil
}

func (s *MemoryStore) Withdraw(_ context.Context, id, donorID string) error {
	s.mu.Lock()
	l, ok := s.listings[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: listing %s", fault.ErrNotFound, id)
	}
	if l.DonorID != donorID {
		s.mu.Unlock()
		return fmt.Errorf("%w: not the donor of listing %s", fault.ErrUnauthorized, id)
	}
	if l.Status != StatusAvailable {
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot withdraw listing in status %s", fault.ErrInvalidState, l.Status)
	}
	l.Status = StatusWithdrawn
	s.mu.Unlock()

	s.index.Remove(id)
	return nil
}
