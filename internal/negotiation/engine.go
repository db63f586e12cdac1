package negotiation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sudo-init-do/sharefood/internal/fault"
	"github.com/sudo-init-do/sharefood/internal/listing"
)

// Notifier receives state change events for fan-out to subscribed clients.
type Notifier interface {
	PublishStatus(negotiationID string, n *Negotiation)
}

// Purger schedules removal of a completed negotiation and its message log.
type Purger interface {
	SchedulePurge(negotiationID string) error
}

// Engine owns the negotiation lifecycle. Role gating happens here, never
// in the client: every transition checks the verified actor identity
// against the stored donor and recipient ids.
type Engine struct {
	negs     Store
	listings listing.Store
	notifier Notifier
	purger   Purger

	// Per-listing locks serialize getOrCreate so the existence check and
	// the reserve+insert pair cannot interleave for one listing. Unrelated
	// listings proceed in parallel.
	locks sync.Map
}

func NewEngine(negs Store, listings listing.Store) *Engine {
	return &Engine{negs: negs, listings: listings}
}

// WithNotifier attaches a broadcaster for state deltas.
func (e *Engine) WithNotifier(n Notifier) *Engine {
	e.notifier = n
	return e
}

// WithPurger attaches a retention scheduler for completed negotiations.
func (e *Engine) WithPurger(p Purger) *Engine {
	e.purger = p
	return e
}

func (e *Engine) lockFor(listingID string) *sync.Mutex {
	mu, _ := e.locks.LoadOrStore(listingID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// GetOrCreate resolves the negotiation for (donor, recipient, listing),
// creating it in pending and reserving the listing if it does not exist.
// Repeated calls by either party return the same record; two recipients
// racing for one listing see exactly one success.
func (e *Engine) GetOrCreate(ctx context.Context, donorID, recipientID, listingID, actorID string) (*Negotiation, error) {
	if donorID == "" || recipientID == "" || listingID == "" {
		return nil, fmt.Errorf("%w: donor, recipient and listing are required", fault.ErrValidation)
	}
	if donorID == recipientID {
		return nil, fmt.Errorf("%w: donor and recipient must differ", fault.ErrValidation)
	}
	if actorID != donorID && actorID != recipientID {
		return nil, fmt.Errorf("%w: actor is not a party to this negotiation", fault.ErrUnauthorized)
	}

	id := DeriveID(donorID, recipientID, listingID)

	mu := e.lockFor(listingID)
	mu.Lock()
	defer mu.Unlock()

	existing, err := e.negs.Get(ctx, id)
	if err == nil {
		if existing.Status != StatusCompleted {
			return existing, nil
		}
		// A listing is single-use: once its negotiation completed, the
		// thread cannot be reopened.
		return nil, fmt.Errorf("%w: negotiation %s already completed", fault.ErrConflict, id)
	}
	if !errors.Is(err, fault.ErrNotFound) {
		return nil, err
	}

	l, err := e.listings.Get(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if l.DonorID != donorID {
		return nil, fmt.Errorf("%w: listing %s is not owned by donor %s", fault.ErrValidation, listingID, donorID)
	}
	if l.Status != listing.StatusAvailable {
		return nil, fmt.Errorf("%w: listing %s is %s", fault.ErrConflict, listingID, l.Status)
	}

	n := &Negotiation{
		ID:          id,
		DonorID:     donorID,
		RecipientID: recipientID,
		ListingID:   listingID,
		Status:      StatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	if err := e.negs.CreatePending(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// ConfirmDelivery - the donor marks the food handed over.
func (e *Engine) ConfirmDelivery(ctx context.Context, negotiationID, actorID string) (*Negotiation, error) {
	n, err := e.negs.Get(ctx, negotiationID)
	if err != nil {
		return nil, err
	}
	if actorID != n.DonorID {
		return nil, fmt.Errorf("%w: only the donor can confirm delivery", fault.ErrUnauthorized)
	}
	if n.Status != StatusPending {
		return nil, fmt.Errorf("%w: negotiation is %s", fault.ErrInvalidTransition, n.Status)
	}

	now := time.Now().UTC()
	if err := e.negs.SetStatus(ctx, negotiationID, StatusPending, StatusDelivered, now); err != nil {
		return nil, err
	}
	n.Status = StatusDelivered
	n.DeliveredAt = &now

	if e.notifier != nil {
		e.notifier.PublishStatus(negotiationID, n)
	}
	return n, nil
}

// ConfirmReceipt - the recipient acknowledges the handoff, closing the
// negotiation and the listing.
func (e *Engine) ConfirmReceipt(ctx context.Context, negotiationID, actorID string) (*Negotiation, error) {
	n, err := e.negs.Get(ctx, negotiationID)
	if err != nil {
		return nil, err
	}
	if actorID != n.RecipientID {
		return nil, fmt.Errorf("%w: only the recipient can confirm receipt", fault.ErrUnauthorized)
	}
	if n.Status != StatusDelivered {
		return nil, fmt.Errorf("%w: negotiation is %s", fault.ErrInvalidTransition, n.Status)
	}

	now := time.Now().UTC()
	if err := e.negs.SetStatus(ctx, negotiationID, StatusDelivered, StatusCompleted, now); err != nil {
		return nil, err
	}
	n.Status = StatusCompleted
	n.CompletedAt = &now

	if err := e.listings.Complete(ctx, n.ListingID); err != nil {
		// The negotiation is already terminal; the listing eventually
		// reconciles but the caller's confirmation stands.
		log.Printf("failed to complete listing %s: %v", n.ListingID, err)
	}
	if e.purger != nil {
		if err := e.purger.SchedulePurge(negotiationID); err != nil {
			log.Printf("failed to schedule purge for %s: %v", negotiationID, err)
		}
	}
	if e.notifier != nil {
		e.notifier.PublishStatus(negotiationID, n)
	}
	return n, nil
}

// Get returns the negotiation if the actor is a party to it.
func (e *Engine) Get(ctx context.Context, negotiationID, actorID string) (*Negotiation, error) {
	n, err := e.negs.Get(ctx, negotiationID)
	if err != nil {
		return nil, err
	}
	if !n.Participant(actorID) {
		return nil, fmt.Errorf("%w: not a participant in this negotiation", fault.ErrUnauthorized)
	}
	return n, nil
}

// ListMine returns the actor's negotiations, most recent first.
func (e *Engine) ListMine(ctx context.Context, actorID string) ([]Negotiation, error) {
	return e.negs.ListByParticipant(ctx, actorID)
}

// Purge removes a negotiation record; called by the retention worker.
func (e *Engine) Purge(ctx context.Context, negotiationID string) error {
	return e.negs.Purge(ctx, negotiationID)
}
