package negotiation

import (
	"context"
	"time"
)

// Store persists negotiations. CreatePending must reserve the listing and
// insert the negotiation as a single atomic unit: if the reservation is
// lost, no negotiation record may exist afterwards. SetStatus is a
// compare-and-set on the status column; a from-state mismatch fails with
// fault.ErrInvalidTransition so two racing confirmations see one winner.
type Store interface {
	Get(ctx context.Context, id string) (*Negotiation, error)
	CreatePending(ctx context.Context, n *Negotiation) error
	SetStatus(ctx context.Context, id, from, to string, at time.Time) error
	ListByParticipant(ctx context.Context, userID string) ([]Negotiation, error)
	// Purge removes the negotiation record. The message log is purged
	// separately by the retention worker.
	Purge(ctx context.Context, id string) error
}
