package listing

import (
	"context"
	"strings"

	"github.com/sudo-init-do/sharefood/internal/fault"
	"github.com/sudo-init-do/sharefood/internal/geo"
)

// Store owns the listing lifecycle. Reserve, Complete and Withdraw are
// compare-and-set transitions: callers racing on the same listing see
// exactly one winner.
type Store interface {
	Create(ctx context.Context, l *Listing) error
	Get(ctx context.Context, id string) (*Listing, error)
	FindAvailableNear(ctx context.Context, center geo.Point, radiusKm float64, excludeDonorID string) ([]Match, error)
	ListByDonor(ctx context.Context, donorID string) ([]Listing, error)

	// Reserve transitions available -> reserved and records the owning
	// negotiation. Fails with fault.ErrConflict if the listing is no
	// longer available.
	Reserve(ctx context.Context, id, negotiationID string) error
	// Complete transitions reserved -> completed.
	Complete(ctx context.Context, id string) error
	// Withdraw transitions available -> withdrawn, donor only.
	Withdraw(ctx context.Context, id, donorID string) error
}

// validate checks the required fields on a new listing.
func validate(l *Listing) error {
	if strings.TrimSpace(l.Name) == "" ||
		strings.TrimSpace(l.Description) == "" ||
		strings.TrimSpace(l.Quantity) == "" {
		return fault.ErrValidation
	}
	if !l.Location.Valid() {
		return fault.ErrValidation
	}
	return nil
}
