package listing

import (
	"time"

	"github.com/sudo-init-do/sharefood/internal/geo"
)

// Listing statuses. Transitions are monotonic: once a listing leaves
// available it never returns; re-listing the same food means a new id.
const (
	StatusAvailable = "available"
	StatusReserved  = "reserved"
	StatusCompleted = "completed"
	StatusWithdrawn = "withdrawn"
)

// Listing is a published donation offer.
type Listing struct {
	ID            string    `json:"id"`
	DonorID       string    `json:"donor_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Quantity      string    `json:"quantity"`
	ImageURL      string    `json:"image_url,omitempty"`
	Location      geo.Point `json:"location"`
	Status        string    `json:"status"`
	NegotiationID string    `json:"negotiation_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Match is a discovery result: a listing plus its distance from the
// recipient's position.
type Match struct {
	Listing
	DistanceKm float64 `json:"distance_km"`
}
