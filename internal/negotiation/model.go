package negotiation

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Negotiation statuses. pending -> delivered -> completed, no other edges.
const (
	StatusPending   = "pending"
	StatusDelivered = "delivered"
	StatusCompleted = "completed"
)

// Negotiation is the handoff session between one donor and one recipient
// over one listing.
type Negotiation struct {
	ID          string     `json:"id"`
	DonorID     string     `json:"donor_id"`
	RecipientID string     `json:"recipient_id"`
	ListingID   string     `json:"listing_id"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Participant reports whether userID is a party to the negotiation.
func (n *Negotiation) Participant(userID string) bool {
	return userID == n.DonorID || userID == n.RecipientID
}

// DeriveID computes the negotiation id from the ordered triple. Any two
// clients opening the same conversation independently compute the same id,
// which is what makes getOrCreate idempotent.
func DeriveID(donorID, recipientID, listingID string) string {
	h := sha256.New()
	h.Write([]byte(donorID))
	h.Write([]byte{0})
	h.Write([]byte(recipientID))
	h.Write([]byte{0})
	h.Write([]byte(listingID))
	return hex.EncodeToString(h.Sum(nil))
}
