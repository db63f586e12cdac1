package chat

import "time"

// Message is one entry in a negotiation's append-only log. Sequence is
// the authoritative ordering key; CreatedAt is advisory (server clocks,
// not sender clocks, and never used for ordering).
type Message struct {
	ID            string    `json:"id"`
	NegotiationID string    `json:"negotiation_id"`
	SenderID      string    `json:"sender_id"`
	SenderName    string    `json:"sender_name"`
	Text          string    `json:"text"`
	Sequence      int64     `json:"sequence"`
	CreatedAt     time.Time `json:"created_at"`
}
