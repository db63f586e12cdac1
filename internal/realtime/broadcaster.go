package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/sudo-init-do/sharefood/internal/chat"
	"github.com/sudo-init-do/sharefood/internal/fault"
	"github.com/sudo-init-do/sharefood/internal/negotiation"
)

// Event is one item on a subscriber's stream.
type Event struct {
	Type string      `json:"type"` // snapshot, status, message, error
	Data interface{} `json:"data"`
}

// Snapshot is the full view a subscriber receives on join, so a client
// arriving mid-conversation never misses history.
type Snapshot struct {
	Negotiation *negotiation.Negotiation `json:"negotiation"`
	Messages    []chat.Message           `json:"messages"`
}

// NegotiationSource supplies current negotiation state for snapshots.
type NegotiationSource interface {
	Get(ctx context.Context, id string) (*negotiation.Negotiation, error)
}

// MessageSource supplies the ordered message log for snapshots.
type MessageSource interface {
	List(ctx context.Context, negotiationID string) ([]chat.Message, error)
}

// Subscriber is one client's stream over a negotiation.
type Subscriber struct {
	b     *Broadcaster
	negID string
	ch    chan Event
	once  sync.Once
}

// Events returns the stream. The first event is always the snapshot.
func (s *Subscriber) Events() <-chan Event { return s.ch }

// Close unregisters the subscriber and closes the stream. Safe to call
// more than once.
func (s *Subscriber) Close() {
	s.once.Do(func() {
		s.b.unregister(s)
		close(s.ch)
	})
}

// Broadcaster fans state and message deltas out to subscribed clients,
// one hub per negotiation. Delivery is best-effort: a subscriber that
// cannot keep up has deltas dropped and resynchronizes by resubscribing,
// which replays a full snapshot.
type Broadcaster struct {
	negs NegotiationSource
	msgs MessageSource

	mu   sync.RWMutex
	hubs map[string]map[*Subscriber]bool
}

func NewBroadcaster(negs NegotiationSource, msgs MessageSource) *Broadcaster {
	return &Broadcaster{
		negs: negs,
		msgs: msgs,
		hubs: make(map[string]map[*Subscriber]bool),
	}
}

// Subscribe opens a stream for a participant: snapshot first, then deltas.
// Actors not party to the negotiation are rejected.
func (b *Broadcaster) Subscribe(ctx context.Context, negotiationID, actorID string) (*Subscriber, error) {
	sub := &Subscriber{b: b, negID: negotiationID, ch: make(chan Event, 64)}

	// The snapshot reads, the registration and the snapshot enqueue all
	// share the write lock. Broadcasts cannot interleave, so anything
	// committed before this point is in the snapshot and anything after
	// arrives as a delta. An append blocked on the lock may end up in
	// both; sequence numbers make the duplicate harmless.
	b.mu.Lock()
	defer b.mu.Unlock()

	n, err := b.negs.Get(ctx, negotiationID)
	if err != nil {
		return nil, err
	}
	if !n.Participant(actorID) {
		return nil, fmt.Errorf("%w: not a participant in this negotiation", fault.ErrUnauthorized)
	}
	msgs, err := b.msgs.List(ctx, negotiationID)
	if err != nil {
		return nil, err
	}

	if b.hubs[negotiationID] == nil {
		b.hubs[negotiationID] = make(map[*Subscriber]bool)
	}
	b.hubs[negotiationID][sub] = true
	sub.ch <- Event{Type: "snapshot", Data: Snapshot{Negotiation: n, Messages: msgs}}
	return sub, nil
}

func (b *Broadcaster) unregister(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if subs, ok := b.hubs[sub.negID]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(b.hubs, sub.negID)
		}
	}
}

// PublishStatus pushes a state transition to all subscribers.
func (b *Broadcaster) PublishStatus(negotiationID string, n *negotiation.Negotiation) {
	b.broadcast(negotiationID, Event{Type: "status", Data: n})
}

// PublishMessage pushes an appended message to all subscribers.
func (b *Broadcaster) PublishMessage(negotiationID string, m *chat.Message) {
	b.broadcast(negotiationID, Event{Type: "message", Data: m})
}

func (b *Broadcaster) broadcast(negotiationID string, evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.hubs[negotiationID] {
		select {
		case sub.ch <- evt:
		default:
			// Slow or gone; the client resyncs on its next subscribe.
		}
	}
}
