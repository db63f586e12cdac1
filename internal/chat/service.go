package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/sudo-init-do/sharefood/internal/fault"
	"github.com/sudo-init-do/sharefood/internal/negotiation"
)

// Log stores messages. AppendMessage assigns the sequence number
// atomically: concurrent appends to one negotiation serialize at that
// point only, and the resulting sequences are gapless starting at 1.
type Log interface {
	AppendMessage(ctx context.Context, m *Message) error
	List(ctx context.Context, negotiationID string) ([]Message, error)
	Purge(ctx context.Context, negotiationID string) error
}

// NegotiationGetter is the slice of the negotiation store the service
// needs for authorization.
type NegotiationGetter interface {
	Get(ctx context.Context, id string) (*negotiation.Negotiation, error)
}

// Notifier receives appended messages for fan-out to subscribed clients.
type Notifier interface {
	PublishMessage(negotiationID string, m *Message)
}

// Directory resolves user ids to display names so message payloads carry
// a human-readable sender.
type Directory interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

// Service authorizes against the owning negotiation before touching the
// log: only participants may write, and nothing may be appended once the
// handoff is finalized.
type Service struct {
	log      Log
	negs     NegotiationGetter
	notifier Notifier
	names    Directory
}

func NewService(log Log, negs NegotiationGetter) *Service {
	return &Service{log: log, negs: negs}
}

// WithNotifier attaches a broadcaster for new-message deltas.
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

// WithNames attaches a directory for resolving sender display names.
func (s *Service) WithNames(d Directory) *Service {
	s.names = d
	return s
}

// Append writes a message to the negotiation's log.
func (s *Service) Append(ctx context.Context, negotiationID, senderID, text string) (*Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: message text is required", fault.ErrValidation)
	}

	n, err := s.negs.Get(ctx, negotiationID)
	if err != nil {
		return nil, err
	}
	if !n.Participant(senderID) {
		return nil, fmt.Errorf("%w: sender is not a party to this negotiation", fault.ErrUnauthorized)
	}
	if n.Status == negotiation.StatusCompleted {
		return nil, fmt.Errorf("%w: negotiation is completed", fault.ErrInvalidState)
	}

	m := &Message{
		NegotiationID: negotiationID,
		SenderID:      senderID,
		Text:          text,
	}
	// A failed name lookup never blocks the message; the id is still there.
	if s.names != nil {
		if name, err := s.names.DisplayName(ctx, senderID); err == nil {
			m.SenderName = name
		}
	}
	if err := s.log.AppendMessage(ctx, m); err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.PublishMessage(negotiationID, m)
	}
	return m, nil
}

// List returns the negotiation's messages ordered by sequence, for
// participants only.
func (s *Service) List(ctx context.Context, negotiationID, actorID string) ([]Message, error) {
	n, err := s.negs.Get(ctx, negotiationID)
	if err != nil {
		return nil, err
	}
	if !n.Participant(actorID) {
		return nil, fmt.Errorf("%w: not a participant in this negotiation", fault.ErrUnauthorized)
	}
	return s.log.List(ctx, negotiationID)
}

// Purge drops the log; called by the retention worker.
func (s *Service) Purge(ctx context.Context, negotiationID string) error {
	return s.log.Purge(ctx, negotiationID)
}
