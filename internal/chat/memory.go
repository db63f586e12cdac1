package chat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sequencer allocates the next message sequence for a negotiation and
// rejects negotiations that have already completed. Implementations must
// make the status check and the increment one atomic step.
type Sequencer interface {
	NextSeq(ctx context.Context, negotiationID string) (int64, error)
}

// MemoryLog keeps per-negotiation message slices. Each log has its own
// lock, so appends to unrelated negotiations never contend.
type MemoryLog struct {
	mu   sync.RWMutex
	seq  Sequencer
	logs map[string]*negotiationLog
}

type negotiationLog struct {
	mu       sync.Mutex
	messages []Message
	lastTime time.Time
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{logs: make(map[string]*negotiationLog)}
}

// WithSequencer delegates sequence assignment to the negotiation store,
// which refuses to allocate against a completed negotiation. Without one
// the log numbers messages itself and accepts anything.
func (l *MemoryLog) WithSequencer(seq Sequencer) *MemoryLog {
	l.seq = seq
	return l
}

func (l *MemoryLog) logFor(negotiationID string) *negotiationLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	nl, ok := l.logs[negotiationID]
	if !ok {
		nl = &negotiationLog{}
		l.logs[negotiationID] = nl
	}
	return nl
}

func (l *MemoryLog) AppendMessage(ctx context.Context, m *Message) error {
	nl := l.logFor(m.NegotiationID)

	nl.mu.Lock()
	defer nl.mu.Unlock()

	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if l.seq != nil {
		seq, err := l.seq.NextSeq(ctx, m.NegotiationID)
		if err != nil {
			return err
		}
		m.Sequence = seq
	} else {
		m.Sequence = int64(len(nl.messages)) + 1
	}

	// Timestamps are server-assigned and kept monotonic per negotiation
	// even if the wall clock steps backwards.
	now := time.Now().UTC()
	if !now.After(nl.lastTime) {
		now = nl.lastTime.Add(time.Microsecond)
	}
	nl.lastTime = now
	m.CreatedAt = now

	nl.messages = append(nl.messages, *m)
	return nil
}

func (l *MemoryLog) List(_ context.Context, negotiationID string) ([]Message, error) {
	l.mu.RLock()
	nl, ok := l.logs[negotiationID]
	l.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	nl.mu.Lock()
	defer nl.mu.Unlock()
	out := make([]Message, len(nl.messages))
	copy(out, nl.messages)
	return out, nil
}

func (l *MemoryLog) Purge(_ context.Context, negotiationID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.logs, negotiationID)
	return nil
}
