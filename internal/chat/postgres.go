package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sudo-init-do/sharefood/internal/fault"
)

// PostgresLog stores messages in the messages table. The sequence comes
// from incrementing negotiations.last_seq inside the insert transaction:
// the row lock on the negotiation serializes concurrent senders, so
// sequences are gapless without any global coordination.
type PostgresLog struct {
	pool *pgxpool.Pool
}

func NewPostgresLog(pool *pgxpool.Pool) *PostgresLog {
	return &PostgresLog{pool: pool}
}

func (l *PostgresLog) AppendMessage(ctx context.Context, m *Message) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	m.CreatedAt = time.Now().UTC()

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("transaction start failed: %w", err)
	}
	defer tx.Rollback(ctx)

	// The status guard rides the same row lock that serializes sequence
	// assignment, so an append cannot slip past a concurrent completion.
	err = tx.QueryRow(ctx,
		`UPDATE negotiations SET last_seq = last_seq + 1
         WHERE id = $1 AND status <> 'completed'
         RETURNING last_seq`,
		m.NegotiationID,
	).Scan(&m.Sequence)
	if errors.Is(err, pgx.ErrNoRows) {
		var status string
		err = l.pool.QueryRow(ctx, `SELECT status FROM negotiations WHERE id = $1`, m.NegotiationID).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: negotiation %s", fault.ErrNotFound, m.NegotiationID)
		}
		if err != nil {
			return fmt.Errorf("fetch negotiation status: %w", err)
		}
		return fmt.Errorf("%w: negotiation is %s", fault.ErrInvalidState, status)
	}
	if err != nil {
		return fmt.Errorf("assign sequence: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO messages (id, negotiation_id, sender_id, sender_name, text, sequence, created_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.NegotiationID, m.SenderID, m.SenderName, m.Text, m.Sequence, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	return nil
}

func (l *PostgresLog) List(ctx context.Context, negotiationID string) ([]Message, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id, negotiation_id, sender_id, sender_name, text, sequence, created_at
         FROM messages WHERE negotiation_id = $1 ORDER BY sequence ASC`, negotiationID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.NegotiationID, &m.SenderID, &m.SenderName, &m.Text, &m.Sequence, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// PostgresDirectory resolves sender display names from the users table.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{pool: pool}
}

func (d *PostgresDirectory) DisplayName(ctx context.Context, userID string) (string, error) {
	var name string
	err := d.pool.QueryRow(ctx, `SELECT name FROM users WHERE id = $1`, userID).Scan(&name)
	if err != nil {
		return "", fmt.Errorf("lookup user name: %w", err)
	}
	return name, nil
}

func (l *PostgresLog) Purge(ctx context.Context, negotiationID string) error {
	_, err := l.pool.Exec(ctx, `DELETE FROM messages WHERE negotiation_id = $1`, negotiationID)
	if err != nil {
		return fmt.Errorf("purge messages: %w", err)
	}
	return nil
}
