package negotiation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sudo-init-do/sharefood/internal/fault"
)

// PostgresStore persists negotiations. CreatePending runs the listing
// reservation and the negotiation insert in one transaction; SetStatus is
// a guarded UPDATE whose zero RowsAffected signals a lost race.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Negotiation, error) {
	var n Negotiation
	err := s.pool.QueryRow(ctx,
		`SELECT id, donor_id, recipient_id, listing_id, status, created_at, delivered_at, completed_at
         FROM negotiations WHERE id = $1`, id,
	).Scan(&n.ID, &n.DonorID, &n.RecipientID, &n.ListingID, &n.Status, &n.CreatedAt, &n.DeliveredAt, &n.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: negotiation %s", fault.ErrNotFound, id)
		}
		return nil, fmt.Errorf("fetch negotiation: %w", err)
	}
	return &n, nil
}

func (s *PostgresStore) CreatePending(ctx context.Context, n *Negotiation) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	n.Status = StatusPending

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("transaction start failed: %w", err)
	}
	defer tx.Rollback(ctx)

	res, err := tx.Exec(ctx,
		`UPDATE listings SET status = 'reserved', negotiation_id = $2
         WHERE id = $1 AND status = 'available'`,
		n.ListingID, n.ID)
	if err != nil {
		return fmt.Errorf("reserve listing: %w", err)
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("%w: listing %s is no longer available", fault.ErrConflict, n.ListingID)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO negotiations (id, donor_id, recipient_id, listing_id, status, created_at)
         VALUES ($1, $2, $3, $4, 'pending', $5)`,
		n.ID, n.DonorID, n.RecipientID, n.ListingID, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert negotiation: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetStatus(ctx context.Context, id, from, to string, at time.Time) error {
	var query string
	switch to {
	case StatusDelivered:
		query = `UPDATE negotiations SET status = $3, delivered_at = $4 WHERE id = $1 AND status = $2`
	case StatusCompleted:
		query = `UPDATE negotiations SET status = $3, completed_at = $4 WHERE id = $1 AND status = $2`
	default:
		return fmt.Errorf("%w: unknown target status %s", fault.ErrInvalidTransition, to)
	}

	res, err := s.pool.Exec(ctx, query, id, from, to, at)
	if err != nil {
		return fmt.Errorf("update negotiation status: %w", err)
	}
	if res.RowsAffected() == 0 {
		n, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: negotiation %s is %s, not %s", fault.ErrInvalidTransition, id, n.Status, from)
	}
	return nil
}

func (s *PostgresStore) ListByParticipant(ctx context.Context, userID string) ([]Negotiation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, donor_id, recipient_id, listing_id, status, created_at, delivered_at, completed_at
         FROM negotiations WHERE donor_id = $1 OR recipient_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query negotiations: %w", err)
	}
	defer rows.Close()

	var out []Negotiation
	for rows.Next() {
		var n Negotiation
		if err := rows.Scan(&n.ID, &n.DonorID, &n.RecipientID, &n.ListingID, &n.Status, &n.CreatedAt, &n.DeliveredAt, &n.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan negotiation: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Purge(ctx context.Context, id string) error {
	// Messages cascade on the foreign key.
	_, err := s.pool.Exec(ctx, `DELETE FROM negotiations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("purge negotiation: %w", err)
	}
	return nil
}
