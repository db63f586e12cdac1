package listing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sudo-init-do/sharefood/internal/fault"
	"github.com/sudo-init-do/sharefood/internal/geo"
)

// PostgresStore persists listings in the listings table. The conditional
// UPDATE ... WHERE status = ... form implements the compare-and-set
// transitions; a zero RowsAffected means the caller lost the race.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Create(ctx context.Context, l *Listing) error {
	if err := validate(l); err != nil {
		return err
	}
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	l.Status = StatusAvailable
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO listings (id, donor_id, name, description, quantity, image_url, lat, lon, status, created_at)
         VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, 'available', $9)`,
		l.ID, l.DonorID, l.Name, l.Description, l.Quantity, l.ImageURL,
		l.Location.Lat, l.Location.Lon, l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert listing: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Listing, error) {
	l, err := scanListing(s.pool.QueryRow(ctx,
		`SELECT id, donor_id, name, description, quantity, COALESCE(image_url, ''), lat, lon, status, COALESCE(negotiation_id, ''), created_at
         FROM listings WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: listing %s", fault.ErrNotFound, id)
		}
		return nil, fmt.Errorf("fetch listing: %w", err)
	}
	return l, nil
}

// FindAvailableNear pre-filters with a bounding box in SQL, then applies
// the exact haversine cut and ordering in Go, same as the memory store.
func (s *PostgresStore) FindAvailableNear(ctx context.Context, center geo.Point, radiusKm float64, excludeDonorID string) ([]Match, error) {
	if !center.Valid() {
		return nil, fmt.Errorf("%w: invalid center coordinates", fault.ErrValidation)
	}

	latSpan := radiusKm / 111.0
	lonSpan := latSpan * 3 // generous at mid latitudes; exact cut happens below

	// The longitude box wraps across the antimeridian: when it spills
	// past +-180 the BETWEEN becomes a disjunction over the two arcs.
	minLon, maxLon := center.Lon-lonSpan, center.Lon+lonSpan
	lonPred := `lon BETWEEN $4 AND $5`
	if lonSpan >= 180 {
		minLon, maxLon = -180, 180
	} else if minLon < -180 || maxLon > 180 {
		if minLon < -180 {
			minLon += 360
		}
		if maxLon > 180 {
			maxLon -= 360
		}
		lonPred = `(lon >= $4 OR lon <= $5)`
	}

	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT id, donor_id, name, description, quantity, COALESCE(image_url, ''), lat, lon, status, COALESCE(negotiation_id, ''), created_at
         FROM listings
         WHERE status = 'available'
           AND donor_id <> $1
           AND lat BETWEEN $2 AND $3
           AND %s`, lonPred),
		excludeDonorID,
		center.Lat-latSpan, center.Lat+latSpan,
		minLon, maxLon,
	)
	if err != nil {
		return nil, fmt.Errorf("query listings: %w", err)
	}
	defer rows.Close()

	var out []Match
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		if !l.Location.Valid() {
			continue
		}
		d := geo.Distance(center, l.Location)
		if d <= radiusKm {
			out = append(out, Match{Listing: *l, DistanceKm: d})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate listings: %w", err)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceKm != out[j].DistanceKm {
			return out[i].DistanceKm < out[j].DistanceKm
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *PostgresStore) ListByDonor(ctx context.Context, donorID string) ([]Listing, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, donor_id, name, description, quantity, COALESCE(image_url, ''), lat, lon, status, COALESCE(negotiation_id, ''), created_at
         FROM listings WHERE donor_id = $1 ORDER BY created_at DESC`, donorID)
	if err != nil {
		return nil, fmt.Errorf("query donor listings: %w", err)
	}
	defer rows.Close()

	var out []Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Reserve(ctx context.Context, id, negotiationID string) error {
	res, err := s.pool.Exec(ctx,
		`UPDATE listings SET status = 'reserved', negotiation_id = $2
         WHERE id = $1 AND status = 'available'`,
		id, negotiationID)
	if err != nil {
		return fmt.Errorf("reserve listing: %w", err)
	}
	if res.RowsAffected() == 0 {
		return s.transitionFailure(ctx, id, fault.ErrConflict)
	}
	return nil
}

func (s *PostgresStore) Complete(ctx context.Context, id string) error {
	res, err := s.pool.Exec(ctx,
		`UPDATE listings SET status = 'completed' WHERE id = $1 AND status = 'reserved'`, id)
	if err != nil {
		return fmt.Errorf("complete listing: %w", err)
	}
	if res.RowsAffected() == 0 {
		return s.transitionFailure(ctx, id, fault.ErrInvalidState)
	}
	return nil
}

func (s *PostgresStore) Withdraw(ctx context.Context, id, donorID string) error {
	res, err := s.pool.Exec(ctx,
		`UPDATE listings SET status = 'withdrawn'
         WHERE id = $1 AND donor_id = $2 AND status = 'available'`,
		id, donorID)
	if err != nil {
		return fmt.Errorf("withdraw listing: %w", err)
	}
	if res.RowsAffected() != 0 {
		return nil
	}

	l, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if l.DonorID != donorID {
		return fmt.Errorf("%w: not the donor of listing %s", fault.ErrUnauthorized, id)
	}
	return fmt.Errorf("%w: cannot withdraw listing in status %s", fault.ErrInvalidState, l.Status)
}

// transitionFailure distinguishes a missing row from a lost status race.
func (s *PostgresStore) transitionFailure(ctx context.Context, id string, raceErr error) error {
	l, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: listing %s is %s", raceErr, id, l.Status)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(row rowScanner) (*Listing, error) {
	var l Listing
	err := row.Scan(&l.ID, &l.DonorID, &l.Name, &l.Description, &l.Quantity, &l.ImageURL,
		&l.Location.Lat, &l.Location.Lon, &l.Status, &l.NegotiationID, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}
