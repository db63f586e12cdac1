package db

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sudo-init-do/sharefood/internal/config"
)

var Conn *pgxpool.Pool

// Init connects to Postgres and ensures the schema the handlers rely on.
func Init(cfg *config.Config) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBHost,
		cfg.DBPort,
		cfg.DBName,
	)

	var err error
	Conn, err = pgxpool.New(context.Background(), dsn)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v\n", err)
	}

	if err = Conn.Ping(context.Background()); err != nil {
		log.Fatalf("Unable to ping database: %v\n", err)
	}

	log.Println("Connected to Postgres successfully")

	ensureUsersTable()
	ensureListingsTable()
	ensureNegotiationsTable()
	ensureMessagesTable()
}

func ensureUsersTable() {
	ctx := context.Background()
	_, err := Conn.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS users (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            email TEXT NOT NULL UNIQUE,
            name TEXT NOT NULL,
            password TEXT NOT NULL,
            created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
        );
    `)
	if err != nil {
		log.Printf("failed to create users table: %v", err)
	}
}

func ensureListingsTable() {
	ctx := context.Background()
	_, err := Conn.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS listings (
            id UUID PRIMARY KEY,
            donor_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            name TEXT NOT NULL,
            description TEXT NOT NULL,
            quantity TEXT NOT NULL,
            image_url TEXT NULL,
            lat DOUBLE PRECISION NOT NULL,
            lon DOUBLE PRECISION NOT NULL,
            status TEXT NOT NULL DEFAULT 'available'
                CHECK (status IN ('available', 'reserved', 'completed', 'withdrawn')),
            negotiation_id TEXT NULL,
            created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
        );
        CREATE INDEX IF NOT EXISTS idx_listings_donor ON listings(donor_id);
        CREATE INDEX IF NOT EXISTS idx_listings_status ON listings(status);
    `)
	if err != nil {
		log.Printf("failed to create listings table: %v", err)
	}
}

func ensureNegotiationsTable() {
	ctx := context.Background()
	// id is the deterministic hash of (donor, recipient, listing), so TEXT
	// rather than UUID. last_seq backs message sequence assignment: the row
	// lock taken by its increment serializes concurrent senders.
	_, err := Conn.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS negotiations (
            id TEXT PRIMARY KEY,
            donor_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            recipient_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            listing_id UUID NOT NULL REFERENCES listings(id) ON DELETE CASCADE,
            status TEXT NOT NULL DEFAULT 'pending'
                CHECK (status IN ('pending', 'delivered', 'completed')),
            last_seq BIGINT NOT NULL DEFAULT 0,
            created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
            delivered_at TIMESTAMP WITH TIME ZONE NULL,
            completed_at TIMESTAMP WITH TIME ZONE NULL
        );
        CREATE INDEX IF NOT EXISTS idx_negotiations_donor ON negotiations(donor_id);
        CREATE INDEX IF NOT EXISTS idx_negotiations_recipient ON negotiations(recipient_id);
        CREATE INDEX IF NOT EXISTS idx_negotiations_listing ON negotiations(listing_id);
    `)
	if err != nil {
		log.Printf("failed to create negotiations table: %v", err)
	}
}

func ensureMessagesTable() {
	ctx := context.Background()
	_, err := Conn.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS messages (
            id UUID PRIMARY KEY,
            negotiation_id TEXT NOT NULL REFERENCES negotiations(id) ON DELETE CASCADE,
            sender_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            sender_name TEXT NOT NULL DEFAULT '',
            text TEXT NOT NULL,
            sequence BIGINT NOT NULL,
            created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
            UNIQUE (negotiation_id, sequence)
        );
        CREATE INDEX IF NOT EXISTS idx_messages_negotiation ON messages(negotiation_id, sequence);
    `)
	if err != nil {
		log.Printf("failed to create messages table: %v", err)
	}
}
