package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Connect opens the Postgres connection and applies the schema.
func Connect(ctx context.Context, dsn string, log *zap.Logger) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	log.Info("database migrations applied", zap.Int("statements", len(migrations)))
	return db, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS waiters (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            is_active BOOLEAN NOT NULL DEFAULT TRUE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`CREATE TABLE IF NOT EXISTS conversations (
            id TEXT PRIMARY KEY,
            client_id TEXT NOT NULL,
            waiter_id TEXT NOT NULL,
            last_message TEXT NOT NULL DEFAULT '',
            unread_count INT NOT NULL DEFAULT 0 CHECK (unread_count >= 0),
            status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'closed')),
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`CREATE UNIQUE INDEX IF NOT EXISTS conversations_active_pair
            ON conversations (client_id, waiter_id) WHERE status = 'active';`,
	`CREATE INDEX IF NOT EXISTS conversations_updated_at ON conversations (updated_at DESC);`,
	`CREATE TABLE IF NOT EXISTS conversation_messages (
            seq BIGSERIAL PRIMARY KEY,
            id TEXT NOT NULL UNIQUE,
            conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
            content TEXT NOT NULL CHECK (content <> ''),
            sender_id TEXT NOT NULL,
            sender_type TEXT NOT NULL,
            read BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`CREATE INDEX IF NOT EXISTS conversation_messages_conv_seq
            ON conversation_messages (conversation_id, seq);`,
}

func runMigrations(ctx context.Context, db *sqlx.DB) error {
	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	return nil
}
