package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
)

// Connect initializes the database connection and runs migrations.
func Connect(dsn string, log zerolog.Logger) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	log.Info().Msg("database migrations applied")
	return db, nil
}

func runMigrations(db *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS child_links (
            child_id BIGINT NOT NULL,
            parent_id BIGINT NOT NULL,
            is_primary BOOLEAN NOT NULL DEFAULT FALSE,
            PRIMARY KEY(child_id, parent_id)
        );`,
		`CREATE TABLE IF NOT EXISTS rooms (
            id BIGSERIAL PRIMARY KEY,
            parent_id BIGINT NOT NULL,
            child_id BIGINT NOT NULL,
            invited_parent_ids BIGINT[] NOT NULL DEFAULT '{}',
            is_active BOOLEAN NOT NULL DEFAULT TRUE,
            last_message_text TEXT,
            last_message_sender_model TEXT,
            last_message_sender_id BIGINT,
            last_message_at TIMESTAMPTZ,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE UNIQUE INDEX IF NOT EXISTS rooms_active_pair_idx
            ON rooms (parent_id, child_id) WHERE is_active;`,
		`CREATE TABLE IF NOT EXISTS messages (
            id BIGSERIAL PRIMARY KEY,
            room_id BIGINT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
            sender_model TEXT NOT NULL,
            sender_id BIGINT NOT NULL,
            type TEXT NOT NULL,
            text TEXT NOT NULL DEFAULT '',
            audio_url TEXT,
            audio_duration_secs INT,
            audio_mime_type TEXT,
            audio_size_bytes BIGINT,
            storage_id TEXT,
            payload JSONB,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE INDEX IF NOT EXISTS messages_room_idx ON messages (room_id, id DESC);`,
		`CREATE TABLE IF NOT EXISTS sos_alerts (
            id BIGSERIAL PRIMARY KEY,
            child_id BIGINT NOT NULL,
            parent_id BIGINT NOT NULL,
            room_id BIGINT NOT NULL,
            status TEXT NOT NULL,
            parent_call_attempts INT NOT NULL DEFAULT 0,
            emergency_call_attempts INT NOT NULL DEFAULT 0,
            resolved_at TIMESTAMPTZ,
            resolved_by TEXT,
            metadata JSONB,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE UNIQUE INDEX IF NOT EXISTS sos_alerts_active_child_idx
            ON sos_alerts (child_id)
            WHERE status IN ('PENDING', 'CALLING_PARENT', 'CALLING_EMERGENCY');`,
		`CREATE TABLE IF NOT EXISTS call_attempts (
            id BIGSERIAL PRIMARY KEY,
            alert_id BIGINT NOT NULL REFERENCES sos_alerts(id) ON DELETE CASCADE,
            call_type TEXT NOT NULL,
            status TEXT NOT NULL,
            answered BOOLEAN NOT NULL DEFAULT FALSE,
            phone_number TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE INDEX IF NOT EXISTS call_attempts_alert_idx ON call_attempts (alert_id, id);`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}
