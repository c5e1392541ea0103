package database

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SchemaName returns the schema holding a room's tables: room_<id>, with
// negative ids written as room_n<abs>.
func SchemaName(roomID int64) string {
	if roomID < 0 {
		// strconv keeps the minimum int64 exact, unlike negation.
		return "room_n" + strconv.FormatInt(roomID, 10)[1:]
	}
	return "room_" + strconv.FormatInt(roomID, 10)
}

const rootSchema = `
	CREATE TABLE IF NOT EXISTS rooms (
		id         BIGINT PRIMARY KEY,
		name       TEXT NOT NULL,
		created_at BIGINT NOT NULL
	)
`

// roomSchema is run inside the room's search_path.
var roomSchema = []string{
	`CREATE TABLE IF NOT EXISTS messages (
		id         BIGSERIAL PRIMARY KEY,
		public_key TEXT NOT NULL,
		timestamp  BIGINT NOT NULL,
		data       TEXT NOT NULL,
		signature  TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS deleted_messages (
		id                 BIGSERIAL PRIMARY KEY,
		deleted_message_id BIGINT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS moderators (
		public_key TEXT PRIMARY KEY
	)`,
	`CREATE TABLE IF NOT EXISTS block_list (
		public_key TEXT PRIMARY KEY
	)`,
	`CREATE TABLE IF NOT EXISTS files (
		id         TEXT PRIMARY KEY,
		content    BYTEA NOT NULL,
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS pending_tokens (
		public_key TEXT NOT NULL,
		token_hash TEXT NOT NULL,
		expires_at BIGINT NOT NULL,
		PRIMARY KEY (public_key, token_hash)
	)`,
	`CREATE INDEX IF NOT EXISTS pending_tokens_expires_at_idx ON pending_tokens (expires_at)`,
	`CREATE TABLE IF NOT EXISTS tokens (
		token_hash TEXT PRIMARY KEY,
		public_key TEXT NOT NULL
	)`,
}

// migrateRoot creates the rooms table.
func migrateRoot(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, rootSchema); err != nil {
		return fmt.Errorf("create rooms table: %w", err)
	}
	return nil
}

// createRoomSchema creates the room's schema from the root pool.
func createRoomSchema(ctx context.Context, db *pgxpool.Pool, roomID int64) error {
	ident := pgx.Identifier{SchemaName(roomID)}.Sanitize()
	if _, err := db.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+ident); err != nil {
		return fmt.Errorf("create schema %s: %w", ident, err)
	}
	return nil
}

// migrateRoom creates the room tables through a pool bound to the room schema.
func migrateRoom(ctx context.Context, db *pgxpool.Pool) error {
	batch := &pgx.Batch{}
	for _, stmt := range roomSchema {
		batch.Queue(stmt)
	}

	results := db.SendBatch(ctx, batch)
	defer results.Close()

	for range roomSchema {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("migrate room schema: %w", err)
		}
	}
	return nil
}
