package database

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rickgao/opengroup/internal/model"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// RoomPool is a borrowed handle to one room's pool. Handles come from
// Registry.PoolByRoomID and Registry.OpenPools and must be released once.
type RoomPool struct {
	roomID   int64
	db       *pgxpool.Pool
	registry *Registry
	entry    *roomEntry
	released atomic.Bool
}

// RoomID returns the room the handle belongs to.
func (p *RoomPool) RoomID() int64 {
	if p == nil {
		return 0
	}
	return p.roomID
}

// Release returns the handle to the registry. It is safe to call on a nil
// handle and more than once.
func (p *RoomPool) Release() {
	if p == nil || p.registry == nil || p.entry == nil {
		return
	}
	if p.released.CompareAndSwap(false, true) {
		p.registry.release(p.entry)
	}
}

// -----------------------------------------------------------------------------
// Messages
// -----------------------------------------------------------------------------

// InsertMessage stores msg and returns its server id.
func (p *RoomPool) InsertMessage(ctx context.Context, msg model.Message) (int64, error) {
	var id int64
	err := p.db.QueryRow(ctx, `
		INSERT INTO messages (public_key, timestamp, data, signature)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, msg.PublicKey, msg.Timestamp, msg.Data, msg.Signature).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}
	return id, nil
}

// Messages lists up to limit messages. With fromServerID set it returns the
// messages after it in ascending order, otherwise the newest first.
func (p *RoomPool) Messages(ctx context.Context, limit int, fromServerID *int64) ([]model.Message, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if fromServerID != nil {
		rows, err = p.db.Query(ctx, `
			SELECT id, public_key, timestamp, data, signature FROM messages
			WHERE id > $1 ORDER BY id ASC LIMIT $2
		`, *fromServerID, limit)
	} else {
		rows, err = p.db.Query(ctx, `
			SELECT id, public_key, timestamp, data, signature FROM messages
			ORDER BY id DESC LIMIT $1
		`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}

	msgs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Message, error) {
		var (
			m  model.Message
			id int64
		)
		err := row.Scan(&id, &m.PublicKey, &m.Timestamp, &m.Data, &m.Signature)
		m.ServerID = &id
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan messages: %w", err)
	}
	return msgs, nil
}

// DeletedMessages lists up to limit tombstones, ordered like Messages.
func (p *RoomPool) DeletedMessages(ctx context.Context, limit int, fromID *int64) ([]model.DeletedMessage, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if fromID != nil {
		rows, err = p.db.Query(ctx, `
			SELECT id, deleted_message_id FROM deleted_messages
			WHERE id > $1 ORDER BY id ASC LIMIT $2
		`, *fromID, limit)
	} else {
		rows, err = p.db.Query(ctx, `
			SELECT id, deleted_message_id FROM deleted_messages
			ORDER BY id DESC LIMIT $1
		`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query deleted messages: %w", err)
	}

	deleted, err := pgx.CollectRows(rows, pgx.RowToStructByPos[model.DeletedMessage])
	if err != nil {
		return nil, fmt.Errorf("scan deleted messages: %w", err)
	}
	return deleted, nil
}

// MessageAuthor returns the public key that posted serverID.
func (p *RoomPool) MessageAuthor(ctx context.Context, serverID int64) (string, error) {
	var publicKey string
	err := p.db.QueryRow(ctx, `SELECT public_key FROM messages WHERE id = $1`, serverID).Scan(&publicKey)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query message author: %w", err)
	}
	return publicKey, nil
}

// DeleteMessage removes serverID and records a tombstone in the same
// transaction. It returns the tombstone id.
func (p *RoomPool) DeleteMessage(ctx context.Context, serverID int64) (int64, error) {
	var tombstone int64
	err := pgx.BeginFunc(ctx, p.db, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, `DELETE FROM messages WHERE id = $1`, serverID)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return ErrNotFound
		}
		return tx.QueryRow(ctx, `
			INSERT INTO deleted_messages (deleted_message_id) VALUES ($1)
			RETURNING id
		`, serverID).Scan(&tombstone)
	})
	if errors.Is(err, ErrNotFound) {
		return 0, err
	}
	if err != nil {
		return 0, fmt.Errorf("delete message: %w", err)
	}
	return tombstone, nil
}

// -----------------------------------------------------------------------------
// Moderation
// -----------------------------------------------------------------------------

// Moderators lists the room's moderators.
func (p *RoomPool) Moderators(ctx context.Context) ([]string, error) {
	return p.publicKeys(ctx, `SELECT public_key FROM moderators ORDER BY public_key`)
}

// IsModerator reports whether publicKey moderates the room.
func (p *RoomPool) IsModerator(ctx context.Context, publicKey string) (bool, error) {
	return p.exists(ctx, `SELECT EXISTS (SELECT 1 FROM moderators WHERE public_key = $1)`, publicKey)
}

// AddModerator makes publicKey a moderator.
func (p *RoomPool) AddModerator(ctx context.Context, publicKey string) error {
	_, err := p.db.Exec(ctx, `INSERT INTO moderators (public_key) VALUES ($1) ON CONFLICT DO NOTHING`, publicKey)
	if err != nil {
		return fmt.Errorf("add moderator: %w", err)
	}
	return nil
}

// BannedPublicKeys lists the room's block list.
func (p *RoomPool) BannedPublicKeys(ctx context.Context) ([]string, error) {
	return p.publicKeys(ctx, `SELECT public_key FROM block_list ORDER BY public_key`)
}

// IsBanned reports whether publicKey is on the block list.
func (p *RoomPool) IsBanned(ctx context.Context, publicKey string) (bool, error) {
	return p.exists(ctx, `SELECT EXISTS (SELECT 1 FROM block_list WHERE public_key = $1)`, publicKey)
}

// Ban adds publicKey to the block list and revokes its tokens.
func (p *RoomPool) Ban(ctx context.Context, publicKey string) error {
	err := pgx.BeginFunc(ctx, p.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO block_list (public_key) VALUES ($1) ON CONFLICT DO NOTHING`, publicKey); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM tokens WHERE public_key = $1`, publicKey)
		return err
	})
	if err != nil {
		return fmt.Errorf("ban: %w", err)
	}
	return nil
}

// Unban removes publicKey from the block list.
func (p *RoomPool) Unban(ctx context.Context, publicKey string) error {
	if _, err := p.db.Exec(ctx, `DELETE FROM block_list WHERE public_key = $1`, publicKey); err != nil {
		return fmt.Errorf("unban: %w", err)
	}
	return nil
}

// MemberCount returns the number of distinct public keys holding a token.
func (p *RoomPool) MemberCount(ctx context.Context) (int64, error) {
	var n int64
	if err := p.db.QueryRow(ctx, `SELECT COUNT(DISTINCT public_key) FROM tokens`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count members: %w", err)
	}
	return n, nil
}

// -----------------------------------------------------------------------------
// Files
// -----------------------------------------------------------------------------

// StoreFile inserts f.
func (p *RoomPool) StoreFile(ctx context.Context, f model.File) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO files (id, content, created_at) VALUES ($1, $2, $3)
	`, f.ID, f.Content, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("store file: %w", err)
	}
	return nil
}

// File returns the file with the given id.
func (p *RoomPool) File(ctx context.Context, id string) (model.File, error) {
	f := model.File{ID: id}
	err := p.db.QueryRow(ctx, `SELECT content, created_at FROM files WHERE id = $1`, id).Scan(&f.Content, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.File{}, ErrNotFound
	}
	if err != nil {
		return model.File{}, fmt.Errorf("query file: %w", err)
	}
	return f, nil
}

// -----------------------------------------------------------------------------
// Auth tokens
// -----------------------------------------------------------------------------

// PutChallenge records a token issued to a public key but not yet claimed.
func (p *RoomPool) PutChallenge(ctx context.Context, c model.AuthChallenge) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO pending_tokens (public_key, token_hash, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (public_key, token_hash) DO UPDATE SET expires_at = EXCLUDED.expires_at
	`, c.PublicKey, c.TokenHash, c.ExpiresAt)
	if err != nil {
		return fmt.Errorf("put challenge: %w", err)
	}
	return nil
}

// ClaimToken moves a pending, unexpired token for publicKey to the claimed
// tokens. It reports false if there was no such pending token.
func (p *RoomPool) ClaimToken(ctx context.Context, publicKey, tokenHash string, nowMillis int64) (bool, error) {
	claimed := false
	err := pgx.BeginFunc(ctx, p.db, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, `
			DELETE FROM pending_tokens
			WHERE public_key = $1 AND token_hash = $2 AND expires_at > $3
		`, publicKey, tokenHash, nowMillis)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return nil
		}
		claimed = true
		_, err = tx.Exec(ctx, `
			INSERT INTO tokens (token_hash, public_key) VALUES ($1, $2)
			ON CONFLICT (token_hash) DO NOTHING
		`, tokenHash, publicKey)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("claim token: %w", err)
	}
	return claimed, nil
}

// TokenOwner returns the public key that claimed tokenHash.
func (p *RoomPool) TokenOwner(ctx context.Context, tokenHash string) (string, error) {
	var publicKey string
	err := p.db.QueryRow(ctx, `SELECT public_key FROM tokens WHERE token_hash = $1`, tokenHash).Scan(&publicKey)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query token owner: %w", err)
	}
	return publicKey, nil
}

// DeleteToken revokes a claimed token.
func (p *RoomPool) DeleteToken(ctx context.Context, tokenHash string) error {
	if _, err := p.db.Exec(ctx, `DELETE FROM tokens WHERE token_hash = $1`, tokenHash); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}

// PruneExpiredChallenges deletes pending tokens that expired at or before
// nowMillis and returns how many were removed.
func (p *RoomPool) PruneExpiredChallenges(ctx context.Context, nowMillis int64) (int64, error) {
	ct, err := p.db.Exec(ctx, `DELETE FROM pending_tokens WHERE expires_at <= $1`, nowMillis)
	if err != nil {
		return 0, fmt.Errorf("prune challenges: %w", err)
	}
	return ct.RowsAffected(), nil
}

func (p *RoomPool) publicKeys(ctx context.Context, query string) ([]string, error) {
	rows, err := p.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query public keys: %w", err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan public keys: %w", err)
	}
	return keys, nil
}

func (p *RoomPool) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var ok bool
	if err := p.db.QueryRow(ctx, query, args...).Scan(&ok); err != nil {
		return false, fmt.Errorf("query exists: %w", err)
	}
	return ok, nil
}
