package handlers

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rickgao/opengroup/internal/auth"
	"github.com/rickgao/opengroup/internal/database"
	"github.com/rickgao/opengroup/internal/model"
	"github.com/rickgao/opengroup/internal/rpc"
)

// Config holds Service configuration.
type Config struct {
	MaxFileSize  int           // Largest accepted decoded upload, in bytes
	ChallengeTTL time.Duration // How long an issued token may be claimed
}

// Service implements rpc.Operations.
type Service struct {
	cfg    Config
	logger *slog.Logger

	now      func() time.Time
	storeFor func(pool rpc.Pool) Store
}

var (
	_ rpc.Operations = (*Service)(nil)
	_ Store          = (*database.RoomPool)(nil)
	_ rpc.Pool       = (*database.RoomPool)(nil)
)

// NewService creates a Service.
func NewService(cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		storeFor: func(pool rpc.Pool) Store { return pool.(Store) },
	}
}

// -----------------------------------------------------------------------------
// Messages
// -----------------------------------------------------------------------------

// GetMessages returns a page of messages.
func (s *Service) GetMessages(ctx context.Context, opts rpc.QueryOptions, pool rpc.Pool) (any, error) {
	msgs, err := s.storeFor(pool).Messages(ctx, pageLimit(opts.Limit), opts.FromServerID)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	return MessagesResponse{StatusCode: http.StatusOK, Messages: msgs}, nil
}

// GetDeletedMessages returns a page of tombstones. FromServerID pages by
// tombstone id.
func (s *Service) GetDeletedMessages(ctx context.Context, opts rpc.QueryOptions, pool rpc.Pool) (any, error) {
	deleted, err := s.storeFor(pool).DeletedMessages(ctx, pageLimit(opts.Limit), opts.FromServerID)
	if err != nil {
		return nil, err
	}
	if deleted == nil {
		deleted = []model.DeletedMessage{}
	}
	return DeletedMessagesResponse{StatusCode: http.StatusOK, Messages: deleted}, nil
}

// InsertMessage stores a message authored by the token's owner.
func (s *Service) InsertMessage(ctx context.Context, msg model.Message, token string, pool rpc.Pool) (any, error) {
	store := s.storeFor(pool)

	author, err := s.tokenOwner(ctx, store, token)
	if err != nil {
		return nil, err
	}
	banned, err := store.IsBanned(ctx, author)
	if err != nil {
		return nil, err
	}
	if banned {
		return nil, fmt.Errorf("%w: author is banned", ErrForbidden)
	}

	if !validBase64(msg.Data) {
		return nil, fmt.Errorf("%w: data must be non-empty base64", ErrValidation)
	}
	if !validBase64(msg.Signature) {
		return nil, fmt.Errorf("%w: signature must be non-empty base64", ErrValidation)
	}

	msg.PublicKey = author
	id, err := store.InsertMessage(ctx, msg)
	if err != nil {
		return nil, err
	}
	msg.ServerID = &id

	s.logger.Debug("inserted message", "room_id", pool.RoomID(), "server_id", id)
	return MessageResponse{StatusCode: http.StatusOK, Message: msg}, nil
}

// DeleteMessage removes a message. Only its author or a moderator may.
func (s *Service) DeleteMessage(ctx context.Context, serverID int64, token string, pool rpc.Pool) (any, error) {
	store := s.storeFor(pool)

	caller, err := s.tokenOwner(ctx, store, token)
	if err != nil {
		return nil, err
	}
	author, err := store.MessageAuthor(ctx, serverID)
	if err != nil {
		return nil, notFound(err, "message")
	}
	if author != caller {
		mod, err := store.IsModerator(ctx, caller)
		if err != nil {
			return nil, err
		}
		if !mod {
			return nil, fmt.Errorf("%w: not the author or a moderator", ErrForbidden)
		}
	}

	if _, err := store.DeleteMessage(ctx, serverID); err != nil {
		return nil, notFound(err, "message")
	}

	s.logger.Info("deleted message", "room_id", pool.RoomID(), "server_id", serverID, "by", caller)
	return ok(), nil
}

// -----------------------------------------------------------------------------
// Moderation
// -----------------------------------------------------------------------------

// GetModerators lists the room's moderators.
func (s *Service) GetModerators(ctx context.Context, pool rpc.Pool) (any, error) {
	mods, err := s.storeFor(pool).Moderators(ctx)
	if err != nil {
		return nil, err
	}
	if mods == nil {
		mods = []string{}
	}
	return ModeratorsResponse{StatusCode: http.StatusOK, Moderators: mods}, nil
}

// GetBannedPublicKeys lists the room's block list.
func (s *Service) GetBannedPublicKeys(ctx context.Context, pool rpc.Pool) (any, error) {
	banned, err := s.storeFor(pool).BannedPublicKeys(ctx)
	if err != nil {
		return nil, err
	}
	if banned == nil {
		banned = []string{}
	}
	return BannedMembersResponse{StatusCode: http.StatusOK, BannedMembers: banned}, nil
}

// Ban adds publicKey to the block list.
func (s *Service) Ban(ctx context.Context, publicKey, token string, pool rpc.Pool) (any, error) {
	store := s.storeFor(pool)

	mod, err := s.requireModerator(ctx, store, token)
	if err != nil {
		return nil, err
	}
	if !auth.ValidPublicKey(publicKey) {
		return nil, fmt.Errorf("%w: invalid public key", ErrValidation)
	}
	if err := store.Ban(ctx, publicKey); err != nil {
		return nil, err
	}

	s.logger.Info("banned public key", "room_id", pool.RoomID(), "public_key", publicKey, "by", mod)
	return ok(), nil
}

// Unban removes publicKey from the block list.
func (s *Service) Unban(ctx context.Context, publicKey, token string, pool rpc.Pool) (any, error) {
	store := s.storeFor(pool)

	mod, err := s.requireModerator(ctx, store, token)
	if err != nil {
		return nil, err
	}
	if !auth.ValidPublicKey(publicKey) {
		return nil, fmt.Errorf("%w: invalid public key", ErrValidation)
	}
	if err := store.Unban(ctx, publicKey); err != nil {
		return nil, err
	}

	s.logger.Info("unbanned public key", "room_id", pool.RoomID(), "public_key", publicKey, "by", mod)
	return ok(), nil
}

// GetMemberCount returns how many public keys hold a token in the room.
func (s *Service) GetMemberCount(ctx context.Context, pool rpc.Pool) (any, error) {
	n, err := s.storeFor(pool).MemberCount(ctx)
	if err != nil {
		return nil, err
	}
	return MemberCountResponse{StatusCode: http.StatusOK, MemberCount: n}, nil
}

// -----------------------------------------------------------------------------
// Files
// -----------------------------------------------------------------------------

// StoreFile decodes and stores a base64 upload and returns its id.
func (s *Service) StoreFile(ctx context.Context, file string, pool rpc.Pool) (any, error) {
	content, err := base64.StdEncoding.DecodeString(file)
	if err != nil {
		return nil, fmt.Errorf("%w: file is not base64", ErrValidation)
	}
	if len(content) > s.cfg.MaxFileSize {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", ErrValidation, s.cfg.MaxFileSize)
	}

	f := model.File{
		ID:        uuid.NewString(),
		Content:   content,
		CreatedAt: s.now().UnixMilli(),
	}
	if err := s.storeFor(pool).StoreFile(ctx, f); err != nil {
		return nil, err
	}

	s.logger.Debug("stored file", "room_id", pool.RoomID(), "file_id", f.ID, "size", len(content))
	return ResultResponse{StatusCode: http.StatusOK, Result: f.ID}, nil
}

// GetFile returns a stored file as base64.
func (s *Service) GetFile(ctx context.Context, id string, pool rpc.Pool) (any, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: invalid file id", ErrValidation)
	}
	f, err := s.storeFor(pool).File(ctx, id)
	if err != nil {
		return nil, notFound(err, "file")
	}
	return ResultResponse{
		StatusCode: http.StatusOK,
		Result:     base64.StdEncoding.EncodeToString(f.Content),
	}, nil
}

// -----------------------------------------------------------------------------
// Auth tokens
// -----------------------------------------------------------------------------

// GetAuthTokenChallenge issues a token for publicKey to claim. The token is
// sealed to publicKey, so only the holder of its private key can claim it.
func (s *Service) GetAuthTokenChallenge(ctx context.Context, publicKey string, pool rpc.Pool) (any, error) {
	if !auth.ValidPublicKey(publicKey) {
		return nil, fmt.Errorf("%w: invalid public key", ErrValidation)
	}
	store := s.storeFor(pool)

	banned, err := store.IsBanned(ctx, publicKey)
	if err != nil {
		return nil, err
	}
	if banned {
		return nil, fmt.Errorf("%w: public key is banned", ErrForbidden)
	}

	token, err := auth.NewToken()
	if err != nil {
		return nil, err
	}
	sealed, err := auth.SealToken(token, publicKey)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidKey) {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return nil, err
	}
	expiresAt := s.now().Add(s.cfg.ChallengeTTL).UnixMilli()
	err = store.PutChallenge(ctx, model.AuthChallenge{
		PublicKey: publicKey,
		TokenHash: auth.HashToken(token),
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return nil, err
	}

	return ChallengeResponse{
		StatusCode: http.StatusOK,
		Challenge: Challenge{
			Ciphertext:         base64.StdEncoding.EncodeToString(sealed.Ciphertext),
			EphemeralPublicKey: hex.EncodeToString(sealed.EphemeralPublicKey),
			ExpiresAt:          expiresAt,
		},
	}, nil
}

// ClaimAuthToken activates the token issued to publicKey. The token is the
// call's Authorization header.
func (s *Service) ClaimAuthToken(ctx context.Context, publicKey, token string, pool rpc.Pool) (any, error) {
	if !auth.ValidPublicKey(publicKey) {
		return nil, fmt.Errorf("%w: invalid public key", ErrValidation)
	}
	if token == "" {
		return nil, fmt.Errorf("%w: missing auth token", ErrUnauthorized)
	}

	claimed, err := s.storeFor(pool).ClaimToken(ctx, publicKey, auth.HashToken(token), s.now().UnixMilli())
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, fmt.Errorf("%w: no pending token for public key", ErrUnauthorized)
	}

	s.logger.Debug("claimed auth token", "room_id", pool.RoomID(), "public_key", publicKey)
	return ok(), nil
}

// DeleteAuthToken revokes the caller's token.
func (s *Service) DeleteAuthToken(ctx context.Context, token string, pool rpc.Pool) (any, error) {
	store := s.storeFor(pool)
	if _, err := s.tokenOwner(ctx, store, token); err != nil {
		return nil, err
	}
	if err := store.DeleteToken(ctx, auth.HashToken(token)); err != nil {
		return nil, err
	}
	return ok(), nil
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// tokenOwner returns the public key holding token.
func (s *Service) tokenOwner(ctx context.Context, store Store, token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: missing auth token", ErrUnauthorized)
	}
	owner, err := store.TokenOwner(ctx, auth.HashToken(token))
	if errors.Is(err, database.ErrNotFound) {
		return "", fmt.Errorf("%w: unknown auth token", ErrUnauthorized)
	}
	if err != nil {
		return "", err
	}
	return owner, nil
}

// requireModerator returns the caller's public key if it moderates the room.
func (s *Service) requireModerator(ctx context.Context, store Store, token string) (string, error) {
	caller, err := s.tokenOwner(ctx, store, token)
	if err != nil {
		return "", err
	}
	mod, err := store.IsModerator(ctx, caller)
	if err != nil {
		return "", err
	}
	if !mod {
		return "", fmt.Errorf("%w: moderator required", ErrForbidden)
	}
	return caller, nil
}

// pageLimit applies the default and maximum page size.
func pageLimit(limit *uint16) int {
	if limit == nil || int(*limit) > MaxMessageLimit {
		return MaxMessageLimit
	}
	return int(*limit)
}

func notFound(err error, what string) error {
	if errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return err
}

func validBase64(s string) bool {
	if s == "" {
		return false
	}
	_, err := base64.StdEncoding.DecodeString(s)
	return err == nil
}
