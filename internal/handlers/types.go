package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/rickgao/opengroup/internal/model"
)

// Errors returned by Service. The transport maps them to status codes.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
)

// MaxMessageLimit caps the number of messages or tombstones per page.
const MaxMessageLimit = 256

// Store is the room storage used by Service. *database.RoomPool implements it.
type Store interface {
	InsertMessage(ctx context.Context, msg model.Message) (int64, error)
	Messages(ctx context.Context, limit int, fromServerID *int64) ([]model.Message, error)
	DeletedMessages(ctx context.Context, limit int, fromID *int64) ([]model.DeletedMessage, error)
	MessageAuthor(ctx context.Context, serverID int64) (string, error)
	DeleteMessage(ctx context.Context, serverID int64) (int64, error)

	Moderators(ctx context.Context) ([]string, error)
	IsModerator(ctx context.Context, publicKey string) (bool, error)
	BannedPublicKeys(ctx context.Context) ([]string, error)
	IsBanned(ctx context.Context, publicKey string) (bool, error)
	Ban(ctx context.Context, publicKey string) error
	Unban(ctx context.Context, publicKey string) error
	MemberCount(ctx context.Context) (int64, error)

	StoreFile(ctx context.Context, f model.File) error
	File(ctx context.Context, id string) (model.File, error)

	PutChallenge(ctx context.Context, c model.AuthChallenge) error
	ClaimToken(ctx context.Context, publicKey, tokenHash string, nowMillis int64) (bool, error)
	TokenOwner(ctx context.Context, tokenHash string) (string, error)
	DeleteToken(ctx context.Context, tokenHash string) error
}

// -----------------------------------------------------------------------------
// Response payloads
// -----------------------------------------------------------------------------

// StatusResponse is returned by operations with no result beyond success.
type StatusResponse struct {
	StatusCode int `json:"status_code"`
}

// MessagesResponse is returned by GetMessages.
type MessagesResponse struct {
	StatusCode int             `json:"status_code"`
	Messages   []model.Message `json:"messages"`
}

// MessageResponse is returned by InsertMessage.
type MessageResponse struct {
	StatusCode int           `json:"status_code"`
	Message    model.Message `json:"message"`
}

// DeletedMessagesResponse is returned by GetDeletedMessages.
type DeletedMessagesResponse struct {
	StatusCode int                    `json:"status_code"`
	Messages   []model.DeletedMessage `json:"deleted_messages"`
}

// ModeratorsResponse is returned by GetModerators.
type ModeratorsResponse struct {
	StatusCode int      `json:"status_code"`
	Moderators []string `json:"moderators"`
}

// BannedMembersResponse is returned by GetBannedPublicKeys.
type BannedMembersResponse struct {
	StatusCode    int      `json:"status_code"`
	BannedMembers []string `json:"banned_members"`
}

// MemberCountResponse is returned by GetMemberCount.
type MemberCountResponse struct {
	StatusCode  int   `json:"status_code"`
	MemberCount int64 `json:"member_count"`
}

// Challenge carries a freshly issued token sealed to the requesting key.
type Challenge struct {
	Ciphertext         string `json:"ciphertext"`           // base64 GCM nonce and sealed token
	EphemeralPublicKey string `json:"ephemeral_public_key"` // hex X25519 key
	ExpiresAt          int64  `json:"expires_at"`           // ms since epoch
}

// ChallengeResponse is returned by GetAuthTokenChallenge.
type ChallengeResponse struct {
	StatusCode int       `json:"status_code"`
	Challenge  Challenge `json:"challenge"`
}

// ResultResponse is returned by the file operations: the new file id for
// StoreFile, the base64 content for GetFile.
type ResultResponse struct {
	StatusCode int    `json:"status_code"`
	Result     string `json:"result"`
}

func ok() StatusResponse {
	return StatusResponse{StatusCode: http.StatusOK}
}
