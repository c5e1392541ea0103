package rpc

import (
	"context"
	"errors"

	"github.com/rickgao/opengroup/internal/model"
)

// ErrInvalidRpcCall is returned for any envelope the dispatcher cannot route:
// missing room, malformed endpoint, unknown method or path, and missing or
// malformed query options, bodies or dynamic path segments.
var ErrInvalidRpcCall = errors.New("invalid rpc call")

// Header keys read from Call.Headers. Keys are case-sensitive.
const (
	HeaderRoom          = "Room"
	HeaderAuthorization = "Authorization"
)

// Call is the wire envelope of a single request.
type Call struct {
	Endpoint string `json:"endpoint" cbor:"endpoint"` // Path with optional JSON query, e.g. /messages?{"limit":10}
	Body     string `json:"body" cbor:"body"`         // JSON body for POST calls
	Method   string `json:"method" cbor:"method"`     // GET, POST or DELETE
	Headers  string `json:"headers" cbor:"headers"`   // JSON object of string → string
}

// QueryOptions are the paging options of the message list endpoints.
type QueryOptions struct {
	Limit        *uint16 `json:"limit,omitempty"`
	FromServerID *int64  `json:"from_server_id,omitempty"`
}

// Pool is a room's storage handle as seen by the dispatcher. The dispatcher
// only releases it; operations know its concrete type.
type Pool interface {
	RoomID() int64
	Release()
}

// Resolver hands out the storage pool of a room.
type Resolver interface {
	// PoolByRoomID returns the pool for roomID, creating it on first use.
	// The caller must Release the pool when done with it.
	PoolByRoomID(ctx context.Context, roomID int64) (Pool, error)
}

// Operations are the room operations reachable through the route table.
//
// An empty token means the call carried no Authorization header.
type Operations interface {
	GetFile(ctx context.Context, id string, pool Pool) (any, error)
	GetMessages(ctx context.Context, opts QueryOptions, pool Pool) (any, error)
	GetDeletedMessages(ctx context.Context, opts QueryOptions, pool Pool) (any, error)
	GetModerators(ctx context.Context, pool Pool) (any, error)
	GetBannedPublicKeys(ctx context.Context, pool Pool) (any, error)
	GetMemberCount(ctx context.Context, pool Pool) (any, error)
	GetAuthTokenChallenge(ctx context.Context, publicKey string, pool Pool) (any, error)

	InsertMessage(ctx context.Context, msg model.Message, token string, pool Pool) (any, error)
	Ban(ctx context.Context, publicKey, token string, pool Pool) (any, error)
	ClaimAuthToken(ctx context.Context, publicKey, token string, pool Pool) (any, error)
	StoreFile(ctx context.Context, file string, pool Pool) (any, error)

	DeleteMessage(ctx context.Context, serverID int64, token string, pool Pool) (any, error)
	Unban(ctx context.Context, publicKey, token string, pool Pool) (any, error)
	DeleteAuthToken(ctx context.Context, token string, pool Pool) (any, error)
}
