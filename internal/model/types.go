package model

// -----------------------------------------------------------------------------
// Message Types
// -----------------------------------------------------------------------------

// Message is a chat message posted to a room.
//
// Clients send Timestamp, Data and Signature; ServerID and PublicKey are
// filled in by the server on insert and ignored if a client supplies them.
type Message struct {
	ServerID  *int64 `json:"server_id,omitempty"`  // Assigned on insert
	PublicKey string `json:"public_key,omitempty"` // Author, taken from the auth token
	Timestamp int64  `json:"timestamp"`            // Client timestamp (ms since epoch)
	Data      string `json:"data"`                 // Base64 encoded message body
	Signature string `json:"signature"`            // Base64 encoded signature over Data
}

// DeletedMessage is a tombstone recorded when a message is deleted.
type DeletedMessage struct {
	ID               int64 `json:"id"`                 // Tombstone sequence number
	DeletedMessageID int64 `json:"deleted_message_id"` // ServerID of the removed message
}

// -----------------------------------------------------------------------------
// Room Types
// -----------------------------------------------------------------------------

// Room is a row of the root rooms table.
type Room struct {
	ID        int64  // Primary key, sent by clients in the Room header
	Name      string // Display name
	CreatedAt int64  // Creation time (ms since epoch)
}

// File is an inline file stored in a room.
type File struct {
	ID        string // UUID assigned on upload
	Content   []byte // Raw decoded bytes
	CreatedAt int64  // Upload time (ms since epoch)
}

// AuthChallenge is the token issued to a public key that has not yet claimed it.
type AuthChallenge struct {
	PublicKey string
	TokenHash string // sha256 hex of the issued token
	ExpiresAt int64  // ms since epoch
}
