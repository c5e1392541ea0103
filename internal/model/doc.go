// Package model defines shared data types used across the opengroup server.
//
// Types mirror the per-room schema created by the database package.
//
// Conventions:
//   - Server IDs: int64, assigned by the room's messages table, monotonically increasing
//   - Timestamps: int64 milliseconds since Unix epoch (client supplied for messages)
//   - Public keys: 66 hex characters, "05" prefixed
//   - Binary payloads (message data, signatures, files): base64 strings on the wire
package model
