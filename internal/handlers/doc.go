// Package handlers implements the room operations behind the RPC route
// table: message history, moderation, inline files and auth tokens.
//
// Every operation receives the room's borrowed pool and returns a JSON
// encodable payload carrying a status_code, or one of the package errors.
package handlers
