// Package transport carries rpc.Call envelopes in and Replies out.
//
// Three front ends share one HandlerFunc chain:
//   - HTTP: POST /loki/v1/rpc with a JSON envelope
//   - WebSocket: framed envelopes, JSON in text frames and CBOR in binary frames
//   - NATS: request/reply on a queue subscription
//
// Middlewares wrap the dispatcher with logging, per-room rate limiting and
// a per-call deadline.
package transport
