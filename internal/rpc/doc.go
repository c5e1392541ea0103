// Package rpc turns transport-agnostic RPC call envelopes into room operations.
//
// Requests reach the server through indirect transports (HTTP relay, NATS,
// WebSocket frames), so each one arrives as a Call: an endpoint, an
// HTTP-style method, a serialized body and a serialized header map. The
// Dispatcher re-materializes that envelope and routes it:
//
//	envelope → room id + auth token (headers)
//	         → room pool (Resolver)
//	         → endpoint parse → method → route table → argument decode
//	         → Operations call
//
// Every rejection produced here is ErrInvalidRpcCall. Errors returned by the
// Resolver or by Operations are passed through unchanged.
package rpc
