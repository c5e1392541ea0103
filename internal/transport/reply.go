package transport

import (
	"context"
	"errors"
	"net/http"

	"github.com/rickgao/opengroup/internal/database"
	"github.com/rickgao/opengroup/internal/handlers"
	"github.com/rickgao/opengroup/internal/rpc"
)

var (
	// ErrRateLimited is returned when a room exceeds its request rate.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrTimeout is returned when a call misses its deadline.
	ErrTimeout = errors.New("request timed out")
)

// Reply is the transport-level response to one Call.
type Reply struct {
	StatusCode int `json:"status_code" cbor:"status_code"`
	Body       any `json:"body" cbor:"body"`
}

// errorBody is the Body of a failed Reply.
type errorBody struct {
	Error string `json:"error" cbor:"error"`
}

// NewReply builds the Reply for an operation result.
func NewReply(payload any, err error) Reply {
	if err == nil {
		return Reply{StatusCode: http.StatusOK, Body: payload}
	}
	status := StatusCode(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	return Reply{StatusCode: status, Body: errorBody{Error: msg}}
}

// StatusCode maps an error to its HTTP-style status.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, rpc.ErrInvalidRpcCall), errors.Is(err, handlers.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, handlers.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, handlers.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, database.ErrNoSuchRoom), errors.Is(err, handlers.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
