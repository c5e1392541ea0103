package transport

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/opengroup/internal/rpc"
	"golang.org/x/time/rate"
)

// HandlerFunc handles one Call.
type HandlerFunc func(ctx context.Context, call rpc.Call) Reply

// Middleware wraps a HandlerFunc.
type Middleware func(next HandlerFunc) HandlerFunc

// Dispatcher routes a Call to an operation.
type Dispatcher interface {
	Dispatch(ctx context.Context, call rpc.Call) (any, error)
}

// Chain composes middlewares so the first one is outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// Handle adapts a Dispatcher to a HandlerFunc.
func Handle(d Dispatcher) HandlerFunc {
	return func(ctx context.Context, call rpc.Call) Reply {
		return NewReply(d.Dispatch(ctx, call))
	}
}

// Logging logs every call with its status and duration. Server errors are
// logged at error level, everything else at debug.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call rpc.Call) Reply {
			start := time.Now()
			reply := next(ctx, call)

			level := slog.LevelDebug
			if reply.StatusCode >= 500 {
				level = slog.LevelError
			}
			logger.Log(ctx, level, "rpc call",
				"method", call.Method,
				"endpoint", call.Endpoint,
				"status", reply.StatusCode,
				"duration", time.Since(start),
			)
			return reply
		}
	}
}

// maxLimitedRooms bounds the limiter map; it is reset when full.
const maxLimitedRooms = 4096

// RateLimit applies a token bucket per room. Calls without a room pass
// through so the dispatcher can reject them. rps <= 0 disables limiting.
func RateLimit(rps float64, burst int) Middleware {
	if rps <= 0 {
		return func(next HandlerFunc) HandlerFunc { return next }
	}

	var (
		mu       sync.Mutex
		limiters = make(map[int64]*rate.Limiter)
	)
	limiter := func(roomID int64) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		l, ok := limiters[roomID]
		if !ok {
			if len(limiters) >= maxLimitedRooms {
				limiters = make(map[int64]*rate.Limiter)
			}
			l = rate.NewLimiter(rate.Limit(rps), burst)
			limiters[roomID] = l
		}
		return l
	}

	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call rpc.Call) Reply {
			roomID, ok := rpc.ExtractRoomID(call.Headers)
			if ok && !limiter(roomID).Allow() {
				return NewReply(nil, ErrRateLimited)
			}
			return next(ctx, call)
		}
	}
}

// Timeout bounds each call. A zero or negative timeout disables it.
func Timeout(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		if timeout <= 0 {
			return next
		}
		return func(ctx context.Context, call rpc.Call) Reply {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan Reply, 1)
			go func() {
				done <- next(ctx, call)
			}()

			select {
			case reply := <-done:
				return reply
			case <-ctx.Done():
				return NewReply(nil, ErrTimeout)
			}
		}
	}
}
