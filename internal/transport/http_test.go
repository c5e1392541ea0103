package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rickgao/opengroup/internal/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newTestMux(ping error) *http.ServeMux {
	h := NewHTTPHandler(echoHandler, pingFunc(func(context.Context) error { return ping }), 1024, nil)
	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}

func TestHTTPHandler_RPC(t *testing.T) {
	mux := newTestMux(nil)

	body := `{"endpoint":"/moderators","body":"","method":"GET","headers":"{\"Room\":\"1\"}"}`
	req := httptest.NewRequest(http.MethodPost, RPCPath, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var reply struct {
		StatusCode int    `json:"status_code"`
		Body       string `json:"body"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&reply))
	assert.Equal(t, http.StatusOK, reply.StatusCode)
	assert.Equal(t, "/moderators", reply.Body)
}

func TestHTTPHandler_StatusFollowsReply(t *testing.T) {
	h := NewHTTPHandler(Handle(dispatchFunc(func(context.Context, rpc.Call) (any, error) {
		return nil, rpc.ErrInvalidRpcCall
	})), pingFunc(func(context.Context) error { return nil }), 1024, nil)
	mux := http.NewServeMux()
	h.Register(mux)

	req := httptest.NewRequest(http.MethodPost, RPCPath, strings.NewReader(`{"method":"PUT"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid rpc call")
}

func TestHTTPHandler_BadEnvelope(t *testing.T) {
	mux := newTestMux(nil)

	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "not json", body: "hello", want: http.StatusBadRequest},
		{name: "wrong field type", body: `{"endpoint":5}`, want: http.StatusBadRequest},
		{name: "too large", body: `{"body":"` + strings.Repeat("x", 2048) + `"}`, want: http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, RPCPath, strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestHTTPHandler_MethodNotAllowed(t *testing.T) {
	mux := newTestMux(nil)

	req := httptest.NewRequest(http.MethodGet, RPCPath, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHTTPHandler_Health(t *testing.T) {
	tests := []struct {
		name       string
		ping       error
		wantCode   int
		wantStatus string
	}{
		{name: "healthy", ping: nil, wantCode: http.StatusOK, wantStatus: "healthy"},
		{name: "unhealthy", ping: errors.New("connection refused"), wantCode: http.StatusServiceUnavailable, wantStatus: "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newTestMux(tt.ping)
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			var health struct {
				Status  string `json:"status"`
				Version struct {
					Version string `json:"version"`
				} `json:"version"`
			}
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&health))
			assert.Equal(t, tt.wantStatus, health.Status)
			assert.Equal(t, "dev", health.Version.Version)
		})
	}
}
