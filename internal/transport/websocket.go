package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rickgao/opengroup/internal/rpc"
)

// WebSocketPath is where clients open envelope streams.
const WebSocketPath = "/loki/v1/ws"

// Frame carries one Call over a websocket. ID is echoed in the ReplyFrame.
type Frame struct {
	ID   string   `json:"id" cbor:"id"`
	Call rpc.Call `json:"call" cbor:"call"`
}

// ReplyFrame answers the Frame with the same ID.
type ReplyFrame struct {
	ID    string `json:"id" cbor:"id"`
	Reply Reply  `json:"reply" cbor:"reply"`
}

// WebSocketConfig holds websocket connection settings.
type WebSocketConfig struct {
	WriteTimeout   time.Duration // Deadline for each frame write
	PingInterval   time.Duration // How often the server pings
	PongWait       time.Duration // Connection is dropped without a pong for this long
	MaxMessageSize int64         // Largest accepted frame, in bytes
	MaxInFlight    int           // Concurrent calls per connection
}

// DefaultWebSocketConfig returns sensible defaults.
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		WriteTimeout:   10 * time.Second,
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		MaxMessageSize: 15 << 20,
		MaxInFlight:    16,
	}
}

// WebSocketHandler upgrades HTTP connections and serves framed calls.
// Frames on one connection are handled concurrently; replies may arrive
// out of order.
type WebSocketHandler struct {
	cfg      WebSocketConfig
	handler  HandlerFunc
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewWebSocketHandler creates a WebSocketHandler.
func NewWebSocketHandler(cfg WebSocketConfig, handler HandlerFunc, logger *slog.Logger) *WebSocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultWebSocketConfig()
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaults.PingInterval
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = defaults.PongWait
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaults.MaxMessageSize
	}
	if cfg.MaxInFlight < 1 {
		cfg.MaxInFlight = defaults.MaxInFlight
	}
	return &WebSocketHandler{
		cfg:     cfg,
		handler: handler,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		logger: logger,
	}
}

// ServeHTTP upgrades the connection and serves it until it closes.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an error response.
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &wsConn{
		id:      uuid.NewString(),
		cfg:     h.cfg,
		conn:    conn,
		handler: h.handler,
		sem:     make(chan struct{}, h.cfg.MaxInFlight),
		done:    make(chan struct{}),
	}
	c.logger = h.logger.With("conn_id", c.id)
	c.logger.Debug("websocket connected", "remote", r.RemoteAddr)

	c.serve(r.Context())
}

// wsConn is one server-side websocket connection.
type wsConn struct {
	id      string
	cfg     WebSocketConfig
	conn    *websocket.Conn
	handler HandlerFunc
	logger  *slog.Logger

	// Write serialization
	writeMu sync.Mutex

	sem  chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

func (c *wsConn) serve(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer func() {
		cancel()
		close(c.done)
		c.wg.Wait()
		c.conn.Close()
		c.logger.Debug("websocket closed")
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.heartbeatLoop()
	}()

	c.readLoop(ctx)
}

// readLoop reads frames until the connection fails or closes.
func (c *wsConn) readLoop(ctx context.Context) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("websocket read error", "error", err)
			}
			return
		}

		var frame Frame
		switch msgType {
		case websocket.TextMessage:
			err = json.Unmarshal(data, &frame)
		case websocket.BinaryMessage:
			err = cborDec.Unmarshal(data, &frame)
		default:
			continue
		}
		if err != nil {
			c.logger.Warn("undecodable websocket frame", "type", msgType, "error", err)
			c.write(msgType, ReplyFrame{
				ID:    frame.ID,
				Reply: Reply{StatusCode: http.StatusBadRequest, Body: errorBody{Error: "invalid frame"}},
			})
			continue
		}

		select {
		case c.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			defer func() { <-c.sem }()
			reply := c.handler(ctx, frame.Call)
			c.write(msgType, ReplyFrame{ID: frame.ID, Reply: reply})
		}()
	}
}

// heartbeatLoop pings the client until the connection is done.
func (c *wsConn) heartbeatLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout))
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Debug("websocket ping failed", "error", err)
				return
			}
		}
	}
}

// write encodes rf in the frame type of the request and sends it.
func (c *wsConn) write(msgType int, rf ReplyFrame) {
	var (
		data []byte
		err  error
	)
	if msgType == websocket.BinaryMessage {
		data, err = cborEnc.Marshal(rf)
	} else {
		data, err = json.Marshal(rf)
	}
	if err != nil {
		c.logger.Error("encode websocket reply", "id", rf.ID, "error", err)
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := c.conn.WriteMessage(msgType, data); err != nil {
		c.logger.Debug("websocket write failed", "id", rf.ID, "error", err)
	}
}
