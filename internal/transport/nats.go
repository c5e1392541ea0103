package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rickgao/opengroup/internal/rpc"
)

// NATSConfig holds NATS subscriber settings.
type NATSConfig struct {
	URL           string
	Subject       string
	Queue         string
	MaxReconnects int
}

// NATSSubscriber serves envelopes sent as NATS requests. Each message body
// is a JSON rpc.Call; the JSON Reply is sent to the message's reply subject.
type NATSSubscriber struct {
	cfg     NATSConfig
	handler HandlerFunc
	logger  *slog.Logger

	nc     *nats.Conn
	closed chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewNATSSubscriber creates a NATSSubscriber.
func NewNATSSubscriber(cfg NATSConfig, handler HandlerFunc, logger *slog.Logger) *NATSSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSSubscriber{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
	}
}

// Start connects to NATS and subscribes to the subject as part of the queue group.
func (s *NATSSubscriber) Start(ctx context.Context) error {
	nc, err := nats.Connect(s.cfg.URL,
		nats.Name("opengroupd"),
		nats.MaxReconnects(s.cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			s.logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			s.logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	return s.StartConn(ctx, nc)
}

// StartConn subscribes on an existing connection. The subscriber takes
// ownership of nc.
func (s *NATSSubscriber) StartConn(ctx context.Context, nc *nats.Conn) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.nc = nc
	s.closed = make(chan struct{})
	nc.SetClosedHandler(func(*nats.Conn) { close(s.closed) })

	if _, err := nc.QueueSubscribe(s.cfg.Subject, s.cfg.Queue, s.handleMsg); err != nil {
		s.cancel()
		nc.Close()
		return fmt.Errorf("subscribe %s: %w", s.cfg.Subject, err)
	}

	s.logger.Info("nats subscriber started",
		"subject", s.cfg.Subject,
		"queue", s.cfg.Queue,
	)
	return nil
}

// Stop drains the connection and waits for in-flight calls.
func (s *NATSSubscriber) Stop(ctx context.Context) error {
	if s.cancel == nil {
		return nil
	}
	defer s.cancel()

	if err := s.nc.Drain(); err != nil {
		s.logger.Warn("nats drain failed", "error", err)
		s.nc.Close()
	}

	// Callbacks have all returned once the connection is closed, so every
	// wg.Add happens before Wait.
	done := make(chan struct{})
	go func() {
		<-s.closed
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("nats subscriber stopped")
		return nil
	case <-ctx.Done():
		s.nc.Close()
		return ctx.Err()
	}
}

// handleMsg runs on the subscription's goroutine; calls are dispatched
// concurrently.
func (s *NATSSubscriber) handleMsg(msg *nats.Msg) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		var reply Reply
		var call rpc.Call
		if err := json.Unmarshal(msg.Data, &call); err != nil {
			s.logger.Warn("undecodable nats envelope", "subject", msg.Subject, "error", err)
			reply = Reply{StatusCode: http.StatusBadRequest, Body: errorBody{Error: "invalid rpc envelope"}}
		} else {
			reply = s.handler(s.ctx, call)
		}

		if msg.Reply == "" {
			return
		}
		data, err := json.Marshal(reply)
		if err != nil {
			s.logger.Error("encode nats reply", "error", err)
			return
		}
		if err := msg.Respond(data); err != nil {
			s.logger.Warn("nats respond failed", "error", err)
		}
	}()
}

// Request sends call to subject and waits for the Reply. It is the client
// side of NATSSubscriber.
func Request(ctx context.Context, nc *nats.Conn, subject string, call rpc.Call) (Reply, error) {
	data, err := json.Marshal(call)
	if err != nil {
		return Reply{}, fmt.Errorf("encode call: %w", err)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
	}

	msg, err := nc.RequestWithContext(ctx, subject, data)
	if err != nil {
		return Reply{}, fmt.Errorf("nats request: %w", err)
	}

	var reply Reply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return Reply{}, fmt.Errorf("decode reply: %w", err)
	}
	return reply, nil
}
