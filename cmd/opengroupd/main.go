package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rickgao/opengroup/internal/config"
	"github.com/rickgao/opengroup/internal/database"
	"github.com/rickgao/opengroup/internal/handlers"
	"github.com/rickgao/opengroup/internal/janitor"
	"github.com/rickgao/opengroup/internal/rpc"
	"github.com/rickgao/opengroup/internal/transport"
	"github.com/rickgao/opengroup/internal/version"
	flag "github.com/spf13/pflag"
)

func main() {
	configPath := flag.StringP("config", "c", "configs/opengroupd.local.yaml", "path to config file")
	showVersion := flag.BoolP("version", "v", false, "print version and exit")
	listRoutes := flag.Bool("routes", false, "print the rpc route table and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *listRoutes {
		for _, r := range rpc.NewDispatcher(nil, nil, nil).Routes() {
			fmt.Printf("%-6s %s\n", r.Method, r.Pattern)
		}
		return
	}

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "config", *configPath, "error", err)
		os.Exit(1)
	}

	// Set up structured logging
	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting opengroupd",
		"version", version.String(),
		"config", *configPath,
		"instance_id", cfg.Instance.ID,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)

	registry, err := database.NewRegistry(ctx, cfg.Database, cfg.Rooms, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer registry.Close()

	logger.Info("database connected")

	if err := seedRooms(ctx, registry, cfg.Rooms.Seed); err != nil {
		logger.Error("failed to seed rooms", "error", err)
		os.Exit(1)
	}

	// Build the handler chain
	service := handlers.NewService(handlers.Config{
		MaxFileSize:  cfg.Files.MaxSize,
		ChallengeTTL: cfg.Janitor.ChallengeTTL,
	}, logger)
	dispatcher := rpc.NewDispatcher(roomResolver{registry}, service, logger)
	handler := transport.Chain(
		transport.Logging(logger),
		transport.RateLimit(cfg.Limits.RequestsPerSecond, cfg.Limits.Burst),
		transport.Timeout(cfg.Server.RequestTimeout),
	)(transport.Handle(dispatcher))

	mux := http.NewServeMux()
	transport.NewHTTPHandler(handler, registry, cfg.Server.MaxBodyBytes, logger).Register(mux)
	if cfg.Server.WebSocket {
		wsCfg := transport.DefaultWebSocketConfig()
		wsCfg.WriteTimeout = cfg.Server.WriteTimeout
		wsCfg.MaxMessageSize = cfg.Server.MaxBodyBytes
		mux.Handle("GET "+transport.WebSocketPath, transport.NewWebSocketHandler(wsCfg, handler, logger))
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting http server", "addr", cfg.Server.Addr, "websocket", cfg.Server.WebSocket)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Start NATS subscriber
	var subscriber *transport.NATSSubscriber
	if cfg.NATS.Enabled {
		subscriber = transport.NewNATSSubscriber(transport.NATSConfig{
			URL:           cfg.NATS.URL,
			Subject:       cfg.NATS.Subject,
			Queue:         cfg.NATS.Queue,
			MaxReconnects: cfg.NATS.MaxReconnects,
		}, handler, logger)
		if err := subscriber.Start(ctx); err != nil {
			logger.Error("failed to start nats subscriber", "error", err)
			os.Exit(1)
		}
	}

	// Start janitor
	jan := janitor.New(janitor.Config{
		Interval:    cfg.Janitor.Interval,
		IdleTimeout: cfg.Rooms.IdleTimeout,
		Concurrency: cfg.Janitor.Concurrency,
	}, registry, logger)
	if err := jan.Start(ctx); err != nil {
		logger.Error("failed to start janitor", "error", err)
		os.Exit(1)
	}

	logger.Info("opengroupd running",
		"instance_id", cfg.Instance.ID,
		"rpc_url", fmt.Sprintf("http://%s%s", cfg.Server.Addr, transport.RPCPath),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", "error", err)
	}
	if subscriber != nil {
		if err := subscriber.Stop(shutdownCtx); err != nil {
			logger.Warn("nats subscriber shutdown", "error", err)
		}
	}
	if err := jan.Stop(shutdownCtx); err != nil {
		logger.Warn("janitor shutdown", "error", err)
	}

	logger.Info("opengroupd stopped")
}

// newLogger builds the slog handler selected in config.
func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// roomResolver hands registry pools to the dispatcher.
type roomResolver struct {
	registry *database.Registry
}

func (r roomResolver) PoolByRoomID(ctx context.Context, roomID int64) (rpc.Pool, error) {
	pool, err := r.registry.PoolByRoomID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// seedRooms creates the configured rooms and their moderators.
func seedRooms(ctx context.Context, registry *database.Registry, seeds []config.RoomSeed) error {
	for _, seed := range seeds {
		if err := registry.EnsureRoom(ctx, seed.ID, seed.Name); err != nil {
			return err
		}
		if len(seed.Moderators) == 0 {
			continue
		}

		pool, err := registry.PoolByRoomID(ctx, seed.ID)
		if err != nil {
			return fmt.Errorf("open room %d: %w", seed.ID, err)
		}
		for _, mod := range seed.Moderators {
			if err := pool.AddModerator(ctx, mod); err != nil {
				pool.Release()
				return fmt.Errorf("room %d: %w", seed.ID, err)
			}
		}
		pool.Release()

		slog.Info("seeded room", "room_id", seed.ID, "name", seed.Name, "moderators", len(seed.Moderators))
	}
	return nil
}
