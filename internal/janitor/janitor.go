package janitor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/opengroup/internal/database"
	"golang.org/x/sync/errgroup"
)

// Registry is the set of open room pools.
type Registry interface {
	OpenPools() []*database.RoomPool
	EvictIdle(idle time.Duration) int
}

// Config holds janitor configuration.
type Config struct {
	Interval    time.Duration // Time between passes (default: 5m)
	IdleTimeout time.Duration // Room pools unused this long are closed; zero disables eviction
	Concurrency int           // Rooms pruned at once (default: 4)
	Timeout     time.Duration // Per-room prune timeout (default: 30s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:    5 * time.Minute,
		IdleTimeout: 30 * time.Minute,
		Concurrency: 4,
		Timeout:     30 * time.Second,
	}
}

// Janitor periodically prunes expired challenges and idle room pools.
type Janitor struct {
	cfg      Config
	registry Registry
	logger   *slog.Logger

	now   func() time.Time
	prune func(ctx context.Context, pool *database.RoomPool, nowMillis int64) (int64, error)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Janitor.
func New(cfg Config, registry Registry, logger *slog.Logger) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = defaults.Interval
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = defaults.Concurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	return &Janitor{
		cfg:      cfg,
		registry: registry,
		logger:   logger,
		now:      time.Now,
		prune: func(ctx context.Context, pool *database.RoomPool, nowMillis int64) (int64, error) {
			return pool.PruneExpiredChallenges(ctx, nowMillis)
		},
	}
}

// Start begins the maintenance loop.
func (j *Janitor) Start(ctx context.Context) error {
	j.ctx, j.cancel = context.WithCancel(ctx)

	j.wg.Add(1)
	go j.run()

	j.logger.Info("janitor started",
		"interval", j.cfg.Interval,
		"idle_timeout", j.cfg.IdleTimeout,
		"concurrency", j.cfg.Concurrency,
	)

	return nil
}

// Stop gracefully shuts down the janitor.
func (j *Janitor) Stop(ctx context.Context) error {
	if j.cancel != nil {
		j.cancel()
	}

	done := make(chan struct{})
	go func() {
		j.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		j.logger.Info("janitor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the main loop.
func (j *Janitor) run() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()

	// Run immediately on start.
	j.sweep()

	for {
		select {
		case <-j.ctx.Done():
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

// sweep runs one maintenance pass.
func (j *Janitor) sweep() {
	start := time.Now()
	nowMillis := j.now().UnixMilli()

	pools := j.registry.OpenPools()

	var pruned, failed atomic.Int64
	g, ctx := errgroup.WithContext(j.ctx)
	g.SetLimit(j.cfg.Concurrency)

	for _, pool := range pools {
		g.Go(func() error {
			defer pool.Release()
			if ctx.Err() != nil {
				return nil
			}

			pctx, cancel := context.WithTimeout(ctx, j.cfg.Timeout)
			defer cancel()

			n, err := j.prune(pctx, pool, nowMillis)
			if err != nil {
				j.logger.Warn("failed to prune challenges",
					"room_id", pool.RoomID(),
					"err", err,
				)
				failed.Add(1)
				return nil
			}
			pruned.Add(n)
			return nil
		})
	}
	g.Wait()

	evicted := 0
	if j.cfg.IdleTimeout > 0 {
		evicted = j.registry.EvictIdle(j.cfg.IdleTimeout)
	}

	j.logger.Info("janitor pass complete",
		"rooms", len(pools),
		"pruned", pruned.Load(),
		"errors", failed.Load(),
		"evicted", evicted,
		"duration", time.Since(start),
	)
}
