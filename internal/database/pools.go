package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rickgao/opengroup/internal/config"
)

// Connect creates the root connection pool.
func Connect(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(BuildConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)

	return open(ctx, poolCfg)
}

// ConnectRoom creates a pool for one room. It connects to the root database
// with the room's schema as search_path.
func ConnectRoom(ctx context.Context, cfg config.DBConfig, rooms config.RoomsConfig, roomID int64) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(RoomConnString(cfg, roomID))
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolCfg.MinConns = int32(rooms.MinConns)
	poolCfg.MaxConns = int32(rooms.MaxConns)

	return open(ctx, poolCfg)
}

func open(ctx context.Context, poolCfg *pgxpool.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}
