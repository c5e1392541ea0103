package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rickgao/opengroup/internal/config"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrNoSuchRoom is returned when a room id is not in the rooms table.
	ErrNoSuchRoom = errors.New("no such room")

	// ErrRegistryClosed is returned after Close.
	ErrRegistryClosed = errors.New("room registry closed")
)

// roomEntry is an open room pool. refs and lastUsed are guarded by Registry.mu.
type roomEntry struct {
	id       int64
	pool     *pgxpool.Pool
	refs     int
	lastUsed time.Time
}

// Registry owns the root pool and one lazily created pool per room.
//
// Registry is safe for concurrent use.
type Registry struct {
	root     *pgxpool.Pool
	dbCfg    config.DBConfig
	roomsCfg config.RoomsConfig
	logger   *slog.Logger

	// openRoom creates and migrates a room pool. Replaced in tests.
	openRoom func(ctx context.Context, roomID int64) (*pgxpool.Pool, error)
	now      func() time.Time

	group  singleflight.Group
	mu     sync.Mutex
	rooms  map[int64]*roomEntry
	closed bool
}

// NewRegistry connects the root pool and creates the rooms table.
func NewRegistry(ctx context.Context, dbCfg config.DBConfig, roomsCfg config.RoomsConfig, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}

	root, err := Connect(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("connect root database: %w", err)
	}
	if err := migrateRoot(ctx, root); err != nil {
		root.Close()
		return nil, err
	}

	r := &Registry{
		root:     root,
		dbCfg:    dbCfg,
		roomsCfg: roomsCfg,
		logger:   logger,
		now:      time.Now,
		rooms:    make(map[int64]*roomEntry),
	}
	r.openRoom = r.connectRoom
	return r, nil
}

// EnsureRoom creates the room if it does not exist and renames it otherwise.
func (r *Registry) EnsureRoom(ctx context.Context, roomID int64, name string) error {
	_, err := r.root.Exec(ctx, `
		INSERT INTO rooms (id, name, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
	`, roomID, name, r.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("ensure room %d: %w", roomID, err)
	}
	return nil
}

// PoolByRoomID returns a borrowed handle to the room's pool, opening the pool
// on first use. Concurrent first requests for the same room share one open.
// The caller must Release the handle.
func (r *Registry) PoolByRoomID(ctx context.Context, roomID int64) (*RoomPool, error) {
	for {
		pool, err := r.acquire(roomID)
		if err != nil || pool != nil {
			return pool, err
		}

		_, err, _ = r.group.Do(strconv.FormatInt(roomID, 10), func() (any, error) {
			return nil, r.open(ctx, roomID)
		})
		if err != nil {
			return nil, err
		}
	}
}

// acquire borrows an already open room pool. It returns nil if the room has
// no open pool.
func (r *Registry) acquire(roomID int64) (*RoomPool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}
	e, ok := r.rooms[roomID]
	if !ok {
		return nil, nil
	}
	e.refs++
	e.lastUsed = r.now()
	return &RoomPool{roomID: roomID, db: e.pool, registry: r, entry: e}, nil
}

// open creates the pool for roomID and records it.
func (r *Registry) open(ctx context.Context, roomID int64) error {
	r.mu.Lock()
	_, exists := r.rooms[roomID]
	r.mu.Unlock()
	if exists {
		return nil
	}

	pool, err := r.openRoom(ctx, roomID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		if pool != nil {
			pool.Close()
		}
		return ErrRegistryClosed
	}
	r.rooms[roomID] = &roomEntry{id: roomID, pool: pool, lastUsed: r.now()}
	r.logger.Info("opened room pool", "room_id", roomID, "schema", SchemaName(roomID))
	return nil
}

// connectRoom checks the room exists, then creates and migrates its schema.
func (r *Registry) connectRoom(ctx context.Context, roomID int64) (*pgxpool.Pool, error) {
	var exists bool
	err := r.root.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM rooms WHERE id = $1)`, roomID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("look up room %d: %w", roomID, err)
	}
	if !exists {
		return nil, ErrNoSuchRoom
	}

	if err := createRoomSchema(ctx, r.root, roomID); err != nil {
		return nil, err
	}

	pool, err := ConnectRoom(ctx, r.dbCfg, r.roomsCfg, roomID)
	if err != nil {
		return nil, fmt.Errorf("connect room %d: %w", roomID, err)
	}
	if err := migrateRoom(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// release returns a borrowed handle.
func (r *Registry) release(e *roomEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.refs--
	e.lastUsed = r.now()
}

// OpenPools borrows a handle for every open room pool. Each handle must be
// released.
func (r *Registry) OpenPools() []*RoomPool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	pools := make([]*RoomPool, 0, len(r.rooms))
	for id, e := range r.rooms {
		e.refs++
		pools = append(pools, &RoomPool{roomID: id, db: e.pool, registry: r, entry: e})
	}
	return pools
}

// EvictIdle closes room pools that have no borrowers and have not been used
// for longer than idle. It returns the number of pools closed.
func (r *Registry) EvictIdle(idle time.Duration) int {
	r.mu.Lock()
	now := r.now()
	var evicted []*roomEntry
	for id, e := range r.rooms {
		if e.refs == 0 && now.Sub(e.lastUsed) > idle {
			evicted = append(evicted, e)
			delete(r.rooms, id)
		}
	}
	r.mu.Unlock()

	for _, e := range evicted {
		if e.pool != nil {
			e.pool.Close()
		}
		r.logger.Info("closed idle room pool", "room_id", e.id)
	}
	return len(evicted)
}

// Ping verifies the root connection is healthy.
func (r *Registry) Ping(ctx context.Context) error {
	if err := r.root.Ping(ctx); err != nil {
		return fmt.Errorf("ping root database: %w", err)
	}
	return nil
}

// Close closes every room pool and the root pool.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	rooms := r.rooms
	r.rooms = make(map[int64]*roomEntry)
	r.mu.Unlock()

	for _, e := range rooms {
		if e.pool != nil {
			e.pool.Close()
		}
	}
	if r.root != nil {
		r.root.Close()
	}
}
