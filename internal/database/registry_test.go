package database

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClock is a settable clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// newTestRegistry returns a registry without a root pool whose room pools
// are nil placeholders.
func newTestRegistry(open func(ctx context.Context, roomID int64) (*pgxpool.Pool, error)) (*Registry, *testClock) {
	clock := &testClock{now: time.Unix(1700000000, 0)}
	r := &Registry{
		now:      clock.Now,
		rooms:    make(map[int64]*roomEntry),
		openRoom: open,
	}
	r.logger = discardLogger()
	return r, clock
}

func openNil(context.Context, int64) (*pgxpool.Pool, error) { return nil, nil }

func TestRegistry_PoolByRoomID_OpensOnce(t *testing.T) {
	var opens atomic.Int32
	release := make(chan struct{})
	r, _ := newTestRegistry(func(ctx context.Context, roomID int64) (*pgxpool.Pool, error) {
		opens.Add(1)
		<-release
		return nil, nil
	})

	const callers = 8
	var wg sync.WaitGroup
	handles := make([]*RoomPool, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := r.PoolByRoomID(context.Background(), 7)
			assert.NoError(t, err)
			handles[i] = h
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), opens.Load())
	for _, h := range handles {
		require.NotNil(t, h)
		assert.Equal(t, int64(7), h.RoomID())
	}
	assert.Equal(t, callers, r.rooms[7].refs)
}

func TestRegistry_PoolByRoomID_OpenError(t *testing.T) {
	r, _ := newTestRegistry(func(context.Context, int64) (*pgxpool.Pool, error) {
		return nil, ErrNoSuchRoom
	})

	h, err := r.PoolByRoomID(context.Background(), 3)
	assert.Nil(t, h)
	assert.True(t, errors.Is(err, ErrNoSuchRoom))
	assert.Empty(t, r.rooms)
}

func TestRoomPool_Release(t *testing.T) {
	r, _ := newTestRegistry(openNil)

	h1, err := r.PoolByRoomID(context.Background(), 1)
	require.NoError(t, err)
	h2, err := r.PoolByRoomID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, r.rooms[1].refs)

	h1.Release()
	h1.Release() // second release is a no-op
	assert.Equal(t, 1, r.rooms[1].refs)

	h2.Release()
	assert.Equal(t, 0, r.rooms[1].refs)
}

func TestRoomPool_ReleaseNil(t *testing.T) {
	var h *RoomPool
	h.Release()
	assert.Equal(t, int64(0), h.RoomID())

	(&RoomPool{}).Release()
}

func TestRegistry_EvictIdle(t *testing.T) {
	r, clock := newTestRegistry(openNil)
	ctx := context.Background()

	idle, err := r.PoolByRoomID(ctx, 1)
	require.NoError(t, err)
	idle.Release()

	busy, err := r.PoolByRoomID(ctx, 2)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	assert.Equal(t, 0, r.EvictIdle(2*time.Minute), "nothing idle long enough")

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, r.EvictIdle(2*time.Minute))
	assert.NotContains(t, r.rooms, int64(1))
	assert.Contains(t, r.rooms, int64(2), "borrowed pool must not be evicted")

	busy.Release()
	clock.Advance(3 * time.Minute)
	assert.Equal(t, 1, r.EvictIdle(2*time.Minute))
	assert.Empty(t, r.rooms)
}

func TestRegistry_OpenPools(t *testing.T) {
	r, _ := newTestRegistry(openNil)
	ctx := context.Background()

	for _, id := range []int64{1, 2, 3} {
		h, err := r.PoolByRoomID(ctx, id)
		require.NoError(t, err)
		h.Release()
	}

	pools := r.OpenPools()
	require.Len(t, pools, 3)
	for _, p := range pools {
		assert.Equal(t, 1, r.rooms[p.RoomID()].refs)
		p.Release()
	}
	for _, e := range r.rooms {
		assert.Equal(t, 0, e.refs)
	}
}

func TestRegistry_Closed(t *testing.T) {
	r, _ := newTestRegistry(openNil)
	h, err := r.PoolByRoomID(context.Background(), 1)
	require.NoError(t, err)
	h.Release()

	r.Close()
	r.Close()

	_, err = r.PoolByRoomID(context.Background(), 1)
	assert.ErrorIs(t, err, ErrRegistryClosed)
	assert.Nil(t, r.OpenPools())
}
