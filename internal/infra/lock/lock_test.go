package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseMutualExclusion(t *testing.T, l Locker) {
	t.Helper()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(context.Background(), "panel:1")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()
			time.Sleep(2 * time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestLocalSerializesSameKey(t *testing.T) {
	l := NewLocal()
	exerciseMutualExclusion(t, l)
	assert.Zero(t, l.held())
}

func TestLocalIndependentKeys(t *testing.T) {
	l := NewLocal()
	a, err := l.Acquire(context.Background(), "a")
	require.NoError(t, err)
	b, err := l.Acquire(context.Background(), "b")
	require.NoError(t, err)
	a()
	a()
	b()
	assert.Zero(t, l.held())
}

func TestLocalHonoursContext(t *testing.T) {
	l := NewLocal()
	release, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "k")
	require.ErrorIs(t, err, ErrNotAcquired)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, l.held())
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedis(client, RedisOptions{RetryDelay: time.Millisecond})
}

func TestRedisSerializesSameKey(t *testing.T) {
	mr, l := setupRedis(t)
	exerciseMutualExclusion(t, l)
	assert.False(t, mr.Exists("panelflow:lock:panel:1"))
}

func TestRedisReleaseKeepsForeignLease(t *testing.T) {
	mr, l := setupRedis(t)
	release, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)

	require.NoError(t, mr.Set("panelflow:lock:k", "someone-else"))
	release()
	got, err := mr.Get("panelflow:lock:k")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRedisTimesOutWhileHeld(t *testing.T) {
	_, l := setupRedis(t)
	release, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "k")
	require.ErrorIs(t, err, ErrNotAcquired)
}

func TestRedisExpiredContextIsNotAcquired(t *testing.T) {
	_, l := setupRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := l.Acquire(ctx, "k")
	require.ErrorIs(t, err, ErrNotAcquired)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRedisSurfacesConnectionErrors(t *testing.T) {
	mr, l := setupRedis(t)
	mr.Close()
	_, err := l.Acquire(context.Background(), "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotAcquired)
}
