package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedis_MutualExclusion(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewRedis(client, "join:", 10*time.Second)

	unlock, err := l.Lock(context.Background(), "post:1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("join:post:1"))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "post:1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotAcquired))

	// Other keys are independent.
	unlockOther, err := l.Lock(context.Background(), "post:2")
	require.NoError(t, err)
	unlockOther()

	unlock()
	assert.False(t, mr.Exists("join:post:1"))

	again, err := l.Lock(context.Background(), "post:1")
	require.NoError(t, err)
	again()
}

func TestRedis_WaiterAcquiresAfterRelease(t *testing.T) {
	_, client := newTestRedis(t)
	l := NewRedis(client, "join:", 10*time.Second)

	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		next, err := l.Lock(ctx, "k")
		if !assert.NoError(t, err) {
			close(acquired)
			return
		}
		next()
		close(acquired)
	}()

	time.Sleep(50 * time.Millisecond)
	unlock()

	select {
	case <-acquired:
	case <-time.After(3 * time.Second):
		t.Fatal("waiter never acquired the lock")
	}
}

func TestRedis_ExpiredHolderCannotReleaseNewLock(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewRedis(client, "join:", time.Second)

	staleUnlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	require.False(t, mr.Exists("join:k"), "lease should have expired")

	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	holder, err := mr.Get("join:k")
	require.NoError(t, err)

	staleUnlock()
	got, err := mr.Get("join:k")
	require.NoError(t, err, "stale release must not delete the new holder's key")
	assert.Equal(t, holder, got)

	unlock()
	assert.False(t, mr.Exists("join:k"))
}
