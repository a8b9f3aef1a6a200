package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLockerExclusion(t *testing.T, locker UserLocker) {
	t.Helper()
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, 1)
	require.NoError(t, err)

	// 其他用户不受影响
	other, err := locker.Lock(ctx, 2)
	require.NoError(t, err)
	other()

	short, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(short, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock() // 重复释放无副作用

	again, err := locker.Lock(ctx, 1)
	require.NoError(t, err)
	again()
}

func TestMemoryLocker(t *testing.T) {
	locker := NewMemoryLocker()
	testLockerExclusion(t, locker)

	locker.mu.Lock()
	defer locker.mu.Unlock()
	assert.Empty(t, locker.locks)
}

func TestMemoryLockerHandsOver(t *testing.T) {
	locker := NewMemoryLocker()
	unlock, err := locker.Lock(context.Background(), 1)
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		u, err := locker.Lock(context.Background(), 1)
		if err == nil {
			close(acquired)
			u()
		}
	}()

	select {
	case <-acquired:
		t.Fatal("lock acquired while held")
	case <-time.After(20 * time.Millisecond):
	}
	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired the lock")
	}
}

func TestRedisLocker(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	locker := NewRedisLocker(rdb, 30*time.Second)
	locker.retry = 5 * time.Millisecond
	testLockerExclusion(t, locker)
	assert.False(t, mr.Exists(lockKey(1)))
}

func TestRedisLockerDoesNotReleaseForeignLock(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	locker := NewRedisLocker(rdb, time.Second)
	unlock, err := locker.Lock(context.Background(), 1)
	require.NoError(t, err)

	// 锁过期后被另一个持有者拿到
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set(lockKey(1), "someone-else"))

	unlock()
	got, err := mr.Get(lockKey(1))
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}
