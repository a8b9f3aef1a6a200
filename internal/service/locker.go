package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"turing_arena/pkg/logger"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UserLocker 串行化同一用户的开始/放弃会话操作，保证最多一个 active 会话
type UserLocker interface {
	Lock(ctx context.Context, userID uint) (unlock func(), err error)
}

// MemoryLocker 单实例部署或未启用 Redis 时使用
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[uint]*memoryLock
}

type memoryLock struct {
	ch   chan struct{}
	refs int
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[uint]*memoryLock)}
}

func (m *MemoryLocker) Lock(ctx context.Context, userID uint) (func(), error) {
	m.mu.Lock()
	l, ok := m.locks[userID]
	if !ok {
		l = &memoryLock{ch: make(chan struct{}, 1)}
		m.locks[userID] = l
	}
	l.refs++
	m.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-l.ch
				m.release(userID, l)
			})
		}, nil
	case <-ctx.Done():
		m.release(userID, l)
		return nil, ctx.Err()
	}
}

func (m *MemoryLocker) release(userID uint, l *memoryLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(m.locks, userID)
	}
}

// 只删除自己持有的锁
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// RedisLocker 多实例部署时的分布式锁（SET NX PX + token 校验释放）
type RedisLocker struct {
	rdb   *redis.Client
	ttl   time.Duration
	retry time.Duration
}

func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{rdb: rdb, ttl: ttl, retry: 50 * time.Millisecond}
}

func lockKey(userID uint) string {
	return fmt.Sprintf("turing_arena:alloc_lock:%d", userID)
}

func (r *RedisLocker) Lock(ctx context.Context, userID uint) (func(), error) {
	key := lockKey(userID)
	token := uuid.NewString()

	ticker := time.NewTicker(r.retry)
	defer ticker.Stop()
	for {
		ok, err := r.rdb.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
		if ok {
			var once sync.Once
			return func() {
				once.Do(func() {
					releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
					defer cancel()
					if err := releaseScript.Run(releaseCtx, r.rdb, []string{key}, token).Err(); err != nil {
						logger.Log.Warn("release allocation lock failed", zap.Uint("user_id", userID), zap.Error(err))
					}
				})
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
