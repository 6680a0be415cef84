// Package lock 提供按部门串行化写操作的锁。
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrLockTimeout 在等待锁超过上下文期限时返回。
var ErrLockTimeout = errors.New("lock: acquire timeout")

// Locker 对一个部门加互斥锁，返回的 unlock 必须调用且只调用一次。
type Locker interface {
	Lock(ctx context.Context, deptID uint) (unlock func(), err error)
}

// LocalLocker 是进程内实现，每个部门一把 sync.Mutex。
type LocalLocker struct {
	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[uint]*sync.Mutex)}
}

func (l *LocalLocker) Lock(_ context.Context, deptID uint) (func(), error) {
	l.mu.Lock()
	m, ok := l.locks[deptID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[deptID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock, nil
}

// 只有持有者 token 匹配时才删除 key。
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker 使用 SET NX PX 实现跨节点的部门锁。
type RedisLocker struct {
	client     *redis.Client
	ttl        time.Duration
	retryEvery time.Duration
}

// NewRedisLocker 创建 Redis 锁，ttl 为锁的最长持有时间。
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl, retryEvery: 20 * time.Millisecond}
}

func (l *RedisLocker) key(deptID uint) string {
	return fmt.Sprintf("lock:department:%d", deptID)
}

func (l *RedisLocker) Lock(ctx context.Context, deptID uint) (func(), error) {
	key := l.key(deptID)
	tok, err := newToken()
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(l.retryEvery)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, key, tok, l.ttl).Result()
		if err != nil {
			// 等待期间 ctx 到期时 SetNX 本身也会失败，统一按超时处理
			if ctx.Err() != nil {
				return nil, ErrLockTimeout
			}
			return nil, fmt.Errorf("lock: acquire %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ErrLockTimeout
		case <-ticker.C:
		}
	}

	return func() {
		// 释放时不使用调用方的 ctx，避免其已取消导致锁残留到 ttl。
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.client, []string{key}, tok).Err()
	}, nil
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
