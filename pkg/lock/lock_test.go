package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

func newRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client, time.Second), mr
}

func TestLocalLocker_SerializesSameDepartment(t *testing.T) {
	l := NewLocalLocker()
	var (
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), 1)
			if err != nil {
				t.Error(err)
				return
			}
			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
			unlock()
		}()
	}
	wg.Wait()
	require.Equal(t, 50, counter)
}

func TestLocalLocker_DepartmentsAreIndependent(t *testing.T) {
	l := NewLocalLocker()
	unlockA, err := l.Lock(context.Background(), 1)
	require.NoError(t, err)
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB, err := l.Lock(context.Background(), 2)
		if err == nil {
			unlockB()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on another department blocked")
	}
}

func TestRedisLocker_LockAndRelease(t *testing.T) {
	l, mr := newRedisLocker(t)

	unlock, err := l.Lock(context.Background(), 5)
	require.NoError(t, err)
	require.True(t, mr.Exists("lock:department:5"))

	unlock()
	require.False(t, mr.Exists("lock:department:5"))
}

func TestRedisLocker_WaitsForHolder(t *testing.T) {
	l, _ := newRedisLocker(t)

	unlock, err := l.Lock(context.Background(), 5)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, 5)
	require.ErrorIs(t, err, ErrLockTimeout)

	unlock()
	unlock2, err := l.Lock(context.Background(), 5)
	require.NoError(t, err)
	unlock2()
}

func TestRedisLocker_ExpiredContextIsTimeout(t *testing.T) {
	l, mr := newRedisLocker(t)

	// ctx 在 SetNX 之前就已结束，请求本身失败也应返回 ErrLockTimeout
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := l.Lock(ctx, 6)
	require.ErrorIs(t, err, ErrLockTimeout)
	require.False(t, mr.Exists("lock:department:6"))
}

func TestRedisLocker_ReleaseKeepsForeignLock(t *testing.T) {
	l, mr := newRedisLocker(t)

	unlock, err := l.Lock(context.Background(), 9)
	require.NoError(t, err)

	// 锁过期后被其他持有者获取，旧持有者的 unlock 不能删除它
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set("lock:department:9", "other-holder"))

	unlock()
	got, err := mr.Get("lock:department:9")
	require.NoError(t, err)
	require.Equal(t, "other-holder", got)
}
