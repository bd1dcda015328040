package redislock

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a real server only when PAYROLL_TEST_REDIS_ADDR is set.
func testLocker(t *testing.T) (*Locker, *redis.Client) {
	t.Helper()
	addr := os.Getenv("PAYROLL_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PAYROLL_TEST_REDIS_ADDR not set")
	}
	l, client, err := Dial(context.Background(), Config{Addr: addr, TTL: 5 * time.Second}, nil)
	require.NoError(t, err)
	l.keyPrefix = "payroll:test:" + uuid.NewString() + ":"
	t.Cleanup(func() { client.Close() })
	return l, client
}

func TestNew_Defaults(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	l := New(client, nil)

	assert.Equal(t, DefaultKeyPrefix, l.keyPrefix)
	assert.Equal(t, DefaultTTL, l.ttl)
	assert.NotNil(t, l.logger)
}

func TestLock_CanceledContextFailsFast(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0", MaxRetries: -1})
	defer client.Close()
	l := New(client, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Lock(ctx, "salary:X:0")
	assert.Error(t, err)
}

func TestLock_MutualExclusion(t *testing.T) {
	l, _ := testLocker(t)
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "salary:X:1709251200000")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
}

func TestLock_TimesOutWhileHeld(t *testing.T) {
	l, _ := testLocker(t)

	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestUnlock_DoesNotReleaseForeignToken(t *testing.T) {
	l, client := testLocker(t)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "k")
	require.NoError(t, err)

	// GIVEN: the lock expired and another instance took it
	require.NoError(t, client.Set(ctx, l.keyPrefix+"k", "someone-else", time.Minute).Err())

	// WHEN: the original holder unlocks
	unlock()

	// THEN: the other holder keeps the lock
	val, err := client.Get(ctx, l.keyPrefix+"k").Result()
	require.NoError(t, err)
	assert.Equal(t, "someone-else", val)
}
