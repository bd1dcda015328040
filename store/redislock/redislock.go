// Package redislock implements generic.Locker on Redis so that several
// service instances serialize salary upserts for the same driver and period.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/warp/payroll-engine/generic"
)

const (
	DefaultKeyPrefix  = "payroll:lock:"
	DefaultTTL        = 30 * time.Second
	DefaultRetryDelay = 25 * time.Millisecond
)

// releaseScript deletes the lock only if it still holds our token, so an
// expired lock re-acquired by another instance is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a SET NX PX advisory lock. A holder that dies releases the lock
// when the TTL expires; the TTL must exceed the longest critical section.
type Locker struct {
	client     redis.UniversalClient
	keyPrefix  string
	ttl        time.Duration
	retryDelay time.Duration
	logger     *zap.Logger
}

var _ generic.Locker = (*Locker)(nil)

type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Dial connects to Redis and verifies the connection.
func Dial(ctx context.Context, cfg Config, logger *zap.Logger) (*Locker, *redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	l := New(client, logger)
	if cfg.TTL > 0 {
		l.ttl = cfg.TTL
	}
	return l, client, nil
}

// New creates a locker over an existing client.
func New(client redis.UniversalClient, logger *zap.Logger) *Locker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Locker{
		client:     client,
		keyPrefix:  DefaultKeyPrefix,
		ttl:        DefaultTTL,
		retryDelay: DefaultRetryDelay,
		logger:     logger,
	}
}

// Lock blocks until key is acquired or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := l.keyPrefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.retryDelay)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			return l.unlocker(redisKey, token), nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *Locker) unlocker(redisKey, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() { l.release(redisKey, token) })
	}
}

// release runs even if the caller's context is already canceled.
func (l *Locker) release(redisKey, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err(); err != nil {
		l.logger.Warn("failed to release lock", zap.String("key", redisKey), zap.Error(err))
	}
}
