package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gyeh/payrun/internal/payerr"
)

// KeyPrefix namespaces lock keys in Redis.
const KeyPrefix = "payrun:lock:"

// releaseScript deletes the key only while it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript extends the key's TTL only while it still holds the token.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

type redisClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Close() error
}

// Redis is a Locker backed by SETNX with an owner token. While a run holds
// the lock its TTL is refreshed every third of the TTL; the TTL only bounds
// how long a crashed holder blocks the event.
type Redis struct {
	client  redisClient
	ttl     time.Duration
	refresh time.Duration
	log     zerolog.Logger
}

// NewRedis connects to addr and pings it.
func NewRedis(ctx context.Context, addr, password string, ttl time.Duration, log zerolog.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, payerr.Wrap(payerr.KindExternalService, "lock.NewRedis", err).With("addr", addr)
	}
	return newRedis(client, ttl, log), nil
}

func newRedis(client redisClient, ttl time.Duration, log zerolog.Logger) *Redis {
	return &Redis{client: client, ttl: ttl, refresh: ttl / 3, log: log}
}

// Close closes the Redis client.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) TryLock(ctx context.Context, paymentEventID string) (Release, error) {
	const op = "lock.Redis"
	key := KeyPrefix + paymentEventID
	token := uuid.NewString()

	acquired, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
	if err != nil {
		return nil, payerr.Wrap(payerr.KindExternalService, op, err).With("key", key)
	}
	if !acquired {
		return nil, errHeld(op, paymentEventID)
	}
	r.log.Debug().Str("key", key).Str("token", token).Dur("ttl", r.ttl).Msg("lock acquired")

	keepCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.keepAlive(keepCtx, key, token)
	}()

	var (
		once       sync.Once
		releaseErr error
	)
	return func(ctx context.Context) error {
		once.Do(func() {
			stop()
			<-done
			releaseErr = r.unlock(ctx, key, token)
		})
		return releaseErr
	}, nil
}

// keepAlive refreshes the TTL of key until ctx ends or the token is gone.
func (r *Redis) keepAlive(ctx context.Context, key, token string) {
	if r.refresh <= 0 {
		return
	}
	ticker := time.NewTicker(r.refresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := refreshScript.Run(ctx, r.client, []string{key}, token, r.ttl.Milliseconds()).Int()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				r.log.Warn().Err(err).Str("key", key).Msg("lock refresh failed")
				continue
			}
			if n == 0 {
				r.log.Error().Str("key", key).Msg("lock lost while held")
				return
			}
		}
	}
}

func (r *Redis) unlock(ctx context.Context, key, token string) error {
	const op = "lock.Redis.Unlock"
	n, err := releaseScript.Run(ctx, r.client, []string{key}, token).Int()
	if err != nil {
		return payerr.Wrap(payerr.KindExternalService, op, err).With("key", key)
	}
	if n == 0 {
		return payerr.Wrap(payerr.KindConcurrency, op, fmt.Errorf("lock expired or owned by another run")).With("key", key)
	}
	r.log.Debug().Str("key", key).Msg("lock released")
	return nil
}
