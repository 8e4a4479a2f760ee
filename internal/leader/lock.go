// Package leader elects a single stream owner among process replicas using
// a redis lock with a TTL and periodic renewal. Only the lock holder opens
// websocket streams; everyone else keeps campaigning.
package leader

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// releaseScript deletes the lock only when this instance still holds it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// renewScript extends the TTL only when this instance still holds the lock.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

// Lock is a single-holder redis lock. The holder identity is a random id,
// so a crashed holder's lock expires on its own and a restarted instance
// never releases a lock it no longer owns.
type Lock struct {
	client *redis.Client
	key    string
	id     string
	ttl    time.Duration
	logger zerolog.Logger
}

// NewLock creates a lock on key with the given TTL.
func NewLock(client *redis.Client, key string, ttl time.Duration, logger zerolog.Logger) *Lock {
	return &Lock{
		client: client,
		key:    key,
		id:     uuid.NewString(),
		ttl:    ttl,
		logger: logger.With().Str("component", "leader").Str("lock_key", key).Logger(),
	}
}

// TryAcquire attempts to take the lock once.
func (l *Lock) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.id, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", l.key, err)
	}
	return ok, nil
}

// Campaign blocks until the lock is won or ctx is cancelled, retrying at
// the given interval.
func (l *Lock) Campaign(ctx context.Context, retryEvery time.Duration) error {
	ticker := time.NewTicker(retryEvery)
	defer ticker.Stop()
	for {
		ok, err := l.TryAcquire(ctx)
		if err != nil {
			l.logger.Warn().Err(err).Msg("lock acquisition attempt failed")
		} else if ok {
			l.logger.Info().Str("holder_id", l.id).Msg("leadership acquired")
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// KeepAlive renews the lock at a third of its TTL until ctx is cancelled,
// then releases it. Returns an error when leadership is lost early, which
// the caller must treat as a stop signal for the streams it guards.
func (l *Lock) KeepAlive(ctx context.Context) error {
	interval := l.ttl / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			l.release()
			return ctx.Err()
		case <-ticker.C:
			held, err := renewScript.Run(ctx, l.client, []string{l.key}, l.id, l.ttl.Milliseconds()).Int()
			if err != nil {
				l.logger.Warn().Err(err).Msg("lock renewal failed")
				continue
			}
			if held == 0 {
				l.logger.Error().Msg("leadership lost, lock taken by another instance")
				return fmt.Errorf("leadership lost on %s", l.key)
			}
		}
	}
}

// release uses a short background context so shutdown still frees the lock
// after the main context is cancelled.
func (l *Lock) release() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.id).Result(); err != nil {
		l.logger.Warn().Err(err).Msg("lock release failed, will expire on its own")
		return
	}
	l.logger.Info().Msg("leadership released")
}
