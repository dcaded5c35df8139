package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sbilibin2017/user-bootstrap/internal/logger"
)

// ErrLockNotHeld is returned by Release when the key no longer holds the token.
var ErrLockNotHeld = errors.New("lock not held")

// releaseScript deletes the key only if it still stores the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// BootstrapLockRepository implements a single-holder lock on top of Redis.
type BootstrapLockRepository struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewBootstrapLockRepository(rdb *redis.Client, ttl time.Duration) *BootstrapLockRepository {
	return &BootstrapLockRepository{rdb: rdb, ttl: ttl}
}

// Acquire tries to take the lock once. It returns the holder token and true on
// success, or an empty token and false when somebody else holds it.
func (r *BootstrapLockRepository) Acquire(ctx context.Context, key string) (string, bool, error) {
	token := uuid.NewString()

	ok, err := r.rdb.SetNX(ctx, key, token, r.ttl).Result()

	logger.Log.Infow(
		"redis command",
		"command", "SET NX",
		"key", key,
		"ttl", r.ttl,
		"result", ok,
		"error", err,
	)

	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release frees the lock if token is still the holder.
func (r *BootstrapLockRepository) Release(ctx context.Context, key, token string) error {
	n, err := releaseScript.Run(ctx, r.rdb, []string{key}, token).Int64()

	logger.Log.Infow(
		"redis command",
		"command", "EVALSHA release",
		"key", key,
		"result", n,
		"error", err,
	)

	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}
