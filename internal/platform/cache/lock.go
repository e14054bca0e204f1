package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock is a single-key Redis mutex with expiry.
type Lock struct {
	client redis.UniversalClient
}

// NewLock wraps client.
func NewLock(client redis.UniversalClient) *Lock {
	return &Lock{client: client}
}

// TryAcquire sets key if absent. ok is false when another holder owns it.
// The returned release func only removes the key while this holder still owns it.
func (l *Lock) TryAcquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	token := uuid.NewString()
	acquired, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("platform/cache: acquire %s: %w", key, err)
	}
	if !acquired {
		return nil, false, nil
	}
	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("platform/cache: release %s: %w", key, err)
		}
		return nil
	}
	return release, true, nil
}
