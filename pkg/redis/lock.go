package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrLockHeld is returned when another holder owns the lock.
var ErrLockHeld = errors.New("lock held by another owner")

const lockKeyPrefix = "lock:"

// Only the owner that set the token may delete the key.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// Lock is a held single-owner lock with a TTL.
type Lock struct {
	client *Client
	key    string
	token  string
}

// TryLock takes name for ttl, or returns ErrLockHeld.
func (c *Client) TryLock(ctx context.Context, name string, ttl time.Duration) (*Lock, error) {
	key := lockKeyPrefix + name
	token := uuid.NewString()

	ok, err := c.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &Lock{client: c, key: key, token: token}, nil
}

// Release drops the lock if it is still ours.
func (l *Lock) Release(ctx context.Context) error {
	return l.client.EvalWithFallback(ctx, "release_lock", releaseScript, []string{l.client.Key(l.key)}, l.token).Err()
}
