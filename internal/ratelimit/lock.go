package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned by Acquire when another holder owns the key.
var ErrLockHeld = errors.New("lock held")

// Both scripts act only while KEYS[1] still carries the caller's token.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)
	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)
)

// Locker hands out single-holder leases on Redis keys.
type Locker struct {
	client *redis.Client
}

// NewLocker returns nil when Redis is not configured. A nil Locker grants
// every lease, which is correct for a single process.
func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{client: client}
}

func (l *Locker) Enabled() bool {
	return l != nil && l.client != nil
}

// Lease is a held lock. The zero-cost lease from a disabled Locker releases
// and extends as no-ops.
type Lease struct {
	client *redis.Client
	key    string
	token  string
}

func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	if !l.Enabled() {
		return &Lease{key: key}, nil
	}
	if key == "" {
		return nil, errors.New("lock key is empty")
	}
	if ttl <= 0 {
		return nil, errors.New("lock ttl must be positive")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &Lease{client: l.client, key: key, token: token}, nil
}

// Extend pushes the lease deadline out to ttl from now. It returns
// ErrLockHeld when the lease already expired and someone else took the key.
func (l *Lease) Extend(ctx context.Context, ttl time.Duration) error {
	if l == nil || l.client == nil {
		return nil
	}
	n, err := extendScript.Run(ctx, l.client, []string{l.key}, l.token, strconv.FormatInt(ttl.Milliseconds(), 10)).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockHeld
	}
	return nil
}

func (l *Lease) Release(ctx context.Context) error {
	if l == nil || l.client == nil {
		return nil
	}
	return releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}
