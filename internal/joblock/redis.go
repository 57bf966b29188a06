package joblock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Compile-time checks.
var (
	_ Locker = (*Redis)(nil)
	_ Lock   = (*redisLock)(nil)
)

// Token-checked scripts so a holder never deletes or extends a lock that
// expired and was re-acquired by someone else.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// Redis is a Locker backed by SET NX PX.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

// NewRedis returns a Locker that namespaces keys with prefix.
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

// TryAcquire sets the key if it is absent.
func (r *Redis) TryAcquire(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	token := uuid.NewString()
	full := r.prefix + key
	ok, err := r.client.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("joblock: acquire %s: %w", full, err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return &redisLock{client: r.client, key: key, full: full, token: token}, nil
}

type redisLock struct {
	client redis.UniversalClient
	key    string
	full   string
	token  string
}

func (k *redisLock) Key() string { return k.key }

func (k *redisLock) Refresh(ctx context.Context, ttl time.Duration) error {
	n, err := refreshScript.Run(ctx, k.client, []string{k.full}, k.token, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("joblock: refresh %s: %w", k.full, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

func (k *redisLock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, k.client, []string{k.full}, k.token).Int()
	if err != nil {
		return fmt.Errorf("joblock: release %s: %w", k.full, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}
