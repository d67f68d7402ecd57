package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the claim only while it is still held by the caller.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLedger stores idempotency claims in Redis so every instance of the
// order service sees the same ledger.
type RedisLedger struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLedger creates a ledger whose claims expire after ttl.
func NewRedisLedger(client *redis.Client, ttl time.Duration) *RedisLedger {
	if client == nil {
		panic("storage.NewRedisLedger: client is nil")
	}
	return &RedisLedger{client: client, ttl: ttl}
}

func (r *RedisLedger) key(key string) string {
	return fmt.Sprintf("orders:idempotency:%s", key)
}

func (r *RedisLedger) Claim(ctx context.Context, key, orderID string) (string, bool, error) {
	ok, err := r.client.SetNX(ctx, r.key(key), orderID, r.ttl).Result()
	if err != nil {
		return "", false, err
	}
	if ok {
		return orderID, true, nil
	}
	owner, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		// The claim expired or was released between SETNX and GET.
		return r.Claim(ctx, key, orderID)
	}
	if err != nil {
		return "", false, err
	}
	return owner, false, nil
}

func (r *RedisLedger) Release(ctx context.Context, key, orderID string) error {
	return releaseScript.Run(ctx, r.client, []string{r.key(key)}, orderID).Err()
}
