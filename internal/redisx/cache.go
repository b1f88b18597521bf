package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/thriftian/marketplace/internal/orders"
)

// OrderCache is a short-lived copy of orders. Each entry is a hash of the
// JSON document and its version (UpdatedAt in microseconds); Set never
// replaces a newer version, so a read-through racing a status change cannot
// put the old copy back.
type OrderCache struct {
	RDB *redis.Client
	TTL time.Duration
}

func NewOrderCache(rdb *redis.Client) *OrderCache {
	return &OrderCache{RDB: rdb, TTL: TTLOrderCache}
}

// KEYS[1] entry, ARGV[1] version, ARGV[2] document, ARGV[3] ttl ms.
var setIfNewer = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'v')
if cur and tonumber(cur) > tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], 'v', ARGV[1], 'doc', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

func (c *OrderCache) Get(ctx context.Context, id string) (orders.Order, bool, error) {
	b, err := c.RDB.HGet(ctx, fmt.Sprintf(KeyOrder, id), "doc").Bytes()
	if errors.Is(err, redis.Nil) {
		return orders.Order{}, false, nil
	}
	if err != nil {
		return orders.Order{}, false, err
	}
	var o orders.Order
	if err := json.Unmarshal(b, &o); err != nil {
		return orders.Order{}, false, err
	}
	return o, true, nil
}

// Set stores o unless the entry already holds a newer version.
func (c *OrderCache) Set(ctx context.Context, o orders.Order) error {
	b, err := json.Marshal(o)
	if err != nil {
		return err
	}
	key := fmt.Sprintf(KeyOrder, o.ID)
	return setIfNewer.Run(ctx, c.RDB, []string{key}, o.UpdatedAt.UnixMicro(), b, c.TTL.Milliseconds()).Err()
}

func (c *OrderCache) Invalidate(ctx context.Context, id string) error {
	return c.RDB.Del(ctx, fmt.Sprintf(KeyOrder, id)).Err()
}
