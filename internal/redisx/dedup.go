package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Dedup marks message ids as processed for one consumer group.
type Dedup struct {
	RDB   *redis.Client
	Group string
	TTL   time.Duration
}

func NewDedup(rdb *redis.Client, group string) *Dedup {
	return &Dedup{RDB: rdb, Group: group, TTL: TTLDedup}
}

// Claim reports whether the caller is the first to process id.
func (d *Dedup) Claim(ctx context.Context, id string) (bool, error) {
	return d.RDB.SetNX(ctx, fmt.Sprintf(KeyDedup, d.Group, id), 1, d.TTL).Result()
}

// Release forgets id so a redelivery is processed again.
func (d *Dedup) Release(ctx context.Context, id string) error {
	return d.RDB.Del(ctx, fmt.Sprintf(KeyDedup, d.Group, id)).Err()
}
