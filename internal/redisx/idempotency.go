package redisx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/thriftian/marketplace/internal/apperr"
)

const pending = "pending"

// Idempotency remembers which order a client's Idempotency-Key produced.
// Keys are scoped per user so two users cannot collide.
type Idempotency struct {
	RDB *redis.Client
	TTL time.Duration
}

func NewIdempotency(rdb *redis.Client) *Idempotency {
	return &Idempotency{RDB: rdb, TTL: TTLIdempotency}
}

func (i *Idempotency) key(userID, key string) string {
	return fmt.Sprintf(KeyIdemCheckout, userID, key)
}

// Begin claims the key. It returns the order id of an earlier completed
// request, "" when the caller now owns the key, or a Conflict error while
// another request holding the same key is still running.
func (i *Idempotency) Begin(ctx context.Context, userID, key string) (string, error) {
	k := i.key(userID, key)
	ok, err := i.RDB.SetNX(ctx, k, pending, i.TTL).Result()
	if err != nil {
		return "", err
	}
	if ok {
		return "", nil
	}
	v, err := i.RDB.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; try once more
		ok, err = i.RDB.SetNX(ctx, k, pending, i.TTL).Result()
		if err != nil {
			return "", err
		}
		if ok {
			return "", nil
		}
		return "", apperr.Conflict("a request with this idempotency key is already in progress")
	}
	if err != nil {
		return "", err
	}
	if v == pending {
		return "", apperr.Conflict("a request with this idempotency key is already in progress")
	}
	return v, nil
}

func (i *Idempotency) Complete(ctx context.Context, userID, key, orderID string) error {
	return i.RDB.Set(ctx, i.key(userID, key), orderID, i.TTL).Err()
}

// Abort releases the key after a failed request so the client can retry.
func (i *Idempotency) Abort(ctx context.Context, userID, key string) error {
	return i.RDB.Del(ctx, i.key(userID, key)).Err()
}
