//go:build integration

package redisx_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/thriftian/marketplace/internal/apperr"
	"github.com/thriftian/marketplace/internal/orders"
	"github.com/thriftian/marketplace/internal/redisx"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "6379")
	require.NoError(t, err)

	rdb, err := redisx.Connect(ctx, fmt.Sprintf("%s:%s", host, port.Port()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestIdempotency(t *testing.T) {
	rdb := startRedis(t)
	idem := redisx.NewIdempotency(rdb)
	ctx := context.Background()

	existing, err := idem.Begin(ctx, "buyer-1", "k-1")
	require.NoError(t, err)
	assert.Empty(t, existing)

	_, err = idem.Begin(ctx, "buyer-1", "k-1")
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	// same key, other user: independent
	existing, err = idem.Begin(ctx, "buyer-2", "k-1")
	require.NoError(t, err)
	assert.Empty(t, existing)

	require.NoError(t, idem.Complete(ctx, "buyer-1", "k-1", "order-42"))
	existing, err = idem.Begin(ctx, "buyer-1", "k-1")
	require.NoError(t, err)
	assert.Equal(t, "order-42", existing)

	require.NoError(t, idem.Abort(ctx, "buyer-2", "k-1"))
	existing, err = idem.Begin(ctx, "buyer-2", "k-1")
	require.NoError(t, err)
	assert.Empty(t, existing)
}

func TestOrderCache(t *testing.T) {
	rdb := startRedis(t)
	cache := redisx.NewOrderCache(rdb)
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, "order-1")
	require.NoError(t, err)
	assert.False(t, ok)

	o := orders.Order{ID: "order-1", Status: orders.StatusPending, TotalAmount: decimal.RequireFromString("99.50")}
	require.NoError(t, cache.Set(ctx, o))
	got, ok, err := cache.Get(ctx, "order-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, orders.StatusPending, got.Status)
	assert.True(t, o.TotalAmount.Equal(got.TotalAmount))

	require.NoError(t, cache.Invalidate(ctx, "order-1"))
	_, ok, err = cache.Get(ctx, "order-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOrderCache_StaleSetDoesNotOverwrite(t *testing.T) {
	rdb := startRedis(t)
	cache := redisx.NewOrderCache(rdb)
	ctx := context.Background()
	placed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	stale := orders.Order{ID: "order-1", Status: orders.StatusPending, UpdatedAt: placed}
	fresh := stale
	fresh.Status, fresh.UpdatedAt = orders.StatusConfirmed, placed.Add(time.Second)

	require.NoError(t, cache.Set(ctx, fresh))
	require.NoError(t, cache.Set(ctx, stale), "a late read-through is dropped, not failed")
	got, ok, err := cache.Get(ctx, "order-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, orders.StatusConfirmed, got.Status)

	ttl, err := rdb.PTTL(ctx, "order:order-1").Result()
	require.NoError(t, err)
	assert.Positive(t, ttl)
}

func TestDedup(t *testing.T) {
	rdb := startRedis(t)
	d := redisx.NewDedup(rdb, "dispatcher")
	ctx := context.Background()

	first, err := d.Claim(ctx, "intent-1")
	require.NoError(t, err)
	assert.True(t, first)
	again, err := d.Claim(ctx, "intent-1")
	require.NoError(t, err)
	assert.False(t, again)

	require.NoError(t, d.Release(ctx, "intent-1"))
	first, err = d.Claim(ctx, "intent-1")
	require.NoError(t, err)
	assert.True(t, first)
}
