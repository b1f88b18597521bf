package notify_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thriftian/marketplace/internal/apperr"
	"github.com/thriftian/marketplace/internal/auth"
	"github.com/thriftian/marketplace/internal/memstore"
	"github.com/thriftian/marketplace/internal/notify"
	"github.com/thriftian/marketplace/internal/outbox"
)

var (
	maria = auth.Identity{UID: "buyer-1", Role: auth.RoleBuyer}
	juan  = auth.Identity{UID: "buyer-2", Role: auth.RoleBuyer}
)

type fakePusher struct {
	mu   sync.Mutex
	sent map[string]int
	err  error
}

func (p *fakePusher) Push(_ context.Context, userID string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sent == nil {
		p.sent = map[string]int{}
	}
	p.sent[userID]++
	return p.err
}

func clock() func() time.Time {
	t := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func deliver(t *testing.T, svc *notify.Service, userID, title string) {
	t.Helper()
	require.NoError(t, svc.Deliver(context.Background(), outbox.Notification{
		UserID: userID, Title: title, Message: title + " message", Type: string(notify.TypeOrder),
	}))
}

func TestDeliver_StoresAndPushes(t *testing.T) {
	push := &fakePusher{}
	svc := &notify.Service{Store: memstore.New(), Push: push, Now: clock()}

	deliver(t, svc, maria.UID, "Order Placed")

	list, err := svc.List(context.Background(), maria)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Order Placed", list[0].Title)
	assert.False(t, list[0].IsRead)
	assert.Equal(t, 1, push.sent[maria.UID])
}

func TestDeliver_PushFailureStillStores(t *testing.T) {
	svc := &notify.Service{Store: memstore.New(), Push: &fakePusher{err: errors.New("socket gone")}, Now: clock()}

	deliver(t, svc, maria.UID, "Order Shipped")

	list, err := svc.List(context.Background(), maria)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestList_NewestFirstAndCapped(t *testing.T) {
	svc := &notify.Service{Store: memstore.New(), Now: clock()}
	for i := 0; i < notify.PageSize+5; i++ {
		deliver(t, svc, maria.UID, fmt.Sprintf("n-%02d", i))
	}
	deliver(t, svc, juan.UID, "not mine")

	list, err := svc.List(context.Background(), maria)
	require.NoError(t, err)
	require.Len(t, list, notify.PageSize)
	assert.Equal(t, fmt.Sprintf("n-%02d", notify.PageSize+4), list[0].Title)
	for i := 1; i < len(list); i++ {
		assert.False(t, list[i].CreatedAt.After(list[i-1].CreatedAt))
		assert.Equal(t, maria.UID, list[i].UserID)
	}
}

func TestList_EmptyIsNotNil(t *testing.T) {
	svc := &notify.Service{Store: memstore.New()}
	list, err := svc.List(context.Background(), maria)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestMarkRead(t *testing.T) {
	svc := &notify.Service{Store: memstore.New(), Now: clock()}
	ctx := context.Background()
	deliver(t, svc, maria.UID, "Order Placed")
	list, _ := svc.List(ctx, maria)
	id := list[0].ID

	err := svc.MarkRead(ctx, juan, id)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	require.NoError(t, svc.MarkRead(ctx, maria, id))
	require.NoError(t, svc.MarkRead(ctx, maria, id))
	list, _ = svc.List(ctx, maria)
	assert.True(t, list[0].IsRead)

	err = svc.MarkRead(ctx, maria, "missing")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestMarkAllRead_Idempotent(t *testing.T) {
	svc := &notify.Service{Store: memstore.New(), Now: clock()}
	ctx := context.Background()
	deliver(t, svc, maria.UID, "a")
	deliver(t, svc, maria.UID, "b")
	deliver(t, svc, juan.UID, "c")

	n, err := svc.MarkAllRead(ctx, maria)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = svc.MarkAllRead(ctx, maria)
	require.NoError(t, err)
	assert.Zero(t, n)

	others, _ := svc.List(ctx, juan)
	assert.False(t, others[0].IsRead)
}

func TestTemplates(t *testing.T) {
	b := notify.OrderPlaced("order-1", "buyer-1", "Maria", "seller-1", decimal.RequireFromString("1299.00"))
	require.Len(t, b, 2)
	assert.Equal(t, "buyer-1", b[0].Notification.UserID)
	assert.Equal(t, "seller-1", b[1].Notification.UserID)

	rej := notify.ProductRejected("p-1", "seller-1", "Denim jacket", "")
	assert.Contains(t, rej.Notification.Message, "Policy violation")
}
