//go:build integration

package dynamo_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/thriftian/marketplace/internal/apperr"
	"github.com/thriftian/marketplace/internal/auth"
	"github.com/thriftian/marketplace/internal/catalog"
	"github.com/thriftian/marketplace/internal/dynamo"
	"github.com/thriftian/marketplace/internal/orders"
	"github.com/thriftian/marketplace/internal/outbox"
	"github.com/thriftian/marketplace/internal/reports"
	"github.com/thriftian/marketplace/internal/users"
)

func startDynamo(t *testing.T) *dynamo.Store {
	t.Helper()
	ctx := context.Background()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "amazon/dynamodb-local:2.5.2",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"-jar", "DynamoDBLocal.jar", "-inMemory", "-sharedDb"},
			WaitingFor:   wait.ForListeningPort("8000/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "8000")
	require.NoError(t, err)

	client, err := dynamo.Connect(ctx, "ap-southeast-1", fmt.Sprintf("http://%s:%s", host, port.Port()))
	require.NoError(t, err)
	s := dynamo.New(client, "it_")
	s.Backoff = 5 * time.Millisecond
	require.NoError(t, s.EnsureTables(ctx))
	return s
}

func seed(t *testing.T, s *dynamo.Store, stock int) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, s.PutUser(ctx, users.User{ID: "b-1", Name: "Bea", Email: "bea@example.com",
		Role: auth.RoleBuyer, Verified: true, CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, s.CreateProduct(ctx, catalog.Product{
		ID: "p-1", SellerID: "s-1", SellerName: "Sam", Title: "Denim jacket", Description: "Barely worn denim jacket",
		Category: "Outerwear", Condition: catalog.ConditionLikeNew, Price: decimal.RequireFromString("250.50"),
		Stock: stock, Status: catalog.StatusApproved, Images: []catalog.Image{{URL: "https://img.example.com/1.jpg"}},
		CreatedAt: now, UpdatedAt: now,
	}))
}

func checkoutReq() orders.CheckoutRequest {
	return orders.CheckoutRequest{
		Items:           []orders.LineInput{{ProductID: "p-1", Quantity: 1}},
		ShippingAddress: orders.Address{Street: "12 Rizal Ave", City: "Manila", Province: "Metro Manila", Zip: "1000"},
	}
}

func TestCheckoutAndCancel(t *testing.T) {
	s := startDynamo(t)
	seed(t, s, 1)
	ctx := context.Background()
	svc := &orders.Service{Store: s, Users: s}

	o, _, err := svc.Checkout(ctx, auth.Identity{UID: "b-1", Role: auth.RoleBuyer}, checkoutReq())
	require.NoError(t, err)
	p, err := s.GetProduct(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, 0, p.Stock)
	assert.Equal(t, catalog.StatusSoldOut, p.Status)

	listed, err := s.ListOrders(ctx, orders.ListFilter{BuyerID: "b-1"})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, o.ID, listed[0].ID)

	seller := auth.Identity{UID: "s-1", Role: auth.RoleSeller}
	got, _, err := svc.UpdateStatus(ctx, seller, o.ID, orders.StatusRequest{Status: string(orders.StatusCancelled)})
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, got.Status)

	p, err = s.GetProduct(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.Stock)
	assert.Equal(t, catalog.StatusApproved, p.Status)
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	s := startDynamo(t)
	seed(t, s, 3)
	ctx := context.Background()
	svc := &orders.Service{Store: s, Users: s}
	buyer := auth.Identity{UID: "b-1", Role: auth.RoleBuyer}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := svc.Checkout(ctx, buyer, checkoutReq())
			if err != nil {
				assert.True(t, apperr.Is(err, apperr.KindInsufficientStock) ||
					apperr.Is(err, apperr.KindNotAvailable) || apperr.Is(err, apperr.KindConflict), "%v", err)
				return
			}
			mu.Lock()
			ok++
			mu.Unlock()
		}()
	}
	wg.Wait()

	p, err := s.GetProduct(ctx, "p-1")
	require.NoError(t, err)
	assert.LessOrEqual(t, ok, 3)
	assert.Equal(t, 3-ok, p.Stock)
}

func TestApplySale_Idempotent(t *testing.T) {
	s := startDynamo(t)
	ctx := context.Background()
	at := time.Now().UTC()
	sale := outbox.Sale{SellerID: "s-1", OrderID: "o-1", Amount: decimal.RequireFromString("100.25"),
		Lines: []outbox.SaleLine{{ProductID: "p-1", Quantity: 2}}}

	applied, err := s.ApplySale(ctx, sale, at)
	require.NoError(t, err)
	assert.True(t, applied)
	applied, err = s.ApplySale(ctx, sale, at)
	require.NoError(t, err)
	assert.False(t, applied)

	a, found, err := s.GetAnalytics(ctx, "s-1", 5)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, decimal.RequireFromString("100.25").Equal(a.TotalSales))
	assert.EqualValues(t, 1, a.TotalOrders)
	assert.Equal(t, []string{"p-1"}, a.TopProducts)

	_, found, err = s.GetAnalytics(ctx, "nobody", 5)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMissingItemsAreNotFound(t *testing.T) {
	s := startDynamo(t)
	ctx := context.Background()

	_, err := s.GetOrder(ctx, "nope")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = s.GetUser(ctx, "nope")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.True(t, apperr.Is(s.MarkNotificationRead(ctx, "nope"), apperr.KindNotFound))
	assert.True(t, apperr.Is(s.DeleteProduct(ctx, "nope"), apperr.KindNotFound))
}

func TestReports(t *testing.T) {
	s := startDynamo(t)
	ctx := context.Background()
	svc := &reports.Service{Store: s}
	admin := auth.Identity{UID: "admin-1", Role: auth.RoleAdmin}

	r, err := svc.File(ctx, auth.Identity{UID: "b-1", Role: auth.RoleBuyer},
		reports.FileRequest{Type: "order", TargetID: "o-1", Reason: "Parcel never arrived, seller unresponsive"})
	require.NoError(t, err)

	got, _, err := svc.SetStatus(ctx, admin, r.ID, reports.StatusRequest{Status: "reviewed"})
	require.NoError(t, err)
	assert.Equal(t, reports.StatusReviewed, got.Status)

	listed, err := svc.List(ctx, admin)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, reports.StatusReviewed, listed[0].Status)
	assert.Equal(t, "b-1", listed[0].ReportedBy)

	_, _, err = svc.SetStatus(ctx, admin, "nope", reports.StatusRequest{Status: "reviewed"})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
