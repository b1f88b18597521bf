//go:build integration

package postgres_test

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
	"github.com/thriftian/marketplace/internal/orders"
	"github.com/thriftian/marketplace/internal/outbox"
	"github.com/thriftian/marketplace/internal/postgres"
	"github.com/thriftian/marketplace/internal/reports"
	"github.com/thriftian/marketplace/internal/users"
)

func startPostgres(t *testing.T) *postgres.Store {
	t.Helper()
	ctx := context.Background()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "thriftian",
				"POSTGRES_PASSWORD": "thriftian",
				"POSTGRES_DB":       "thriftian",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://thriftian:thriftian@%s:%s/thriftian?sslmode=disable", host, port.Port())
	db, err := postgres.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, postgres.Migrate(ctx, db))
	return postgres.New(db)
}

func seed(t *testing.T, s *postgres.Store, stock int) (users.User, catalog.Product) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	buyer := users.User{ID: "b-1", Name: "Bea", Email: "bea@example.com", Role: auth.RoleBuyer, Verified: true, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.PutUser(ctx, buyer))
	p := catalog.Product{
		ID: "p-1", SellerID: "s-1", SellerName: "Sam", Title: "Denim jacket", Description: "Barely worn denim jacket",
		Category: "Outerwear", Condition: catalog.ConditionLikeNew, Price: decimal.RequireFromString("250.50"),
		Stock: stock, Status: catalog.StatusApproved, Images: []catalog.Image{{URL: "https://img.example.com/1.jpg"}},
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateProduct(ctx, p))
	return buyer, p
}

func checkoutService(s *postgres.Store) *orders.Service {
	return &orders.Service{Store: s, Users: s}
}

func checkoutReq() orders.CheckoutRequest {
	return orders.CheckoutRequest{
		Items:           []orders.LineInput{{ProductID: "p-1", Quantity: 1}},
		ShippingAddress: orders.Address{Street: "12 Rizal Ave", City: "Manila", Province: "Metro Manila", Zip: "1000"},
	}
}

func TestPlaceOrder_RoundTrip(t *testing.T) {
	s := startPostgres(t)
	_, _ = seed(t, s, 2)
	ctx := context.Background()
	svc := checkoutService(s)
	buyer := auth.Identity{UID: "b-1", Role: auth.RoleBuyer}

	o, _, err := svc.Checkout(ctx, buyer, checkoutReq())
	require.NoError(t, err)

	got, err := s.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("250.50").Equal(got.TotalAmount))
	require.Len(t, got.Items, 1)
	assert.Equal(t, "https://img.example.com/1.jpg", got.Items[0].ImageURL)
	assert.Equal(t, "Manila", got.ShippingAddress.City)

	p, err := s.GetProduct(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.Stock)
}

func TestPlaceOrder_ConcurrentCheckoutsNeverOversell(t *testing.T) {
	s := startPostgres(t)
	_, _ = seed(t, s, 3)
	ctx := context.Background()
	svc := checkoutService(s)
	buyer := auth.Identity{UID: "b-1", Role: auth.RoleBuyer}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, fail int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := svc.Checkout(ctx, buyer, checkoutReq())
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
				return
			}
			if apperr.Is(err, apperr.KindInsufficientStock) || apperr.Is(err, apperr.KindNotAvailable) {
				fail++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, ok)
	assert.Equal(t, 7, fail)
	p, err := s.GetProduct(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, 0, p.Stock)
	assert.Equal(t, catalog.StatusSoldOut, p.Status)
}

func TestApplySale_Idempotent(t *testing.T) {
	s := startPostgres(t)
	ctx := context.Background()
	at := time.Now().UTC()
	sale := outbox.Sale{SellerID: "s-1", OrderID: "o-1", Amount: decimal.NewFromInt(100),
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
	assert.True(t, decimal.NewFromInt(100).Equal(a.TotalSales))
	assert.EqualValues(t, 1, a.TotalOrders)
	assert.Equal(t, []string{"p-1"}, a.TopProducts)
}

func TestMissingRowsAreNotFound(t *testing.T) {
	s := startPostgres(t)
	ctx := context.Background()

	_, err := s.GetOrder(ctx, "nope")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = s.GetUser(ctx, "nope")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.True(t, apperr.Is(s.MarkNotificationRead(ctx, "nope"), apperr.KindNotFound))
}

func TestReports(t *testing.T) {
	s := startPostgres(t)
	ctx := context.Background()
	svc := &reports.Service{Store: s}
	admin := auth.Identity{UID: "admin-1", Role: auth.RoleAdmin}

	first, err := svc.File(ctx, auth.Identity{UID: "b-1", Role: auth.RoleBuyer},
		reports.FileRequest{Type: "product", TargetID: "p-1", Reason: "Photos are stolen from another shop"})
	require.NoError(t, err)
	second, err := svc.File(ctx, auth.Identity{UID: "b-2", Role: auth.RoleBuyer},
		reports.FileRequest{Type: "user", TargetID: "s-1", Reason: "Seller asked me to pay outside the app"})
	require.NoError(t, err)

	got, _, err := svc.SetStatus(ctx, admin, first.ID, reports.StatusRequest{Status: "dismissed"})
	require.NoError(t, err)
	assert.Equal(t, reports.StatusDismissed, got.Status)

	listed, err := svc.List(ctx, admin)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, second.ID, listed[0].ID)
	assert.Equal(t, reports.StatusDismissed, listed[1].Status)

	_, _, err = svc.SetStatus(ctx, admin, "nope", reports.StatusRequest{Status: "reviewed"})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
