package catalog_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thriftian/marketplace/internal/apperr"
	"github.com/thriftian/marketplace/internal/auth"
	"github.com/thriftian/marketplace/internal/catalog"
	"github.com/thriftian/marketplace/internal/memstore"
	"github.com/thriftian/marketplace/internal/outbox"
	"github.com/thriftian/marketplace/internal/users"
)

var (
	seller = auth.Identity{UID: "seller-1", Email: "shop@example.com", Role: auth.RoleSeller}
	other  = auth.Identity{UID: "seller-2", Email: "other@example.com", Role: auth.RoleSeller}
	buyer  = auth.Identity{UID: "buyer-1", Role: auth.RoleBuyer}
	admin  = auth.Identity{UID: "admin-1", Role: auth.RoleAdmin}
)

func newService(t *testing.T) *catalog.Service {
	t.Helper()
	st := memstore.New()
	require.NoError(t, st.PutUser(context.Background(), users.User{ID: seller.UID, Name: "Ukay Finds", Role: auth.RoleSeller}))
	return &catalog.Service{Store: st, Users: st}
}

func createReq() catalog.CreateRequest {
	return catalog.CreateRequest{
		Title:       "Levi's 501 vintage",
		Description: "Classic straight leg, lightly faded, no rips.",
		Category:    "Bottoms",
		Condition:   catalog.ConditionUsed,
		Price:       decimal.NewFromInt(850),
		Stock:       1,
		Images:      []catalog.Image{{URL: "https://img.example.com/levis.jpg"}},
	}
}

func kinds(b outbox.Batch) []outbox.Kind {
	out := make([]outbox.Kind, len(b))
	for i, in := range b {
		out[i] = in.Kind
	}
	return out
}

func TestCreate(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, seller, createReq())
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusPending, p.Status)
	assert.Equal(t, "Ukay Finds", p.SellerName)

	_, err = svc.Create(ctx, buyer, createReq())
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	bad := createReq()
	bad.Price = decimal.Zero
	_, err = svc.Create(ctx, seller, bad)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	bad = createReq()
	bad.Price = decimal.NewFromInt(1_000_001)
	_, err = svc.Create(ctx, seller, bad)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	bad = createReq()
	bad.Price = decimal.RequireFromString("450.505")
	_, err = svc.Create(ctx, seller, bad)
	assert.True(t, apperr.Is(err, apperr.KindValidation), "more than 2 decimal places")

	ok := createReq()
	ok.Price = decimal.RequireFromString("450.500")
	_, err = svc.Create(ctx, seller, ok)
	assert.NoError(t, err, "trailing zeros are not extra precision")

	bad = createReq()
	bad.Title = "abc"
	_, err = svc.Create(ctx, seller, bad)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestModeration(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	p, err := svc.Create(ctx, seller, createReq())
	require.NoError(t, err)

	_, _, err = svc.Approve(ctx, seller, p.ID)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	approved, b, err := svc.Approve(ctx, admin, p.ID)
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusApproved, approved.Status)
	assert.Equal(t, []outbox.Kind{outbox.KindNotify, outbox.KindAudit}, kinds(b))
	assert.Equal(t, seller.UID, b[0].Notification.UserID)

	_, _, err = svc.Approve(ctx, admin, p.ID)
	assert.True(t, apperr.Is(err, apperr.KindInvalidTransition))

	rejected, _, err := svc.Reject(ctx, admin, p.ID, "Counterfeit")
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusRejected, rejected.Status)

	_, _, err = svc.Approve(ctx, admin, "missing")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestUpdate(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	p, err := svc.Create(ctx, seller, createReq())
	require.NoError(t, err)

	title := "Levi's 501 vintage 1990s"
	_, _, err = svc.Update(ctx, other, p.ID, catalog.UpdateRequest{Title: &title})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	updated, b, err := svc.Update(ctx, seller, p.ID, catalog.UpdateRequest{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.Equal(t, []outbox.Kind{outbox.KindAudit}, kinds(b))
}

func TestUpdate_RestockRelistsSoldOut(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	p, err := svc.Create(ctx, seller, createReq())
	require.NoError(t, err)
	_, err = svc.Store.UpdateProduct(ctx, p.ID, func(p *catalog.Product) error {
		catalog.AdjustStock(p, -1, time.Now())
		return nil
	})
	require.NoError(t, err)
	got, _ := svc.Get(ctx, p.ID)
	require.Equal(t, catalog.StatusSoldOut, got.Status)

	stock := 2
	updated, _, err := svc.Update(ctx, seller, p.ID, catalog.UpdateRequest{Stock: &stock})
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusApproved, updated.Status)
	assert.Equal(t, 2, updated.Stock)
}

func TestDelete(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	p, err := svc.Create(ctx, seller, createReq())
	require.NoError(t, err)

	_, err = svc.Delete(ctx, other, p.ID)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
	_, err = svc.Delete(ctx, admin, p.ID)
	assert.True(t, apperr.Is(err, apperr.KindForbidden), "admins reject listings instead")

	b, err := svc.Delete(ctx, seller, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []outbox.Kind{outbox.KindAudit}, kinds(b))

	_, err = svc.Get(ctx, p.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestList(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	pending, err := svc.Create(ctx, seller, createReq())
	require.NoError(t, err)
	live, err := svc.Create(ctx, seller, createReq())
	require.NoError(t, err)
	_, _, err = svc.Approve(ctx, admin, live.ID)
	require.NoError(t, err)

	public, err := svc.List(ctx, buyer, "", 0)
	require.NoError(t, err)
	require.Len(t, public, 1)
	assert.Equal(t, live.ID, public[0].ID)

	own, err := svc.List(ctx, seller, seller.UID, 0)
	require.NoError(t, err)
	assert.Len(t, own, 2)

	queue, err := svc.ListPending(ctx, admin, 0)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, pending.ID, queue[0].ID)

	_, err = svc.ListPending(ctx, seller, 0)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestAdjustStock(t *testing.T) {
	now := time.Now()
	p := catalog.Product{Stock: 2, Status: catalog.StatusApproved}
	catalog.AdjustStock(&p, -2, now)
	assert.Equal(t, catalog.StatusSoldOut, p.Status)
	catalog.AdjustStock(&p, 1, now)
	assert.Equal(t, catalog.StatusApproved, p.Status)
	assert.Equal(t, 1, p.Stock)

	rejected := catalog.Product{Stock: 0, Status: catalog.StatusRejected}
	catalog.AdjustStock(&rejected, 1, now)
	assert.Equal(t, catalog.StatusRejected, rejected.Status)
}
