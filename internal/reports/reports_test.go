package reports_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thriftian/marketplace/internal/apperr"
	"github.com/thriftian/marketplace/internal/audit"
	"github.com/thriftian/marketplace/internal/auth"
	"github.com/thriftian/marketplace/internal/memstore"
	"github.com/thriftian/marketplace/internal/outbox"
	"github.com/thriftian/marketplace/internal/reports"
)

var (
	buyer  = auth.Identity{UID: "buyer-1", Role: auth.RoleBuyer}
	seller = auth.Identity{UID: "seller-1", Role: auth.RoleSeller}
	admin  = auth.Identity{UID: "admin-1", Role: auth.RoleAdmin}
)

func fileReq() reports.FileRequest {
	return reports.FileRequest{Type: "product", TargetID: "p-1", Reason: "Counterfeit brand tag on the listing"}
}

func TestFile(t *testing.T) {
	svc := &reports.Service{Store: memstore.New()}
	ctx := context.Background()

	r, err := svc.File(ctx, buyer, fileReq())
	require.NoError(t, err)
	assert.Equal(t, reports.StatusPending, r.Status)
	assert.Equal(t, reports.TypeProduct, r.Type)
	assert.Equal(t, buyer.UID, r.ReportedBy)

	_, err = svc.File(ctx, auth.Identity{}, fileReq())
	assert.True(t, apperr.Is(err, apperr.KindUnauthenticated))

	for name, mutate := range map[string]func(*reports.FileRequest){
		"unknown type":   func(r *reports.FileRequest) { r.Type = "shop" },
		"missing target": func(r *reports.FileRequest) { r.TargetID = "" },
		"short reason":   func(r *reports.FileRequest) { r.Reason = "bad" },
	} {
		req := fileReq()
		mutate(&req)
		_, err := svc.File(ctx, seller, req)
		assert.True(t, apperr.Is(err, apperr.KindValidation), name)
	}
}

func TestListIsAdminOnlyAndNewestFirst(t *testing.T) {
	clock := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	svc := &reports.Service{Store: memstore.New(), Now: func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}}
	ctx := context.Background()
	first, err := svc.File(ctx, buyer, fileReq())
	require.NoError(t, err)
	second, err := svc.File(ctx, seller, reports.FileRequest{Type: "user", TargetID: "buyer-9", Reason: "Abusive messages after delivery"})
	require.NoError(t, err)

	_, err = svc.List(ctx, seller)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	out, err := svc.List(ctx, admin)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, []string{second.ID, first.ID}, []string{out[0].ID, out[1].ID})
}

func TestSetStatus(t *testing.T) {
	svc := &reports.Service{Store: memstore.New()}
	ctx := context.Background()
	r, err := svc.File(ctx, buyer, fileReq())
	require.NoError(t, err)

	_, _, err = svc.SetStatus(ctx, seller, r.ID, reports.StatusRequest{Status: "reviewed"})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
	_, _, err = svc.SetStatus(ctx, admin, r.ID, reports.StatusRequest{Status: "pending"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	_, _, err = svc.SetStatus(ctx, admin, "missing", reports.StatusRequest{Status: "reviewed"})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	got, b, err := svc.SetStatus(ctx, admin, r.ID, reports.StatusRequest{Status: "reviewed"})
	require.NoError(t, err)
	assert.Equal(t, reports.StatusReviewed, got.Status)
	require.Len(t, b, 1)
	assert.Equal(t, outbox.KindAudit, b[0].Kind)
	assert.Equal(t, string(audit.ActionReviewReport), b[0].Audit.Action)
	assert.Equal(t, r.ID, b[0].Audit.TargetID)

	got, _, err = svc.SetStatus(ctx, admin, r.ID, reports.StatusRequest{Status: "dismissed"})
	require.NoError(t, err)
	assert.Equal(t, reports.StatusDismissed, got.Status, "a decision can be revised")
}
