package httpx

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/thriftian/marketplace/internal/analytics"
	"github.com/thriftian/marketplace/internal/audit"
	"github.com/thriftian/marketplace/internal/catalog"
	"github.com/thriftian/marketplace/internal/disputes"
	"github.com/thriftian/marketplace/internal/notify"
	"github.com/thriftian/marketplace/internal/orders"
	"github.com/thriftian/marketplace/internal/outbox"
	"github.com/thriftian/marketplace/internal/reports"
	"github.com/thriftian/marketplace/internal/users"
)

// Idempotency guards POST /orders against client retries.
type Idempotency interface {
	Begin(ctx context.Context, userID, key string) (string, error)
	Complete(ctx context.Context, userID, key, orderID string) error
	Abort(ctx context.Context, userID, key string) error
}

// OrderCache must ignore a Set older (by UpdatedAt) than the held entry.
type OrderCache interface {
	Get(ctx context.Context, id string) (orders.Order, bool, error)
	Set(ctx context.Context, o orders.Order) error
	Invalidate(ctx context.Context, id string) error
}

type Realtime interface {
	ServeWS(w http.ResponseWriter, r *http.Request, userID string)
}

// Handler holds the services behind the HTTP surface. Idempotency, Cache
// and Realtime are optional.
type Handler struct {
	Catalog       *catalog.Service
	Orders        *orders.Service
	Notifications *notify.Service
	Audit         *audit.Service
	Analytics     *analytics.Service
	Disputes      *disputes.Service
	Reports       *reports.Service
	Users         *users.Service

	Verifier   Verifier
	Identities Resolver
	Outbox     outbox.Sink

	Idempotency Idempotency
	Cache       OrderCache
	Realtime    Realtime

	Log *slog.Logger
}

func (h *Handler) logger() *slog.Logger {
	if h.Log != nil {
		return h.Log
	}
	return slog.Default()
}

// dispatch hands a committed mutation's side effects to the outbox.
func (h *Handler) dispatch(ctx context.Context, b outbox.Batch) {
	if len(b) == 0 || h.Outbox == nil {
		return
	}
	h.Outbox.Dispatch(context.WithoutCancel(ctx), b)
}
