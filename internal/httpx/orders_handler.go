package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/thriftian/marketplace/internal/apperr"
	"github.com/thriftian/marketplace/internal/orders"
	"github.com/thriftian/marketplace/internal/outbox"
)

const headerIdempotencyKey = "Idempotency-Key"

type CreateOrderResp struct {
	OrderID    string        `json:"orderId"`
	Message    string        `json:"message"`
	Idempotent bool          `json:"idempotent"`
	Order      *orders.Order `json:"order,omitempty"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req orders.CheckoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	who := actor(r)
	ctx := r.Context()

	key := strings.TrimSpace(r.Header.Get(headerIdempotencyKey))
	if key != "" && h.Idempotency != nil {
		existing, err := h.Idempotency.Begin(ctx, who.UID, key)
		if err != nil {
			writeError(w, r, h.logger(), err)
			return
		}
		if existing != "" {
			writeJSON(w, http.StatusOK, CreateOrderResp{OrderID: existing, Message: "Order already placed", Idempotent: true})
			return
		}
	}

	o, batch, err := h.Orders.Checkout(ctx, who, req)
	if err != nil {
		if key != "" && h.Idempotency != nil {
			if aerr := h.Idempotency.Abort(context.WithoutCancel(ctx), who.UID, key); aerr != nil {
				h.logger().Warn("idempotency abort failed", "user_id", who.UID, "err", aerr)
			}
		}
		writeError(w, r, h.logger(), err)
		return
	}
	if key != "" && h.Idempotency != nil {
		if err := h.Idempotency.Complete(ctx, who.UID, key, o.ID); err != nil {
			h.logger().Warn("idempotency complete failed", "user_id", who.UID, "order_id", o.ID, "err", err)
		}
	}
	h.dispatch(ctx, batch)
	h.cacheOrder(ctx, o)

	writeJSON(w, http.StatusCreated, CreateOrderResp{OrderID: o.ID, Message: "Order placed successfully", Order: &o})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(r)
	if !ok {
		badRequest(w, "invalid limit")
		return
	}
	out, err := h.Orders.List(r.Context(), actor(r), limit)
	if err != nil {
		writeError(w, r, h.logger(), err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// getOrder reads through the order cache. Access is checked against the
// cached copy too, since buyer and seller never change.
func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	who := actor(r)
	ctx := r.Context()

	if h.Cache != nil {
		if o, hit, err := h.Cache.Get(ctx, id); err == nil && hit {
			if !orders.CanView(who, o) {
				writeError(w, r, h.logger(), apperr.Forbidden("you do not have access to this order"))
				return
			}
			writeJSON(w, http.StatusOK, o)
			return
		}
	}

	o, err := h.Orders.Get(ctx, who, id)
	if err != nil {
		writeError(w, r, h.logger(), err)
		return
	}
	h.cacheOrder(ctx, o)
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req orders.StatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	o, batch, err := h.Orders.UpdateStatus(r.Context(), actor(r), id, req)
	h.afterTransition(w, r, id, o, batch, err)
}

func (h *Handler) addTracking(w http.ResponseWriter, r *http.Request) {
	var req orders.TrackingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	o, batch, err := h.Orders.AddTracking(r.Context(), actor(r), id, req)
	h.afterTransition(w, r, id, o, batch, err)
}

func (h *Handler) afterTransition(w http.ResponseWriter, r *http.Request, id string, o orders.Order, batch outbox.Batch, err error) {
	if err != nil {
		writeError(w, r, h.logger(), err)
		return
	}
	// Overwrite rather than delete: a concurrent read-through then holds an
	// older version and its Set is ignored.
	if h.Cache != nil {
		if err := h.Cache.Set(r.Context(), o); err != nil {
			h.logger().Warn("order cache set failed", "order_id", id, "err", err)
			if err := h.Cache.Invalidate(r.Context(), id); err != nil {
				h.logger().Warn("order cache invalidate failed", "order_id", id, "err", err)
			}
		}
	}
	h.dispatch(r.Context(), batch)
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) cacheOrder(ctx context.Context, o orders.Order) {
	if h.Cache == nil {
		return
	}
	if err := h.Cache.Set(ctx, o); err != nil {
		h.logger().Warn("order cache set failed", "order_id", o.ID, "err", err)
	}
}
