package orders

import (
	"context"
	"fmt"
	"strings"

	"github.com/thriftian/marketplace/internal/apperr"
	"github.com/thriftian/marketplace/internal/audit"
	"github.com/thriftian/marketplace/internal/auth"
	"github.com/thriftian/marketplace/internal/catalog"
	"github.com/thriftian/marketplace/internal/email"
	"github.com/thriftian/marketplace/internal/notify"
	"github.com/thriftian/marketplace/internal/outbox"
	"github.com/thriftian/marketplace/internal/validate"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100

	minTrackingLen = 5
)

type StatusRequest struct {
	Status         string `json:"status" validate:"required"`
	TrackingNumber string `json:"trackingNumber"`
}

type TrackingRequest struct {
	TrackingNumber string `json:"trackingNumber" validate:"min=5"`
}

func (s *Service) load(ctx context.Context, id string) (Order, error) {
	o, err := s.Store.GetOrder(ctx, id)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return Order{}, err
		}
		return Order{}, apperr.Internal(err, "load order %s", id)
	}
	return o, nil
}

func (s *Service) Get(ctx context.Context, actor auth.Identity, id string) (Order, error) {
	o, err := s.load(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if !CanView(actor, o) {
		return Order{}, apperr.Forbidden("you do not have access to this order")
	}
	return o, nil
}

// List scopes the ledger by role: admins see every order, sellers their
// sales, buyers their purchases. Newest first.
func (s *Service) List(ctx context.Context, actor auth.Identity, limit int) ([]Order, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	f := ListFilter{Limit: limit}
	switch actor.Role {
	case auth.RoleAdmin:
	case auth.RoleSeller:
		f.SellerID = actor.UID
	default:
		f.BuyerID = actor.UID
	}
	out, err := s.Store.ListOrders(ctx, f)
	if err != nil {
		return nil, apperr.Internal(err, "list orders")
	}
	if out == nil {
		out = []Order{}
	}
	return out, nil
}

// UpdateStatus moves an order along the transition table. Shipping through
// this path needs a tracking number just like AddTracking.
func (s *Service) UpdateStatus(ctx context.Context, actor auth.Identity, id string, req StatusRequest) (Order, outbox.Batch, error) {
	if err := validate.Struct(req); err != nil {
		return Order{}, nil, err
	}
	to, ok := ParseStatus(req.Status)
	if !ok {
		return Order{}, nil, apperr.Validation("invalid input: unknown status %q", req.Status)
	}
	return s.transition(ctx, actor, id, to, strings.TrimSpace(req.TrackingNumber))
}

// AddTracking attaches the tracking number and ships the order atomically.
func (s *Service) AddTracking(ctx context.Context, actor auth.Identity, id string, req TrackingRequest) (Order, outbox.Batch, error) {
	req.TrackingNumber = strings.TrimSpace(req.TrackingNumber)
	if err := validate.Struct(req); err != nil {
		return Order{}, nil, err
	}
	return s.transition(ctx, actor, id, StatusShipped, req.TrackingNumber)
}

func (s *Service) transition(ctx context.Context, actor auth.Identity, id string, to Status, tracking string) (Order, outbox.Batch, error) {
	if to == StatusShipped && len(tracking) < minTrackingLen {
		return Order{}, nil, apperr.Validation("invalid input: a tracking number of at least %d characters is required to ship an order", minTrackingLen)
	}

	current, err := s.load(ctx, id)
	if err != nil {
		return Order{}, nil, err
	}
	if !CanView(actor, current) {
		return Order{}, nil, apperr.Forbidden("you do not have access to this order")
	}
	if !CanUpdateStatus(actor, current) {
		return Order{}, nil, apperr.Forbidden("only the seller or an admin can update this order")
	}

	var from Status
	now := s.now()
	o, err := s.Store.UpdateOrder(ctx, id, func(o *Order, products map[string]catalog.Product) ([]catalog.Product, error) {
		if !CanTransition(o.Status, to) {
			return nil, apperr.InvalidTransition("cannot move order from %s to %s", o.Status, to)
		}
		from = o.Status

		var changed []catalog.Product
		switch to {
		case StatusShipped:
			t := tracking
			o.TrackingNumber = &t
		case StatusCancelled:
			for _, it := range o.Items {
				p, ok := products[it.ProductID]
				if !ok {
					continue // listing deleted since checkout
				}
				catalog.AdjustStock(&p, it.Quantity, now)
				changed = append(changed, p)
			}
		}
		o.Status = to
		o.UpdatedAt = now
		return changed, nil
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			return Order{}, nil, apperr.Internal(err, "update order %s", id)
		}
		return Order{}, nil, err
	}
	return o, s.transitionIntents(actor, o, from), nil
}

func (s *Service) transitionIntents(actor auth.Identity, o Order, from Status) outbox.Batch {
	var b outbox.Batch
	tracking := ""
	if o.TrackingNumber != nil {
		tracking = *o.TrackingNumber
	}
	if o.Status == StatusShipped {
		b = append(b,
			notify.OrderShipped(o.ID, o.BuyerID, tracking),
			outbox.SendEmail(o.ID, outbox.Email{
				ToUserID: o.BuyerID,
				ToName:   o.BuyerName,
				Template: email.TemplateTrackingUpdate,
				Data: map[string]string{
					"order_id":        o.ID,
					"tracking_number": tracking,
					"buyer_name":      o.BuyerName,
				},
			}),
		)
	} else {
		b = append(b, notify.OrderStatusChanged(o.ID, o.BuyerID, string(o.Status)))
	}
	b = append(b, audit.Intent(actor.UID, audit.ActionUpdateOrderStatus, o.ID,
		fmt.Sprintf("Order %s moved from %s to %s", o.ID, from, o.Status)))

	if body, err := newEnvelope(EventOrderStatusChanged, s.Source, o.ID, "", OrderStatusChangedPayload{
		OrderID:        o.ID,
		From:           from,
		To:             o.Status,
		TrackingNumber: tracking,
		ActorID:        actor.UID,
	}); err == nil {
		b = append(b, outbox.Publish(o.ID, EventOrderStatusChanged, body))
	}
	return b
}
