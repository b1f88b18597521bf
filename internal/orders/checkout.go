package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/thriftian/marketplace/internal/apperr"
	"github.com/thriftian/marketplace/internal/audit"
	"github.com/thriftian/marketplace/internal/auth"
	"github.com/thriftian/marketplace/internal/catalog"
	"github.com/thriftian/marketplace/internal/email"
	"github.com/thriftian/marketplace/internal/notify"
	"github.com/thriftian/marketplace/internal/outbox"
	"github.com/thriftian/marketplace/internal/users"
	"github.com/thriftian/marketplace/internal/validate"
)

// MaxLineQuantity bounds one product's quantity in a cart, after repeated
// lines are merged.
const MaxLineQuantity = 10000

type LineInput struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0,max=10000"`
}

type CheckoutRequest struct {
	Items           []LineInput `json:"items" validate:"required,min=1,dive"`
	ShippingAddress Address     `json:"shippingAddress"`
}

type UserDirectory interface {
	GetUser(ctx context.Context, id string) (users.User, error)
}

type Service struct {
	Store  Store
	Users  UserDirectory
	Source string // producer name stamped on emitted events
	Now    func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// mergeLines folds repeated product ids into one line, keeping first-seen order.
func mergeLines(in []LineInput) ([]LineInput, error) {
	idx := make(map[string]int, len(in))
	out := make([]LineInput, 0, len(in))
	for _, l := range in {
		if i, ok := idx[l.ProductID]; ok {
			if l.Quantity > MaxLineQuantity-out[i].Quantity {
				return nil, apperr.Validation("invalid input: quantity for product %s exceeds %d", l.ProductID, MaxLineQuantity)
			}
			out[i].Quantity += l.Quantity
			continue
		}
		idx[l.ProductID] = len(out)
		out = append(out, l)
	}
	return out, nil
}

// plan reserves stock for every line or fails as a whole. It runs inside the
// store's atomic unit, against the locked state of the products.
func plan(draft Order, lines []LineInput, now time.Time) PlanFunc {
	return func(products map[string]catalog.Product) (Placement, error) {
		o := draft
		o.Items = make([]Item, 0, len(lines))
		o.TotalAmount = decimal.Zero
		changed := make([]catalog.Product, 0, len(lines))

		for _, l := range lines {
			if l.Quantity <= 0 || l.Quantity > MaxLineQuantity {
				return Placement{}, apperr.Validation("invalid input: quantity must be between 1 and %d", MaxLineQuantity)
			}
			p, ok := products[l.ProductID]
			if !ok {
				return Placement{}, apperr.NotFound("product %s not found", l.ProductID)
			}
			if p.Status != catalog.StatusApproved {
				return Placement{}, apperr.NotAvailable("product %q is not available", p.Title)
			}
			if p.Stock < l.Quantity {
				return Placement{}, apperr.InsufficientStock("insufficient stock for %q: requested %d, available %d",
					p.Title, l.Quantity, p.Stock)
			}
			if o.SellerID == "" {
				o.SellerID, o.SellerName = p.SellerID, p.SellerName
			} else if p.SellerID != o.SellerID {
				return Placement{}, apperr.Validation("all items in an order must come from the same seller")
			}

			o.Items = append(o.Items, Item{
				ProductID: p.ID,
				Title:     p.Title,
				Price:     p.Price,
				Quantity:  l.Quantity,
				ImageURL:  p.FirstImageURL(),
			})
			o.TotalAmount = o.TotalAmount.Add(p.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))

			catalog.AdjustStock(&p, -l.Quantity, now)
			changed = append(changed, p)
		}
		return Placement{Order: o, Products: changed}, nil
	}
}

// Checkout reserves stock and records the order in one atomic unit, then
// hands back the side effects to run once it has committed.
func (s *Service) Checkout(ctx context.Context, actor auth.Identity, req CheckoutRequest) (Order, outbox.Batch, error) {
	if !CanPlace(actor) {
		return Order{}, nil, apperr.Forbidden("only buyers can place orders")
	}
	if err := validate.Struct(req); err != nil {
		return Order{}, nil, err
	}
	lines, err := mergeLines(req.Items)
	if err != nil {
		return Order{}, nil, err
	}

	buyer, err := s.Users.GetUser(ctx, actor.UID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return Order{}, nil, apperr.NotFound("buyer not found")
		}
		return Order{}, nil, apperr.Internal(err, "load buyer %s", actor.UID)
	}
	if !buyer.Verified {
		return Order{}, nil, apperr.Forbidden("please verify your account before placing orders")
	}

	now := s.now()
	draft := Order{
		ID:              uuid.NewString(),
		BuyerID:         buyer.ID,
		BuyerName:       buyer.Name,
		PaymentMethod:   PaymentCashOnDelivery,
		Status:          StatusPending,
		ShippingAddress: req.ShippingAddress,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}

	o, err := s.Store.PlaceOrder(ctx, ids, plan(draft, lines, now))
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			return Order{}, nil, apperr.Internal(err, "place order")
		}
		return Order{}, nil, err
	}
	return o, s.placedIntents(actor, buyer, o), nil
}

func (s *Service) placedIntents(actor auth.Identity, buyer users.User, o Order) outbox.Batch {
	lines := make([]outbox.SaleLine, 0, len(o.Items))
	items := make([]string, 0, len(o.Items))
	evItems := make([]ItemQty, 0, len(o.Items))
	for _, it := range o.Items {
		lines = append(lines, outbox.SaleLine{ProductID: it.ProductID, Quantity: it.Quantity})
		items = append(items, fmt.Sprintf("%s x%d - ₱%s", it.Title, it.Quantity, it.Price.StringFixed(2)))
		evItems = append(evItems, ItemQty{ProductID: it.ProductID, Qty: it.Quantity, Price: it.Price})
	}

	b := outbox.Batch{
		outbox.RecordSale(outbox.Sale{SellerID: o.SellerID, OrderID: o.ID, Amount: o.TotalAmount, Lines: lines}),
	}
	b = append(b, notify.OrderPlaced(o.ID, o.BuyerID, o.BuyerName, o.SellerID, o.TotalAmount)...)
	b = append(b,
		audit.Intent(actor.UID, audit.ActionPlaceOrder, o.ID,
			fmt.Sprintf("Placed order %s for ₱%s", o.ID, o.TotalAmount.StringFixed(2))),
		outbox.SendEmail(o.ID, outbox.Email{
			To:       buyer.Email,
			ToName:   buyer.Name,
			Template: email.TemplateOrderConfirmation,
			Data: map[string]string{
				"order_id":    o.ID,
				"order_total": o.TotalAmount.StringFixed(2),
				"buyer_name":  buyer.Name,
				"items":       strings.Join(items, "\n"),
			},
		}),
	)
	if body, err := newEnvelope(EventOrderPlaced, s.Source, o.ID, "", OrderPlacedPayload{
		OrderID:     o.ID,
		BuyerID:     o.BuyerID,
		SellerID:    o.SellerID,
		Items:       evItems,
		TotalAmount: o.TotalAmount,
	}); err == nil {
		b = append(b, outbox.Publish(o.ID, EventOrderPlaced, body))
	}
	return b
}
