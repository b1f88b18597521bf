package disputes

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/thriftian/marketplace/internal/apperr"
	"github.com/thriftian/marketplace/internal/audit"
	"github.com/thriftian/marketplace/internal/auth"
	"github.com/thriftian/marketplace/internal/email"
	"github.com/thriftian/marketplace/internal/notify"
	"github.com/thriftian/marketplace/internal/orders"
	"github.com/thriftian/marketplace/internal/outbox"
	"github.com/thriftian/marketplace/internal/validate"
)

type Status string

const (
	StatusOpen     Status = "open"
	StatusResolved Status = "resolved"
	StatusRejected Status = "rejected"
)

const ListLimit = 100

type Dispute struct {
	ID              string    `json:"id"`
	OrderID         string    `json:"orderId"`
	BuyerID         string    `json:"buyerId"`
	SellerID        string    `json:"sellerId"`
	Reason          string    `json:"reason"`
	Status          Status    `json:"status"`
	AdminID         *string   `json:"adminId"`
	ResolutionNotes *string   `json:"resolutionNotes"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type ListFilter struct {
	BuyerID  string
	SellerID string
	Limit    int
}

type Store interface {
	CreateDispute(ctx context.Context, d Dispute) error
	GetDispute(ctx context.Context, id string) (Dispute, error)
	UpdateDispute(ctx context.Context, id string, fn func(d *Dispute) error) (Dispute, error)
	ListDisputes(ctx context.Context, f ListFilter) ([]Dispute, error)
}

type OrderReader interface {
	GetOrder(ctx context.Context, id string) (orders.Order, error)
}

type Service struct {
	Store  Store
	Orders OrderReader
	Now    func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

type OpenRequest struct {
	OrderID string `json:"orderId" validate:"required"`
	Reason  string `json:"reason" validate:"min=20,max=500"`
}

type ResolveRequest struct {
	Status          string `json:"status" validate:"oneof=resolved rejected"`
	ResolutionNotes string `json:"resolutionNotes" validate:"min=10"`
}

// CanOpen: only the buyer of the order may dispute it.
func CanOpen(actor auth.Identity, o orders.Order) bool {
	return actor.IsBuyer() && actor.UID == o.BuyerID
}

func CanResolve(actor auth.Identity) bool { return actor.IsAdmin() }

func CanView(actor auth.Identity, d Dispute) bool {
	return actor.IsAdmin() || actor.UID == d.BuyerID || actor.UID == d.SellerID
}

func (s *Service) Open(ctx context.Context, actor auth.Identity, req OpenRequest) (Dispute, outbox.Batch, error) {
	if err := validate.Struct(req); err != nil {
		return Dispute{}, nil, err
	}
	o, err := s.Orders.GetOrder(ctx, req.OrderID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return Dispute{}, nil, apperr.NotFound("order not found")
		}
		return Dispute{}, nil, apperr.Internal(err, "load order %s", req.OrderID)
	}
	if !CanOpen(actor, o) {
		return Dispute{}, nil, apperr.Forbidden("you can only dispute your own orders")
	}

	now := s.now()
	d := Dispute{
		ID:        uuid.NewString(),
		OrderID:   o.ID,
		BuyerID:   o.BuyerID,
		SellerID:  o.SellerID,
		Reason:    req.Reason,
		Status:    StatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Store.CreateDispute(ctx, d); err != nil {
		return Dispute{}, nil, apperr.Internal(err, "create dispute")
	}
	b := outbox.Batch{
		notify.DisputeOpened(d.ID, d.OrderID, d.SellerID),
		outbox.SendEmail(d.ID, outbox.Email{
			ToUserID: d.SellerID,
			ToName:   o.SellerName,
			Template: email.TemplateDisputeAlert,
			Data: map[string]string{
				"order_id":       d.OrderID,
				"reason":         d.Reason,
				"recipient_name": o.SellerName,
			},
		}),
	}
	return d, b, nil
}

// Resolve closes an open dispute. A closed dispute cannot be reopened.
func (s *Service) Resolve(ctx context.Context, actor auth.Identity, id string, req ResolveRequest) (Dispute, outbox.Batch, error) {
	if !CanResolve(actor) {
		return Dispute{}, nil, apperr.Forbidden("only admins can resolve disputes")
	}
	if err := validate.Struct(req); err != nil {
		return Dispute{}, nil, err
	}
	outcome := Status(req.Status)

	d, err := s.Store.UpdateDispute(ctx, id, func(d *Dispute) error {
		if d.Status != StatusOpen {
			return apperr.InvalidTransition("dispute is already %s", d.Status)
		}
		admin, notes := actor.UID, req.ResolutionNotes
		d.Status = outcome
		d.AdminID = &admin
		d.ResolutionNotes = &notes
		d.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			return Dispute{}, nil, apperr.Internal(err, "resolve dispute %s", id)
		}
		return Dispute{}, nil, err
	}

	b := notify.DisputeResolved(d.ID, d.OrderID, d.BuyerID, d.SellerID, string(d.Status))
	b = append(b, audit.Intent(actor.UID, audit.ActionResolveDispute, d.ID,
		fmt.Sprintf("Dispute for order %s %s: %s", d.OrderID, d.Status, req.ResolutionNotes)))
	return d, b, nil
}

func (s *Service) List(ctx context.Context, actor auth.Identity) ([]Dispute, error) {
	f := ListFilter{Limit: ListLimit}
	switch actor.Role {
	case auth.RoleAdmin:
	case auth.RoleSeller:
		f.SellerID = actor.UID
	default:
		f.BuyerID = actor.UID
	}
	out, err := s.Store.ListDisputes(ctx, f)
	if err != nil {
		return nil, apperr.Internal(err, "list disputes")
	}
	if out == nil {
		out = []Dispute{}
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, actor auth.Identity, id string) (Dispute, error) {
	d, err := s.Store.GetDispute(ctx, id)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return Dispute{}, err
		}
		return Dispute{}, apperr.Internal(err, "load dispute %s", id)
	}
	if !CanView(actor, d) {
		return Dispute{}, apperr.Forbidden("you do not have access to this dispute")
	}
	return d, nil
}
