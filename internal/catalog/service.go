package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/thriftian/marketplace/internal/apperr"
	"github.com/thriftian/marketplace/internal/audit"
	"github.com/thriftian/marketplace/internal/auth"
	"github.com/thriftian/marketplace/internal/notify"
	"github.com/thriftian/marketplace/internal/outbox"
	"github.com/thriftian/marketplace/internal/users"
	"github.com/thriftian/marketplace/internal/validate"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100
)

var maxPrice = decimal.NewFromInt(1_000_000)

type UserDirectory interface {
	GetUser(ctx context.Context, id string) (users.User, error)
}

type Service struct {
	Store Store
	Users UserDirectory
	Now   func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

type CreateRequest struct {
	Title       string          `json:"title" validate:"min=5,max=100"`
	Description string          `json:"description" validate:"min=20,max=1000"`
	Brand       *string         `json:"brand"`
	Category    string          `json:"category" validate:"min=2"`
	Size        *string         `json:"size"`
	Condition   Condition       `json:"condition" validate:"oneof='New' 'Like New' 'Used' 'Fair'"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock" validate:"gte=1"`
	Images      []Image         `json:"images" validate:"dive"`
}

// UpdateRequest carries only the fields being changed. Status is not editable.
type UpdateRequest struct {
	Title       *string          `json:"title" validate:"omitempty,min=5,max=100"`
	Description *string          `json:"description" validate:"omitempty,min=20,max=1000"`
	Brand       *string          `json:"brand"`
	Category    *string          `json:"category" validate:"omitempty,min=2"`
	Size        *string          `json:"size"`
	Condition   *Condition       `json:"condition" validate:"omitempty,oneof='New' 'Like New' 'Used' 'Fair'"`
	Price       *decimal.Decimal `json:"price"`
	Stock       *int             `json:"stock" validate:"omitempty,gte=0"`
	Images      []Image          `json:"images" validate:"omitempty,dive"`
}

func checkPrice(p decimal.Decimal) error {
	if !p.IsPositive() {
		return apperr.Validation("invalid input: price must be positive")
	}
	if p.GreaterThan(maxPrice) {
		return apperr.Validation("invalid input: price must be at most %s", maxPrice)
	}
	if !p.Equal(p.Truncate(2)) {
		return apperr.Validation("invalid input: price must have at most 2 decimal places")
	}
	return nil
}

// CanEdit allows the listing's own seller only. The same rule covers
// deletion; admins take a listing down by rejecting it.
func CanEdit(actor auth.Identity, p Product) bool {
	return actor.IsSeller() && actor.UID == p.SellerID
}

func CanModerate(actor auth.Identity) bool { return actor.IsAdmin() }

func (s *Service) load(ctx context.Context, id string) (Product, error) {
	p, err := s.Store.GetProduct(ctx, id)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return Product{}, err
		}
		return Product{}, apperr.Internal(err, "load product %s", id)
	}
	return p, nil
}

func storeErr(err error, format string, args ...any) error {
	switch apperr.KindOf(err) {
	case apperr.KindInternal:
		return apperr.Internal(err, format, args...)
	default:
		return err
	}
}

// Create lists a new product awaiting moderation.
func (s *Service) Create(ctx context.Context, actor auth.Identity, req CreateRequest) (Product, error) {
	if !actor.IsSeller() {
		return Product{}, apperr.Forbidden("only sellers can create listings")
	}
	if err := validate.Struct(req); err != nil {
		return Product{}, err
	}
	if err := checkPrice(req.Price); err != nil {
		return Product{}, err
	}

	sellerName := actor.Email
	if s.Users != nil {
		if u, err := s.Users.GetUser(ctx, actor.UID); err == nil {
			sellerName = u.Name
		}
	}
	now := s.now()
	images := req.Images
	if images == nil {
		images = []Image{}
	}
	p := Product{
		ID:          uuid.NewString(),
		SellerID:    actor.UID,
		SellerName:  sellerName,
		Title:       req.Title,
		Description: req.Description,
		Brand:       req.Brand,
		Category:    req.Category,
		Size:        req.Size,
		Condition:   req.Condition,
		Price:       req.Price,
		Stock:       req.Stock,
		Images:      images,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.Store.CreateProduct(ctx, p); err != nil {
		return Product{}, apperr.Internal(err, "create product")
	}
	return p, nil
}

func (s *Service) Update(ctx context.Context, actor auth.Identity, id string, req UpdateRequest) (Product, outbox.Batch, error) {
	if err := validate.Struct(req); err != nil {
		return Product{}, nil, err
	}
	if req.Price != nil {
		if err := checkPrice(*req.Price); err != nil {
			return Product{}, nil, err
		}
	}
	current, err := s.load(ctx, id)
	if err != nil {
		return Product{}, nil, err
	}
	if !CanEdit(actor, current) {
		return Product{}, nil, apperr.Forbidden("you can only edit your own listings")
	}

	p, err := s.Store.UpdateProduct(ctx, id, func(p *Product) error {
		if !CanEdit(actor, *p) {
			return apperr.Forbidden("you can only edit your own listings")
		}
		applyUpdate(p, req)
		p.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return Product{}, nil, storeErr(err, "update product %s", id)
	}
	b := outbox.Batch{
		audit.Intent(actor.UID, audit.ActionUpdateProduct, p.ID, fmt.Sprintf("Updated product: %s", p.Title)),
	}
	return p, b, nil
}

func applyUpdate(p *Product, req UpdateRequest) {
	if req.Title != nil {
		p.Title = *req.Title
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Brand != nil {
		p.Brand = req.Brand
	}
	if req.Category != nil {
		p.Category = *req.Category
	}
	if req.Size != nil {
		p.Size = req.Size
	}
	if req.Condition != nil {
		p.Condition = *req.Condition
	}
	if req.Price != nil {
		p.Price = *req.Price
	}
	if req.Images != nil {
		p.Images = req.Images
	}
	if req.Stock != nil {
		p.Stock = *req.Stock
		// a restocked sold-out listing goes back on sale; a manual zero never sells it out
		if p.Status == StatusSoldOut && p.Stock > 0 {
			p.Status = StatusApproved
		}
	}
}

func (s *Service) Delete(ctx context.Context, actor auth.Identity, id string) (outbox.Batch, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanEdit(actor, p) {
		return nil, apperr.Forbidden("you can only delete your own listings")
	}
	if err := s.Store.DeleteProduct(ctx, id); err != nil {
		return nil, storeErr(err, "delete product %s", id)
	}
	return outbox.Batch{
		audit.Intent(actor.UID, audit.ActionDeleteProduct, id, fmt.Sprintf("Deleted product: %s", p.Title)),
	}, nil
}

var moderation = map[Status]map[Status]bool{
	StatusPending:  {StatusApproved: true, StatusRejected: true},
	StatusApproved: {StatusRejected: true},
	StatusRejected: {StatusApproved: true},
	StatusSoldOut:  {},
}

func (s *Service) moderate(ctx context.Context, actor auth.Identity, id string, to Status) (Product, error) {
	if !CanModerate(actor) {
		return Product{}, apperr.Forbidden("only admins can moderate listings")
	}
	p, err := s.Store.UpdateProduct(ctx, id, func(p *Product) error {
		if !moderation[p.Status][to] {
			return apperr.InvalidTransition("cannot move listing from %s to %s", p.Status, to)
		}
		p.Status = to
		p.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return Product{}, storeErr(err, "moderate product %s", id)
	}
	return p, nil
}

func (s *Service) Approve(ctx context.Context, actor auth.Identity, id string) (Product, outbox.Batch, error) {
	p, err := s.moderate(ctx, actor, id, StatusApproved)
	if err != nil {
		return Product{}, nil, err
	}
	return p, outbox.Batch{
		notify.ProductApproved(p.ID, p.SellerID, p.Title),
		audit.Intent(actor.UID, audit.ActionApproveListing, p.ID, fmt.Sprintf("Approved product: %s", p.Title)),
	}, nil
}

func (s *Service) Reject(ctx context.Context, actor auth.Identity, id, reason string) (Product, outbox.Batch, error) {
	p, err := s.moderate(ctx, actor, id, StatusRejected)
	if err != nil {
		return Product{}, nil, err
	}
	return p, outbox.Batch{
		notify.ProductRejected(p.ID, p.SellerID, p.Title, reason),
		audit.Intent(actor.UID, audit.ActionRejectListing, p.ID, fmt.Sprintf("Rejected product: %s", p.Title)),
	}, nil
}

func (s *Service) Get(ctx context.Context, id string) (Product, error) {
	return s.load(ctx, id)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// List returns approved listings, or a seller's listings. Sellers and admins
// see every status of a seller's catalog; everyone else only approved ones.
func (s *Service) List(ctx context.Context, actor auth.Identity, sellerID string, limit int) ([]Product, error) {
	f := ListFilter{Status: StatusApproved, SellerID: sellerID, Limit: clampLimit(limit)}
	if sellerID != "" && (actor.UID == sellerID || actor.IsAdmin()) {
		f.Status = ""
	}
	return s.list(ctx, f)
}

func (s *Service) ListPending(ctx context.Context, actor auth.Identity, limit int) ([]Product, error) {
	if !CanModerate(actor) {
		return nil, apperr.Forbidden("only admins can view the moderation queue")
	}
	return s.list(ctx, ListFilter{Status: StatusPending, Limit: clampLimit(limit)})
}

func (s *Service) list(ctx context.Context, f ListFilter) ([]Product, error) {
	out, err := s.Store.ListProducts(ctx, f)
	if err != nil {
		return nil, apperr.Internal(err, "list products")
	}
	if out == nil {
		out = []Product{}
	}
	return out, nil
}
