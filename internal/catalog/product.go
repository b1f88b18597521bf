package catalog

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusSoldOut  Status = "soldout"
)

type Condition string

const (
	ConditionNew     Condition = "New"
	ConditionLikeNew Condition = "Like New"
	ConditionUsed    Condition = "Used"
	ConditionFair    Condition = "Fair"
)

type Image struct {
	URL      string `json:"url" validate:"required,url"`
	PublicID string `json:"publicId"`
}

type Product struct {
	ID            string          `json:"id"`
	SellerID      string          `json:"sellerId"`
	SellerName    string          `json:"sellerName"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	Brand         *string         `json:"brand"`
	Category      string          `json:"category"`
	Size          *string         `json:"size"`
	Condition     Condition       `json:"condition"`
	Price         decimal.Decimal `json:"price"`
	Stock         int             `json:"stock"`
	Images        []Image         `json:"images"`
	Status        Status          `json:"status"`
	AverageRating float64         `json:"averageRating"`
	ReviewCount   int             `json:"reviewCount"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// FirstImageURL is the image snapshotted into order line items.
func (p Product) FirstImageURL() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0].URL
}

// AdjustStock applies a stock delta produced by a sale (negative) or a
// cancellation (positive). Selling the last unit marks the listing sold out;
// restocking a sold-out listing puts it back on sale. Callers guarantee the
// result is not negative.
func AdjustStock(p *Product, delta int, now time.Time) {
	p.Stock += delta
	switch {
	case delta < 0 && p.Stock == 0:
		p.Status = StatusSoldOut
	case delta > 0 && p.Status == StatusSoldOut && p.Stock > 0:
		p.Status = StatusApproved
	}
	p.UpdatedAt = now
}

type ListFilter struct {
	Status   Status
	SellerID string
	Limit    int
}

// Store persists listings. Implementations return apperr NotFound for unknown ids.
type Store interface {
	CreateProduct(ctx context.Context, p Product) error
	GetProduct(ctx context.Context, id string) (Product, error)
	// UpdateProduct applies fn to the current listing atomically. An error
	// from fn aborts without writing.
	UpdateProduct(ctx context.Context, id string, fn func(p *Product) error) (Product, error)
	DeleteProduct(ctx context.Context, id string) error
	ListProducts(ctx context.Context, f ListFilter) ([]Product, error)
}
